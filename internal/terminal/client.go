// Package terminal defines the boundary to the external MT5 terminal
// client. The process owns exactly one terminal connection, and that
// connection is authenticated as at most one account at a time.
package terminal

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrConnection means the terminal is unreachable or the session is
	// not initialized. Retryable on the next health probe or refresh tick.
	ErrConnection = errors.New("terminal connection unavailable")

	// ErrAuthentication means a login was rejected for a managed account.
	ErrAuthentication = errors.New("terminal login rejected")
)

// AccountInfo is the live state of whichever account is currently
// authenticated.
type AccountInfo struct {
	Login       int64
	Balance     decimal.Decimal
	Equity      decimal.Decimal
	Profit      decimal.Decimal
	Margin      decimal.Decimal
	MarginFree  decimal.Decimal
	MarginLevel decimal.Decimal
	Currency    string
	Leverage    int64
}

// DealRecord is one historical deal as reported by the terminal for the
// currently authenticated account.
type DealRecord struct {
	Ticket     int64
	Order      int64
	Time       time.Time
	Type       int
	Entry      int
	Magic      int64
	PositionID int64
	Reason     int
	Volume     decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Swap       decimal.Decimal
	Profit     decimal.Decimal
	Fee        decimal.Decimal
	Symbol     string
	Comment    string
	ExternalID string
}

// Client is the capability-typed terminal connection. Implementations wrap
// the actual wire protocol; all calls may block on I/O and honor ctx.
type Client interface {
	// Connect establishes the terminal connection. Idempotent.
	Connect(ctx context.Context) error

	// Login authenticates as the given account, replacing whatever
	// identity was previously active.
	Login(ctx context.Context, login int64, password, server string) error

	// AccountInfo returns live figures for the currently authenticated
	// account.
	AccountInfo(ctx context.Context) (AccountInfo, error)

	// HistoryDeals returns all deals visible to the current identity in
	// [from, to].
	HistoryDeals(ctx context.Context, from, to time.Time) ([]DealRecord, error)

	// Close releases the connection. Safe to call multiple times.
	Close() error
}
