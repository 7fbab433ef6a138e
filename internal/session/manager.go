// Package session owns the single exclusive terminal connection and the
// identity currently authenticated on it.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mt5bridge/internal/terminal"
)

// Account carries the credentials needed to authenticate one managed
// account on the shared connection.
type Account struct {
	Login    int64
	Password string
	Server   string
}

// Manager serializes all terminal access behind one mutex. Compound
// operations (login followed by a read) run as a single critical section so
// no caller ever observes a half-switched identity.
type Manager struct {
	mu          sync.Mutex
	client      terminal.Client
	logger      *zap.Logger
	callTimeout time.Duration

	initialized bool
	current     int64 // 0 = no authenticated identity
}

func New(client terminal.Client, callTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		client:      client,
		logger:      logger,
		callTimeout: callTimeout,
	}
}

// Initialize establishes the terminal connection. Idempotent: once the
// first call succeeds, subsequent calls return immediately.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	if err := m.client.Connect(cctx); err != nil {
		return fmt.Errorf("%w: %v", terminal.ErrConnection, err)
	}
	m.initialized = true
	return nil
}

// Initialized reports whether the connection has been established.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Login authenticates as the given account, replacing the active identity.
func (m *Manager) Login(ctx context.Context, acct Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginLocked(ctx, acct)
}

// CurrentIdentity returns the login currently authenticated, if any.
func (m *Manager) CurrentIdentity() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != 0
}

// AccountInfo returns live figures for whichever account is currently
// authenticated.
func (m *Manager) AccountInfo(ctx context.Context) (terminal.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountInfoLocked(ctx)
}

// HistoryDeals returns deals visible to the current identity in [from, to].
func (m *Manager) HistoryDeals(ctx context.Context, from, to time.Time) ([]terminal.DealRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, terminal.ErrConnection
	}
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	deals, err := m.client.HistoryDeals(cctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: history deals: %v", terminal.ErrConnection, err)
	}
	return deals, nil
}

// LiveInfo returns live figures for accountID only if it is still the
// active identity at read time; ok=false means the identity has moved on
// and the caller should fall back to its cache.
func (m *Manager) LiveInfo(ctx context.Context, accountID int64) (terminal.AccountInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != accountID {
		return terminal.AccountInfo{}, false, nil
	}
	info, err := m.accountInfoLocked(ctx)
	if err != nil {
		return terminal.AccountInfo{}, true, err
	}
	return info, true, nil
}

// SnapshotFor performs login + account read as one atomic step.
func (m *Manager) SnapshotFor(ctx context.Context, acct Account) (terminal.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loginLocked(ctx, acct); err != nil {
		return terminal.AccountInfo{}, err
	}
	return m.accountInfoLocked(ctx)
}

// HistoryFor performs login + history read as one atomic step.
func (m *Manager) HistoryFor(ctx context.Context, acct Account, from, to time.Time) ([]terminal.DealRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loginLocked(ctx, acct); err != nil {
		return nil, err
	}
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	deals, err := m.client.HistoryDeals(cctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: history deals: %v", terminal.ErrConnection, err)
	}
	return deals, nil
}

// Teardown releases the connection. Safe to call multiple times.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}
	m.initialized = false
	m.current = 0
	return m.client.Close()
}

func (m *Manager) loginLocked(ctx context.Context, acct Account) error {
	if !m.initialized {
		return terminal.ErrConnection
	}
	if m.current == acct.Login {
		return nil
	}
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	if err := m.client.Login(cctx, acct.Login, acct.Password, acct.Server); err != nil {
		// The terminal state is unknown after a rejected login; treat the
		// identity as none until the next successful login.
		m.current = 0
		if cctx.Err() != nil {
			return fmt.Errorf("%w: login %d: %v", terminal.ErrConnection, acct.Login, err)
		}
		return fmt.Errorf("%w: login %d: %v", terminal.ErrAuthentication, acct.Login, err)
	}
	m.current = acct.Login
	return nil
}

func (m *Manager) accountInfoLocked(ctx context.Context) (terminal.AccountInfo, error) {
	if !m.initialized {
		return terminal.AccountInfo{}, terminal.ErrConnection
	}
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	info, err := m.client.AccountInfo(cctx)
	if err != nil {
		return terminal.AccountInfo{}, fmt.Errorf("%w: account info: %v", terminal.ErrConnection, err)
	}
	return info, nil
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout > 0 {
		return context.WithTimeout(ctx, m.callTimeout)
	}
	return context.WithCancel(ctx)
}
