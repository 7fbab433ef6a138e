// Package mux multiplexes many managed accounts over the single terminal
// session, serving possibly-stale snapshots from an in-memory cache.
//
// Only one account can be authenticated at a time, so live data for any
// other account is necessarily stale. The cache makes that staleness
// explicit: every snapshot carries a freshness tag and capture time, and
// staleness is bounded by the refresh interval.
package mux

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mt5bridge/internal/session"
	"mt5bridge/internal/terminal"
)

// Freshness tags for cache entries. Exactly one account may be Live at any
// instant: the one the session is currently authenticated as.
const (
	FreshnessLive   = "live"
	FreshnessCached = "cached"
	FreshnessAbsent = "no_cache"
)

// ManagedAccount is one multiplexed account plus its display metadata.
type ManagedAccount struct {
	session.Account
	FundType string
	Name     string
}

// Snapshot is the cached view of one account's state.
type Snapshot struct {
	AccountID   int64
	Balance     decimal.Decimal
	Equity      decimal.Decimal
	Profit      decimal.Decimal
	Margin      decimal.Decimal
	MarginFree  decimal.Decimal
	MarginLevel decimal.Decimal
	Currency    string
	Leverage    int64
	CapturedAt  time.Time
}

// Entry wraps a snapshot with its freshness tag. Absent entries carry a
// zero-valued snapshot and an explanatory note so callers degrade
// gracefully instead of seeing an error.
type Entry struct {
	Snapshot  Snapshot
	Freshness string
	Note      string
}

// AccountEntry pairs an entry with the account's static metadata, for
// portfolio-wide summaries.
type AccountEntry struct {
	Account ManagedAccount
	Entry   Entry
}

// Health reports session and refresh-cycle state.
type Health struct {
	Initialized    bool
	CachedAccounts int
	LastCycleAt    time.Time
	LastCycleError string
}

type Multiplexer struct {
	session  *session.Manager
	logger   *zap.Logger
	accounts []ManagedAccount

	mu    sync.Mutex
	cache map[int64]Entry

	refreshing     atomic.Bool
	lastCycleAt    atomic.Int64 // unix nanos
	lastCycleError atomic.Value // string
}

func New(sess *session.Manager, accounts []ManagedAccount, logger *zap.Logger) *Multiplexer {
	m := &Multiplexer{
		session:  sess,
		logger:   logger,
		accounts: accounts,
		cache:    make(map[int64]Entry, len(accounts)),
	}
	m.lastCycleError.Store("")
	return m
}

// Accounts returns the static managed-account configuration.
func (m *Multiplexer) Accounts() []ManagedAccount {
	return m.accounts
}

// GetAccountSnapshot returns the freshest view available for accountID
// without ever blocking on a login: live if the account is currently
// authenticated, else the cached entry, else a zero-valued absent entry.
func (m *Multiplexer) GetAccountSnapshot(ctx context.Context, accountID int64) Entry {
	info, active, err := m.session.LiveInfo(ctx, accountID)
	if active && err == nil {
		snap := snapshotFromInfo(accountID, info)
		// The stored copy is tagged cached: the Live tag describes this
		// read, not the entry's future freshness.
		m.storeCached(accountID, Entry{Snapshot: snap, Freshness: FreshnessCached})
		return Entry{Snapshot: snap, Freshness: FreshnessLive}
	}
	if active && err != nil && m.logger != nil {
		m.logger.Warn("live snapshot read failed, serving cache",
			zap.Int64("account", accountID),
			zap.Error(err),
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.cache[accountID]; ok {
		entry.Freshness = FreshnessCached
		entry.Note = ""
		return entry
	}
	return Entry{
		Snapshot:  Snapshot{AccountID: accountID},
		Freshness: FreshnessAbsent,
		Note:      "no cached data for this account yet",
	}
}

// GetAllSnapshots returns one entry per managed account.
func (m *Multiplexer) GetAllSnapshots(ctx context.Context) []AccountEntry {
	out := make([]AccountEntry, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, AccountEntry{
			Account: acct,
			Entry:   m.GetAccountSnapshot(ctx, acct.Login),
		})
	}
	return out
}

// RefreshCycle runs a single non-overlapping pass over every managed
// account: login, read, cache. Per-account failures are logged and
// skipped. Whatever happens mid-cycle, the cycle ends by attempting to
// restore the identity that was active when it started.
func (m *Multiplexer) RefreshCycle(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		if m.logger != nil {
			m.logger.Debug("refresh cycle already running, tick skipped")
		}
		return nil
	}
	defer m.refreshing.Store(false)

	original, hadOriginal := m.session.CurrentIdentity()

	var firstErr error
	refreshed := 0
	for _, acct := range m.accounts {
		if ctx.Err() != nil {
			// Cancelled mid-cycle: stop switching accounts but still fall
			// through to the identity restore below.
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
		info, err := m.session.SnapshotFor(ctx, acct.Account)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if m.logger != nil {
				m.logger.Warn("refresh skipped account",
					zap.Int64("account", acct.Login),
					zap.Error(err),
				)
			}
			continue
		}
		m.storeCached(acct.Login, Entry{
			Snapshot:  snapshotFromInfo(acct.Login, info),
			Freshness: FreshnessCached,
		})
		refreshed++
	}

	if hadOriginal {
		m.restoreIdentity(ctx, original)
	}

	m.lastCycleAt.Store(time.Now().UTC().UnixNano())
	if firstErr != nil {
		m.lastCycleError.Store(firstErr.Error())
	} else {
		m.lastCycleError.Store("")
	}
	if m.logger != nil {
		m.logger.Info("refresh cycle complete",
			zap.Int("refreshed", refreshed),
			zap.Int("managed", len(m.accounts)),
		)
	}
	return firstErr
}

// Health reports whether the session is initialized and the last known
// refresh-cycle outcome.
func (m *Multiplexer) Health() Health {
	m.mu.Lock()
	cached := len(m.cache)
	m.mu.Unlock()

	h := Health{
		Initialized:    m.session.Initialized(),
		CachedAccounts: cached,
	}
	if ns := m.lastCycleAt.Load(); ns > 0 {
		h.LastCycleAt = time.Unix(0, ns).UTC()
	}
	if v, ok := m.lastCycleError.Load().(string); ok {
		h.LastCycleError = v
	}
	return h
}

func (m *Multiplexer) restoreIdentity(ctx context.Context, login int64) {
	acct, ok := m.accountByLogin(login)
	if !ok {
		return
	}
	restoreCtx := ctx
	if ctx.Err() != nil {
		// Shutdown path: best effort with its own short deadline so
		// teardown never blocks indefinitely on the terminal.
		var cancel context.CancelFunc
		restoreCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := m.session.Login(restoreCtx, acct.Account); err != nil && m.logger != nil {
		// Next cycle retries; until then foreground reads for this
		// account serve cache.
		m.logger.Error("failed to restore original identity after refresh",
			zap.Int64("account", login),
			zap.Error(err),
		)
	}
}

func (m *Multiplexer) accountByLogin(login int64) (ManagedAccount, bool) {
	for _, acct := range m.accounts {
		if acct.Login == login {
			return acct, true
		}
	}
	return ManagedAccount{}, false
}

func (m *Multiplexer) storeCached(accountID int64, entry Entry) {
	m.mu.Lock()
	m.cache[accountID] = entry
	m.mu.Unlock()
}

func snapshotFromInfo(accountID int64, info terminal.AccountInfo) Snapshot {
	return Snapshot{
		AccountID:   accountID,
		Balance:     info.Balance,
		Equity:      info.Equity,
		Profit:      info.Profit,
		Margin:      info.Margin,
		MarginFree:  info.MarginFree,
		MarginLevel: info.MarginLevel,
		Currency:    info.Currency,
		Leverage:    info.Leverage,
		CapturedAt:  time.Now().UTC(),
	}
}
