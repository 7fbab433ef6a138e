package mux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mt5bridge/internal/session"
	"mt5bridge/internal/terminal"
)

type fakeClient struct {
	infoByLogin map[int64]terminal.AccountInfo
	rejectLogin map[int64]bool
	current     int64
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }

func (f *fakeClient) Login(ctx context.Context, login int64, password, server string) error {
	if f.rejectLogin[login] {
		return errors.New("invalid credentials")
	}
	f.current = login
	return nil
}

func (f *fakeClient) AccountInfo(ctx context.Context) (terminal.AccountInfo, error) {
	info, ok := f.infoByLogin[f.current]
	if !ok {
		return terminal.AccountInfo{}, errors.New("no account selected")
	}
	return info, nil
}

func (f *fakeClient) HistoryDeals(ctx context.Context, from, to time.Time) ([]terminal.DealRecord, error) {
	return nil, nil
}

func (f *fakeClient) Close() error { return nil }

func testAccounts() []ManagedAccount {
	return []ManagedAccount{
		{Account: session.Account{Login: 100}, FundType: "master", Name: "Master"},
		{Account: session.Account{Login: 200}, FundType: "sub", Name: "Sub A"},
	}
}

func newTestMux(t *testing.T, client *fakeClient) (*Multiplexer, *session.Manager) {
	t.Helper()
	sess := session.New(client, time.Second, nil)
	if err := sess.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return New(sess, testAccounts(), nil), sess
}

func TestAbsentEntryBeforeFirstRefresh(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{}}
	m, _ := newTestMux(t, client)

	entry := m.GetAccountSnapshot(context.Background(), 200)
	if entry.Freshness != FreshnessAbsent {
		t.Fatalf("freshness=%s want=%s", entry.Freshness, FreshnessAbsent)
	}
	if entry.Note == "" {
		t.Fatalf("expected explanatory note on absent entry")
	}
	if !entry.Snapshot.Balance.IsZero() {
		t.Fatalf("absent entry must carry zero figures")
	}
}

func TestRefreshCyclePopulatesCacheAndRestoresIdentity(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{
		100: {Login: 100, Balance: decimal.NewFromInt(1000)},
		200: {Login: 200, Balance: decimal.NewFromInt(2000)},
	}}
	m, sess := newTestMux(t, client)

	if err := sess.Login(context.Background(), session.Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.RefreshCycle(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, login := range []int64{100, 200} {
		entry := m.GetAccountSnapshot(context.Background(), login)
		if entry.Freshness == FreshnessAbsent {
			t.Fatalf("account %d not cached after refresh", login)
		}
		if entry.Snapshot.CapturedAt.IsZero() {
			t.Fatalf("account %d entry missing capture time", login)
		}
	}

	id, ok := sess.CurrentIdentity()
	if !ok || id != 100 {
		t.Fatalf("identity=%d,%v want restored to 100", id, ok)
	}
	if health := m.Health(); health.LastCycleAt.IsZero() || health.LastCycleError != "" {
		t.Fatalf("health=%+v want clean cycle recorded", health)
	}
}

func TestCachedSnapshotStableForNonActiveAccount(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{
		100: {Login: 100, Balance: decimal.NewFromInt(1000)},
		200: {Login: 200, Balance: decimal.NewFromInt(2000)},
	}}
	m, sess := newTestMux(t, client)

	if err := m.RefreshCycle(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := sess.Login(context.Background(), session.Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The terminal moves on; the non-active account's cache must not.
	client.infoByLogin[200] = terminal.AccountInfo{Login: 200, Balance: decimal.NewFromInt(9999)}

	first := m.GetAccountSnapshot(context.Background(), 200)
	second := m.GetAccountSnapshot(context.Background(), 200)
	if first.Freshness != FreshnessCached || second.Freshness != FreshnessCached {
		t.Fatalf("freshness=%s/%s want cached", first.Freshness, second.Freshness)
	}
	if !first.Snapshot.Balance.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("balance=%s want cached 2000", first.Snapshot.Balance)
	}
	if !first.Snapshot.Balance.Equal(second.Snapshot.Balance) ||
		!first.Snapshot.CapturedAt.Equal(second.Snapshot.CapturedAt) {
		t.Fatalf("cached entry changed between reads without a refresh")
	}
}

func TestLiveSnapshotForActiveAccount(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{
		100: {Login: 100, Balance: decimal.NewFromInt(1000)},
	}}
	m, sess := newTestMux(t, client)

	if err := sess.Login(context.Background(), session.Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}
	client.infoByLogin[100] = terminal.AccountInfo{Login: 100, Balance: decimal.NewFromInt(1234)}

	entry := m.GetAccountSnapshot(context.Background(), 100)
	if entry.Freshness != FreshnessLive {
		t.Fatalf("freshness=%s want=%s", entry.Freshness, FreshnessLive)
	}
	if !entry.Snapshot.Balance.Equal(decimal.NewFromInt(1234)) {
		t.Fatalf("balance=%s want live 1234", entry.Snapshot.Balance)
	}
}

func TestRefreshCycleSkipsFailingAccount(t *testing.T) {
	client := &fakeClient{
		infoByLogin: map[int64]terminal.AccountInfo{
			100: {Login: 100, Balance: decimal.NewFromInt(1000)},
		},
		rejectLogin: map[int64]bool{200: true},
	}
	m, _ := newTestMux(t, client)

	err := m.RefreshCycle(context.Background())
	if !errors.Is(err, terminal.ErrAuthentication) {
		t.Fatalf("err=%v want ErrAuthentication surfaced", err)
	}

	if entry := m.GetAccountSnapshot(context.Background(), 200); entry.Freshness != FreshnessAbsent {
		t.Fatalf("failing account freshness=%s want absent", entry.Freshness)
	}
	entry := m.GetAccountSnapshot(context.Background(), 100)
	if entry.Freshness == FreshnessAbsent {
		t.Fatalf("healthy account should still be cached")
	}
	if health := m.Health(); health.LastCycleError == "" {
		t.Fatalf("expected last cycle error recorded")
	}
}

func TestGetAllSnapshotsCoversEveryAccount(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{
		100: {Login: 100, Balance: decimal.NewFromInt(1000)},
		200: {Login: 200, Balance: decimal.NewFromInt(2000)},
	}}
	m, _ := newTestMux(t, client)

	entries := m.GetAllSnapshots(context.Background())
	if len(entries) != 2 {
		t.Fatalf("entries=%d want=2", len(entries))
	}
	for _, e := range entries {
		if e.Entry.Freshness != FreshnessAbsent {
			t.Fatalf("account %d freshness=%s want absent before refresh", e.Account.Login, e.Entry.Freshness)
		}
	}
}
