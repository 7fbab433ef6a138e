package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mt5bridge/internal/terminal"
)

// fakeClient is an in-memory terminal that tracks the authenticated login
// and serves per-login account figures.
type fakeClient struct {
	infoByLogin map[int64]terminal.AccountInfo
	rejectLogin map[int64]bool
	deals       []terminal.DealRecord

	current      int64
	connectCalls int
	loginCalls   []int64
	closed       bool
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.connectCalls++
	return nil
}

func (f *fakeClient) Login(ctx context.Context, login int64, password, server string) error {
	f.loginCalls = append(f.loginCalls, login)
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
	return f.deals, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestManager(t *testing.T, client *fakeClient) *Manager {
	t.Helper()
	m := New(client, time.Second, nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return m
}

func TestInitializeIdempotent(t *testing.T) {
	client := &fakeClient{}
	m := New(client, time.Second, nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if client.connectCalls != 1 {
		t.Fatalf("connectCalls=%d want=1", client.connectCalls)
	}
}

func TestOpsBeforeInitialize(t *testing.T) {
	m := New(&fakeClient{}, time.Second, nil)
	err := m.Login(context.Background(), Account{Login: 100})
	if !errors.Is(err, terminal.ErrConnection) {
		t.Fatalf("err=%v want ErrConnection", err)
	}
	if _, err := m.AccountInfo(context.Background()); !errors.Is(err, terminal.ErrConnection) {
		t.Fatalf("err=%v want ErrConnection", err)
	}
}

func TestLoginSetsIdentity(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{}}
	m := newTestManager(t, client)

	if _, ok := m.CurrentIdentity(); ok {
		t.Fatalf("expected no identity before login")
	}
	if err := m.Login(context.Background(), Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}
	id, ok := m.CurrentIdentity()
	if !ok || id != 100 {
		t.Fatalf("identity=%d,%v want=100,true", id, ok)
	}
}

func TestLoginSameAccountSkipsWire(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(t, client)

	if err := m.Login(context.Background(), Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Login(context.Background(), Account{Login: 100}); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if len(client.loginCalls) != 1 {
		t.Fatalf("loginCalls=%v want one call", client.loginCalls)
	}
}

func TestRejectedLoginClearsIdentity(t *testing.T) {
	client := &fakeClient{rejectLogin: map[int64]bool{200: true}}
	m := newTestManager(t, client)

	if err := m.Login(context.Background(), Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}
	err := m.Login(context.Background(), Account{Login: 200})
	if !errors.Is(err, terminal.ErrAuthentication) {
		t.Fatalf("err=%v want ErrAuthentication", err)
	}
	// The terminal state is unknown after a rejected login.
	if _, ok := m.CurrentIdentity(); ok {
		t.Fatalf("expected no identity after rejected login")
	}
}

func TestLiveInfoOnlyForCurrent(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{
		100: {Login: 100, Balance: decimal.NewFromInt(5000)},
	}}
	m := newTestManager(t, client)
	if err := m.Login(context.Background(), Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}

	info, active, err := m.LiveInfo(context.Background(), 100)
	if err != nil || !active {
		t.Fatalf("active=%v err=%v want true,nil", active, err)
	}
	if !info.Balance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance=%s want=5000", info.Balance)
	}

	if _, active, err := m.LiveInfo(context.Background(), 200); err != nil || active {
		t.Fatalf("active=%v err=%v want false,nil for non-current account", active, err)
	}
}

func TestSnapshotForSwitchesIdentity(t *testing.T) {
	client := &fakeClient{infoByLogin: map[int64]terminal.AccountInfo{
		100: {Login: 100, Balance: decimal.NewFromInt(1000)},
		200: {Login: 200, Balance: decimal.NewFromInt(2000)},
	}}
	m := newTestManager(t, client)

	info, err := m.SnapshotFor(context.Background(), Account{Login: 200})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !info.Balance.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("balance=%s want=2000", info.Balance)
	}
	id, ok := m.CurrentIdentity()
	if !ok || id != 200 {
		t.Fatalf("identity=%d,%v want=200,true", id, ok)
	}
}

func TestTeardown(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(t, client)
	if err := m.Login(context.Background(), Account{Login: 100}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Teardown(); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if !client.closed {
		t.Fatalf("expected client closed")
	}
	if m.Initialized() {
		t.Fatalf("expected not initialized after teardown")
	}
	if err := m.Teardown(); err != nil {
		t.Fatalf("second teardown: %v", err)
	}
}
