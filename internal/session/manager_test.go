package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SchemaBio/schema-platform-sub003/internal/adapters/storage"
	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/internal/expiry"
	"github.com/SchemaBio/schema-platform-sub003/internal/store"
)

type fakeService struct {
	refreshCalls int32
	logoutCalls  int32
	refreshErr   error
	tokenTTL     time.Duration // TTL of tokens handed out at login
	refreshTTL   time.Duration // TTL of refreshed tokens; tokenTTL when zero
	threshold    time.Duration
}

func token(ttl time.Duration) *domain.AuthToken {
	return &domain.AuthToken{
		AccessToken:  "AT",
		RefreshToken: "RT",
		ExpiresAt:    time.Now().Add(ttl).UTC().Format(time.RFC3339Nano),
	}
}

func (f *fakeService) Login(_ context.Context, email, _ string) (*domain.User, *domain.AuthToken, error) {
	return &domain.User{ID: "u-1", Email: email}, token(f.tokenTTL), nil
}

func (f *fakeService) Logout(context.Context, string) {
	atomic.AddInt32(&f.logoutCalls, 1)
}

func (f *fakeService) RefreshToken(context.Context, string) (*domain.AuthToken, error) {
	atomic.AddInt32(&f.refreshCalls, 1)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	ttl := f.refreshTTL
	if ttl == 0 {
		ttl = f.tokenTTL
	}
	return token(ttl), nil
}

func (f *fakeService) IsTokenExpiring(expiresAt string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = f.threshold
	}
	return expiry.IsExpiring(expiresAt, threshold)
}

func newTestManager(t *testing.T, svc *fakeService, cfg Config) (*Manager, *store.Store) {
	t.Helper()
	adapter := storage.NewFileAdapter(t.TempDir(), zerolog.Nop())
	st := store.New(adapter, zerolog.Nop())
	m := NewManager(st, svc, zerolog.Nop(), cfg)
	t.Cleanup(m.Close)
	return m, st
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLoginSchedulesProactiveRefresh(t *testing.T) {
	// first token expires in 150ms with a 100ms threshold: refresh ~50ms in,
	// and the refreshed token is long-lived
	svc := &fakeService{tokenTTL: 150 * time.Millisecond, refreshTTL: time.Hour}
	m, st := newTestManager(t, svc, Config{Threshold: 100 * time.Millisecond, MinDelay: 10 * time.Millisecond})

	if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !st.GetState().IsAuthenticated {
		t.Fatal("expected authenticated state after login")
	}

	eventually(t, time.Second, func() bool {
		return atomic.LoadInt32(&svc.refreshCalls) >= 1
	}, "proactive refresh never fired")

	eventually(t, time.Second, func() bool {
		state := st.GetState()
		return state.Tokens != nil && expiry.TimeRemaining(state.Tokens.ExpiresAt) > 30*time.Minute
	}, "store not updated with refreshed tokens")
	if !st.GetState().IsAuthenticated {
		t.Fatal("session must stay authenticated across refresh")
	}
}

func TestRefreshFailureSignsOutExactlyOnce(t *testing.T) {
	svc := &fakeService{
		tokenTTL:   100 * time.Millisecond,
		refreshErr: domain.NewAuthError(domain.CodeRefreshFailed, ""),
	}
	var logoutCalls, errCalls int32
	m, st := newTestManager(t, svc, Config{
		Threshold:   50 * time.Millisecond,
		MinDelay:    10 * time.Millisecond,
		OnLogout:    func() { atomic.AddInt32(&logoutCalls, 1) },
		OnAuthError: func(error) { atomic.AddInt32(&errCalls, 1) },
	})

	if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatal(err)
	}
	eventually(t, time.Second, func() bool {
		return atomic.LoadInt32(&logoutCalls) == 1
	}, "logout callback never fired")

	// give a stray duplicate timer a chance to fire before asserting
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&logoutCalls); got != 1 {
		t.Fatalf("logout callback fired %d times", got)
	}
	if got := atomic.LoadInt32(&errCalls); got != 1 {
		t.Fatalf("error callback fired %d times", got)
	}
	state := st.GetState()
	if state.IsAuthenticated || state.Tokens != nil {
		t.Fatalf("store not cleared: %+v", state)
	}
}

func TestStartWithEmptyStorage(t *testing.T) {
	svc := &fakeService{tokenTTL: time.Hour}
	m, _ := newTestManager(t, svc, Config{})
	if m.Start(context.Background()) {
		t.Fatal("expected Start to report no session")
	}
}

func TestStartWithExpiredStoredSession(t *testing.T) {
	dir := t.TempDir()
	adapter := storage.NewFileAdapter(dir, zerolog.Nop())
	adapter.StoreAuthData(&domain.StoredAuthData{
		User:   &domain.User{ID: "u-1"},
		Tokens: &domain.AuthToken{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(-time.Second).UTC().Format(time.RFC3339)},
	})
	st := store.New(adapter, zerolog.Nop())
	svc := &fakeService{tokenTTL: time.Hour}
	m := NewManager(st, svc, zerolog.Nop(), Config{})
	defer m.Close()

	if m.Start(context.Background()) {
		t.Fatal("expired stored session must not be adopted")
	}
	if adapter.GetStoredAuthData() != nil {
		t.Fatal("expired stored session must be cleared")
	}
}

func TestStartRefreshesImmediatelyWhenInsideThreshold(t *testing.T) {
	dir := t.TempDir()
	adapter := storage.NewFileAdapter(dir, zerolog.Nop())
	adapter.StoreAuthData(&domain.StoredAuthData{
		User:   &domain.User{ID: "u-1"},
		Tokens: &domain.AuthToken{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(30 * time.Millisecond).UTC().Format(time.RFC3339Nano)},
	})
	st := store.New(adapter, zerolog.Nop())
	svc := &fakeService{tokenTTL: time.Hour, threshold: time.Minute}
	m := NewManager(st, svc, zerolog.Nop(), Config{Threshold: time.Minute, MinDelay: 10 * time.Millisecond})
	defer m.Close()

	if !m.Start(context.Background()) {
		t.Fatal("expected session to be adopted after immediate refresh")
	}
	if atomic.LoadInt32(&svc.refreshCalls) != 1 {
		t.Fatalf("expected one immediate refresh, got %d", svc.refreshCalls)
	}
	if !st.GetState().IsAuthenticated {
		t.Fatal("expected authenticated state")
	}
}

func TestLogoutCancelsTimerAndFiresCallback(t *testing.T) {
	svc := &fakeService{tokenTTL: 80 * time.Millisecond}
	var logoutCalls int32
	m, st := newTestManager(t, svc, Config{
		Threshold: 40 * time.Millisecond,
		MinDelay:  10 * time.Millisecond,
		OnLogout:  func() { atomic.AddInt32(&logoutCalls, 1) },
	})

	if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatal(err)
	}
	m.Logout(context.Background())

	if atomic.LoadInt32(&svc.logoutCalls) != 1 {
		t.Fatal("remote logout not attempted")
	}
	if atomic.LoadInt32(&logoutCalls) != 1 {
		t.Fatal("logout callback not fired")
	}
	if st.GetState().IsAuthenticated {
		t.Fatal("store not cleared")
	}

	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&svc.refreshCalls) != 0 {
		t.Fatal("cancelled timer still fired")
	}
}

func TestCloseStopsPendingTimer(t *testing.T) {
	svc := &fakeService{tokenTTL: 60 * time.Millisecond}
	m, _ := newTestManager(t, svc, Config{Threshold: 40 * time.Millisecond, MinDelay: 10 * time.Millisecond})

	if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatal(err)
	}
	m.Close()

	time.Sleep(120 * time.Millisecond)
	if atomic.LoadInt32(&svc.refreshCalls) != 0 {
		t.Fatal("refresh fired after Close")
	}
}

func TestRepeatedLoginKeepsOneTimer(t *testing.T) {
	svc := &fakeService{tokenTTL: 100 * time.Millisecond, refreshTTL: time.Hour}
	m, _ := newTestManager(t, svc, Config{Threshold: 50 * time.Millisecond, MinDelay: 10 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
			t.Fatal(err)
		}
	}
	eventually(t, time.Second, func() bool {
		return atomic.LoadInt32(&svc.refreshCalls) >= 1
	}, "refresh never fired")

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&svc.refreshCalls); got != 1 {
		t.Fatalf("expected one timer to survive repeated logins, refresh fired %d times", got)
	}
}

// blockingService parks RefreshToken until released so a test can interleave
// other lifecycle calls with an in-flight refresh.
type blockingService struct {
	refreshCalls int32
	logoutCalls  int32
	refreshErr   error
	tokenTTL     time.Duration
	entered      chan struct{}
	release      chan struct{}
}

func newBlockingService(ttl time.Duration) *blockingService {
	return &blockingService{
		tokenTTL: ttl,
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (f *blockingService) Login(_ context.Context, email, _ string) (*domain.User, *domain.AuthToken, error) {
	return &domain.User{ID: "u-1", Email: email}, token(f.tokenTTL), nil
}

func (f *blockingService) Logout(context.Context, string) {
	atomic.AddInt32(&f.logoutCalls, 1)
}

func (f *blockingService) RefreshToken(context.Context, string) (*domain.AuthToken, error) {
	if atomic.AddInt32(&f.refreshCalls, 1) == 1 {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return token(time.Hour), nil
}

func (f *blockingService) IsTokenExpiring(expiresAt string, threshold time.Duration) bool {
	return expiry.IsExpiring(expiresAt, threshold)
}

func TestLogoutDuringInFlightRefreshStaysSignedOut(t *testing.T) {
	svc := newBlockingService(60 * time.Millisecond)
	adapter := storage.NewFileAdapter(t.TempDir(), zerolog.Nop())
	st := store.New(adapter, zerolog.Nop())
	var logoutCalls int32
	m := NewManager(st, svc, zerolog.Nop(), Config{
		Threshold: 30 * time.Millisecond,
		MinDelay:  10 * time.Millisecond,
		OnLogout:  func() { atomic.AddInt32(&logoutCalls, 1) },
	})
	t.Cleanup(m.Close)

	if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatal(err)
	}
	<-svc.entered // the proactive refresh is now parked mid-call
	m.Logout(context.Background())
	close(svc.release)

	time.Sleep(150 * time.Millisecond)
	state := st.GetState()
	if state.Tokens != nil || state.IsAuthenticated {
		t.Fatalf("logged-out store resurrected by stale refresh: %+v", state)
	}
	if adapter.GetStoredAuthData() != nil {
		t.Fatal("stale refresh rewrote cleared session files")
	}
	if got := atomic.LoadInt32(&svc.refreshCalls); got != 1 {
		t.Fatalf("refresh timer re-armed after logout, %d calls", got)
	}
	if got := atomic.LoadInt32(&logoutCalls); got != 1 {
		t.Fatalf("logout callback fired %d times", got)
	}
}

func TestLogoutDuringFailingRefreshFiresCallbacksOnce(t *testing.T) {
	svc := newBlockingService(60 * time.Millisecond)
	svc.refreshErr = domain.NewAuthError(domain.CodeRefreshFailed, "")
	st := store.New(storage.NewFileAdapter(t.TempDir(), zerolog.Nop()), zerolog.Nop())
	var logoutCalls, errCalls int32
	m := NewManager(st, svc, zerolog.Nop(), Config{
		Threshold:   30 * time.Millisecond,
		MinDelay:    10 * time.Millisecond,
		OnLogout:    func() { atomic.AddInt32(&logoutCalls, 1) },
		OnAuthError: func(error) { atomic.AddInt32(&errCalls, 1) },
	})
	t.Cleanup(m.Close)

	if err := m.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatal(err)
	}
	<-svc.entered
	m.Logout(context.Background())
	close(svc.release) // the parked refresh now settles with an error

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&logoutCalls); got != 1 {
		t.Fatalf("logout callback fired %d times", got)
	}
	if got := atomic.LoadInt32(&errCalls); got != 0 {
		t.Fatalf("stale refresh failure surfaced %d auth errors after logout", got)
	}
}

func TestRefreshDelayIsFloored(t *testing.T) {
	svc := &fakeService{tokenTTL: time.Hour}
	m, _ := newTestManager(t, svc, Config{Threshold: 5 * time.Minute, MinDelay: time.Second})

	// token expiring inside the threshold would compute a zero delay
	short := &domain.AuthToken{ExpiresAt: time.Now().Add(time.Second).UTC().Format(time.RFC3339)}
	if got := m.RefreshDelayFor(short); got < time.Second {
		t.Fatalf("delay not floored: %s", got)
	}
}
