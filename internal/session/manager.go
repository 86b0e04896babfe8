// Package session coordinates the session lifecycle: restoring persisted
// sessions at startup, scheduling proactive token refresh, and tearing the
// session down on logout or refresh failure.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/internal/expiry"
	"github.com/SchemaBio/schema-platform-sub003/internal/store"
	"github.com/SchemaBio/schema-platform-sub003/internal/usecase"
	pkglog "github.com/SchemaBio/schema-platform-sub003/pkg/log"
)

// MinRefreshDelay floors every scheduled refresh. A server issuing a
// pathologically short expiry would otherwise arm a timer that fires
// immediately in a tight loop.
const MinRefreshDelay = time.Second

// Config tunes a Manager. Zero values fall back to the package defaults and
// nil callbacks are skipped.
type Config struct {
	// Threshold is how far before expiry a refresh is attempted.
	Threshold time.Duration
	// MinDelay floors the refresh timer. Defaults to MinRefreshDelay.
	MinDelay time.Duration
	// OnLogout runs after the session ends for any reason, for UI redirect.
	OnLogout func()
	// OnAuthError runs when a background refresh fails, before OnLogout.
	OnAuthError func(err error)
}

// Manager glues the store and the auth service together and owns the single
// refresh timer. At most one timer is armed at any moment; arming a new one
// always cancels the previous one first.
type Manager struct {
	store   *store.Store
	service usecase.Service
	logger  pkglog.Logger
	cfg     Config

	mu     sync.Mutex
	timer  *time.Timer
	ctx    context.Context
	closed bool
	// gen identifies the current session. Every transition (login, logout,
	// refresh failure) bumps it, so a refresh that was in flight when the
	// session ended settles against a stale generation and is discarded
	// instead of resurrecting the cleared session.
	gen uint64
}

// NewManager wires a Manager. Start must be called before the manager
// schedules anything.
func NewManager(st *store.Store, service usecase.Service, logger pkglog.Logger, cfg Config) *Manager {
	if cfg.Threshold <= 0 {
		cfg.Threshold = expiry.DefaultThreshold
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = MinRefreshDelay
	}
	return &Manager{store: st, service: service, logger: logger, cfg: cfg, ctx: context.Background()}
}

// Start restores a persisted session once. A restored token already inside
// the expiring window is refreshed immediately instead of being scheduled.
// The returned bool reports whether a session was adopted.
func (m *Manager) Start(ctx context.Context) bool {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if !m.store.RestoreSession() {
		return false
	}
	state := m.store.GetState()
	if state.Tokens == nil {
		return false
	}
	if m.service.IsTokenExpiring(state.Tokens.ExpiresAt, m.cfg.Threshold) {
		m.logger.Info().Msg("restored token near expiry, refreshing now")
		m.refreshNow()
		return m.store.GetState().IsAuthenticated
	}
	m.scheduleRefresh(state.Tokens.ExpiresAt)
	return true
}

// Login authenticates, adopts the session, and arms the refresh timer.
// The error is always a *domain.AuthError.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.store.SetLoading(true)
	user, tokens, err := m.service.Login(ctx, email, password)
	if err != nil {
		m.store.SetLoading(false)
		return err
	}
	m.bumpGen()
	m.store.SetAuth(user, tokens)
	m.scheduleRefresh(tokens.ExpiresAt)
	return nil
}

// Logout cancels the refresh timer, attempts remote invalidation best
// effort, clears local state, and fires the logout callback. Bumping the
// generation first makes any refresh still in flight settle stale.
func (m *Manager) Logout(ctx context.Context) {
	m.bumpGen()
	m.cancelTimer()
	if state := m.store.GetState(); state.Tokens != nil {
		m.service.Logout(ctx, state.Tokens.AccessToken)
	}
	m.store.ClearAuth()
	m.logger.Info().Msg("signed out")
	if m.cfg.OnLogout != nil {
		m.cfg.OnLogout()
	}
}

// Close cancels any pending timer. No refresh fires after Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
}

// scheduleRefresh arms the timer for expiry minus threshold, floored at
// MinDelay, cancelling any previous timer.
func (m *Manager) scheduleRefresh(expiresAt string) {
	delay := expiry.RefreshDelay(expiresAt, m.cfg.Threshold)
	if delay < m.cfg.MinDelay {
		delay = m.cfg.MinDelay
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.logger.Debug().Dur("delay", delay).Msg("refresh scheduled")
	m.timer = time.AfterFunc(delay, m.refreshNow)
}

// refreshNow performs one refresh attempt. Success reschedules from the new
// expiry; failure ends the session. A result that settles after the session
// it belongs to ended (logout or a concurrent failure won the race) is
// discarded on both branches.
func (m *Manager) refreshNow() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	gen := m.gen
	m.mu.Unlock()

	state := m.store.GetState()
	if state.Tokens == nil {
		return
	}

	tokens, err := m.service.RefreshToken(ctx, state.Tokens.RefreshToken)
	if m.genChanged(gen) {
		m.logger.Debug().Msg("session ended while refresh was in flight, discarding result")
		return
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("session refresh failed, signing out")
		m.bumpGen()
		m.cancelTimer()
		m.store.ClearAuth()
		if m.cfg.OnAuthError != nil {
			m.cfg.OnAuthError(err)
		}
		if m.cfg.OnLogout != nil {
			m.cfg.OnLogout()
		}
		return
	}
	m.store.UpdateTokens(tokens)
	m.scheduleRefresh(tokens.ExpiresAt)
}

func (m *Manager) bumpGen() {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()
}

func (m *Manager) genChanged(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || gen != m.gen
}

func (m *Manager) cancelTimer() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
}

// RefreshDelayFor exposes the effective delay the manager would schedule for
// a token, mainly for status output.
func (m *Manager) RefreshDelayFor(tokens *domain.AuthToken) time.Duration {
	if tokens == nil {
		return 0
	}
	delay := expiry.RefreshDelay(tokens.ExpiresAt, m.cfg.Threshold)
	if delay < m.cfg.MinDelay {
		delay = m.cfg.MinDelay
	}
	return delay
}
