package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/tokenstore"
	"github.com/rs/zerolog"
)

// fallbackTokenLifetime is assumed when the access token carries no expiry.
const fallbackTokenLifetime = time.Hour

// Activity kinds recorded by RecordActivity.
const (
	ActivityPointer = "pointer"
	ActivityKey     = "key"
	ActivityScroll  = "scroll"
	ActivityTouch   = "touch"
	ActivityExtend  = "extend"
)

// MonitorConfig tunes the refresh and idle timers.
type MonitorConfig struct {
	RefreshInterval time.Duration // Period of proactive token refresh
	IdleTimeout     time.Duration // Inactivity after which the session expires
	WarningWindow   time.Duration // How long before IdleTimeout the warning fires
	AutoRefresh     bool
	TrackActivity   bool
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		RefreshInterval: 5 * time.Minute,
		IdleTimeout:     30 * time.Minute,
		WarningWindow:   2 * time.Minute,
		AutoRefresh:     true,
		TrackActivity:   true,
	}
}

// MonitorState is a snapshot of the monitor. Zero times mean "not set".
type MonitorState struct {
	LastActivityAt time.Time
	NextRefreshAt  time.Time
	ExpiresAt      time.Time
	IsWarning      bool
	IsActive       bool
}

// Monitor runs two independent timers over a Coordinator: a refresh timer that
// rotates the access token every RefreshInterval, and an idle timer that warns
// and then logs out after IdleTimeout without activity.
type Monitor struct {
	coord  *Coordinator
	cfg    MonitorConfig
	logger zerolog.Logger

	lock         sync.Mutex
	state        MonitorState
	ctx          context.Context
	startedAt    time.Time
	refreshTimer *time.Timer
	warningTimer *time.Timer
	idleTimer    *time.Timer

	// Timer callbacks compare against these to ignore firings that raced a reset.
	refreshGen uint64
	idleGen    uint64

	unsubscribe func()
}

func NewMonitor(coord *Coordinator, cfg MonitorConfig) *Monitor {
	defaults := DefaultMonitorConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaults.RefreshInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.WarningWindow < 0 || cfg.WarningWindow >= cfg.IdleTimeout {
		cfg.WarningWindow = 0
	}
	return &Monitor{
		coord:  coord,
		cfg:    cfg,
		logger: coord.logger,
	}
}

// Config returns the effective configuration.
func (m *Monitor) Config() MonitorConfig {
	return m.cfg
}

// Start (re)arms both timers. The session must be authenticated.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.coord.IsAuthenticated() {
		return autherr.Wrapf(autherr.ErrNotAuthenticated, "[Monitor.Start]")
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.stopTimersLocked()

	now := m.coord.Now()
	expiresAt := m.coord.store.ExpiresAt()
	if expiresAt.IsZero() {
		expiresAt = now.Add(fallbackTokenLifetime)
	}
	m.ctx = context.WithoutCancel(ctx)
	m.startedAt = now
	m.state = MonitorState{
		IsActive:       true,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
	}

	if m.cfg.AutoRefresh {
		m.scheduleRefreshLocked(now)
	}
	m.scheduleIdleLocked()

	if m.unsubscribe == nil {
		events, unsubscribe := m.coord.Subscribe(4, EventLogout)
		m.unsubscribe = unsubscribe
		go m.watchLogout(events)
	}

	m.logger.Debug().Dur("refresh_interval", m.cfg.RefreshInterval).Dur("idle_timeout", m.cfg.IdleTimeout).Msg("session monitor started")
	return nil
}

// watchLogout stops the monitor when the session ends elsewhere, e.g. a forced
// logout after a failed refresh in the gateway.
func (m *Monitor) watchLogout(events <-chan Event) {
	for evt := range events {
		if m.staleLogout(evt) {
			continue
		}
		m.Stop()
	}
}

// staleLogout reports a logout that belongs to an earlier session: it was
// published before the current Start, or a login has happened since.
func (m *Monitor) staleLogout(evt Event) bool {
	m.lock.Lock()
	startedAt := m.startedAt
	m.lock.Unlock()
	return evt.At.Before(startedAt) || m.coord.IsAuthenticated()
}

// Stop cancels every timer. Safe to call at any time and more than once.
func (m *Monitor) Stop() {
	m.lock.Lock()
	wasActive := m.state.IsActive
	m.stopTimersLocked()
	m.state = MonitorState{}
	m.lock.Unlock()

	if wasActive {
		m.logger.Debug().Msg("session monitor stopped")
	}
}

// Close stops the monitor and releases its event subscription.
func (m *Monitor) Close() {
	m.Stop()

	m.lock.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.lock.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Logout ends the session through the coordinator and stops the monitor.
func (m *Monitor) Logout(ctx context.Context) error {
	err := m.coord.Logout(ctx)
	m.Stop()
	return err
}

// RecordActivity resets the idle timer. The refresh timer is never touched.
// Ignored when activity tracking is off or the monitor is not running.
func (m *Monitor) RecordActivity(kind string) {
	if !m.cfg.TrackActivity {
		return
	}
	m.touch(kind)
}

// Extend resets the idle timer regardless of activity tracking.
func (m *Monitor) Extend() {
	m.touch(ActivityExtend)
}

func (m *Monitor) touch(kind string) {
	m.lock.Lock()
	if !m.state.IsActive {
		m.lock.Unlock()
		return
	}
	m.state.LastActivityAt = m.coord.Now()
	m.state.IsWarning = false
	m.scheduleIdleLocked()
	m.lock.Unlock()

	m.coord.Publish(Event{Type: EventActivity, Activity: kind})
}

// State returns a snapshot.
func (m *Monitor) State() MonitorState {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// TimeUntilExpiry is the idle time left before the session expires. False when
// the monitor is not running.
func (m *Monitor) TimeUntilExpiry() (time.Duration, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state.LastActivityAt.IsZero() {
		return 0, false
	}
	remaining := m.cfg.IdleTimeout - m.coord.Now().Sub(m.state.LastActivityAt)
	return max(remaining, 0), true
}

// TimeUntilRefresh is the time left before the next scheduled refresh. False
// when no refresh is scheduled.
func (m *Monitor) TimeUntilRefresh() (time.Duration, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state.NextRefreshAt.IsZero() {
		return 0, false
	}
	return max(m.state.NextRefreshAt.Sub(m.coord.Now()), 0), true
}

func (m *Monitor) stopTimersLocked() {
	for _, t := range []*time.Timer{m.refreshTimer, m.warningTimer, m.idleTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.refreshTimer, m.warningTimer, m.idleTimer = nil, nil, nil
	m.refreshGen++
	m.idleGen++
}

func (m *Monitor) scheduleRefreshLocked(now time.Time) {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
	m.refreshGen++
	gen := m.refreshGen
	m.state.NextRefreshAt = now.Add(m.cfg.RefreshInterval)
	m.refreshTimer = time.AfterFunc(m.cfg.RefreshInterval, func() { m.onRefresh(gen) })
}

func (m *Monitor) scheduleIdleLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
	}
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleGen++
	gen := m.idleGen

	m.warningTimer = nil
	if m.cfg.WarningWindow > 0 {
		m.warningTimer = time.AfterFunc(m.cfg.IdleTimeout-m.cfg.WarningWindow, func() { m.onWarning(gen) })
	}
	m.idleTimer = time.AfterFunc(m.cfg.IdleTimeout, func() { m.onIdle(gen) })
}

func (m *Monitor) onRefresh(gen uint64) {
	m.lock.Lock()
	if gen != m.refreshGen || !m.state.IsActive {
		m.lock.Unlock()
		return
	}
	ctx := m.ctx
	m.lock.Unlock()

	err := m.coord.RefreshAccessToken(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrSessionChanged):
		// A newer login owns the session now; keep the timers running for it.
		m.logger.Debug().Msg("scheduled refresh raced a new login")
	case err != nil:
		// The coordinator has already cleared the session and emitted logout.
		m.logger.Warn().Err(err).Msg("scheduled token refresh failed")
		m.Stop()
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if gen != m.refreshGen || !m.state.IsActive {
		return
	}
	now := m.coord.Now()
	if expiresAt := m.coord.store.ExpiresAt(); !expiresAt.IsZero() {
		m.state.ExpiresAt = expiresAt
	} else {
		m.state.ExpiresAt = now.Add(fallbackTokenLifetime)
	}
	m.scheduleRefreshLocked(now)
}

func (m *Monitor) onWarning(gen uint64) {
	m.lock.Lock()
	if gen != m.idleGen || !m.state.IsActive {
		m.lock.Unlock()
		return
	}
	m.state.IsWarning = true
	m.lock.Unlock()

	m.coord.Publish(Event{Type: EventWarning, TimeLeft: m.cfg.WarningWindow})
}

func (m *Monitor) onIdle(gen uint64) {
	m.lock.Lock()
	if gen != m.idleGen || !m.state.IsActive {
		m.lock.Unlock()
		return
	}
	ctx := m.ctx
	m.lock.Unlock()

	m.logger.Info().Dur("idle_timeout", m.cfg.IdleTimeout).Msg("session expired after inactivity")
	m.coord.Publish(Event{Type: EventExpire})
	if err := m.Logout(ctx); err != nil {
		m.logger.Err(err).Msg("logout after idle expiry failed")
	}
}
