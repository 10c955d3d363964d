// Package session orchestrates login, logout and token refresh over a
// tokenstore.Store and publishes lifecycle events. Monitor adds idle and
// refresh timers on top of a Coordinator.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 30 * time.Second

// AuthService is the remote side of the session.
type AuthService interface {
	Login(ctx context.Context, usernameOrEmployeeID, password string) (*authmodel.LoginResult, error)
	LoginSSO(ctx context.Context, ssoToken, provider string) (*authmodel.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*authmodel.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}

var _ AuthService = (*authapi.Client)(nil)

// State of the coordinator's state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateLoggingOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateLoggingOut:
		return "logging_out"
	default:
		return "unknown"
	}
}

// Coordinator owns every session mutation.
type Coordinator struct {
	store          *tokenstore.Store
	api            AuthService
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	nowFunc        func() time.Time
	refreshTimeout time.Duration
	events         *eventBus

	// opMu serializes login, logout and refresh teardown.
	opMu         sync.Mutex
	refreshGroup singleflight.Group

	phaseLock sync.RWMutex
	phases    []State // outstanding transitional states, most recent last
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowFunc = nowFunc
	}
}

// WithRefreshTimeout bounds the shared refresh call. Waiters can still give up
// earlier through their own context.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.refreshTimeout = d
	}
}

func NewCoordinator(store *tokenstore.Store, api AuthService, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:          store,
		api:            api,
		logger:         log.Logger,
		nowFunc:        time.Now,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = newEventBus(c.logger, c.metrics, c.nowFunc)
	return c
}

// Initialize restores a persisted session. Safe to call more than once.
func (c *Coordinator) Initialize(ctx context.Context) error {
	return c.store.Initialize(ctx)
}

// State reports the current state; transitional states win over the derived
// authenticated/unauthenticated state.
func (c *Coordinator) State() State {
	c.phaseLock.RLock()
	defer c.phaseLock.RUnlock()
	if n := len(c.phases); n > 0 {
		return c.phases[n-1]
	}
	if c.store.IsAuthenticated() {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// IsLoading is true while a login, logout or refresh call is outstanding.
func (c *Coordinator) IsLoading() bool {
	c.phaseLock.RLock()
	defer c.phaseLock.RUnlock()
	return len(c.phases) > 0
}

func (c *Coordinator) enter(state State) func() {
	c.phaseLock.Lock()
	c.phases = append(c.phases, state)
	c.phaseLock.Unlock()

	return func() {
		c.phaseLock.Lock()
		defer c.phaseLock.Unlock()
		for i := len(c.phases) - 1; i >= 0; i-- {
			if c.phases[i] == state {
				c.phases = append(c.phases[:i], c.phases[i+1:]...)
				return
			}
		}
	}
}

// Read surface, delegated to the store.

func (c *Coordinator) IsAuthenticated() bool             { return c.store.IsAuthenticated() }
func (c *Coordinator) AccessToken() string               { return c.store.AccessToken() }
func (c *Coordinator) User() *authmodel.UserProfile      { return c.store.User() }
func (c *Coordinator) LoginMethod() authmodel.LoginMethod { return c.store.LoginMethod() }
func (c *Coordinator) Snapshot() tokenstore.Session      { return c.store.Snapshot() }

// Login runs either login flow. On failure the held session is left as it was.
func (c *Coordinator) Login(ctx context.Context, creds Credentials) (*authmodel.LoginResult, error) {
	if creds == nil {
		return nil, errors.New("[Login] credentials are required")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	done := c.enter(StateAuthenticating)
	defer done()

	result, err := creds.authenticate(ctx, c.api)
	if err != nil {
		return nil, err
	}
	result.Method = creds.Method()

	err = c.store.SetSession(ctx, tokenstore.Session{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		User:         &result.Profile,
		LoginMethod:  result.Method,
		ExpiresAt:    result.Tokens.ExpiresAt(c.nowFunc()),
	})
	if err != nil {
		if !errors.Is(err, autherr.ErrPartialSession) {
			// The session reached memory but not durable storage.
			if clearErr := c.store.ClearSession(context.WithoutCancel(ctx)); clearErr != nil {
				c.logger.Err(clearErr).Msg("failed to roll back session after persistence error")
			}
		}
		return nil, autherr.Wrapf(err, "[Login] store session")
	}

	c.logger.Info().Str("user_id", result.Profile.UserID).Str("method", string(result.Method)).Msg("logged in")
	c.events.publish(Event{Type: EventLogin, Method: result.Method})
	return result, nil
}

// LoginTraditional logs in with a username (or employee ID) and password.
func (c *Coordinator) LoginTraditional(ctx context.Context, usernameOrEmployeeID, password string) (*authmodel.LoginResult, error) {
	return c.Login(ctx, PasswordCredentials{Username: usernameOrEmployeeID, Password: password})
}

// LoginSSO logs in with an identity provider assertion.
func (c *Coordinator) LoginSSO(ctx context.Context, ssoToken, provider string) (*authmodel.LoginResult, error) {
	return c.Login(ctx, SSOCredentials{Token: ssoToken, Provider: provider})
}

// RefreshAccessToken rotates the token pair. Concurrent callers share one
// network call. Any failure clears the session and is returned.
func (c *Coordinator) RefreshAccessToken(ctx context.Context) error {
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return autherr.Wrapf(autherr.ErrNoRefreshToken, "[RefreshAccessToken]")
	}

	shared := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan(refreshToken, func() (any, error) {
		return nil, c.refresh(shared, refreshToken)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) refresh(ctx context.Context, refreshToken string) error {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	done := c.enter(StateRefreshing)
	defer done()

	pair, err := c.api.Refresh(ctx, refreshToken)
	c.metrics.ObserveRefresh(err)
	if err != nil {
		return c.failRefresh(ctx, refreshToken, err)
	}

	err = c.store.ReplaceTokens(ctx, refreshToken, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt(c.nowFunc()))
	if errors.Is(err, tokenstore.ErrSessionChanged) || errors.Is(err, autherr.ErrNotAuthenticated) {
		c.logger.Debug().Msg("session changed while refreshing, discarding rotated tokens")
		return autherr.Wrapf(err, "[RefreshAccessToken]")
	}
	if err != nil {
		return c.failRefresh(ctx, refreshToken, err)
	}

	c.logger.Debug().Msg("access token refreshed")
	c.events.publish(Event{Type: EventRefresh})
	return nil
}

// failRefresh tears the session down unless it was replaced while the refresh
// was in flight.
func (c *Coordinator) failRefresh(ctx context.Context, refreshToken string, cause error) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.store.RefreshToken() != refreshToken {
		return autherr.Wrapf(cause, "[RefreshAccessToken]")
	}

	c.logger.Warn().Err(cause).Msg("token refresh failed, clearing session")
	if err := c.store.ClearSession(context.WithoutCancel(ctx)); err != nil {
		c.logger.Err(err).Msg("failed to clear session after refresh failure")
	}
	c.events.publish(Event{Type: EventError, Err: cause})
	c.events.publish(Event{Type: EventLogout})
	return autherr.Wrapf(cause, "[RefreshAccessToken]")
}

// Logout revokes the session remotely when possible and always clears it
// locally. Only local storage errors are returned.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	done := c.enter(StateLoggingOut)
	defer done()

	if accessToken := c.store.AccessToken(); accessToken != "" {
		if err := c.api.Logout(ctx, accessToken); err != nil {
			c.logger.Err(err).Msg("remote logout failed, clearing local session anyway")
		}
	}

	err := c.store.ClearSession(context.WithoutCancel(ctx))
	c.events.publish(Event{Type: EventLogout})
	if err != nil {
		return autherr.Wrapf(err, "[Logout]")
	}
	return nil
}

// Subscribe returns a channel of events of the given types (all types when
// none are given) and a func that unsubscribes. Events are dropped for a
// subscriber whose buffer is full.
func (c *Coordinator) Subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	return c.events.subscribe(buffer, types...)
}

// Publish emits an event on the coordinator's bus. The monitor uses it for
// activity, warning and expire events.
func (c *Coordinator) Publish(evt Event) {
	c.events.publish(evt)
}

// Close closes every subscription. Call once at process shutdown.
func (c *Coordinator) Close() {
	c.events.close()
}

// Now reads the coordinator's clock.
func (c *Coordinator) Now() time.Time {
	return c.nowFunc()
}
