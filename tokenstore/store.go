// Package tokenstore holds the client session in memory and mirrors it to a
// durable storage.Store.
//
// Readers see either no session or a complete one. The mutation surface
// (SetSession, UpdateTokens, ClearSession) is meant for the session
// coordinator only.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Store)(nil)

// ErrSessionChanged reports that the session was replaced or cleared while a
// token rotation was in flight.
var ErrSessionChanged = errors.New("session changed during token rotation")

// Store is the in-memory session plus its durable mirror.
type Store struct {
	durable storage.Store
	logger  zerolog.Logger
	nowFunc func() time.Time

	// writeMu serializes mutations so memory and durable writes of one
	// operation are never interleaved with another's.
	writeMu sync.Mutex

	lock    sync.RWMutex
	session Session
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

// New creates an empty Store. Call Initialize to restore a persisted session.
func New(durable storage.Store, opts ...Option) *Store {
	s := &Store{
		durable: durable,
		logger:  log.Logger,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the whole session taken under one lock.
func (s *Store) Snapshot() Session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.clone()
}

func (s *Store) AccessToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.AccessToken
}

func (s *Store) RefreshToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.RefreshToken
}

// User returns a copy of the profile, or nil when there is no session.
func (s *Store) User() *authmodel.UserProfile {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.User.Clone()
}

func (s *Store) LoginMethod() authmodel.LoginMethod {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.LoginMethod
}

func (s *Store) IsAuthenticated() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.IsAuthenticated()
}

// ExpiresAt is the access token expiry, zero when unknown.
func (s *Store) ExpiresAt() time.Time {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.ExpiresAt
}

// Token exposes the session as an oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	snap := s.Snapshot()
	if !snap.IsAuthenticated() {
		return nil, autherr.ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken:  snap.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: snap.RefreshToken,
		Expiry:       snap.ExpiresAt,
	}, nil
}

// SetSession replaces the whole session. Partial sessions are rejected with
// autherr.ErrPartialSession and leave the store untouched.
func (s *Store) SetSession(ctx context.Context, session Session) error {
	if err := session.validate(); err != nil {
		return err
	}
	session = session.clone()
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt, _ = AccessTokenExpiry(session.AccessToken)
	}

	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return autherr.Wrapf(err, "[SetSession] encode user")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.lock.Lock()
	s.session = session
	s.lock.Unlock()

	return s.persist(ctx, []kv{
		{KeyAccessToken, session.AccessToken},
		{KeyRefreshToken, session.RefreshToken},
		{KeyUser, string(userJSON)},
		{KeyLoginMethod, string(session.LoginMethod)},
	})
}

// UpdateTokens rotates the token pair of an existing session. User and login
// method are left untouched.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	return s.ReplaceTokens(ctx, "", accessToken, refreshToken, expiresAt)
}

// ReplaceTokens is UpdateTokens guarded by the refresh token the caller
// rotated. When previousRefresh is set and no longer matches the held session
// (a logout or a new login happened meanwhile) ErrSessionChanged is returned
// and nothing is written.
func (s *Store) ReplaceTokens(ctx context.Context, previousRefresh, accessToken, refreshToken string, expiresAt time.Time) error {
	if accessToken == "" || refreshToken == "" {
		return autherr.Wrapf(autherr.ErrPartialSession, "[UpdateTokens] token pair incomplete")
	}
	if expiresAt.IsZero() {
		expiresAt, _ = AccessTokenExpiry(accessToken)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.lock.Lock()
	if s.session.User == nil {
		s.lock.Unlock()
		return autherr.Wrapf(autherr.ErrNotAuthenticated, "[UpdateTokens]")
	}
	if previousRefresh != "" && s.session.RefreshToken != previousRefresh {
		s.lock.Unlock()
		return ErrSessionChanged
	}
	s.session.AccessToken = accessToken
	s.session.RefreshToken = refreshToken
	s.session.ExpiresAt = expiresAt
	s.lock.Unlock()

	return s.persist(ctx, []kv{
		{KeyAccessToken, accessToken},
		{KeyRefreshToken, refreshToken},
	})
}

// ClearSession empties the session and deletes all durable keys, whether or not
// they were set. Every key is attempted; failures are joined.
func (s *Store) ClearSession(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.lock.Lock()
	s.session = Session{}
	s.lock.Unlock()

	var errs []error
	for _, key := range Keys {
		if err := s.durable.Delete(ctx, key); err != nil {
			errs = append(errs, autherr.Wrapf(err, "[ClearSession] delete %s", key))
		}
	}
	return errors.Join(errs...)
}

// Initialize restores a persisted session with one multi-key read. It is a
// no-op when a session is already held. Incomplete or unparsable data is
// purged and yields no session.
func (s *Store) Initialize(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.IsAuthenticated() {
		return nil
	}

	values, err := s.durable.GetMany(ctx, Keys...)
	if err != nil {
		return autherr.Wrapf(err, "[Initialize] read durable session")
	}
	if len(values) == 0 {
		return nil
	}

	restored, err := decodeSession(values)
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding persisted session")
		return s.clearLocked(ctx)
	}
	restored.ExpiresAt, _ = AccessTokenExpiry(restored.AccessToken)

	s.lock.Lock()
	s.session = restored
	s.lock.Unlock()
	return nil
}

func decodeSession(values map[string]string) (Session, error) {
	restored := Session{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}
	userJSON, ok := values[KeyUser]
	if !ok || restored.AccessToken == "" || restored.RefreshToken == "" {
		return Session{}, autherr.ErrPartialSession
	}

	var user authmodel.UserProfile
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return Session{}, autherr.Wrapf(err, "decode user")
	}
	restored.User = &user

	method, err := authmodel.ParseLoginMethod(values[KeyLoginMethod])
	if err != nil {
		return Session{}, err
	}
	restored.LoginMethod = method

	if err := restored.validate(); err != nil {
		return Session{}, err
	}
	return restored, nil
}

type kv struct {
	key, value string
}

// persist writes keys sequentially. A failure stops the sequence; memory
// already holds the new state and durable storage lags until the next write.
func (s *Store) persist(ctx context.Context, pairs []kv) error {
	for _, p := range pairs {
		if err := s.durable.Set(ctx, p.key, p.value); err != nil {
			s.logger.Error().Err(err).Str("key", p.key).Msg("failed to persist session")
			return autherr.Wrapf(err, "[persist] write %s", p.key)
		}
	}
	return nil
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.nowFunc()
}
