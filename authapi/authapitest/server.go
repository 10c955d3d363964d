// Package authapitest runs an in-process fake of the authentication service
// for tests and demos. Tokens are opaque counters; refresh tokens rotate on use.
package authapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authmodel"
)

// Account is a user known to the fake service.
type Account struct {
	Password string
	Profile  authmodel.UserProfile
	Locked   bool
	Disabled bool
}

// Server is the fake service. Mutate its behaviour through the setters; all
// methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	lock          sync.Mutex
	accounts      map[string]*Account
	ssoTokens     map[string]string // sso token -> username
	accessTokens  map[string]string // access token -> username
	refreshTokens map[string]string // refresh token -> username
	failures      map[string][]int  // path -> queued statuses
	hits          map[string]int
	policy        authmodel.LoginPolicy
	expiresIn     int
	failLogout    bool
	rejectRefresh bool
	refreshDelay  time.Duration
	seq           int

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

// New starts a fake service. Its base URL is Server.URL + "/api/v1".
func New() *Server {
	s := &Server{
		accounts:      make(map[string]*Account),
		ssoTokens:     make(map[string]string),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		failures:      make(map[string][]int),
		hits:          make(map[string]int),
		expiresIn:     900,
		policy: authmodel.LoginPolicy{
			ID:             "default",
			Name:           "Default login policy",
			EnabledMethods: []string{"LOCAL", "SSO"},
			Priority:       []string{"SSO", "LOCAL"},
			Active:         true,
		},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// BaseURL is the root the auth client should be configured with.
func (s *Server) BaseURL() string {
	return s.URL + "/api/v1"
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post(authapi.PathLogin, s.handleLogin)
		r.Post(authapi.PathSSOLogin, s.handleSSOLogin)
		r.Post(authapi.PathRefresh, s.handleRefresh)
		r.Post(authapi.PathLogout, s.handleLogout)
		r.Get(authapi.PathMe, s.handleMe)
		r.Get(authapi.PathLoginPolicy, s.handlePolicy)

		// Protected business resources used to exercise the gateway.
		r.HandleFunc("/*", s.handleResource)
	})
	return r
}

// AddAccount registers a user that can log in with username and password.
func (s *Server) AddAccount(username string, account Account) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if account.Profile.Username == "" {
		account.Profile.Username = username
	}
	s.accounts[username] = &account
}

// AddSSOToken makes token a valid SSO assertion for username.
func (s *Server) AddSSOToken(token, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ssoTokens[token] = username
}

// ExpireAccessTokens invalidates every issued access token. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessTokens = make(map[string]string)
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshTokens = make(map[string]string)
}

// FailNext queues statuses returned by the next requests to path (relative to the base URL).
func (s *Server) FailNext(path string, statuses ...int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures[path] = append(s.failures[path], statuses...)
}

func (s *Server) SetFailLogout(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failLogout = fail
}

func (s *Server) SetRejectRefresh(reject bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectRefresh = reject
}

// SetRefreshDelay slows down the refresh endpoint so concurrent callers overlap.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshDelay = d
}

func (s *Server) SetExpiresIn(seconds int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.expiresIn = seconds
}

func (s *Server) SetPolicy(policy authmodel.LoginPolicy) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.policy = policy
}

func (s *Server) LoginCalls() int   { return int(s.loginCalls.Load()) }
func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }
func (s *Server) LogoutCalls() int  { return int(s.logoutCalls.Load()) }

// Hits counts requests to a resource path (relative to the base URL).
func (s *Server) Hits(path string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.hits[path]
}

// IsValidAccessToken reports whether token is currently accepted.
func (s *Server) IsValidAccessToken(token string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.accessTokens[token]
	return ok
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var req authapi.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_001", "malformed request")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	account, ok := s.accounts[req.Username]
	switch {
	case !ok || account.Password != req.Password:
		writeError(w, http.StatusUnauthorized, "AUTH_001", "invalid username or password")
	case account.Locked:
		writeError(w, http.StatusLocked, "AUTH_004", "account is locked")
	case account.Disabled:
		writeError(w, http.StatusForbidden, "AUTH_003", "account is disabled")
	default:
		writeJSON(w, http.StatusOK, s.issueLocked(account, authmodel.LoginMethodTraditional))
	}
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var req authapi.SSOLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SSOToken == "" {
		writeError(w, http.StatusBadRequest, "AUTH_006", "sso token is required")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	username, ok := s.ssoTokens[req.SSOToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "AUTH_006", "invalid sso token")
		return
	}
	account := s.accounts[username]
	if account == nil {
		writeError(w, http.StatusUnauthorized, "AUTH_006", "unknown sso subject")
		return
	}
	writeJSON(w, http.StatusOK, s.issueLocked(account, authmodel.LoginMethodSSO))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var req authapi.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_001", "malformed request")
		return
	}

	s.lock.Lock()
	delay := s.refreshDelay
	s.lock.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if status, ok := s.popFailureLocked(authapi.PathRefresh); ok {
		writeError(w, status, "", http.StatusText(status))
		return
	}

	username, ok := s.refreshTokens[req.RefreshToken]
	if s.rejectRefresh || !ok {
		writeError(w, http.StatusUnauthorized, "AUTH_005", "refresh token is invalid or expired")
		return
	}
	delete(s.refreshTokens, req.RefreshToken)

	access, refresh := s.mintLocked(username)
	writeJSON(w, http.StatusOK, authapi.RefreshResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.expiresIn,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.failLogout {
		writeError(w, http.StatusInternalServerError, "SYSTEM_001", "logout unavailable")
		return
	}
	token := bearer(r)
	username, ok := s.accessTokens[token]
	if !ok {
		writeError(w, http.StatusUnauthorized, "AUTH_002", "token is invalid")
		return
	}
	delete(s.accessTokens, token)
	for rt, u := range s.refreshTokens {
		if u == username {
			delete(s.refreshTokens, rt)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	username, ok := s.accessTokens[bearer(r)]
	if !ok {
		writeError(w, http.StatusUnauthorized, "AUTH_002", "token is invalid")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "authenticated as %s", username)
}

func (s *Server) handlePolicy(w http.ResponseWriter, _ *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	writeJSON(w, http.StatusOK, s.policy)
}

// handleResource serves any other path: queued failures first, then a bearer
// check, then an echo of the request.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")

	s.lock.Lock()
	defer s.lock.Unlock()

	s.hits[path]++
	if status, ok := s.popFailureLocked(path); ok {
		writeError(w, status, "", http.StatusText(status))
		return
	}
	username, ok := s.accessTokens[bearer(r)]
	if !ok {
		writeError(w, http.StatusUnauthorized, "AUTH_002", "token is invalid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path":      path,
		"method":    r.Method,
		"user":      username,
		"requestId": r.Header.Get("X-Request-ID"),
	})
}

func (s *Server) popFailureLocked(path string) (int, bool) {
	queue := s.failures[path]
	if len(queue) == 0 {
		return 0, false
	}
	s.failures[path] = queue[1:]
	return queue[0], true
}

func (s *Server) mintLocked(username string) (string, string) {
	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	refresh := fmt.Sprintf("refresh-%d", s.seq)
	s.accessTokens[access] = username
	s.refreshTokens[refresh] = username
	return access, refresh
}

func (s *Server) issueLocked(account *Account, method authmodel.LoginMethod) authapi.LoginResponse {
	access, refresh := s.mintLocked(account.Profile.Username)
	p := account.Profile
	return authapi.LoginResponse{
		UserID:           p.UserID,
		Username:         p.Username,
		Email:            p.Email,
		DisplayName:      p.DisplayName,
		OrganizationID:   p.OrganizationID,
		OrganizationName: p.OrganizationName,
		AccessToken:      access,
		RefreshToken:     refresh,
		Roles:            p.Roles,
		Permissions:      p.Permissions,
		ExpiresIn:        s.expiresIn,
		TokenType:        "Bearer",
		LoginMethod:      string(method),
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, authapi.ErrorResponse{Success: false, ErrorCode: code, Message: message})
}
