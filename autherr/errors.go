package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authentication or transport failure. Callers map kinds to
// user-facing text; this package never formats messages for people.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountLocked      Kind = "account_locked"
	KindAccountDisabled    Kind = "account_disabled"
	KindInvalidSSOToken    Kind = "invalid_sso_token"
	KindNoRefreshToken     Kind = "no_refresh_token"
	KindRefreshRejected    Kind = "refresh_rejected"
	KindNetwork            Kind = "network_or_timeout"
	KindServer             Kind = "server_error"
	KindRateLimited        Kind = "rate_limited"
	KindForbidden          Kind = "forbidden"
	KindUnauthorized       Kind = "unauthorized"
	KindClient             Kind = "client_error"
	KindNotAuthenticated   Kind = "not_authenticated"
	KindPartialSession     Kind = "partial_session"
)

// Sentinels, one per kind. A classified *Error matches the sentinel of its kind
// with errors.Is.
var (
	// Login errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInvalidSSOToken    = errors.New("invalid sso token")

	// Refresh errors
	ErrNoRefreshToken  = errors.New("no refresh token available")
	ErrRefreshRejected = errors.New("refresh token rejected")

	// Transport errors
	ErrNetwork      = errors.New("network error or timeout")
	ErrServer       = errors.New("server error")
	ErrRateLimited  = errors.New("rate limited")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrClient       = errors.New("request rejected")

	// Local session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrPartialSession   = errors.New("partial session")
)

var sentinels = map[Kind]error{
	KindInvalidCredentials: ErrInvalidCredentials,
	KindAccountLocked:      ErrAccountLocked,
	KindAccountDisabled:    ErrAccountDisabled,
	KindInvalidSSOToken:    ErrInvalidSSOToken,
	KindNoRefreshToken:     ErrNoRefreshToken,
	KindRefreshRejected:    ErrRefreshRejected,
	KindNetwork:            ErrNetwork,
	KindServer:             ErrServer,
	KindRateLimited:        ErrRateLimited,
	KindForbidden:          ErrForbidden,
	KindUnauthorized:       ErrUnauthorized,
	KindClient:             ErrClient,
	KindNotAuthenticated:   ErrNotAuthenticated,
	KindPartialSession:     ErrPartialSession,
}

// Error is a classified failure. StatusCode is zero when no HTTP response was
// received. Code and Message come from the service's error body when present.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if sentinel, ok := sentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := sentinels[e.Kind]
	return ok && sentinel == target
}

// New builds a classified error.
func New(kind Kind, statusCode int, err error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Err: err}
}

// FromStatus classifies a non-2xx HTTP status outside of any login context.
func FromStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= http.StatusInternalServerError:
		return KindServer
	case status >= http.StatusBadRequest:
		return KindClient
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.StatusCode
	}
	return 0
}

// IsRetryable reports whether err is transient: network or timeout failures,
// 5xx responses and 429. Other 4xx responses are never retryable.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
