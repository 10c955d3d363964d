package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Session is the slice of the session coordinator the gateway depends on.
type Session interface {
	AccessToken() string
	IsAuthenticated() bool
	RefreshAccessToken(ctx context.Context) error
	Logout(ctx context.Context) error
}

// Config controls authentication, retry and timeout behaviour.
type Config struct {
	AutoAuth      bool          // Inject the bearer token
	AutoRefresh   bool          // Refresh and re-issue once on 401
	Retry         bool          // Retry transient failures
	RetryAttempts int           // Total attempts, including the first
	RetryDelay    time.Duration // Base delay; attempt n waits RetryDelay*n
	Timeout       time.Duration // Per attempt, unless the caller's context has a deadline
}

func DefaultConfig() Config {
	return Config{
		AutoAuth:      true,
		AutoRefresh:   true,
		Retry:         true,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Timeout:       30 * time.Second,
	}
}

// Request describes one logical call. Path is relative to the gateway's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is sent as is when it is []byte, string or io.Reader, and JSON
	// encoded otherwise. Readers are drained once so retries resend the same bytes.
	Body any

	SkipAuth    bool
	SkipRefresh bool
	SkipRetry   bool

	// Timeout overrides Config.Timeout for each attempt of this request.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return errors.New("[Response.Decode] empty body")
	}
	return errors.Wrap(json.Unmarshal(r.Body, v), "[Response.Decode]")
}

// RequestInterceptor runs before every attempt and may modify the outgoing
// request. An error aborts the call.
type RequestInterceptor func(ctx context.Context, req *http.Request) error

// ResponseInterceptor runs on every received response, successful or not. An
// error aborts the call.
type ResponseInterceptor func(ctx context.Context, resp *Response) error

// ErrorInterceptor receives the error about to be returned and returns the
// error to propagate instead. Returning nil keeps the current error.
type ErrorInterceptor func(ctx context.Context, req *Request, err error) error
