// Package authapi maps the authentication service's HTTP endpoints to Go
// calls. It holds no session state and never touches storage.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 4096

	DefaultUserAgent = "go-session-client"
)

// Endpoint paths, relative to the base URL.
const (
	PathLogin       = "/auth/login"
	PathSSOLogin    = "/auth/sso/login"
	PathRefresh     = "/auth/refresh"
	PathLogout      = "/auth/logout"
	PathMe          = "/auth/me"
	PathLoginPolicy = "/system/login-policy"
)

// Client talks to the authentication service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// New creates a Client for the service rooted at baseURL, e.g. http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  DefaultUserAgent,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// statusClassifier maps a non-2xx status to an error kind for one endpoint.
type statusClassifier func(status int) autherr.Kind

func classifyDefault(status int) autherr.Kind {
	return autherr.FromStatus(status)
}

type call struct {
	method      string
	path        string
	body        any
	bearer      string
	classify    statusClassifier
	out         any
	rawResponse *string
}

func (c *Client) do(ctx context.Context, cl call) error {
	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return errors.Wrap(err, "[authapi] encode request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return errors.Wrap(err, "[authapi] build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+cl.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return autherr.New(autherr.KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classify := cl.classify
		if classify == nil {
			classify = classifyDefault
		}
		c.logger.Debug().Str("method", cl.method).Str("path", cl.path).Int("status", resp.StatusCode).Msg("auth service rejected request")
		return decodeError(resp, classify(resp.StatusCode))
	}

	if cl.rawResponse != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return autherr.New(autherr.KindNetwork, resp.StatusCode, err)
		}
		*cl.rawResponse = string(raw)
		return nil
	}
	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return &autherr.Error{
			Kind:       autherr.KindServer,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	return nil
}

func decodeError(resp *http.Response, kind autherr.Kind) error {
	classified := &autherr.Error{Kind: kind, StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	var body ErrorResponse
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		classified.Code = body.ErrorCode
		classified.Message = body.Message
	}
	return classified
}

func validateTokens(access, refresh string) error {
	if access == "" || refresh == "" {
		return &autherr.Error{Kind: autherr.KindServer, StatusCode: http.StatusOK, Message: "response is missing tokens"}
	}
	return nil
}

func (c *Client) loginResult(resp *LoginResponse, method authmodel.LoginMethod) (*authmodel.LoginResult, error) {
	if err := validateTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, err
	}
	result := resp.toResult(method)
	if err := result.Profile.Validate(); err != nil {
		return nil, &autherr.Error{Kind: autherr.KindServer, StatusCode: http.StatusOK, Message: fmt.Sprintf("invalid profile: %v", err)}
	}
	return result, nil
}
