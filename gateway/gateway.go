// Package gateway executes authenticated API traffic: bearer injection,
// timeouts, linear-backoff retries and a single refresh-and-reissue on 401.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	tracerName      = "github.com/jrsteele09/go-session-client/gateway"
	HeaderRequestID = "X-Request-ID"
)

type Gateway struct {
	baseURL    string
	session    Session
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	limiter    *rate.Limiter
	tracer     trace.Tracer
	sleep      func(ctx context.Context, d time.Duration) error

	lock                 sync.RWMutex
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	errorInterceptors    []ErrorInterceptor
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithConfig(cfg Config) Option {
	return func(g *Gateway) {
		g.cfg = cfg
	}
}

// WithHTTPClient replaces the transport. The client's own Timeout should be
// zero; the gateway applies timeouts through the request context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithRateLimit caps outbound attempts at rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithTracerProvider sets where spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) {
		g.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Gateway for the API rooted at baseURL.
func New(baseURL string, session Session, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
		cfg:        DefaultConfig(),
		httpClient: &http.Client{},
		logger:     log.Logger,
		tracer:     otel.Tracer(tracerName),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg.RetryAttempts < 1 {
		g.cfg.RetryAttempts = 1
	}
	return g
}

// Config returns the effective configuration.
func (g *Gateway) Config() Config {
	return g.cfg
}

func (g *Gateway) AddRequestInterceptor(i RequestInterceptor) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.requestInterceptors = append(g.requestInterceptors, i)
}

func (g *Gateway) AddResponseInterceptor(i ResponseInterceptor) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.responseInterceptors = append(g.responseInterceptors, i)
}

func (g *Gateway) AddErrorInterceptor(i ErrorInterceptor) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.errorInterceptors = append(g.errorInterceptors, i)
}

// Do executes req. Non-2xx responses are returned as *autherr.Error.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	started := time.Now()

	ctx, span := g.tracer.Start(ctx, "gateway "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	resp, refreshed, err := g.execute(ctx, req)
	if err != nil {
		err = g.interceptError(ctx, &req, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.metrics.ObserveRequest(req.Method, metrics.OutcomeError, time.Since(started))
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	span.SetStatus(codes.Ok, "")
	outcome := metrics.OutcomeSuccess
	if refreshed {
		outcome = metrics.OutcomeRefreshed
	}
	g.metrics.ObserveRequest(req.Method, outcome, time.Since(started))
	return resp, nil
}

func (g *Gateway) execute(ctx context.Context, req Request) (*Response, bool, error) {
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, false, err
	}

	// The timeout bounds each attempt. A deadline already on the caller's
	// context bounds the whole call instead.
	timeout := g.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		timeout = 0
	}

	refreshed := false
	for attempt := 1; ; {
		token := ""
		if g.cfg.AutoAuth && !req.SkipAuth {
			token = g.session.AccessToken()
		}

		resp, err := g.send(ctx, timeout, req, body, contentType, token)
		if err == nil {
			return resp, refreshed, nil
		}

		if g.shouldRefresh(req, refreshed, token, err) {
			refreshed = true
			if current := g.session.AccessToken(); current != "" && current != token {
				// Another request already rotated the token; just re-issue.
				continue
			}
			if refreshErr := g.session.RefreshAccessToken(ctx); refreshErr != nil {
				g.forceLogout(ctx, refreshErr)
				return nil, refreshed, err
			}
			continue
		}

		if g.shouldRetry(req, attempt, err) {
			delay := g.cfg.RetryDelay * time.Duration(attempt)
			g.logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Str("path", req.Path).Msg("retrying request")
			g.metrics.IncRetry()
			if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
				return nil, refreshed, err
			}
			attempt++
			continue
		}
		return nil, refreshed, err
	}
}

// shouldRefresh is true for the first 401 of a call that sent a token. A 401
// never counts against the retry budget.
func (g *Gateway) shouldRefresh(req Request, refreshed bool, token string, err error) bool {
	return g.cfg.AutoRefresh &&
		!req.SkipRefresh &&
		!refreshed &&
		token != "" &&
		autherr.KindOf(err) == autherr.KindUnauthorized
}

func (g *Gateway) shouldRetry(req Request, attempt int, err error) bool {
	return g.cfg.Retry &&
		!req.SkipRetry &&
		attempt < g.cfg.RetryAttempts &&
		autherr.IsRetryable(err)
}

// forceLogout tears the session down after a failed refresh. It does nothing
// when the caller gave up, when a newer session replaced the one being
// refreshed, or when the refresh already cleared it.
func (g *Gateway) forceLogout(ctx context.Context, cause error) {
	if ctx.Err() != nil || errors.Is(cause, tokenstore.ErrSessionChanged) || !g.session.IsAuthenticated() {
		return
	}
	g.logger.Warn().Err(cause).Msg("token refresh failed, forcing logout")
	if err := g.session.Logout(context.WithoutCancel(ctx)); err != nil {
		g.logger.Err(err).Msg("forced logout failed")
	}
}

func (g *Gateway) send(ctx context.Context, timeout time.Duration, req Request, body []byte, contentType, token string) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, autherr.New(autherr.KindNetwork, 0, err)
		}
	}

	httpReq, err := g.buildRequest(ctx, req, body, contentType, token)
	if err != nil {
		return nil, err
	}

	g.lock.RLock()
	requestInterceptors := g.requestInterceptors
	responseInterceptors := g.responseInterceptors
	g.lock.RUnlock()

	for _, intercept := range requestInterceptors {
		if err := intercept(ctx, httpReq); err != nil {
			return nil, err
		}
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, autherr.New(autherr.KindNetwork, 0, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, autherr.New(autherr.KindNetwork, httpResp.StatusCode, err)
	}
	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: raw}

	for _, intercept := range responseInterceptors {
		if err := intercept(ctx, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}
	return resp, nil
}

func (g *Gateway) buildRequest(ctx context.Context, req Request, body []byte, contentType, token string) (*http.Request, error) {
	target := g.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("[gateway] build request: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())
	return httpReq, nil
}

func (g *Gateway) interceptError(ctx context.Context, req *Request, err error) error {
	g.lock.RLock()
	interceptors := g.errorInterceptors
	g.lock.RUnlock()

	for _, intercept := range interceptors {
		if replaced := intercept(ctx, req, err); replaced != nil {
			err = replaced
		}
	}
	return err
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func statusError(resp *Response) error {
	classified := &autherr.Error{Kind: autherr.FromStatus(resp.StatusCode), StatusCode: resp.StatusCode}
	var body errorBody
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &body) == nil {
		classified.Code = body.ErrorCode
		classified.Message = body.Message
	}
	return classified
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	case io.Reader:
		raw, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("[gateway] read body: %w", err)
		}
		return raw, "", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("[gateway] encode body: %w", err)
		}
		return raw, "application/json", nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
