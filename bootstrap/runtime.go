// Package bootstrap assembles the session components into one explicitly
// owned Runtime. A process creates it at startup and closes it on shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/gateway"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/navguard"
	"github.com/jrsteele09/go-session-client/permissions"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/sso"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/jrsteele09/go-session-client/storage/boltstore"
	"github.com/jrsteele09/go-session-client/storage/memstore"
	"github.com/jrsteele09/go-session-client/storage/redisstore"
	"github.com/jrsteele09/go-session-client/storage/sealed"
	"github.com/jrsteele09/go-session-client/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runtime owns one session and everything built on it.
type Runtime struct {
	Config      config.Config
	Storage     storage.Store
	Store       *tokenstore.Store
	Auth        *authapi.Client
	Coordinator *session.Coordinator
	Monitor     *session.Monitor
	Gateway     *gateway.Gateway
	Guard       *navguard.Guard
	Permissions *permissions.Evaluator
	Metrics     *metrics.Metrics

	logger     zerolog.Logger
	httpClient *http.Client
	durable    storage.Store
	registerer prometheus.Registerer

	ssoOnce   sync.Once
	ssoClient *sso.Client
	ssoErr    error
	closeOnce sync.Once
}

type Option func(*Runtime)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithHTTPClient is used by the auth client, the gateway and SSO discovery.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(r *Runtime) {
		r.httpClient = httpClient
	}
}

// WithStorage bypasses the configured backend.
func WithStorage(store storage.Store) Option {
	return func(r *Runtime) {
		r.durable = store
	}
}

// WithRegisterer enables metrics. Without it metrics are not collected.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runtime) {
		r.registerer = reg
	}
}

// New builds the runtime and restores any persisted session.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		Config:     cfg,
		logger:     log.Logger,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registerer != nil {
		r.Metrics = metrics.New(r.registerer)
	}

	durable := r.durable
	if durable == nil {
		var err error
		if durable, err = openStorage(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if key := cfg.GetSealKey(); key != "" {
		sealedStore, err := sealStorage(durable, key)
		if err != nil {
			_ = durable.Close()
			return nil, err
		}
		durable = sealedStore
	}
	r.Storage = durable

	policy, err := loadPolicy(cfg.GetRoutePolicyFile())
	if err != nil {
		_ = durable.Close()
		return nil, err
	}

	r.Store = tokenstore.New(durable, tokenstore.WithLogger(r.logger))
	r.Auth = authapi.New(cfg.GetAuthBaseURL(),
		authapi.WithHTTPClient(r.httpClient),
		authapi.WithLogger(r.logger),
		authapi.WithUserAgent(cfg.GetAppName()),
	)
	r.Coordinator = session.NewCoordinator(r.Store, r.Auth,
		session.WithLogger(r.logger),
		session.WithMetrics(r.Metrics),
	)
	r.Monitor = session.NewMonitor(r.Coordinator, session.MonitorConfig{
		RefreshInterval: cfg.GetRefreshInterval(),
		IdleTimeout:     cfg.GetIdleTimeout(),
		WarningWindow:   cfg.GetWarningWindow(),
		AutoRefresh:     cfg.GetAutoRefresh(),
		TrackActivity:   cfg.GetTrackActivity(),
	})

	rps, burst := cfg.GetRateLimit()
	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.RetryAttempts = cfg.GetRetryAttempts()
	gatewayCfg.RetryDelay = cfg.GetRetryDelay()
	gatewayCfg.Timeout = cfg.GetHTTPTimeout()
	r.Gateway = gateway.New(cfg.GetAuthBaseURL(), r.Coordinator,
		gateway.WithConfig(gatewayCfg),
		gateway.WithHTTPClient(r.httpClient),
		gateway.WithLogger(r.logger),
		gateway.WithMetrics(r.Metrics),
		gateway.WithRateLimit(rps, burst),
	)

	r.Guard = navguard.New(policy, r.Coordinator)
	r.Permissions = permissions.NewEvaluator(r.Coordinator)

	if err := r.Coordinator.Initialize(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("[bootstrap.New] restore session: %w", err), r.Close(ctx))
	}
	return r, nil
}

// SSO returns the identity provider client, discovering it on first use.
func (r *Runtime) SSO(ctx context.Context) (*sso.Client, error) {
	if !r.Config.SSOEnabled() {
		return nil, fmt.Errorf("[Runtime.SSO] SSO_ISSUER_URL and SSO_CLIENT_ID are not configured")
	}
	r.ssoOnce.Do(func() {
		r.ssoClient, r.ssoErr = sso.New(oidc.ClientContext(ctx, r.httpClient), sso.Config{
			Provider:     r.Config.GetSSOProvider(),
			IssuerURL:    r.Config.GetSSOIssuerURL(),
			ClientID:     r.Config.GetSSOClientID(),
			ClientSecret: r.Config.GetSSOClientSecret(),
			RedirectURL:  r.Config.GetSSORedirectURL(),
		}, sso.WithLogger(r.logger))
	})
	return r.ssoClient, r.ssoErr
}

// Close stops the monitor, ends event subscriptions and closes storage. It is
// safe to call more than once.
func (r *Runtime) Close(_ context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		if r.Monitor != nil {
			r.Monitor.Close()
		}
		if r.Coordinator != nil {
			r.Coordinator.Close()
		}
		if r.Storage != nil {
			if closeErr := r.Storage.Close(); closeErr != nil {
				err = fmt.Errorf("[Runtime.Close] storage: %w", closeErr)
			}
		}
	})
	return err
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.GetStorageBackend() {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendRedis:
		var opts []redisstore.Option
		if prefix := cfg.GetKeyPrefix(); prefix != "" {
			opts = append(opts, redisstore.WithPrefix(prefix))
		}
		store, err := redisstore.Connect(ctx, cfg.GetRedisURL(), opts...)
		if err != nil {
			return nil, fmt.Errorf("[bootstrap.New] redis storage: %w", err)
		}
		return store, nil
	default:
		store, err := boltstore.Open(cfg.GetBoltPath(), cfg.GetKeyPrefix())
		if err != nil {
			return nil, fmt.Errorf("[bootstrap.New] bolt storage: %w", err)
		}
		return store, nil
	}
}

func sealStorage(inner storage.Store, encodedKey string) (storage.Store, error) {
	key, err := sealed.ParseKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("[bootstrap.New] STORAGE_SEAL_KEY: %w", err)
	}
	return sealed.New(inner, key)
}

func loadPolicy(path string) (navguard.Policy, error) {
	if path == "" {
		return navguard.DefaultPolicy(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return navguard.Policy{}, fmt.Errorf("[bootstrap.New] route policy: %w", err)
	}
	defer f.Close()
	return navguard.LoadPolicy(f)
}
