package bootstrap_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-session-client/authapi/authapitest"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/bootstrap"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/permissions"
	"github.com/jrsteele09/go-session-client/storage/sealed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *authapitest.Server {
	t.Helper()
	srv := authapitest.New()
	t.Cleanup(srv.Close)
	srv.AddAccount("jdoe", authapitest.Account{
		Password: "secret",
		Profile: authmodel.UserProfile{
			UserID:      "u-1",
			Roles:       []string{"ROLE_ADMIN"},
			Permissions: []string{"CASE_READ"},
		},
	})
	return srv
}

func newConfig(t *testing.T, vars map[string]string) config.Config {
	t.Helper()
	cfg, err := config.FromMap(vars)
	require.NoError(t, err)
	return cfg
}

func TestRuntime_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	reg := prometheus.NewRegistry()

	rt, err := bootstrap.New(ctx, newConfig(t, map[string]string{
		"AUTH_BASE_URL":   srv.BaseURL(),
		"STORAGE_BACKEND": config.BackendMemory,
	}), bootstrap.WithRegisterer(reg))
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.False(t, rt.Guard.Check("/cases").Allow)

	_, err = rt.Coordinator.LoginTraditional(ctx, "jdoe", "secret")
	require.NoError(t, err)
	require.True(t, rt.Guard.Check("/cases").Allow)
	require.True(t, rt.Permissions.IsAdmin())
	require.True(t, rt.Permissions.HasPermission(permissions.Is("CASE_READ")))

	srv.ExpireAccessTokens()
	resp, err := rt.Gateway.Get(ctx, "/cases")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, srv.RefreshCalls())

	count, err := testutil.GatherAndCount(reg, "authsession_gateway_requests_total", "authsession_refresh_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = rt.SSO(ctx)
	require.Error(t, err)

	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx))
}

func TestRuntime_BoltRestoresSession(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	key, err := sealed.GenerateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "session.db")
	vars := map[string]string{
		"AUTH_BASE_URL":     srv.BaseURL(),
		"STORAGE_BACKEND":   config.BackendBolt,
		"STORAGE_BOLT_PATH": path,
		"STORAGE_SEAL_KEY":  base64.StdEncoding.EncodeToString(key),
	}

	first, err := bootstrap.New(ctx, newConfig(t, vars))
	require.NoError(t, err)
	_, err = first.Coordinator.LoginTraditional(ctx, "jdoe", "secret")
	require.NoError(t, err)
	token := first.Coordinator.AccessToken()
	require.NoError(t, first.Close(ctx))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), token)

	second, err := bootstrap.New(ctx, newConfig(t, vars))
	require.NoError(t, err)
	defer second.Close(ctx)
	require.True(t, second.Coordinator.IsAuthenticated())
	require.Equal(t, token, second.Coordinator.AccessToken())
	require.Equal(t, authmodel.LoginMethodTraditional, second.Coordinator.LoginMethod())
}

func TestRuntime_Redis(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	mr := miniredis.RunT(t)

	rt, err := bootstrap.New(ctx, newConfig(t, map[string]string{
		"AUTH_BASE_URL":      srv.BaseURL(),
		"STORAGE_BACKEND":    config.BackendRedis,
		"STORAGE_REDIS_URL":  "redis://" + mr.Addr(),
		"STORAGE_KEY_PREFIX": "tenant-a:",
	}))
	require.NoError(t, err)
	defer rt.Close(ctx)

	_, err = rt.Coordinator.LoginTraditional(ctx, "jdoe", "secret")
	require.NoError(t, err)
	require.True(t, mr.Exists("tenant-a:accessToken"))

	require.NoError(t, rt.Coordinator.Logout(ctx))
	require.False(t, mr.Exists("tenant-a:accessToken"))
}

func TestRuntime_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("bad seal key", func(t *testing.T) {
		_, err := bootstrap.New(ctx, newConfig(t, map[string]string{
			"STORAGE_BACKEND":  config.BackendMemory,
			"STORAGE_SEAL_KEY": "short",
		}))
		require.Error(t, err)
	})

	t.Run("missing route policy", func(t *testing.T) {
		_, err := bootstrap.New(ctx, newConfig(t, map[string]string{
			"STORAGE_BACKEND":   config.BackendMemory,
			"ROUTE_POLICY_FILE": filepath.Join(t.TempDir(), "missing.yaml"),
		}))
		require.Error(t, err)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		_, err := bootstrap.New(ctx, newConfig(t, map[string]string{
			"STORAGE_BACKEND":   config.BackendRedis,
			"STORAGE_REDIS_URL": "redis://127.0.0.1:1",
		}))
		require.Error(t, err)
	})
}
