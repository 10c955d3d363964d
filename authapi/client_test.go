package authapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authapi/authapitest"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*authapitest.Server, *authapi.Client) {
	t.Helper()
	srv := authapitest.New()
	t.Cleanup(srv.Close)

	srv.AddAccount("jdoe", authapitest.Account{
		Password: "secret",
		Profile: authmodel.UserProfile{
			UserID:         "u-1",
			Email:          utils.Ptr("jdoe@example.com"),
			OrganizationID: utils.Ptr("org-1"),
			Roles:          []string{"ROLE_USER"},
			Permissions:    []string{"CASE_READ"},
		},
	})
	srv.AddAccount("locked", authapitest.Account{Password: "secret", Locked: true, Profile: authmodel.UserProfile{UserID: "u-2"}})
	srv.AddAccount("disabled", authapitest.Account{Password: "secret", Disabled: true, Profile: authmodel.UserProfile{UserID: "u-3"}})
	srv.AddSSOToken("sso-ok", "jdoe")

	return srv, authapi.New(srv.BaseURL())
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	_, client := newFixture(t)

	t.Run("success", func(t *testing.T) {
		result, err := client.Login(ctx, "jdoe", "secret")
		require.NoError(t, err)
		require.Equal(t, authmodel.LoginMethodTraditional, result.Method)
		require.NotEmpty(t, result.Tokens.AccessToken)
		require.NotEmpty(t, result.Tokens.RefreshToken)
		require.Equal(t, 900, result.Tokens.ExpiresIn)
		require.Equal(t, "u-1", result.Profile.UserID)
		require.Equal(t, "jdoe", result.Profile.Username)
		require.Equal(t, "org-1", utils.Value(result.Profile.OrganizationID))
		require.True(t, result.Profile.HasPermission("CASE_READ"))
	})

	cases := []struct {
		name     string
		username string
		password string
		want     error
		code     string
	}{
		{"bad password", "jdoe", "wrong", autherr.ErrInvalidCredentials, "AUTH_001"},
		{"unknown user", "nobody", "secret", autherr.ErrInvalidCredentials, "AUTH_001"},
		{"locked", "locked", "secret", autherr.ErrAccountLocked, "AUTH_004"},
		{"disabled", "disabled", "secret", autherr.ErrAccountDisabled, "AUTH_003"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Login(ctx, tc.username, tc.password)
			require.ErrorIs(t, err, tc.want)

			var classified *autherr.Error
			require.ErrorAs(t, err, &classified)
			require.Equal(t, tc.code, classified.Code)
			require.NotEmpty(t, classified.Message)
		})
	}
}

func TestLoginSSO(t *testing.T) {
	ctx := context.Background()
	_, client := newFixture(t)

	result, err := client.LoginSSO(ctx, "sso-ok", "okta")
	require.NoError(t, err)
	require.Equal(t, authmodel.LoginMethodSSO, result.Method)
	require.Equal(t, "u-1", result.Profile.UserID)

	_, err = client.LoginSSO(ctx, "forged", "")
	require.ErrorIs(t, err, autherr.ErrInvalidSSOToken)

	_, err = client.LoginSSO(ctx, "", "")
	require.ErrorIs(t, err, autherr.ErrInvalidSSOToken)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	srv, client := newFixture(t)

	result, err := client.Login(ctx, "jdoe", "secret")
	require.NoError(t, err)

	pair, err := client.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, result.Tokens.AccessToken, pair.AccessToken)

	t.Run("rotated token is rejected", func(t *testing.T) {
		_, err := client.Refresh(ctx, result.Tokens.RefreshToken)
		require.ErrorIs(t, err, autherr.ErrRefreshRejected)
		require.False(t, autherr.IsRetryable(err))
	})

	t.Run("server error is not a rejection", func(t *testing.T) {
		srv.FailNext(authapi.PathRefresh, http.StatusServiceUnavailable)
		_, err := client.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, autherr.ErrServer)
		require.NotErrorIs(t, err, autherr.ErrRefreshRejected)
	})
}

func TestLogoutAndMe(t *testing.T) {
	ctx := context.Background()
	srv, client := newFixture(t)

	result, err := client.Login(ctx, "jdoe", "secret")
	require.NoError(t, err)

	me, err := client.Me(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Contains(t, me, "jdoe")

	require.NoError(t, client.Logout(ctx, result.Tokens.AccessToken))
	require.Equal(t, 1, srv.LogoutCalls())

	_, err = client.Me(ctx, result.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrUnauthorized)

	srv.SetFailLogout(true)
	require.ErrorIs(t, client.Logout(ctx, "anything"), autherr.ErrServer)
}

func TestLoginPolicy(t *testing.T) {
	_, client := newFixture(t)

	policy, err := client.LoginPolicy(context.Background())
	require.NoError(t, err)
	require.True(t, policy.Active)
	require.True(t, policy.Allows("SSO"))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := authapi.New(url)
	_, err := client.Login(context.Background(), "jdoe", "secret")
	require.ErrorIs(t, err, autherr.ErrNetwork)
	require.True(t, autherr.IsRetryable(err))
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":"u-1","username":"jdoe"}`))
	}))
	defer srv.Close()

	_, err := authapi.New(srv.URL).Login(context.Background(), "jdoe", "secret")
	require.ErrorIs(t, err, autherr.ErrServer)
}
