package authapi

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
)

func classifyLogin(status int) autherr.Kind {
	switch status {
	case http.StatusUnauthorized:
		return autherr.KindInvalidCredentials
	case http.StatusLocked:
		return autherr.KindAccountLocked
	case http.StatusForbidden:
		return autherr.KindAccountDisabled
	default:
		return autherr.FromStatus(status)
	}
}

func classifySSOLogin(status int) autherr.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return autherr.KindInvalidSSOToken
	default:
		return classifyLogin(status)
	}
}

func classifyRefresh(status int) autherr.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return autherr.KindRefreshRejected
	default:
		return autherr.FromStatus(status)
	}
}

// Login authenticates with a username (or employee ID) and password.
func (c *Client) Login(ctx context.Context, usernameOrEmployeeID, password string) (*authmodel.LoginResult, error) {
	var resp LoginResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     PathLogin,
		body:     LoginRequest{Username: usernameOrEmployeeID, Password: password},
		classify: classifyLogin,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	return c.loginResult(&resp, authmodel.LoginMethodTraditional)
}

// LoginSSO exchanges an identity provider assertion for a session. provider may be empty.
func (c *Client) LoginSSO(ctx context.Context, ssoToken, provider string) (*authmodel.LoginResult, error) {
	var resp LoginResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     PathSSOLogin,
		body:     SSOLoginRequest{SSOToken: ssoToken, Provider: provider},
		classify: classifySSOLogin,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	return c.loginResult(&resp, authmodel.LoginMethodSSO)
}

// Refresh trades a refresh token for a new token pair. A rejected refresh
// token is reported as autherr.ErrRefreshRejected, distinct from transport
// failures.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authmodel.TokenPair, error) {
	var resp RefreshResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     PathRefresh,
		body:     RefreshRequest{RefreshToken: refreshToken},
		classify: classifyRefresh,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	if err := validateTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, err
	}
	return &authmodel.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}, nil
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   PathLogout,
		bearer: accessToken,
	})
}

// Me returns the service's identity description for the bearer token.
func (c *Client) Me(ctx context.Context, accessToken string) (string, error) {
	var raw string
	err := c.do(ctx, call{
		method:      http.MethodGet,
		path:        PathMe,
		bearer:      accessToken,
		rawResponse: &raw,
	})
	return raw, err
}

// LoginPolicy fetches the login methods the service currently accepts. The
// endpoint is public.
func (c *Client) LoginPolicy(ctx context.Context) (*authmodel.LoginPolicy, error) {
	var policy authmodel.LoginPolicy
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   PathLoginPolicy,
		out:    &policy,
	})
	if err != nil {
		return nil, err
	}
	return &policy, nil
}
