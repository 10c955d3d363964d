package session

import (
	"context"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
)

// Credentials is one of PasswordCredentials or SSOCredentials. Each variant
// carries its own request data; both produce the same LoginResult.
type Credentials interface {
	Method() authmodel.LoginMethod
	authenticate(ctx context.Context, api AuthService) (*authmodel.LoginResult, error)
}

// PasswordCredentials is a traditional login. Username may also be an employee ID.
type PasswordCredentials struct {
	Username string
	Password string
}

func (PasswordCredentials) Method() authmodel.LoginMethod {
	return authmodel.LoginMethodTraditional
}

func (p PasswordCredentials) authenticate(ctx context.Context, api AuthService) (*authmodel.LoginResult, error) {
	if p.Username == "" || p.Password == "" {
		return nil, autherr.Wrapf(autherr.ErrInvalidCredentials, "[Login] username and password are required")
	}
	return api.Login(ctx, p.Username, p.Password)
}

// SSOCredentials is an identity provider assertion. Provider is optional.
type SSOCredentials struct {
	Token    string
	Provider string
}

func (SSOCredentials) Method() authmodel.LoginMethod {
	return authmodel.LoginMethodSSO
}

func (s SSOCredentials) authenticate(ctx context.Context, api AuthService) (*authmodel.LoginResult, error) {
	if s.Token == "" {
		return nil, autherr.Wrapf(autherr.ErrInvalidSSOToken, "[LoginSSO] sso token is required")
	}
	return api.LoginSSO(ctx, s.Token, s.Provider)
}
