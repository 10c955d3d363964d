package authapi

import "github.com/jrsteele09/go-session-client/authmodel"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	// Username accepts either the account username or the employee ID.
	Username string `json:"username"`
	Password string `json:"password"`
}

// SSOLoginRequest is the body of POST /auth/sso/login.
type SSOLoginRequest struct {
	// SSOToken is the assertion issued by the identity provider.
	SSOToken string `json:"ssoToken"`

	// Provider names the identity provider, e.g. "okta" or "azure-ad".
	// Omitted when the service has a single configured provider.
	Provider string `json:"provider,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse is the payload returned by both login endpoints.
type LoginResponse struct {
	// UserID and Username identify the account. Always present.
	UserID   string `json:"userId"`
	Username string `json:"username"`

	// Optional identity fields.
	Email            *string `json:"email,omitempty"`
	DisplayName      *string `json:"displayName,omitempty"`
	OrganizationID   *string `json:"organizationId,omitempty"`
	OrganizationName *string `json:"organizationName,omitempty"`

	// AccessToken is the bearer credential for API calls.
	// Usage: "Authorization: Bearer <accessToken>"
	AccessToken string `json:"accessToken"`

	// RefreshToken is used only against /auth/refresh. It rotates on each use.
	RefreshToken string `json:"refreshToken"`

	// Roles and Permissions are set-valued; order carries no meaning.
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	// Note: This is a hint - the JWT exp claim is authoritative when present.
	ExpiresIn int `json:"expiresIn"`

	// TokenType is "Bearer".
	TokenType string `json:"tokenType,omitempty"`

	// LoginMethod echoes the flow. The client overrides it with the flow it called.
	LoginMethod string `json:"loginMethod,omitempty"`
}

// RefreshResponse is the payload returned by POST /auth/refresh.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// ErrorResponse is the service's error body.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode,omitempty"` // e.g. AUTH_001
	Message   string `json:"message,omitempty"`
}

func (r *LoginResponse) toResult(method authmodel.LoginMethod) *authmodel.LoginResult {
	return &authmodel.LoginResult{
		Tokens: authmodel.TokenPair{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			ExpiresIn:    r.ExpiresIn,
		},
		Profile: authmodel.UserProfile{
			UserID:           r.UserID,
			Username:         r.Username,
			Email:            r.Email,
			DisplayName:      r.DisplayName,
			OrganizationID:   r.OrganizationID,
			OrganizationName: r.OrganizationName,
			Roles:            nonNil(r.Roles),
			Permissions:      nonNil(r.Permissions),
		},
		Method: method,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
