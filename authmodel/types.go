package authmodel

import (
	"fmt"
	"slices"
	"time"
)

// LoginMethod records which authentication path produced a session.
type LoginMethod string

const (
	// LoginMethodNone means no session exists.
	LoginMethodNone LoginMethod = ""

	// LoginMethodTraditional is a username (or employee ID) and password login.
	LoginMethodTraditional LoginMethod = "traditional"

	// LoginMethodSSO is a login delegated to an external identity provider.
	LoginMethodSSO LoginMethod = "sso"
)

// ParseLoginMethod validates a persisted or received login method.
func ParseLoginMethod(s string) (LoginMethod, error) {
	switch LoginMethod(s) {
	case LoginMethodNone, LoginMethodTraditional, LoginMethodSSO:
		return LoginMethod(s), nil
	default:
		return LoginMethodNone, fmt.Errorf("unknown login method %q", s)
	}
}

// UserProfile is the identity snapshot captured at login time.
type UserProfile struct {
	UserID           string   `json:"userId"`                     // Required
	Username         string   `json:"username"`                   // Required
	Email            *string  `json:"email,omitempty"`            // Optional
	DisplayName      *string  `json:"displayName,omitempty"`      // Optional
	OrganizationID   *string  `json:"organizationId,omitempty"`   // Optional
	OrganizationName *string  `json:"organizationName,omitempty"` // Optional
	Roles            []string `json:"roles"`                      // Set semantics, order irrelevant
	Permissions      []string `json:"permissions"`                // Set semantics, order irrelevant
}

// Validate checks the required identity fields.
func (u *UserProfile) Validate() error {
	if u == nil {
		return fmt.Errorf("user profile is required")
	}
	if u.UserID == "" {
		return fmt.Errorf("user profile: userId is required")
	}
	if u.Username == "" {
		return fmt.Errorf("user profile: username is required")
	}
	return nil
}

// HasRole is a membership test on the role set.
func (u *UserProfile) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// HasPermission is a membership test on the permission set.
func (u *UserProfile) HasPermission(permission string) bool {
	return u != nil && slices.Contains(u.Permissions, permission)
}

// Clone returns a deep copy so readers never share slices with the store.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	c.Email = clonePtr(u.Email)
	c.DisplayName = clonePtr(u.DisplayName)
	c.OrganizationID = clonePtr(u.OrganizationID)
	c.OrganizationName = clonePtr(u.OrganizationName)
	c.Roles = slices.Clone(u.Roles)
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// TokenPair is an access/refresh credential pair as issued by the authentication service.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the access token lifetime in seconds. Zero when the service omitted it.
	ExpiresIn int `json:"expiresIn,omitempty"`
}

// ExpiresAt converts ExpiresIn to an absolute time. The zero time is returned when unknown.
func (t TokenPair) ExpiresAt(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// LoginResult is the normalized outcome of either login flow.
type LoginResult struct {
	Tokens  TokenPair
	Profile UserProfile
	Method  LoginMethod
}

// LoginPolicy lists the login methods the service currently accepts.
type LoginPolicy struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	EnabledMethods []string `json:"enabledMethods"` // e.g. LOCAL, AD, SSO
	Priority       []string `json:"priority"`
	Active         bool     `json:"active"`
}

// Allows reports whether method (LOCAL, AD or SSO) is enabled.
func (p *LoginPolicy) Allows(method string) bool {
	return p != nil && slices.Contains(p.EnabledMethods, method)
}
