// Package sso runs the browser side of an OpenID Connect authorization code
// flow with PKCE and turns the verified ID token into session credentials.
package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Config describes the identity provider client registration.
type Config struct {
	Provider     string   // Name forwarded to the auth service, e.g. "azure"
	IssuerURL    string   // Discovery root
	ClientID     string   // Client registered with the issuer
	ClientSecret string   // Empty for public clients
	RedirectURL  string
	Scopes       []string // Defaults to openid, profile, email
}

// Assertion is a verified identity provider login.
type Assertion struct {
	Token    string // Raw ID token, exchanged with the auth service
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Credentials converts the assertion for Coordinator.Login.
func (a Assertion) Credentials() session.SSOCredentials {
	return session.SSOCredentials{Token: a.Token, Provider: a.Provider}
}

type Client struct {
	provider string
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	logger   zerolog.Logger
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New discovers the issuer's endpoints and keys.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("[sso.New] issuer url and client id are required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[sso.New] failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	c := &Client{
		provider: cfg.Provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthCodeURL is where the user agent is sent to sign in.
func (c *Client) AuthCodeURL(state, nonce, verifier string) string {
	return c.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier))
}

// Exchange redeems the authorization code and verifies the returned ID token
// against the issuer's keys, this client's ID and nonce.
func (c *Client) Exchange(ctx context.Context, code, verifier, nonce string) (*Assertion, error) {
	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, autherr.Wrapf(autherr.ErrInvalidSSOToken, "[Exchange] token exchange failed: %v", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, autherr.Wrapf(autherr.ErrInvalidSSOToken, "[Exchange] no id token in response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, autherr.Wrapf(autherr.ErrInvalidSSOToken, "[Exchange] id token verification failed: %v", err)
	}

	var claims struct {
		Nonce string `json:"nonce"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, autherr.Wrapf(autherr.ErrInvalidSSOToken, "[Exchange] failed to extract claims: %v", err)
	}
	if claims.Nonce != nonce {
		return nil, autherr.Wrapf(autherr.ErrInvalidSSOToken, "[Exchange] invalid nonce")
	}

	c.logger.Debug().Str("provider", c.provider).Str("subject", idToken.Subject).Msg("sso assertion verified")
	return &Assertion{
		Token:    rawIDToken,
		Provider: c.provider,
		Subject:  idToken.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
	}, nil
}

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateState returns a random value for the state or nonce parameter.
func GenerateState() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
