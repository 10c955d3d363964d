package sso_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/sso"
	"github.com/stretchr/testify/require"
)

const clientID = "session-client"

// issuer is a minimal OpenID provider: discovery, JWKS and a token endpoint
// that answers one code.
type issuer struct {
	*httptest.Server
	key     *rsa.PrivateKey
	signKey *rsa.PrivateKey

	lock     sync.Mutex
	nonce    string
	verifier string
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss := &issuer{key: key, signKey: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", iss.discovery)
	mux.HandleFunc("/keys", iss.keys)
	mux.HandleFunc("/token", iss.token)
	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Close)
	return iss
}

func (iss *issuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                                iss.URL,
		"authorization_endpoint":                iss.URL + "/authorize",
		"token_endpoint":                        iss.URL + "/token",
		"jwks_uri":                              iss.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (iss *issuer) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(iss.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(iss.key.E)).Bytes()),
		}},
	})
}

func (iss *issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	iss.lock.Lock()
	iss.verifier = r.PostForm.Get("code_verifier")
	nonce := iss.nonce
	signKey := iss.signKey
	iss.lock.Unlock()

	claims := jwt.MapClaims{
		"iss":   iss.URL,
		"aud":   clientID,
		"sub":   "idp-user-7",
		"email": "jdoe@example.com",
		"name":  "J Doe",
		"nonce": nonce,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	idToken, err := token.SignedString(signKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"access_token": "idp-access",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (iss *issuer) setNonce(nonce string) {
	iss.lock.Lock()
	defer iss.lock.Unlock()
	iss.nonce = nonce
}

func (iss *issuer) receivedVerifier() string {
	iss.lock.Lock()
	defer iss.lock.Unlock()
	return iss.verifier
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, iss *issuer) *sso.Client {
	t.Helper()
	c, err := sso.New(context.Background(), sso.Config{
		Provider:    "corp",
		IssuerURL:   iss.URL,
		ClientID:    clientID,
		RedirectURL: "http://localhost/auth/sso-callback",
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresIssuerAndClient(t *testing.T) {
	_, err := sso.New(context.Background(), sso.Config{IssuerURL: "http://localhost"})
	require.Error(t, err)
}

func TestAuthCodeURL(t *testing.T) {
	iss := newIssuer(t)
	c := newClient(t, iss)
	verifier := sso.GenerateVerifier()

	u, err := url.Parse(c.AuthCodeURL("state-1", "nonce-1", verifier))
	require.NoError(t, err)
	q := u.Query()

	sum := sha256.Sum256([]byte(verifier))
	require.Equal(t, iss.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "nonce-1", q.Get("nonce"))
	require.Equal(t, clientID, q.Get("client_id"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))
}

func TestExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("verified assertion", func(t *testing.T) {
		iss := newIssuer(t)
		c := newClient(t, iss)
		iss.setNonce("nonce-1")
		verifier := sso.GenerateVerifier()

		assertion, err := c.Exchange(ctx, "good-code", verifier, "nonce-1")
		require.NoError(t, err)
		require.Equal(t, verifier, iss.receivedVerifier())
		require.Equal(t, "idp-user-7", assertion.Subject)
		require.Equal(t, "jdoe@example.com", assertion.Email)
		require.Equal(t, "corp", assertion.Provider)
		require.NotEmpty(t, assertion.Token)

		creds := assertion.Credentials()
		require.Equal(t, assertion.Token, creds.Token)
		require.Equal(t, "corp", creds.Provider)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		iss := newIssuer(t)
		c := newClient(t, iss)
		iss.setNonce("other")

		_, err := c.Exchange(ctx, "good-code", sso.GenerateVerifier(), "nonce-1")
		require.ErrorIs(t, err, autherr.ErrInvalidSSOToken)
	})

	t.Run("rejected code", func(t *testing.T) {
		iss := newIssuer(t)
		c := newClient(t, iss)

		_, err := c.Exchange(ctx, "bad-code", sso.GenerateVerifier(), "nonce-1")
		require.ErrorIs(t, err, autherr.ErrInvalidSSOToken)
	})

	t.Run("signature from unknown key", func(t *testing.T) {
		iss := newIssuer(t)
		c := newClient(t, iss)
		iss.setNonce("nonce-1")
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		iss.lock.Lock()
		iss.signKey = other
		iss.lock.Unlock()

		_, err = c.Exchange(ctx, "good-code", sso.GenerateVerifier(), "nonce-1")
		require.ErrorIs(t, err, autherr.ErrInvalidSSOToken)
	})
}

func TestGenerateState(t *testing.T) {
	a, b := sso.GenerateState(), sso.GenerateState()
	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
}
