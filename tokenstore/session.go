package tokenstore

import (
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
)

// Durable storage keys. All four are written together and removed together.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyLoginMethod  = "loginMethod"
)

// Keys lists every durable key in write order.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser, KeyLoginMethod}

// Session is the authenticated identity and credential state of the client.
// The zero value is "no session". Empty strings stand for absent tokens.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *authmodel.UserProfile
	LoginMethod  authmodel.LoginMethod

	// ExpiresAt is the access token expiry, zero when unknown.
	ExpiresAt time.Time
}

// IsAuthenticated is derived from the access token and never stored.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// IsEmpty reports whether no field of the session is set.
func (s Session) IsEmpty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil && s.LoginMethod == authmodel.LoginMethodNone
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// validate rejects partial sessions: access token, refresh token and user are all required.
func (s Session) validate() error {
	if s.AccessToken == "" {
		return autherr.Wrapf(autherr.ErrPartialSession, "access token missing")
	}
	if s.RefreshToken == "" {
		return autherr.Wrapf(autherr.ErrPartialSession, "refresh token missing")
	}
	if err := s.User.Validate(); err != nil {
		return autherr.Wrapf(autherr.ErrPartialSession, "%s", err.Error())
	}
	if _, err := authmodel.ParseLoginMethod(string(s.LoginMethod)); err != nil {
		return autherr.Wrapf(autherr.ErrPartialSession, "%s", err.Error())
	}
	return nil
}
