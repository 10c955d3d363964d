package authmodel_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestParseLoginMethod(t *testing.T) {
	m, err := authmodel.ParseLoginMethod("sso")
	require.NoError(t, err)
	require.Equal(t, authmodel.LoginMethodSSO, m)

	m, err = authmodel.ParseLoginMethod("")
	require.NoError(t, err)
	require.Equal(t, authmodel.LoginMethodNone, m)

	_, err = authmodel.ParseLoginMethod("kerberos")
	require.Error(t, err)
}

func TestUserProfile_Clone(t *testing.T) {
	u := &authmodel.UserProfile{
		UserID:      "u-1",
		Username:    "jdoe",
		Email:       utils.Ptr("jdoe@example.com"),
		Roles:       []string{"ROLE_ADMIN"},
		Permissions: []string{"CASE_READ"},
	}

	c := u.Clone()
	c.Roles[0] = "ROLE_VIEWER"
	*c.Email = "other@example.com"

	require.True(t, u.HasRole("ROLE_ADMIN"))
	require.Equal(t, "jdoe@example.com", utils.Value(u.Email))
	require.Nil(t, (*authmodel.UserProfile)(nil).Clone())
}

func TestUserProfile_Validate(t *testing.T) {
	require.Error(t, (*authmodel.UserProfile)(nil).Validate())
	require.Error(t, (&authmodel.UserProfile{Username: "x"}).Validate())
	require.Error(t, (&authmodel.UserProfile{UserID: "x"}).Validate())
	require.NoError(t, (&authmodel.UserProfile{UserID: "x", Username: "y"}).Validate())
}

func TestTokenPair_ExpiresAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(15*time.Minute), authmodel.TokenPair{ExpiresIn: 900}.ExpiresAt(now))
	require.True(t, authmodel.TokenPair{}.ExpiresAt(now).IsZero())
}

func TestLoginPolicy_Allows(t *testing.T) {
	p := &authmodel.LoginPolicy{EnabledMethods: []string{"LOCAL", "SSO"}}
	require.True(t, p.Allows("SSO"))
	require.False(t, p.Allows("AD"))
	require.False(t, (*authmodel.LoginPolicy)(nil).Allows("LOCAL"))
}
