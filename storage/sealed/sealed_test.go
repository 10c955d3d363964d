package sealed_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/jrsteele09/go-session-client/storage/memstore"
	"github.com/jrsteele09/go-session-client/storage/sealed"
	"github.com/stretchr/testify/require"
)

func newSealed(t *testing.T) (*sealed.Store, *memstore.Store) {
	t.Helper()
	key, err := sealed.GenerateKey()
	require.NoError(t, err)
	inner := memstore.New()
	s, err := sealed.New(inner, key)
	require.NoError(t, err)
	return s, inner
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, inner := newSealed(t)

	require.NoError(t, s.Set(ctx, "refreshToken", "rt-secret"))

	raw, ok, err := inner.Get(ctx, "refreshToken")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, raw, "rt-secret")

	v, ok, err := s.Get(ctx, "refreshToken")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "rt-secret", v)

	got, err := s.GetMany(ctx, "refreshToken", "missing")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"refreshToken": "rt-secret"}, got)
}

func TestStore_Tampered(t *testing.T) {
	ctx := context.Background()
	s, inner := newSealed(t)

	require.NoError(t, s.Set(ctx, "user", `{"userId":"u-1"}`))
	raw, _, err := inner.Get(ctx, "user")
	require.NoError(t, err)

	box, err := base64.StdEncoding.DecodeString(raw)
	require.NoError(t, err)
	box[len(box)-1] ^= 0xff
	require.NoError(t, inner.Set(ctx, "user", base64.StdEncoding.EncodeToString(box)))

	_, _, err = s.Get(ctx, "user")
	require.ErrorIs(t, err, sealed.ErrTampered)

	_, err = s.GetMany(ctx, "user")
	require.ErrorIs(t, err, sealed.ErrTampered)

	require.NoError(t, inner.Set(ctx, "user", "not base64!"))
	_, _, err = s.Get(ctx, "user")
	require.ErrorIs(t, err, sealed.ErrTampered)
}

func TestStore_WrongKey(t *testing.T) {
	ctx := context.Background()
	s, inner := newSealed(t)
	require.NoError(t, s.Set(ctx, "accessToken", "at"))

	otherKey, err := sealed.GenerateKey()
	require.NoError(t, err)
	other, err := sealed.New(inner, otherKey)
	require.NoError(t, err)

	_, _, err = other.Get(ctx, "accessToken")
	require.ErrorIs(t, err, sealed.ErrTampered)
}

func TestParseKey(t *testing.T) {
	key, err := sealed.GenerateKey()
	require.NoError(t, err)

	parsed, err := sealed.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	_, err = sealed.ParseKey("c2hvcnQ=")
	require.ErrorIs(t, err, sealed.ErrInvalidKey)

	_, err = sealed.New(memstore.New(), []byte("short"))
	require.ErrorIs(t, err, sealed.ErrInvalidKey)
}
