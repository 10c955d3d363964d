// Package sealed encrypts values before they reach an underlying storage.Store.
// Keys are stored in the clear; values are NaCl secretbox boxes, base64 encoded.
package sealed

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/jrsteele09/go-session-client/storage"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var (
	ErrInvalidKey = errors.New("sealed: key must be 32 bytes")
	ErrTampered   = errors.New("sealed: value failed authentication")
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	inner storage.Store
	key   [KeySize]byte
}

// New wraps inner with a 32 byte key.
func New(inner storage.Store, key []byte) (*Store, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	s := &Store{inner: inner}
	copy(s.key[:], key)
	return s, nil
}

// ParseKey decodes a base64 (standard or URL alphabet) key.
func ParseKey(encoded string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a random key suitable for New.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Store) seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("[sealed.seal] nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *Store) open(sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrTampered
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrTampered
	}
	return string(plain), nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.open(v)
	if err != nil {
		return "", false, fmt.Errorf("[sealed.Get] %s: %w", key, err)
	}
	return plain, true, nil
}

func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	values, err := s.inner.GetMany(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		plain, err := s.open(v)
		if err != nil {
			return nil, fmt.Errorf("[sealed.GetMany] %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *Store) Close() error {
	return s.inner.Close()
}
