// Package redisstore keeps session keys in Redis so several processes on
// different hosts can share one session.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-client/storage"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second

	DefaultPrefix = "authsession:"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	client *redis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// Connect parses a redis:// URL (or a bare host:port) and verifies the server answers.
func Connect(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	var options *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("[redisstore.Connect] invalid URL: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: redisURL}
	}
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[redisstore.Connect] ping failed: %w", err)
	}
	return New(client, opts...), nil
}

// New wraps an existing client. The Store owns the client and closes it on Close.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate(err)
	}
	return v, true, nil
}

// GetMany uses a single MGET, which Redis executes atomically.
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	values, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, translate(err)
	}
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return translate(s.client.Set(ctx, s.key(key), value, 0).Err())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return translate(s.client.Del(ctx, s.key(key)).Err())
}

func (s *Store) Close() error {
	return s.client.Close()
}

func translate(err error) error {
	if err == redis.ErrClosed {
		return storage.ErrClosed
	}
	return err
}
