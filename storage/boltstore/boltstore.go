// Package boltstore persists session keys in a single BoltDB file.
package boltstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-session-client/storage"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const defaultBucket = "session"

var _ storage.Store = (*Store)(nil)

// Store wraps BoltDB. Each call runs in its own transaction; GetMany reads all
// keys inside one View transaction.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open creates the file (and parent directories) if needed and ensures the bucket exists.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = defaultBucket
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[boltstore.Open] create directory")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "[boltstore.Open] open %s", path)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[boltstore.Open] create bucket")
	}

	return &Store{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	values, err := s.GetMany(ctx, key)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, k := range keys {
			if v := b.Get([]byte(k)); v != nil {
				// Bolt values are only valid for the life of the transaction.
				out[k] = string(v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	}))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	}))
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func translate(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return storage.ErrClosed
	}
	return err
}
