package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-client/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps values in process memory. Nothing survives a restart.
type Store struct {
	values map[string]string
	closed bool
	lock   sync.RWMutex
}

func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return "", false, storage.ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.values[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	delete(s.values, key)
	return nil
}

// Len is the number of stored keys.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}

func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	return nil
}
