// Package memory provides a map-backed storage medium for tests, examples
// and small ephemeral stores. It implements every optional capability.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/c360/blockstore/errors"
	"github.com/c360/blockstore/medium"
)

// Store is an in-memory medium. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var (
	_ medium.Medium               = (*Store)(nil)
	_ medium.Updatable            = (*Store)(nil)
	_ medium.RandomAccessReadable = (*Store)(nil)
	_ medium.Deletable            = (*Store)(nil)
	_ medium.Listable             = (*Store)(nil)
)

// New creates an empty in-memory medium.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Name implements medium.Medium.
func (s *Store) Name() string { return "memory" }

// Save stores a copy of data under uid. Overwriting an existing uid is an
// error: blobs are immutable.
func (s *Store) Save(_ context.Context, uid string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[uid]; exists {
		return errors.WrapInvalid(errors.ErrAlreadyExists, "Store", "Save", "uid "+uid)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[uid] = cp
	return nil
}

// Load returns a copy of the blob stored under uid. The size hint is
// ignored; the stored length wins.
func (s *Store) Load(_ context.Context, uid string, _ int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[uid]
	if !ok {
		return nil, errors.NotFound(uid)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Update implements medium.Updatable.
func (s *Store) Update(_ context.Context, uid string, data []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[uid]
	if !ok {
		return 0, errors.NotFound(uid)
	}

	end := int(offset) + len(data)
	if end > len(blob) {
		grown := make([]byte, end)
		copy(grown, blob)
		blob = grown
	}
	copy(blob[offset:], data)
	s.blobs[uid] = blob
	return len(data), nil
}

// LoadAt implements medium.RandomAccessReadable.
func (s *Store) LoadAt(_ context.Context, uid string, offset int64, length int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[uid]
	if !ok {
		return nil, errors.NotFound(uid)
	}

	if offset > int64(len(blob)) {
		offset = int64(len(blob))
	}
	rest := blob[offset:]
	if length < 0 || length > len(rest) {
		length = len(rest)
	}

	cp := make([]byte, length)
	copy(cp, rest[:length])
	return cp, nil
}

// Delete implements medium.Deletable.
func (s *Store) Delete(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[uid]; !ok {
		return errors.NotFound(uid)
	}
	delete(s.blobs, uid)
	return nil
}

// DeleteMany implements medium.Deletable, returning the uids that were not
// present.
func (s *Store) DeleteMany(ctx context.Context, uids []string) ([]string, error) {
	var failed []string
	for _, uid := range uids {
		if err := s.Delete(ctx, uid); err != nil {
			failed = append(failed, uid)
		}
	}
	return failed, nil
}

// ListUIDs implements medium.Listable.
func (s *Store) ListUIDs(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uids := make([]string, 0, len(s.blobs))
	for uid := range s.blobs {
		if strings.HasPrefix(uid, prefix) {
			uids = append(uids, uid)
		}
	}
	sort.Strings(uids)
	return uids, nil
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Close implements medium.Medium; nothing to release.
func (s *Store) Close() error { return nil }
