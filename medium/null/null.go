// Package null provides a medium for pipeline performance testing. Writes
// are discarded and reads synthesize deterministic pseudo-random data, so
// the backend machinery can be benchmarked without real storage behind it.
// Do not use it to keep data you care about.
package null

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"sync/atomic"

	"github.com/c360/blockstore/medium"
)

// Store discards writes and fabricates reads. All capabilities beyond the
// basic Medium surface are intentionally absent so backends over it exercise
// the unsupported-operation paths.
type Store struct {
	blobsDiscarded atomic.Int64
	bytesDiscarded atomic.Int64
}

var _ medium.Medium = (*Store)(nil)

// New creates a null medium.
func New() *Store {
	return &Store{}
}

// Name implements medium.Medium.
func (s *Store) Name() string { return "null" }

// Save counts and discards the payload.
func (s *Store) Save(_ context.Context, _ string, data []byte) error {
	s.blobsDiscarded.Add(1)
	s.bytesDiscarded.Add(int64(len(data)))
	return nil
}

// Load synthesizes size bytes of pseudo-random data seeded by the uid, so
// repeated reads of one uid agree with each other.
func (s *Store) Load(_ context.Context, uid string, size int) ([]byte, error) {
	if size < 0 {
		size = 0
	}

	h := fnv.New64a()
	h.Write([]byte(uid))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	data := make([]byte, size)
	// Fill 8 bytes at a time; the tail is cut off by the slice bounds.
	var word [8]byte
	for i := 0; i < size; i += 8 {
		binary.LittleEndian.PutUint64(word[:], rng.Uint64())
		copy(data[i:], word[:])
	}
	return data, nil
}

// Discarded returns how many blobs and bytes have been thrown away.
func (s *Store) Discarded() (blobs, bytes int64) {
	return s.blobsDiscarded.Load(), s.bytesDiscarded.Load()
}

// Close implements medium.Medium; nothing to release.
func (s *Store) Close() error { return nil }
