// Package medium defines the capability interfaces a physical storage system
// implements to plug into the backend pipeline.
package medium

import "context"

// Medium is the minimum surface every storage medium provides. Backend
// worker threads are the only callers of Save and Load; implementations must
// be safe for concurrent use by a fixed pool of workers.
//
// Blobs are immutable once written: Save must never overwrite an existing
// uid, and implementations should fail loudly if asked to.
type Medium interface {
	// Name identifies the medium in errors and logs (e.g. "file", "null").
	Name() string

	// Save durably stores data under uid.
	Save(ctx context.Context, uid string, data []byte) error

	// Load retrieves the blob stored under uid. size is the expected byte
	// length for media that need it to read (the null medium synthesizes
	// that many bytes); media that store real data may ignore it.
	// A uid with no data returns an error matching errors.ErrNotFound.
	Load(ctx context.Context, uid string, size int) ([]byte, error)

	// Close releases connections and file handles. Called once by the
	// backend after all workers have stopped.
	Close() error
}

// Updatable is implemented by media that can overwrite part of an existing
// blob in place. Most object stores cannot.
type Updatable interface {
	// Update writes data into the blob at offset and returns the number of
	// bytes written.
	Update(ctx context.Context, uid string, data []byte, offset int64) (int, error)
}

// RandomAccessReadable is implemented by media that can read a byte range of
// a blob without fetching all of it. Used by the block-device server for
// partial reads.
type RandomAccessReadable interface {
	// LoadAt reads length bytes starting at offset. length < 0 reads to the
	// end of the blob.
	LoadAt(ctx context.Context, uid string, offset int64, length int) ([]byte, error)
}

// Deletable is implemented by media that support removing blobs.
type Deletable interface {
	// Delete removes the blob stored under uid.
	Delete(ctx context.Context, uid string) error

	// DeleteMany removes many blobs and returns the uids that could not be
	// deleted.
	DeleteMany(ctx context.Context, uids []string) ([]string, error)
}

// Listable is implemented by media that can enumerate stored blobs.
type Listable interface {
	// ListUIDs returns all stored uids starting with prefix, in
	// lexicographic order. An empty prefix lists everything.
	ListUIDs(ctx context.Context, prefix string) ([]string, error)
}
