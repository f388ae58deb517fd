// Package file provides a filesystem medium storing one file per uid under a
// fan-out directory tree. The uid's randomized hash prefix spreads blobs
// evenly across the fan-out directories.
package file

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360/blockstore/errors"
	"github.com/c360/blockstore/medium"
)

// Config holds configuration for the file medium.
type Config struct {
	// Directory is the root of the blob tree. Created if missing.
	Directory string `json:"directory"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "directory is required")
	}
	return nil
}

// Store is a filesystem medium. Blob path layout is
// <root>/<uid[0:2]>/<uid[2:4]>/<uid>.
type Store struct {
	root string
}

var (
	_ medium.Medium               = (*Store)(nil)
	_ medium.Updatable            = (*Store)(nil)
	_ medium.RandomAccessReadable = (*Store)(nil)
	_ medium.Deletable            = (*Store)(nil)
	_ medium.Listable             = (*Store)(nil)
)

// New creates the root directory if needed and returns the medium.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Store", "New", "create root directory")
	}
	return &Store{root: cfg.Directory}, nil
}

// Name implements medium.Medium.
func (s *Store) Name() string { return "file" }

func (s *Store) path(uid string) string {
	if len(uid) < 4 {
		return filepath.Join(s.root, uid)
	}
	return filepath.Join(s.root, uid[0:2], uid[2:4], uid)
}

// Save writes data to a new file. O_EXCL enforces the no-overwrite contract
// at the filesystem level.
func (s *Store) Save(_ context.Context, uid string, data []byte) error {
	path := s.path(uid)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapFatal(err, "Store", "Save", "create fan-out directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.WrapInvalid(errors.ErrAlreadyExists, "Store", "Save", "uid "+uid)
		}
		return errors.WrapFatal(err, "Store", "Save", "create blob file")
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.WrapFatal(err, "Store", "Save", "write blob")
	}
	if err := f.Close(); err != nil {
		return errors.WrapFatal(err, "Store", "Save", "close blob file")
	}
	return nil
}

// Load reads the whole blob. The size hint is ignored; the file length wins.
func (s *Store) Load(_ context.Context, uid string, _ int) ([]byte, error) {
	data, err := os.ReadFile(s.path(uid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(uid)
		}
		return nil, errors.WrapFatal(err, "Store", "Load", "read blob")
	}
	return data, nil
}

// Update implements medium.Updatable.
func (s *Store) Update(_ context.Context, uid string, data []byte, offset int64) (int, error) {
	f, err := os.OpenFile(s.path(uid), os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NotFound(uid)
		}
		return 0, errors.WrapFatal(err, "Store", "Update", "open blob")
	}
	defer f.Close()

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, errors.WrapFatal(err, "Store", "Update", "write at offset")
	}
	return n, nil
}

// LoadAt implements medium.RandomAccessReadable.
func (s *Store) LoadAt(_ context.Context, uid string, offset int64, length int) ([]byte, error) {
	f, err := os.Open(s.path(uid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(uid)
		}
		return nil, errors.WrapFatal(err, "Store", "LoadAt", "open blob")
	}
	defer f.Close()

	if length < 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, errors.WrapFatal(err, "Store", "LoadAt", "stat blob")
		}
		length = int(info.Size() - offset)
		if length < 0 {
			length = 0
		}
	}

	data := make([]byte, length)
	n, err := f.ReadAt(data, offset)
	if err != nil && err != io.EOF {
		return nil, errors.WrapFatal(err, "Store", "LoadAt", "read at offset")
	}
	return data[:n], nil
}

// Delete implements medium.Deletable.
func (s *Store) Delete(_ context.Context, uid string) error {
	if err := os.Remove(s.path(uid)); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(uid)
		}
		return errors.WrapFatal(err, "Store", "Delete", "remove blob")
	}
	return nil
}

// DeleteMany implements medium.Deletable, returning the uids that could not
// be deleted.
func (s *Store) DeleteMany(ctx context.Context, uids []string) ([]string, error) {
	var failed []string
	for _, uid := range uids {
		if err := s.Delete(ctx, uid); err != nil {
			failed = append(failed, uid)
		}
	}
	return failed, nil
}

// ListUIDs implements medium.Listable by walking the fan-out tree.
func (s *Store) ListUIDs(_ context.Context, prefix string) ([]string, error) {
	var uids []string
	err := filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), prefix) {
			uids = append(uids, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "ListUIDs", "walk blob tree")
	}
	sort.Strings(uids)
	return uids, nil
}

// Close implements medium.Medium; nothing held open between operations.
func (s *Store) Close() error { return nil }
