// Package objectstore provides a NATS JetStream ObjectStore medium. Blobs
// live in a single bucket keyed by uid, giving a replicated network-backed
// store without running separate object-storage infrastructure.
package objectstore

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/blockstore/errors"
	"github.com/c360/blockstore/medium"
	"github.com/c360/blockstore/pkg/retry"
)

// Config holds configuration for the objectstore medium.
type Config struct {
	// URL is the NATS server URL (e.g. nats://localhost:4222).
	URL string `json:"url"`

	// Bucket is the ObjectStore bucket name. Created if missing.
	Bucket string `json:"bucket"`

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// Replicas is the JetStream replica count used when the bucket has to
	// be created.
	Replicas int `json:"replicas"`
}

// DefaultConfig returns the default configuration for the objectstore medium.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Bucket:         "BLOCKS",
		ConnectTimeout: 5 * time.Second,
		Replicas:       1,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "url is required")
	}
	if c.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "bucket is required")
	}
	if c.Replicas < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "replicas cannot be negative")
	}
	return nil
}

// Store is a JetStream ObjectStore medium.
type Store struct {
	conn   *nats.Conn
	bucket jetstream.ObjectStore
	name   string
}

var (
	_ medium.Medium    = (*Store)(nil)
	_ medium.Deletable = (*Store)(nil)
	_ medium.Listable  = (*Store)(nil)
)

// New connects to NATS, binds (or creates) the bucket and returns the
// medium. Transient connection failures are retried with backoff.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var nc *nats.Conn
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		nc, err = nats.Connect(cfg.URL,
			nats.Name("blockstore-objectstore"),
			nats.Timeout(cfg.ConnectTimeout),
			nats.MaxReconnects(-1),
		)
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "New", "connect to NATS")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, errors.WrapFatal(err, "Store", "New", "create JetStream context")
	}

	bucket, err := js.ObjectStore(ctx, cfg.Bucket)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		bucket, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      cfg.Bucket,
			Description: "blockstore blobs",
			Replicas:    cfg.Replicas,
		})
	}
	if err != nil {
		nc.Close()
		return nil, errors.WrapFatal(err, "Store", "New", "bind object store bucket")
	}

	return &Store{conn: nc, bucket: bucket, name: "objectstore"}, nil
}

// Name implements medium.Medium.
func (s *Store) Name() string { return s.name }

// Save stores data under uid. ObjectStore puts overwrite, so an existing
// uid is rejected first to keep blobs immutable.
func (s *Store) Save(ctx context.Context, uid string, data []byte) error {
	if _, err := s.bucket.GetInfo(ctx, uid); err == nil {
		return errors.WrapInvalid(errors.ErrAlreadyExists, "Store", "Save", "uid "+uid)
	}

	if _, err := s.bucket.PutBytes(ctx, uid, data); err != nil {
		return errors.WrapFatal(err, "Store", "Save", "put object")
	}
	return nil
}

// Load retrieves the blob stored under uid. The size hint is ignored.
func (s *Store) Load(ctx context.Context, uid string, _ int) ([]byte, error) {
	data, err := s.bucket.GetBytes(ctx, uid)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, errors.NotFound(uid)
		}
		return nil, errors.WrapFatal(err, "Store", "Load", "get object")
	}
	return data, nil
}

// Delete implements medium.Deletable.
func (s *Store) Delete(ctx context.Context, uid string) error {
	if err := s.bucket.Delete(ctx, uid); err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return errors.NotFound(uid)
		}
		return errors.WrapFatal(err, "Store", "Delete", "delete object")
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

// ListUIDs implements medium.Listable.
func (s *Store) ListUIDs(ctx context.Context, prefix string) ([]string, error) {
	infos, err := s.bucket.List(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			return nil, nil
		}
		return nil, errors.WrapFatal(err, "Store", "ListUIDs", "list objects")
	}

	uids := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		if strings.HasPrefix(info.Name, prefix) {
			uids = append(uids, info.Name)
		}
	}
	sort.Strings(uids)
	return uids, nil
}

// Close drains the NATS connection.
func (s *Store) Close() error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return errors.WrapTransient(err, "Store", "Close", "drain connection")
	}
	return nil
}
