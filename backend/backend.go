// Package backend implements the shared asynchronous read/write pipeline
// every storage medium plugs into: bounded write queue with blocking
// backpressure, unbounded read-request queue, fixed worker pools, bandwidth
// throttling, a write-once fatal error latch and deterministic shutdown.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/blockstore/errors"
	"github.com/c360/blockstore/medium"
	"github.com/c360/blockstore/pkg/queue"
	"github.com/c360/blockstore/throttle"
	"github.com/c360/blockstore/uid"
)

// defaultReadTimeout bounds how long a synchronous read waits for its result.
const defaultReadTimeout = 30 * time.Second

// Block describes one read request. The orchestration layer owns it; the
// pipeline never mutates it.
type Block struct {
	// ID is an opaque request correlator, typically the logical block
	// number. Synchronous reads use it to pair results with requests.
	ID int64

	// UID is the content address assigned at write time, immutable after.
	UID string

	// Size is the expected byte length, for media that need it to read.
	Size int
}

// ReadResult is one completed read. Data is nil when the medium holds no
// blob for the block's uid; asynchronous callers must check for that
// themselves.
type ReadResult struct {
	Block  *Block
	Offset int
	Length int
	Data   []byte
}

// writeJob is consumed exactly once by exactly one writer worker.
type writeJob struct {
	uid      string
	data     []byte
	callback func(uid string)
	done     chan struct{} // non-nil for synchronous saves; closed when drained
}

// Backend runs the pipeline over a single storage medium.
//
// Save and Read never touch the medium themselves; they enqueue jobs the
// worker pools drain. The dual blocking/async API must not be mixed for
// reads on one instance: use either ReadSync or Read+ReadGet, not both.
//
// Close must be called exactly once, after producers have stopped. The
// backend owns the medium and closes it on shutdown.
type Backend struct {
	id     string
	cfg    Config
	medium medium.Medium
	logger *slog.Logger

	readTimeout time.Duration

	writeThrottle *throttle.TokenBucket
	readThrottle  *throttle.TokenBucket

	writeQueue  chan *writeJob
	readQueue   *queue.FIFO[*Block]
	resultQueue chan *ReadResult

	writerStatus []atomic.Int32
	readerStatus []atomic.Int32

	writerWG sync.WaitGroup
	readerWG sync.WaitGroup

	// fatal is the write-once latch: the first worker that hits an
	// unrecoverable medium failure wins, every later Save/ReadGet call
	// returns the stored error.
	fatal  atomic.Pointer[fatalCell]
	closed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	metrics   *backendMetrics
	metricsWG sync.WaitGroup
}

type fatalCell struct {
	err error
}

// Option configures a Backend at construction
type Option func(*Backend)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithReadTimeout sets how long synchronous reads wait for their result.
func WithReadTimeout(d time.Duration) Option {
	return func(b *Backend) { b.readTimeout = d }
}

// New builds a backend over m and starts its worker pools. Workers run until
// Close; their count never changes afterwards.
func New(m medium.Medium, cfg Config, opts ...Option) (*Backend, error) {
	if m == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Backend", "New", "medium is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		id:            uuid.NewString()[:8],
		cfg:           cfg,
		medium:        m,
		readTimeout:   defaultReadTimeout,
		writeThrottle: throttle.New(cfg.BandwidthWrite),
		readThrottle:  throttle.New(cfg.BandwidthRead),
		writeQueue:    make(chan *writeJob, cfg.SimultaneousWrites+cfg.WriteQueueSlack),
		readQueue:     queue.New[*Block](),
		resultQueue:   make(chan *ReadResult, cfg.SimultaneousReads+cfg.ResultQueueSlack),
		writerStatus:  make([]atomic.Int32, cfg.SimultaneousWrites),
		readerStatus:  make([]atomic.Int32, cfg.SimultaneousReads),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("backend", b.id, "medium", m.Name())

	for i := 0; i < cfg.SimultaneousWrites; i++ {
		b.writerWG.Add(1)
		go b.writer(i)
	}
	for i := 0; i < cfg.SimultaneousReads; i++ {
		b.readerWG.Add(1)
		go b.reader(i)
	}
	if b.metrics != nil {
		b.metricsWG.Add(1)
		go b.metricsLoop()
	}

	b.logger.Debug("backend started",
		"writers", cfg.SimultaneousWrites,
		"readers", cfg.SimultaneousReads,
		"bandwidth_write", cfg.BandwidthWrite,
		"bandwidth_read", cfg.BandwidthRead)
	return b, nil
}

// ID returns the backend's instance identifier used in logs and metrics.
func (b *Backend) ID() string { return b.id }

// SaveOption configures one Save call
type SaveOption func(*saveOptions)

type saveOptions struct {
	sync     bool
	callback func(uid string)
}

// WithSync makes Save wait until the job has been drained from the write
// queue. Draining means a worker took ownership; the exact durability point
// is medium-defined.
func WithSync() SaveOption {
	return func(o *saveOptions) { o.sync = true }
}

// WithCallback registers fn to be invoked by the writer worker after the
// medium write completed. fn runs on the worker goroutine; keep it short.
func WithCallback(fn func(uid string)) SaveOption {
	return func(o *saveOptions) { o.callback = fn }
}

// Save assigns a fresh uid to data and enqueues the write. The uid returns
// immediately once enqueued, before the write reaches the medium, so callers
// can record the mapping optimistically. When the write queue is full, Save
// blocks until a worker frees a slot; producers faster than the medium are
// throttled structurally, not just by the token bucket.
//
// A latched fatal error fails Save immediately with the original cause.
func (b *Backend) Save(data []byte, opts ...SaveOption) (string, error) {
	if err := b.check("Save"); err != nil {
		return "", err
	}

	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	u := uid.New()
	job := &writeJob{uid: u, data: data, callback: o.callback}
	if o.sync {
		job.done = make(chan struct{})
	}

	b.writeQueue <- job
	if b.metrics != nil {
		b.metrics.writeQueueDepth.Set(float64(len(b.writeQueue)))
	}

	if o.sync {
		<-job.done
		if err := b.fatalError(); err != nil {
			return "", err
		}
	}
	return u, nil
}

// Read enqueues a read request. The request queue is unbounded: callers must
// collect results with ReadGet at a matching pace or memory grows. A latched
// fatal error fails immediately.
func (b *Backend) Read(block *Block) error {
	if err := b.check("Read"); err != nil {
		return err
	}
	if block.Size == 0 {
		block.Size = b.cfg.BlockSize
	}
	if err := b.readQueue.Push(block); err != nil {
		return errors.WrapInvalid(errors.ErrBackendClosed, "Backend", "Read", "enqueue read")
	}
	return nil
}

// ReadSync reads one block and blocks until its data arrives. It fetches the
// next completed result and then validates that it belongs to this request;
// a mismatch means synchronous and asynchronous reads were mixed on this
// instance, which is a programming error and fails with a
// protocol-violation error. A uid with no data fails with a not-found error.
//
// Only one synchronous read may be outstanding per backend at a time.
func (b *Backend) ReadSync(block *Block) ([]byte, error) {
	if err := b.Read(block); err != nil {
		return nil, err
	}

	res, err := b.ReadGet(b.readTimeout)
	if err != nil {
		return nil, err
	}
	if res.Block.ID != block.ID {
		return nil, errors.WrapInvalid(errors.ErrProtocolViolation, "Backend", "ReadSync",
			fmt.Sprintf("got result for block %d, expected block %d", res.Block.ID, block.ID))
	}
	if res.Data == nil {
		return nil, errors.NotFound(block.UID)
	}
	return res.Data, nil
}

// ReadGet returns the next completed read in FIFO completion order, which
// may differ from submission order when several readers run concurrently.
// It waits up to timeout; expiry returns a timeout error, which is distinct
// from not-found (absent data is reported via a nil Data field). A latched
// fatal error fails immediately.
func (b *Backend) ReadGet(timeout time.Duration) (*ReadResult, error) {
	if err := b.fatalError(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-b.resultQueue:
		if b.metrics != nil {
			b.metrics.resultQueueDepth.Set(float64(len(b.resultQueue)))
		}
		return res, nil
	case <-timer.C:
		return nil, errors.WrapTransient(errors.ErrTimeout, "Backend", "ReadGet",
			fmt.Sprintf("wait %s for read result", timeout))
	}
}

// Update overwrites part of an existing blob on media that support it.
func (b *Backend) Update(u string, data []byte, offset int64) (int, error) {
	if err := b.check("Update"); err != nil {
		return 0, err
	}
	m, ok := b.medium.(medium.Updatable)
	if !ok {
		return 0, errors.Unsupported(b.medium.Name(), "Update")
	}
	return m.Update(b.ctx, u, data, offset)
}

// ReadRaw synchronously reads a byte range of one blob, bypassing the
// pipeline. Used by the block-device server. length < 0 reads to the end.
func (b *Backend) ReadRaw(u string, offset int64, length int) ([]byte, error) {
	if err := b.check("ReadRaw"); err != nil {
		return nil, err
	}
	m, ok := b.medium.(medium.RandomAccessReadable)
	if !ok {
		return nil, errors.Unsupported(b.medium.Name(), "ReadRaw")
	}
	return m.LoadAt(b.ctx, u, offset, length)
}

// Remove deletes one blob on media that support it.
func (b *Backend) Remove(u string) error {
	if err := b.check("Remove"); err != nil {
		return err
	}
	m, ok := b.medium.(medium.Deletable)
	if !ok {
		return errors.Unsupported(b.medium.Name(), "Remove")
	}
	return m.Delete(b.ctx, u)
}

// RemoveMany deletes many blobs and returns the uids that could not be
// deleted.
func (b *Backend) RemoveMany(uids []string) ([]string, error) {
	if err := b.check("RemoveMany"); err != nil {
		return nil, err
	}
	m, ok := b.medium.(medium.Deletable)
	if !ok {
		return nil, errors.Unsupported(b.medium.Name(), "RemoveMany")
	}
	return m.DeleteMany(b.ctx, uids)
}

// ListUIDs enumerates stored blobs with the given uid prefix on media that
// support it. An empty prefix lists everything.
func (b *Backend) ListUIDs(prefix string) ([]string, error) {
	if err := b.check("ListUIDs"); err != nil {
		return nil, err
	}
	m, ok := b.medium.(medium.Listable)
	if !ok {
		return nil, errors.Unsupported(b.medium.Name(), "ListUIDs")
	}
	return m.ListUIDs(b.ctx, prefix)
}

// Close shuts the pipeline down deterministically: the write queue is closed
// and drained and every writer joined first, then the same for readers.
// Writers stop before readers because in-flight writes may be referenced by
// reads still queued in the same process. The medium is closed last.
//
// Close must be called exactly once, after producers have stopped and
// outstanding read results have been collected; a second call fails with a
// backend-closed error.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrBackendClosed, "Backend", "Close", "close called twice")
	}

	close(b.writeQueue)
	b.writerWG.Wait()

	b.readQueue.Close()
	b.readerWG.Wait()

	b.cancel()
	b.metricsWG.Wait()

	if err := b.medium.Close(); err != nil {
		return errors.Wrap(err, "Backend", "Close", "close medium")
	}

	b.logger.Debug("backend closed")
	return nil
}

// check gates caller-facing entry points: fail fast on the fatal latch,
// then on shutdown.
func (b *Backend) check(op string) error {
	if err := b.fatalError(); err != nil {
		return err
	}
	if b.closed.Load() {
		return errors.WrapInvalid(errors.ErrBackendClosed, "Backend", op, "backend closed")
	}
	return nil
}

// setFatal latches err. The first writer wins; later calls are no-ops.
func (b *Backend) setFatal(err error) {
	if b.fatal.CompareAndSwap(nil, &fatalCell{err: err}) {
		if b.metrics != nil {
			b.metrics.fatalErrors.Inc()
		}
		b.logger.Error("fatal medium error latched", "error", err)
	}
}

// fatalError returns the latched error, or nil. The latch is never cleared
// during the backend's lifetime; only reconstruction resets it.
func (b *Backend) fatalError() error {
	if cell := b.fatal.Load(); cell != nil {
		return cell.err
	}
	return nil
}
