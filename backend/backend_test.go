package backend

import (
	"bytes"
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/blockstore/errors"
	"github.com/c360/blockstore/medium/memory"
	"github.com/c360/blockstore/medium/null"
	"github.com/c360/blockstore/metric"
)

var uidPattern = regexp.MustCompile(`^[0-9a-f]{10}[A-Za-z0-9]{22}$`)

func newTestBackend(t *testing.T, cfg Config) (*Backend, *memory.Store) {
	t.Helper()
	store := memory.New()
	b, err := New(store, cfg)
	require.NoError(t, err)
	return b, store
}

func TestSaveReadRoundTrip(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	for _, size := range []int{0, 1, 4096, 1 << 20} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			data := make([]byte, size)
			_, err := rand.Read(data)
			require.NoError(t, err)

			u, err := b.Save(data, WithSync())
			require.NoError(t, err)
			assert.Regexp(t, uidPattern, u)

			got, err := b.ReadSync(&Block{ID: int64(size), UID: u, Size: size})
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got))
		})
	}

	require.NoError(t, b.Close())
}

func TestConcurrentWorkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousWrites = 3
	cfg.SimultaneousReads = 2
	b, store := newTestBackend(t, cfg)

	const n = 50
	uids := make([]string, n)
	for i := 0; i < n; i++ {
		u, err := b.Save([]byte(fmt.Sprintf("block-%03d", i)), WithSync())
		require.NoError(t, err)
		uids[i] = u
	}
	assert.Equal(t, n, store.Len())

	// Distinct payloads must never share a uid.
	seen := make(map[string]bool, n)
	for _, u := range uids {
		assert.False(t, seen[u], "duplicate uid %s", u)
		seen[u] = true
	}

	for i, u := range uids {
		got, err := b.ReadSync(&Block{ID: int64(i), UID: u})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("block-%03d", i), string(got))
	}

	require.NoError(t, b.Close())
}

func TestTwoWritersOneReader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousWrites = 2
	cfg.SimultaneousReads = 1
	b, _ := newTestBackend(t, cfg)

	u, err := b.Save([]byte("hello"), WithSync())
	require.NoError(t, err)
	require.Regexp(t, uidPattern, u)

	got, err := b.ReadSync(&Block{ID: 1, UID: u, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, b.Close())
}

func TestWriteBandwidthLimitsThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}

	cfg := DefaultConfig()
	cfg.BandwidthWrite = 10000
	b, _ := newTestBackend(t, cfg)

	// 5 x 4000 bytes at 10000 B/s: the first second's burst absorbs
	// 10000 bytes, the remaining 10000 cost about one more second.
	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := b.Save(make([]byte, 4000), WithSync())
		require.NoError(t, err)
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 800*time.Millisecond)

	require.NoError(t, b.Close())
}

func TestAsyncReadCompletionOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousReads = 4
	b, _ := newTestBackend(t, cfg)

	const n = 20
	want := make(map[int64]string, n)
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("payload-%d", i)
		u, err := b.Save([]byte(payload), WithSync())
		require.NoError(t, err)
		want[int64(i)] = payload

		require.NoError(t, b.Read(&Block{ID: int64(i), UID: u}))
	}

	// Completion order is unspecified with several readers; every request
	// still yields exactly one result.
	got := make(map[int64]string, n)
	for i := 0; i < n; i++ {
		res, err := b.ReadGet(5 * time.Second)
		require.NoError(t, err)
		require.NotNil(t, res.Data)
		assert.Equal(t, len(res.Data), res.Length)
		got[res.Block.ID] = string(res.Data)
	}
	assert.Equal(t, want, got)

	require.NoError(t, b.Close())
}

func TestReadSyncNotFound(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	_, err := b.ReadSync(&Block{ID: 1, UID: "0123456789AAAAAAAAAAAAAAAAAAAAAA"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, b.Close())
}

func TestReadGetReportsMissingAsNilData(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	require.NoError(t, b.Read(&Block{ID: 7, UID: "0123456789AAAAAAAAAAAAAAAAAAAAAA"}))
	res, err := b.ReadGet(5 * time.Second)
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	assert.Zero(t, res.Length)
	assert.EqualValues(t, 7, res.Block.ID)

	require.NoError(t, b.Close())
}

func TestReadSyncDetectsMixedConventions(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	u1, err := b.Save([]byte("first"), WithSync())
	require.NoError(t, err)
	u2, err := b.Save([]byte("second"), WithSync())
	require.NoError(t, err)

	// An uncollected async read makes the next sync read receive the
	// wrong result.
	require.NoError(t, b.Read(&Block{ID: 1, UID: u1}))
	time.Sleep(100 * time.Millisecond)

	_, err = b.ReadSync(&Block{ID: 2, UID: u2})
	require.Error(t, err)
	assert.True(t, errors.IsProtocolViolation(err))

	require.NoError(t, b.Close())
}

func TestReadGetTimeout(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	start := time.Now()
	_, err := b.ReadGet(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, b.Close())
}

// gateMedium blocks every Save until the gate channel is closed.
type gateMedium struct {
	*memory.Store
	gate chan struct{}
}

func (g *gateMedium) Save(ctx context.Context, uid string, data []byte) error {
	<-g.gate
	return g.Store.Save(ctx, uid, data)
}

func TestSaveBackpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousWrites = 1
	cfg.WriteQueueSlack = 2
	gm := &gateMedium{Store: memory.New(), gate: make(chan struct{})}
	b, err := New(gm, cfg)
	require.NoError(t, err)

	// One job stuck in the worker plus a full queue: at most
	// writers + queue capacity = 4 jobs in flight before Save blocks.
	for i := 0; i < 4; i++ {
		_, err := b.Save([]byte("x"))
		require.NoError(t, err)
	}

	blocked := make(chan struct{})
	go func() {
		_, _ = b.Save([]byte("overflow"))
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("Save returned while the write queue was full")
	case <-time.After(200 * time.Millisecond):
	}

	close(gm.gate)
	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("Save never unblocked after the medium drained")
	}

	require.NoError(t, b.Close())
	assert.Equal(t, 5, gm.Store.Len())
}

// failMedium fails every Save and Load with a permanent error.
type failMedium struct {
	err error
}

func (f *failMedium) Name() string { return "fail" }

func (f *failMedium) Save(context.Context, string, []byte) error { return f.err }

func (f *failMedium) Load(context.Context, string, int) ([]byte, error) { return nil, f.err }

func (f *failMedium) Close() error { return nil }

func TestFatalErrorLatch(t *testing.T) {
	cause := stderrors.New("disk on fire")
	b, err := New(&failMedium{err: cause}, DefaultConfig())
	require.NoError(t, err)

	// The failed write latches, and the synchronous saver is released
	// with the original cause rather than deadlocking.
	_, err = b.Save([]byte("doomed"), WithSync())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, cause)

	// Every later call fails fast with the same latched error.
	_, err = b.Save([]byte("more"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	err = b.Read(&Block{ID: 1, UID: "0123456789AAAAAAAAAAAAAAAAAAAAAA"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	_, err = b.ReadGet(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	require.NoError(t, b.Close())
}

func TestFatalReadLatch(t *testing.T) {
	cause := stderrors.New("medium gone")
	b, err := New(&failMedium{err: cause}, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, b.Read(&Block{ID: 1, UID: "0123456789AAAAAAAAAAAAAAAAAAAAAA"}))

	require.Eventually(t, func() bool {
		return b.fatalError() != nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err = b.ReadGet(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	require.NoError(t, b.Close())
}

func TestSaveCallback(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	var mu sync.Mutex
	var called []string
	u, err := b.Save([]byte("notify me"), WithSync(), WithCallback(func(uid string) {
		mu.Lock()
		defer mu.Unlock()
		called = append(called, uid)
	}))
	require.NoError(t, err)

	require.NoError(t, b.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, called, 1)
	assert.Equal(t, u, called[0])
}

func TestClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousWrites = 4
	cfg.SimultaneousReads = 4
	b, store := newTestBackend(t, cfg)

	for i := 0; i < 10; i++ {
		_, err := b.Save([]byte(fmt.Sprintf("pending-%d", i)))
		require.NoError(t, err)
	}

	// Close drains pending writes before returning.
	require.NoError(t, b.Close())
	assert.Equal(t, 10, store.Len())

	assert.Equal(t,
		"readers[idle=4 reading=0 throttled=0 queued=0] writers[idle=4 writing=0 throttled=0 queued=0]",
		b.ThreadStatus())

	err := b.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackendClosed)

	_, err = b.Save([]byte("too late"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackendClosed)

	err = b.Read(&Block{ID: 1, UID: "0123456789AAAAAAAAAAAAAAAAAAAAAA"})
	require.Error(t, err)
}

func TestQueueStatus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousWrites = 1
	cfg.WriteQueueSlack = 4
	gm := &gateMedium{Store: memory.New(), gate: make(chan struct{})}
	b, err := New(gm, cfg)
	require.NoError(t, err)

	qs := b.QueueStatus()
	assert.Zero(t, qs.WQFilled)
	assert.Zero(t, qs.RQFilled)

	// One job occupies the worker, the rest sit in the queue.
	for i := 0; i < 4; i++ {
		_, err := b.Save([]byte("x"))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return b.QueueStatus().WQFilled >= 0.5
	}, time.Second, 10*time.Millisecond)

	close(gm.gate)
	require.NoError(t, b.Close())

	qs = b.QueueStatus()
	assert.Zero(t, qs.WQFilled)
}

func TestCapabilityDispatch(t *testing.T) {
	t.Run("memory supports everything", func(t *testing.T) {
		b, _ := newTestBackend(t, DefaultConfig())

		u, err := b.Save([]byte("abcdef"), WithSync())
		require.NoError(t, err)

		n, err := b.Update(u, []byte("XY"), 2)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := b.ReadRaw(u, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, "bXYe", string(got))

		uids, err := b.ListUIDs("")
		require.NoError(t, err)
		assert.Equal(t, []string{u}, uids)

		require.NoError(t, b.Remove(u))
		_, err = b.ReadSync(&Block{ID: 1, UID: u})
		assert.True(t, errors.IsNotFound(err))

		require.NoError(t, b.Close())
	})

	t.Run("null supports only save and load", func(t *testing.T) {
		b, err := New(null.New(), DefaultConfig())
		require.NoError(t, err)

		_, err = b.Update("u", nil, 0)
		assert.True(t, errors.IsUnsupported(err))
		_, err = b.ReadRaw("u", 0, 1)
		assert.True(t, errors.IsUnsupported(err))
		err = b.Remove("u")
		assert.True(t, errors.IsUnsupported(err))
		_, err = b.RemoveMany([]string{"u"})
		assert.True(t, errors.IsUnsupported(err))
		_, err = b.ListUIDs("")
		assert.True(t, errors.IsUnsupported(err))

		require.NoError(t, b.Close())
	})
}

func TestRemoveMany(t *testing.T) {
	b, _ := newTestBackend(t, DefaultConfig())

	var uids []string
	for i := 0; i < 5; i++ {
		u, err := b.Save([]byte(fmt.Sprintf("victim-%d", i)), WithSync())
		require.NoError(t, err)
		uids = append(uids, u)
	}

	failed, err := b.RemoveMany(append(uids[:3:3], "0123456789AAAAAAAAAAAAAAAAAAAAAA"))
	require.NoError(t, err)
	assert.Equal(t, []string{"0123456789AAAAAAAAAAAAAAAAAAAAAA"}, failed)

	remaining, err := b.ListUIDs("")
	require.NoError(t, err)
	assert.ElementsMatch(t, uids[3:], remaining)

	require.NoError(t, b.Close())
}

func TestWithMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	b, err := New(memory.New(), DefaultConfig(), WithMetrics(reg))
	require.NoError(t, err)

	u, err := b.Save([]byte("counted"), WithSync())
	require.NoError(t, err)
	_, err = b.ReadSync(&Block{ID: 1, UID: u})
	require.NoError(t, err)

	require.NoError(t, b.Close())

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	assert.True(t, found["blockstore_blocks_written_total"])
	assert.True(t, found["blockstore_blocks_read_total"])
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.SimultaneousWrites = -1
	_, err = New(memory.New(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
