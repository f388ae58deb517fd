// Package blockstore provides the storage-backend core of a content-addressed,
// deduplicating block backup system.
//
// Opaque binary blocks are persisted under generated unique identifiers and are
// never overwritten. Every physical storage medium (filesystem, object store,
// null sink) plugs into one shared asynchronous pipeline:
//
//	caller ──Save──▶ write queue ──▶ writer pool ──▶ medium
//	caller ──Read──▶ read queue  ──▶ reader pool ──▶ medium
//	                                      │
//	caller ◀─ReadGet── result queue ◀─────┘
//
// # Architecture
//
// The backend package implements the pipeline itself: bounded write queue with
// blocking backpressure, unbounded read-request queue, fixed-size reader and
// writer worker pools, token-bucket bandwidth throttling, a write-once fatal
// error latch, queue and worker introspection, and deterministic shutdown.
//
// Storage media implement the small capability interfaces in the medium
// package. The required surface is Save/Load/Close; optional capabilities
// (Updatable, RandomAccessReadable, Deletable, Listable) are separate
// interfaces a medium implements when its storage system supports them.
// Callers of optional operations get an unsupported error otherwise.
//
// Concrete media ship in subpackages:
//
//   - medium/file: one file per uid under a fan-out directory tree
//   - medium/objectstore: NATS JetStream ObjectStore bucket
//   - medium/memory: map-backed store for tests and examples
//   - medium/null: discards writes, synthesizes reads; benchmarking only
//
// # Identifiers
//
// The uid package generates 32-character content addresses: a 22-character
// base-57 random token prefixed by the first 10 hex characters of the token's
// own MD5. The prefix spreads keys across prefix-ordered media; uniqueness
// comes from the token's ~128 bits of entropy.
//
// # Usage
//
//	m := memory.New()
//	b, err := backend.New(m, backend.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	uid, err := b.Save(data)                    // async, backpressured
//	uid, err = b.Save(data, backend.WithSync()) // wait until drained
//
//	blk := &backend.Block{ID: 1, UID: uid, Size: len(data)}
//	got, err := b.ReadSync(blk)                 // enqueue + wait + verify
//
// Asynchronous reads enqueue with Read and collect completions in FIFO
// completion order with ReadGet. Do not mix synchronous and asynchronous
// reads on one backend instance; mixing is detected and fails with a
// protocol-violation error.
//
// # Observability
//
// Backends log worker lifecycle at debug level through log/slog and can
// register Prometheus metrics (queue depth, byte and block counters,
// throttle wait) with a metric.Registry. QueueStatus and ThreadStatus expose
// lock-free snapshots for operational tooling.
package blockstore
