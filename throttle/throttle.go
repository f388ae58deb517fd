// Package throttle provides a token-bucket byte throttle for backend worker
// pools. Workers call Consume before or after an I/O and sleep the returned
// duration themselves; the bucket only does the accounting.
package throttle

import (
	"sync"
	"time"
)

// TokenBucket limits throughput to a configured rate in bytes per second.
// The bucket refills continuously at the configured rate up to a burst
// ceiling of one second's worth of bytes. Consumption may drive the balance
// negative; Consume then returns how long the caller must sleep for the
// balance to recover, so cumulative consumption never exceeds the rate.
//
// The zero value is an unlimited bucket. All methods are safe for concurrent
// use; accounting is serialized so concurrent workers never double-count
// capacity.
type TokenBucket struct {
	mu     sync.Mutex
	rate   int64 // bytes per second, 0 = unlimited
	tokens float64
	last   time.Time
}

// New returns a bucket limited to rate bytes per second. Rate 0 disables
// throttling.
func New(rate int64) *TokenBucket {
	tb := &TokenBucket{}
	tb.SetRate(rate)
	return tb
}

// SetRate changes the rate in bytes per second and resets the bucket to a
// full balance. Rate 0 disables throttling.
func (tb *TokenBucket) SetRate(rate int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.rate = rate
	tb.tokens = float64(rate)
	tb.last = time.Now()
}

// Rate returns the configured rate in bytes per second.
func (tb *TokenBucket) Rate() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

// Consume withdraws n bytes from the bucket and returns how long the caller
// must sleep before performing the I/O. The result is 0 when the bucket is
// unlimited or holds enough balance.
func (tb *TokenBucket) Consume(n int64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.rate == 0 {
		return 0
	}

	now := time.Now()
	elapsed := now.Sub(tb.last).Seconds()
	tb.last = now

	tb.tokens += elapsed * float64(tb.rate)
	if tb.tokens > float64(tb.rate) {
		tb.tokens = float64(tb.rate) // burst ceiling: one second of bytes
	}

	tb.tokens -= float64(n)
	if tb.tokens >= 0 {
		return 0
	}

	return time.Duration(-tb.tokens / float64(tb.rate) * float64(time.Second))
}
