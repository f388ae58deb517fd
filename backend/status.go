package backend

import "fmt"

// Status is the observable state of one worker. Each worker owns its status
// cell exclusively; everyone else only reads it. Values are observability
// only and never drive control decisions.
type Status int32

const (
	// StatusIdle means the worker is waiting for work
	StatusIdle Status = iota
	// StatusReading means the worker is inside the medium's read primitive
	StatusReading
	// StatusWriting means the worker is inside the medium's write primitive
	StatusWriting
	// StatusThrottled means the worker is sleeping off a bandwidth budget
	StatusThrottled
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusReading:
		return "reading"
	case StatusWriting:
		return "writing"
	case StatusThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// QueueStatus reports queue occupancy as fill ratios in [0,1]. The
// unbounded read-request queue has no capacity to report against; its
// length shows up in ThreadStatus instead.
type QueueStatus struct {
	// RQFilled is the read-result queue occupancy ratio.
	RQFilled float64 `json:"rq_filled"`
	// WQFilled is the write queue occupancy ratio.
	WQFilled float64 `json:"wq_filled"`
}

// QueueStatus returns current fill ratios for the bounded queues. The
// snapshot is lock-free and may be stale by one transition.
func (b *Backend) QueueStatus() QueueStatus {
	return QueueStatus{
		RQFilled: float64(len(b.resultQueue)) / float64(cap(b.resultQueue)),
		WQFilled: float64(len(b.writeQueue)) / float64(cap(b.writeQueue)),
	}
}

// ThreadStatus returns a one-line human-readable summary of worker states
// and queue lengths for operational tooling. Counts across the two pools are
// sampled independently; there is no consistency guarantee between them.
func (b *Backend) ThreadStatus() string {
	var rIdle, rReading, rThrottled int
	for i := range b.readerStatus {
		switch Status(b.readerStatus[i].Load()) {
		case StatusReading:
			rReading++
		case StatusThrottled:
			rThrottled++
		default:
			rIdle++
		}
	}

	var wIdle, wWriting, wThrottled int
	for i := range b.writerStatus {
		switch Status(b.writerStatus[i].Load()) {
		case StatusWriting:
			wWriting++
		case StatusThrottled:
			wThrottled++
		default:
			wIdle++
		}
	}

	return fmt.Sprintf(
		"readers[idle=%d reading=%d throttled=%d queued=%d] writers[idle=%d writing=%d throttled=%d queued=%d]",
		rIdle, rReading, rThrottled, b.readQueue.Len(),
		wIdle, wWriting, wThrottled, len(b.writeQueue),
	)
}
