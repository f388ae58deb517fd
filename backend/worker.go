package backend

import (
	"time"

	"github.com/c360/blockstore/errors"
)

// writer is one write worker. It drains the write queue until the queue is
// closed or a fatal error latches. Jobs taken after the latch are drained
// without touching the medium so synchronous savers unblock.
func (b *Backend) writer(n int) {
	defer b.writerWG.Done()
	status := &b.writerStatus[n]
	defer status.Store(int32(StatusIdle))

	for job := range b.writeQueue {
		if b.fatalError() != nil {
			finishJob(job)
			continue
		}

		if wait := b.writeThrottle.Consume(int64(len(job.data))); wait > 0 {
			status.Store(int32(StatusThrottled))
			if b.metrics != nil {
				b.metrics.throttleWait.WithLabelValues("write").Observe(wait.Seconds())
			}
			time.Sleep(wait)
		}

		status.Store(int32(StatusWriting))
		start := time.Now()
		err := b.medium.Save(b.ctx, job.uid, job.data)
		status.Store(int32(StatusIdle))

		if err != nil {
			b.setFatal(errors.WrapFatal(err, "Backend", "writer", "save "+job.uid))
			finishJob(job)
			continue
		}

		if b.metrics != nil {
			b.metrics.blocksWritten.Inc()
			b.metrics.bytesWritten.Add(float64(len(job.data)))
		}
		b.logger.Debug("block saved",
			"uid", job.uid,
			"size", len(job.data),
			"worker", n,
			"duration", time.Since(start))

		if job.callback != nil {
			job.callback(job.uid)
		}
		finishJob(job)
	}
}

// finishJob releases a synchronous saver whether or not the write reached
// the medium. Savers re-check the fatal latch after waking.
func finishJob(job *writeJob) {
	if job.done != nil {
		close(job.done)
	}
}

// reader is one read worker. It drains the read-request queue until the
// queue is closed. Absent blobs are not errors: the result carries nil Data
// and the consumer decides.
func (b *Backend) reader(n int) {
	defer b.readerWG.Done()
	status := &b.readerStatus[n]
	defer status.Store(int32(StatusIdle))

	for {
		block, ok := b.readQueue.Pop()
		if !ok {
			return
		}
		if b.fatalError() != nil {
			continue
		}

		status.Store(int32(StatusReading))
		start := time.Now()
		data, err := b.medium.Load(b.ctx, block.UID, block.Size)
		if err != nil {
			if !errors.IsNotFound(err) {
				b.setFatal(errors.WrapFatal(err, "Backend", "reader", "load "+block.UID))
				status.Store(int32(StatusIdle))
				continue
			}
			data = nil
			if b.metrics != nil {
				b.metrics.blocksNotFound.Inc()
			}
		}

		// Throttle after the load so the bucket charges actual bytes.
		if wait := b.readThrottle.Consume(int64(len(data))); wait > 0 {
			status.Store(int32(StatusThrottled))
			if b.metrics != nil {
				b.metrics.throttleWait.WithLabelValues("read").Observe(wait.Seconds())
			}
			time.Sleep(wait)
		}
		status.Store(int32(StatusIdle))

		if data != nil {
			if b.metrics != nil {
				b.metrics.blocksRead.Inc()
				b.metrics.bytesRead.Add(float64(len(data)))
			}
			b.logger.Debug("block read",
				"uid", block.UID,
				"size", len(data),
				"worker", n,
				"duration", time.Since(start))
		}

		b.resultQueue <- &ReadResult{
			Block:  block,
			Offset: 0,
			Length: len(data),
			Data:   data,
		}
	}
}
