// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mps implements the core of a message-processing stack used by
// a (D)TLS endpoint to mediate between a record layer below and a
// handshake/application layer above.
//
// Semantics and design:
//   - Brokerage, not buffering: Writer/Reader broker a single
//     caller-supplied transport buffer at a time between a provider
//     (the record layer) and a consumer (the handshake/app layer),
//     splitting large messages across buffers and coalescing small ones
//     via an internal queue, entirely without I/O.
//   - Single-threaded and synchronous: no operation blocks or suspends
//     internally; concurrency is surfaced purely through retry signals
//     (ErrNeedMore, ErrOutOfData, ErrDataLeft, ErrRetry).
//   - Hot paths avoid allocations: Get returns a sub-slice of a
//     caller-supplied or externally-owned buffer, never a copy, except
//     where commit-time materialization across the out/queue boundary
//     is unavoidable (see Writer.CommitPartial).
package mps

import "github.com/rs/zerolog"

// writerState is the Writer's two-state lifecycle.
type writerState uint8

const (
	writerProviding writerState = iota
	writerConsuming
)

// Writer brokers a single outgoing transport buffer plus an optional
// queue between a provider (feed/reclaim) and a consumer (get/commit).
//
// Zero value is not usable; construct with NewWriter.
type Writer struct {
	state writerState

	out    []byte
	outLen int64

	queue    []byte
	queueLen int64

	end            int64
	committed      int64
	queueNext      int64
	queueRemaining int64

	bytesWritten int64 // cumulative; valid to query via BytesWritten in Providing state

	log     zerolog.Logger
	seq     uint64
	metrics *Metrics
}

// NewWriter constructs a Writer in Providing state. queue, if non-nil,
// is an externally-owned buffer the Writer holds for its entire life;
// no other party may write to it while the Writer is alive.
func NewWriter(queue []byte, opts ...Option) *Writer {
	o := newOptions(opts...)
	if queue == nil && o.QueueCapacity > 0 {
		queue = make([]byte, o.QueueCapacity)
	}
	return &Writer{
		state:    writerProviding,
		queue:    queue,
		queueLen: int64(len(queue)),
		log:      o.Logger,
		metrics:  o.Metrics,
	}
}

func (w *Writer) trace(event string) {
	w.seq++
	w.log.Debug().Uint64("seq", w.seq).Str("event", event).
		Int64("end", w.end).Int64("committed", w.committed).Msg("writer transition")
}

// Feed transitions the Writer from Providing to Consuming by handing it
// a fixed-size transport buffer. If the queue holds bytes pending from
// a previous cycle, they are drained into buf first.
//
// Three outcomes:
//   - The queue is still non-empty after the drain: ErrNeedMore. The
//     Writer stays Providing; buf has been entirely filled from queued
//     data and must be dispatched by the caller before a fresh Feed.
//   - The queue became empty, or was empty, or exactly drained filling
//     buf: success. The Writer enters Consuming with
//     committed = end = bytes copied from the queue. A buffer that
//     exactly equals the pending queue region succeeds rather than
//     returning ErrNeedMore, leaving a zero-byte usable region
//     available for an immediate Reclaim.
func (w *Writer) Feed(buf []byte) error {
	if w.state != writerProviding {
		return ErrOperationUnexpected
	}
	if buf == nil {
		return ErrInvalidArgument
	}

	copied := int64(0)
	if w.queueRemaining > 0 {
		n := int64(len(buf))
		if n > w.queueRemaining {
			n = w.queueRemaining
		}
		copy(buf[:n], w.queue[w.queueNext:w.queueNext+n])
		w.queueRemaining -= n
		w.queueNext += n
		copied = n

		if w.queueRemaining > 0 {
			w.trace("feed_need_more")
			return ErrNeedMore
		}
	}

	w.out = buf
	w.outLen = int64(len(buf))
	w.end = copied
	w.committed = copied
	w.queueNext = 0
	w.state = writerConsuming
	w.trace("feed_ok")
	return nil
}

// Get serves a contiguous slice of the virtual region out‖queue
// starting at the current fetch offset. When exact is true, the
// caller demands precisely desired bytes, failing ErrOutOfData rather
// than serving less. When exact is false, a short serve is acceptable
// and never fails with ErrOutOfData while any byte remains available.
func (w *Writer) Get(desired int64, exact bool) (buf []byte, err error) {
	if w.state != writerConsuming {
		return nil, ErrOperationUnexpected
	}
	if desired < 0 {
		return nil, ErrInvalidArgument
	}

	if w.end < w.outLen {
		avail := w.outLen - w.end
		if avail >= desired {
			buf = w.out[w.end : w.end+desired]
			w.end += desired
			return buf, nil
		}
		// avail < desired: out alone cannot satisfy it.
		if w.queue != nil && w.queueLen > avail {
			w.queueNext = avail
			served := desired
			if exact {
				if desired > w.queueLen {
					return nil, ErrOutOfData
				}
			} else if served > w.queueLen {
				served = w.queueLen
			}
			buf = w.queue[:served]
			w.end += served
			return buf, nil
		}
		if exact {
			return nil, ErrOutOfData
		}
		buf = w.out[w.end:w.outLen]
		w.end = w.outLen
		return buf, nil
	}

	// Already serving from the queue.
	offset := w.queueNext + (w.end - w.outLen)
	avail := w.queueLen - offset
	if exact {
		if desired > avail {
			return nil, ErrOutOfData
		}
		buf = w.queue[offset : offset+desired]
		w.end += desired
		return buf, nil
	}
	served := desired
	if served > avail {
		served = avail
	}
	buf = w.queue[offset : offset+served]
	w.end += served
	return buf, nil
}

// Commit ratifies all bytes served so far (omit = 0). See CommitPartial.
func (w *Writer) Commit() error { return w.CommitPartial(0) }

// CommitPartial ratifies all but the last omit bytes served since the
// last commit. Requires omit <= end-committed. Invalidates all
// previously handed-out buffers from Get: once bytes straddling the
// out/queue boundary are committed, the queue's overlapping prefix is
// materialized into out's tail so that a later provider reading out
// sees the committed bytes contiguously.
func (w *Writer) CommitPartial(omit int64) error {
	if w.state != writerConsuming {
		return ErrOperationUnexpected
	}
	if omit < 0 || omit > w.end-w.committed {
		return ErrInvalidArgument
	}

	newCommitted := w.end - omit

	if w.end > w.outLen && w.committed < w.outLen {
		threshold := w.outLen - w.queueNext
		if newCommitted > threshold {
			copyLen := w.queueNext
			if alt := newCommitted - threshold; alt < copyLen {
				copyLen = alt
			}
			if copyLen > 0 {
				dst := w.out[threshold : threshold+copyLen]
				copy(dst, w.queue[:copyLen])
			}
		}
	}

	w.committed = newCommitted
	w.trace("commit")
	return nil
}

// Reclaim transitions the Writer from Consuming back to Providing,
// reporting how many bytes landed in the fed buffer (written) and how
// many spilled into the queue awaiting a future buffer (queued).
//
// If committed < out_len and force is false, Reclaim fails ErrDataLeft
// and the Writer stays Consuming. Passing force=true accepts the
// shortfall (the provider will dispatch a partially-filled buffer).
func (w *Writer) Reclaim(force bool) (written, queued int64, err error) {
	if w.state != writerConsuming {
		return 0, 0, ErrOperationUnexpected
	}

	if w.committed <= w.outLen {
		written = w.committed
		queued = 0
		if w.committed < w.outLen && !force {
			w.metrics.observeReclaim("data_left")
			return 0, 0, ErrDataLeft
		}
		w.queueNext = 0
	} else {
		written = w.outLen
		queued = w.committed - w.outLen
		w.queueRemaining = queued
	}

	w.bytesWritten += written
	w.out = nil
	w.outLen = 0
	w.end = 0
	w.committed = 0
	w.state = writerProviding
	w.trace("reclaim")
	if queued > 0 {
		w.metrics.observeReclaim("spilled")
	} else {
		w.metrics.observeReclaim("clean")
	}
	return written, queued, nil
}

// BytesWritten returns the cumulative number of bytes landed into fed
// buffers across all completed Reclaim cycles. Valid only in Providing
// state, immediately after a Reclaim.
func (w *Writer) BytesWritten() (int64, error) {
	if w.state != writerProviding {
		return 0, ErrOperationUnexpected
	}
	return w.bytesWritten, nil
}

// CheckFullyCommitted reports whether every byte served by Get since
// the last Feed has also been committed (end == committed). It is a
// debug assertion helper for internal consistency checks; it must
// never be used to drive production control flow.
func (w *Writer) CheckFullyCommitted() bool {
	return w.end == w.committed
}

// IsConsuming reports whether the Writer currently holds a transport
// buffer (Consuming state).
func (w *Writer) IsConsuming() bool { return w.state == writerConsuming }
