// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import "github.com/rs/zerolog"

// readerState mirrors writerState: Reader is the symmetric collaborator
// to Writer. Its contract shape matches Writer's (Providing/Consuming,
// feed/get/commit/reclaim) but its internals are simpler: a Reader has
// no queue, because unlike a Writer's consumer (which can write fresh
// bytes into whichever backing store is convenient), a Reader's
// consumer reads real bytes that exist only in the buffer that was
// actually fed. Coalescing reads that straddle two transport buffers is
// therefore not the Reader's job: for content types that permit it, the
// record layer itself re-merges across records before handing Layer 3 a
// Reader. Layer 3 does not accumulate either: when a record is too short
// for a fixed header, it releases the record and returns ErrRetry (TLS)
// or ErrInvalidContent (DTLS); see incomingShortRead in layer3.go.
type readerState uint8

const (
	readerProviding readerState = iota
	readerConsuming
)

// Reader brokers a single incoming transport buffer between a provider
// (feed/reclaim) and a consumer (get/commit).
type Reader struct {
	state readerState

	buf    []byte
	bufLen int64

	end       int64
	committed int64

	bytesRead int64

	log zerolog.Logger
	seq uint64
}

// NewReader constructs a Reader in Providing state.
func NewReader(opts ...Option) *Reader {
	o := newOptions(opts...)
	return &Reader{state: readerProviding, log: o.Logger}
}

func (r *Reader) trace(event string) {
	r.seq++
	r.log.Debug().Uint64("seq", r.seq).Str("event", event).
		Int64("end", r.end).Int64("committed", r.committed).Msg("reader transition")
}

// Feed transitions the Reader from Providing to Consuming by handing it
// a buffer containing the next transport record's plaintext.
func (r *Reader) Feed(buf []byte) error {
	if r.state != readerProviding {
		return ErrOperationUnexpected
	}
	if buf == nil {
		return ErrInvalidArgument
	}
	r.buf = buf
	r.bufLen = int64(len(buf))
	r.end = 0
	r.committed = 0
	r.state = readerConsuming
	r.trace("feed")
	return nil
}

// Get serves a contiguous slice of the fed buffer starting at the
// current fetch offset. When exact is true, the call fails
// ErrOutOfData rather than serving fewer than desired bytes; when
// false, it serves whatever remains (possibly zero bytes) and never
// fails with ErrOutOfData.
func (r *Reader) Get(desired int64, exact bool) (buf []byte, err error) {
	if r.state != readerConsuming {
		return nil, ErrOperationUnexpected
	}
	if desired < 0 {
		return nil, ErrInvalidArgument
	}
	avail := r.bufLen - r.end
	if avail >= desired {
		buf = r.buf[r.end : r.end+desired]
		r.end += desired
		return buf, nil
	}
	if exact {
		return nil, ErrOutOfData
	}
	buf = r.buf[r.end:r.bufLen]
	r.end = r.bufLen
	return buf, nil
}

// Commit ratifies all bytes served so far.
func (r *Reader) Commit() error { return r.CommitPartial(0) }

// CommitPartial ratifies all but the last omit bytes served since the
// last commit.
func (r *Reader) CommitPartial(omit int64) error {
	if r.state != readerConsuming {
		return ErrOperationUnexpected
	}
	if omit < 0 || omit > r.end-r.committed {
		return ErrInvalidArgument
	}
	r.committed = r.end - omit
	r.trace("commit")
	return nil
}

// Reclaim transitions the Reader back to Providing, reporting how many
// bytes were committed (consumed := committed). If committed < bufLen
// and force is false, Reclaim fails ErrDataLeft and the Reader stays
// Consuming: bytes remain that the consumer fetched (or never fetched)
// but did not ratify, and the provider must not yet reclaim the buffer.
func (r *Reader) Reclaim(force bool) (consumed int64, err error) {
	if r.state != readerConsuming {
		return 0, ErrOperationUnexpected
	}
	if r.committed < r.bufLen && !force {
		return 0, ErrDataLeft
	}
	consumed = r.committed
	r.bytesRead += consumed
	r.buf = nil
	r.bufLen = 0
	r.end = 0
	r.committed = 0
	r.state = readerProviding
	r.trace("reclaim")
	return consumed, nil
}

// BytesRead returns the cumulative number of bytes committed across all
// completed Reclaim cycles. Valid only in Providing state.
func (r *Reader) BytesRead() (int64, error) {
	if r.state != readerProviding {
		return 0, ErrOperationUnexpected
	}
	return r.bytesRead, nil
}

// Remaining reports how many unfetched bytes remain in the current
// buffer (Consuming state only).
func (r *Reader) Remaining() (int64, error) {
	if r.state != readerConsuming {
		return 0, ErrOperationUnexpected
	}
	return r.bufLen - r.end, nil
}

// IsConsuming reports whether the Reader currently holds a transport buffer.
func (r *Reader) IsConsuming() bool { return r.state == readerConsuming }
