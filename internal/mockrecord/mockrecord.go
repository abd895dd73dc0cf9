// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mockrecord provides a scripted mps.RecordLayer test double: a
// queue of pre-built steps (here, whole records) stands in for a real
// transport, and writes land in an inspectable buffer rather than on
// the wire.
package mockrecord

import (
	"errors"

	"code.hybscloud.com/mps"
)

// ErrExhausted is returned by ReadStart once every scripted incoming
// record has been consumed.
var ErrExhausted = errors.New("mockrecord: no more scripted records")

// Record is one (D)TLS record's plaintext content, as Layer 2 would
// hand it to Layer 3 (incoming) or receive it back (outgoing).
type Record struct {
	CT      mps.ContentType
	Epoch   uint64
	Payload []byte
}

// Layer is an in-memory mps.RecordLayer: Queue primes the incoming
// side with scripted records; Emitted retrieves whatever the outgoing
// side dispatched. RecordSize bounds the synthetic transport buffer
// handed to each WriteStart, so tests can exercise record splitting
// across multiple WriteStart/Dispatch cycles.
type Layer struct {
	RecordSize int

	incoming []Record
	inIdx    int
	curReader *mps.Reader

	emitted []Record

	curWriter *mps.Writer
	curCT     mps.ContentType
	curEpoch  uint64
	curBuf    []byte

	flushCount int
}

// New constructs a Layer whose outgoing records are capped at recordSize bytes.
func New(recordSize int) *Layer {
	if recordSize <= 0 {
		recordSize = 4096
	}
	return &Layer{RecordSize: recordSize}
}

// Queue appends records to the incoming script.
func (l *Layer) Queue(records ...Record) {
	l.incoming = append(l.incoming, records...)
}

// Emitted returns every record dispatched through WriteDone so far.
func (l *Layer) Emitted() []Record { return l.emitted }

// FlushCount reports how many times WriteFlush was called.
func (l *Layer) FlushCount() int { return l.flushCount }

// ReadStart implements mps.RecordReader.
func (l *Layer) ReadStart() (mps.ContentType, uint64, *mps.Reader, error) {
	if l.inIdx >= len(l.incoming) {
		return 0, 0, nil, ErrExhausted
	}
	rec := l.incoming[l.inIdx]
	r := mps.NewReader()
	if err := r.Feed(rec.Payload); err != nil {
		return 0, 0, nil, err
	}
	l.curReader = r
	return rec.CT, rec.Epoch, r, nil
}

// ReadDone implements mps.RecordReader. The Reader is reclaimed here
// only if it is still consuming: Layer 3's Consume and
// PauseHandshakeIncoming reclaim it themselves before calling ReadDone.
func (l *Layer) ReadDone() error {
	if l.curReader == nil {
		return mps.ErrOperationUnexpected
	}
	if l.curReader.IsConsuming() {
		if _, err := l.curReader.Reclaim(true); err != nil {
			return err
		}
	}
	l.curReader = nil
	l.inIdx++
	return nil
}

// WriteStart implements mps.RecordWriter.
func (l *Layer) WriteStart(ct mps.ContentType, epoch uint64) (*mps.Writer, error) {
	buf := make([]byte, l.RecordSize)
	w := mps.NewWriter(nil)
	if err := w.Feed(buf); err != nil {
		return nil, err
	}
	l.curWriter = w
	l.curCT = ct
	l.curEpoch = epoch
	l.curBuf = buf
	return w, nil
}

// WriteDone implements mps.RecordWriter. The committed prefix of the
// current buffer becomes one emitted record; any spilled bytes would
// indicate the caller over-filled a single record, which Layer 3 never
// does (it always sizes handshake fragments to what GetExt served).
func (l *Layer) WriteDone() error {
	if l.curWriter == nil {
		return mps.ErrOperationUnexpected
	}
	written, _, err := l.curWriter.Reclaim(true)
	if err != nil {
		return err
	}
	l.emitted = append(l.emitted, Record{
		CT:      l.curCT,
		Epoch:   l.curEpoch,
		Payload: append([]byte(nil), l.curBuf[:written]...),
	})
	l.curWriter = nil
	l.curBuf = nil
	return nil
}

// WriteFlush implements mps.RecordWriter as a no-op counter; this mock
// never holds a pending record across WriteDone calls.
func (l *Layer) WriteFlush() error {
	l.flushCount++
	return nil
}
