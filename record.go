// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

// RecordReader is the record layer collaborator consumed by Layer 3's
// incoming side. Implementations hand Layer 3 a borrowed Reader over
// the next record's plaintext; the record layer must not mutate or
// reclaim that buffer until ReadDone releases it.
type RecordReader interface {
	// ReadStart hands back the content type, epoch, and a Reader bound
	// to the next record's plaintext. Implementations may re-merge
	// bytes across records for content types that permit it (handshake
	// and alert, in TLS).
	ReadStart() (ct ContentType, epoch uint64, r *Reader, err error)

	// ReadDone returns the borrowed Reader.
	ReadDone() error
}

// RecordWriter is the Layer 2 collaborator consumed by Layer 3's
// outgoing side.
type RecordWriter interface {
	// WriteStart hands back a Writer bound to the next record's
	// plaintext for the given content type and epoch.
	WriteStart(ct ContentType, epoch uint64) (w *Writer, err error)

	// WriteDone returns the borrowed Writer; Layer 2 will then encrypt
	// and emit the record.
	WriteDone() error

	// WriteFlush force-emits any pending record.
	WriteFlush() error
}

// RecordLayer groups the read and write collaborators Layer 3 requires.
type RecordLayer interface {
	RecordReader
	RecordWriter
}
