// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import (
	"errors"

	"code.hybscloud.com/iox"
)

// Sentinel errors, partitioned into three kinds: expected flow-control
// signals, programming errors, and protocol/integrity errors. The partition determines what a caller may
// assume about object state after the error: flow-control and
// programming errors leave the object usable; protocol errors do not.
var (
	// ErrNeedMore reports that a Writer's queue has absorbed the entire
	// fed buffer and the caller must dispatch it before feeding another.
	// Aliases iox.ErrMore: this completion is usable and more will follow.
	ErrNeedMore = iox.ErrMore

	// ErrOutOfData reports that a Get could not be satisfied at the
	// requested exact size from the bytes currently available.
	ErrOutOfData = errors.New("mps: out of data")

	// ErrDataLeft reports that Reclaim was called without force while
	// the buffer is not fully committed (committed is less than the
	// buffer length).
	ErrDataLeft = errors.New("mps: data left uncommitted")

	// ErrRetry reports that the caller should retry the same write
	// operation later; any in-flight state (e.g. a flush-pending flag)
	// is preserved. Aliases iox.ErrWouldBlock: no further progress
	// without waiting.
	ErrRetry = iox.ErrWouldBlock

	// ErrOperationUnexpected reports a call made while the state machine
	// is not in a state that permits it.
	ErrOperationUnexpected = errors.New("mps: operation not valid in current state")

	// ErrInvalidArgument reports a malformed or out-of-range argument.
	ErrInvalidArgument = errors.New("mps: invalid argument")

	// ErrTooManyGroups reports a group_open beyond the configured depth K.
	ErrTooManyGroups = errors.New("mps: too many nested groups")

	// ErrBoundsViolation reports a get_ext/group_open/group_close request
	// that would exceed the enclosing group's declared length.
	ErrBoundsViolation = errors.New("mps: group bounds violation")

	// ErrNoInterleaving reports an attempt to start a non-handshake
	// outgoing message while a handshake message is paused.
	ErrNoInterleaving = errors.New("mps: cannot interleave with a paused handshake message")

	// ErrUnfinishedHandshakeMessage reports a dispatch/consume attempted
	// before the extended writer/reader reports check_done.
	ErrUnfinishedHandshakeMessage = errors.New("mps: handshake message not fully written or read")

	// ErrInvalidContent reports malformed peer data: a bad alert level,
	// a change-cipher-spec payload other than 0x01, a DTLS fragment
	// header whose offset+length overflows the declared total length, or
	// an unrecognized/unsupported content type (e.g. ACK).
	ErrInvalidContent = errors.New("mps: invalid content")

	// ErrInternal reports an internal invariant violation. Object state
	// afterwards is unspecified.
	ErrInternal = errors.New("mps: internal error")
)

// IsFlowControl reports whether err is an expected, non-fatal
// control-flow signal after which the object remains well-defined and
// usable exactly as documented per operation.
func IsFlowControl(err error) bool {
	switch {
	case errors.Is(err, ErrNeedMore), errors.Is(err, ErrOutOfData),
		errors.Is(err, ErrDataLeft), errors.Is(err, ErrRetry):
		return true
	default:
		return false
	}
}

// IsProgrammingError reports whether err reflects caller misuse of the
// state machine. The object is unchanged and remains usable.
func IsProgrammingError(err error) bool {
	switch {
	case errors.Is(err, ErrOperationUnexpected), errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrTooManyGroups), errors.Is(err, ErrNoInterleaving),
		errors.Is(err, ErrBoundsViolation):
		return true
	default:
		return false
	}
}

// IsProtocolError reports whether err reflects malformed peer data or an
// internal invariant violation. Object state afterward is unspecified;
// the object must not be used again.
func IsProtocolError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidContent), errors.Is(err, ErrUnfinishedHandshakeMessage),
		errors.Is(err, ErrInternal):
		return true
	default:
		return false
	}
}

// invariant panics with msg if cond is false. It guards assertion-level
// conditions (spec assertions) that correct use of the public API never
// violates; misuse such as aborting a handshake message after committing
// bytes does reach it. Production error paths must never rely on
// invariant firing.
func invariant(cond bool, msg string) {
	if !cond {
		panic("mps: invariant violated: " + msg)
	}
}
