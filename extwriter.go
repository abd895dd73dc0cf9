// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

// SizeUnknown is the reserved sentinel meaning "total length is not yet
// known". Prefer the known/unknown distinction made explicit by this
// constant over a magic max-value check scattered through call sites.
const SizeUnknown int64 = -1

// Passthrough selects how ExtWriter forwards commits to the wrapped Writer.
type Passthrough uint8

const (
	// PassThrough forwards every commit to the underlying Writer immediately.
	PassThrough Passthrough = iota
	// Hold accumulates commits without forwarding; a final CommitPartial
	// with omit > 0 is permitted once, after which the writer enters Block.
	Hold
	// Block rejects all further Get/Commit calls.
	Block
)

// ExtWriter wraps a Writer with bounded, nestable length-scoped groups
// and an enforced total-message length.
type ExtWriter struct {
	grpEnd  [maxGroupDepth + 1]int64
	curGrp  int
	ofsFetch int64
	ofsCommit int64

	w    *Writer
	mode Passthrough

	depth int
}

// NewExtWriter constructs an unbound ExtWriter. Call InitExt then Attach
// before use.
func NewExtWriter(opts ...Option) *ExtWriter {
	o := newOptions(opts...)
	depth := o.GroupDepth
	if depth <= 0 || depth > maxGroupDepth {
		depth = maxGroupDepth
	}
	return &ExtWriter{depth: depth}
}

// InitExt declares the total size of group 0, the whole logical message.
// Pass SizeUnknown when the length is not yet known; it must be resolved
// (via Detach + a later InitExt, or by the caller computing it) before
// CheckDone can succeed on an unknown-length message.
func (e *ExtWriter) InitExt(size int64) error {
	if size < 0 && size != SizeUnknown {
		return ErrInvalidArgument
	}
	e.grpEnd[0] = size
	e.curGrp = 0
	e.ofsFetch = 0
	e.ofsCommit = 0
	return nil
}

// Attach binds a raw Writer with the given passthrough mode.
func (e *ExtWriter) Attach(w *Writer, mode Passthrough) error {
	if w == nil {
		return ErrInvalidArgument
	}
	if mode == Block {
		return ErrInvalidArgument
	}
	e.w = w
	e.mode = mode
	return nil
}

func (e *ExtWriter) declaredEnd() int64 { return e.grpEnd[e.curGrp] }

// GetExt delegates to the underlying Writer.Get after checking that
// ofs_fetch+desired does not exceed the current group's bound.
func (e *ExtWriter) GetExt(desired int64, exact bool) ([]byte, error) {
	if e.mode == Block {
		return nil, ErrOperationUnexpected
	}
	if e.w == nil {
		return nil, ErrOperationUnexpected
	}
	if bound := e.declaredEnd(); bound != SizeUnknown && e.ofsFetch+desired > bound {
		return nil, ErrBoundsViolation
	}
	buf, err := e.w.Get(desired, exact)
	if err != nil {
		return nil, err
	}
	e.ofsFetch += int64(len(buf))
	return buf, nil
}

// CommitExt ratifies all bytes fetched so far (omit = 0).
func (e *ExtWriter) CommitExt() error { return e.CommitPartialExt(0) }

// CommitPartialExt ratifies all but the last omit bytes fetched since
// the last commit. In PassThrough mode this forwards to the underlying
// Writer's CommitPartial and re-synchronizes ofs_fetch to ofs_commit so
// later Gets are not double-counted. In Hold mode, any omit > 0
// transitions the ExtWriter to Block (only a single partial commit with
// a nonzero omit is permitted while holding).
func (e *ExtWriter) CommitPartialExt(omit int64) error {
	if e.mode == Block {
		return ErrOperationUnexpected
	}
	if omit < 0 || omit > e.ofsFetch-e.ofsCommit {
		return ErrInvalidArgument
	}
	e.ofsCommit = e.ofsFetch - omit

	switch e.mode {
	case PassThrough:
		if err := e.w.CommitPartial(omit); err != nil {
			return err
		}
		e.ofsFetch = e.ofsCommit
	case Hold:
		if omit > 0 {
			e.mode = Block
		}
	}
	return nil
}

// GroupOpen pushes a new bounded region of size bytes inside the
// current group, requiring depth < K and size within the parent's
// remaining bound.
func (e *ExtWriter) GroupOpen(size int64) error {
	if e.curGrp+1 >= e.depth {
		return ErrTooManyGroups
	}
	if size < 0 {
		return ErrInvalidArgument
	}
	bound := e.declaredEnd()
	if bound != SizeUnknown && size > bound-e.ofsFetch {
		return ErrBoundsViolation
	}
	newEnd := e.ofsFetch + size
	if bound == SizeUnknown {
		newEnd = SizeUnknown
	}
	e.curGrp++
	e.grpEnd[e.curGrp] = newEnd
	return nil
}

// GroupClose pops the current group, requiring ofs_fetch to equal its
// declared end exactly.
func (e *ExtWriter) GroupClose() error {
	if e.curGrp == 0 {
		return ErrOperationUnexpected
	}
	if bound := e.declaredEnd(); bound != SizeUnknown && e.ofsFetch != bound {
		return ErrBoundsViolation
	}
	e.curGrp--
	return nil
}

// Detach reports ofs_commit and the outstanding uncommitted length
// (ofs_fetch - ofs_commit), resets ofs_fetch to ofs_commit, and clears
// the underlying Writer reference.
func (e *ExtWriter) Detach() (committed, uncommitted int64) {
	committed = e.ofsCommit
	uncommitted = e.ofsFetch - e.ofsCommit
	e.ofsFetch = e.ofsCommit
	e.w = nil
	return committed, uncommitted
}

// CheckDone succeeds iff all groups are closed and the declared total
// is either SizeUnknown or equal to ofs_commit.
func (e *ExtWriter) CheckDone() error {
	if e.curGrp != 0 {
		return ErrUnfinishedHandshakeMessage
	}
	if e.grpEnd[0] != SizeUnknown && e.ofsCommit != e.grpEnd[0] {
		return ErrUnfinishedHandshakeMessage
	}
	return nil
}

// Committed returns ofs_commit, the total bytes ratified so far.
func (e *ExtWriter) Committed() int64 { return e.ofsCommit }

// DeclaredTotal returns the size declared for group 0 (SizeUnknown if unresolved).
func (e *ExtWriter) DeclaredTotal() int64 { return e.grpEnd[0] }

// ResolveTotal fixes an unknown declared total to n, as Layer 3's
// dispatch does once the true message length is discovered from the
// total committed byte count in the DTLS unknown-length case.
func (e *ExtWriter) ResolveTotal(n int64) { e.grpEnd[0] = n }
