// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

// ExtReader wraps a Reader with the same group/bounds discipline as
// ExtWriter. Used by Layer 3's incoming side to parse length-scoped
// TLS extensions and DTLS-fragmented handshake bodies.
type ExtReader struct {
	grpEnd    [maxGroupDepth + 1]int64
	curGrp    int
	ofsFetch  int64
	ofsCommit int64

	r     *Reader
	depth int
}

// NewExtReader constructs an unbound ExtReader. Call InitExt then Attach
// before use.
func NewExtReader(opts ...Option) *ExtReader {
	o := newOptions(opts...)
	depth := o.GroupDepth
	if depth <= 0 || depth > maxGroupDepth {
		depth = maxGroupDepth
	}
	return &ExtReader{depth: depth}
}

// InitExt declares the total size of group 0. SizeUnknown is permitted
// for DTLS messages whose fragment_length is not yet known when parsing
// begins (it is always known by the time an ExtReader is initialized in
// practice, since incoming headers carry explicit lengths, but the
// sentinel is accepted for symmetry with ExtWriter).
func (e *ExtReader) InitExt(size int64) error {
	if size < 0 && size != SizeUnknown {
		return ErrInvalidArgument
	}
	e.grpEnd[0] = size
	e.curGrp = 0
	e.ofsFetch = 0
	e.ofsCommit = 0
	return nil
}

// Attach binds a raw Reader.
func (e *ExtReader) Attach(r *Reader) error {
	if r == nil {
		return ErrInvalidArgument
	}
	e.r = r
	return nil
}

func (e *ExtReader) declaredEnd() int64 { return e.grpEnd[e.curGrp] }

// GetExt delegates to the underlying Reader.Get after a bounds check
// against the current group's declared end.
func (e *ExtReader) GetExt(desired int64, exact bool) ([]byte, error) {
	if e.r == nil {
		return nil, ErrOperationUnexpected
	}
	if bound := e.declaredEnd(); bound != SizeUnknown && e.ofsFetch+desired > bound {
		return nil, ErrBoundsViolation
	}
	buf, err := e.r.Get(desired, exact)
	if err != nil {
		return nil, err
	}
	e.ofsFetch += int64(len(buf))
	return buf, nil
}

// CommitExt ratifies all bytes fetched so far.
func (e *ExtReader) CommitExt() error { return e.CommitPartialExt(0) }

// CommitPartialExt ratifies all but the last omit bytes fetched since
// the last commit, forwarding to the underlying Reader and
// re-synchronizing ofs_fetch to ofs_commit.
func (e *ExtReader) CommitPartialExt(omit int64) error {
	if omit < 0 || omit > e.ofsFetch-e.ofsCommit {
		return ErrInvalidArgument
	}
	if err := e.r.CommitPartial(omit); err != nil {
		return err
	}
	e.ofsCommit = e.ofsFetch - omit
	e.ofsFetch = e.ofsCommit
	return nil
}

// GroupOpen pushes a new bounded region of size bytes inside the
// current group.
func (e *ExtReader) GroupOpen(size int64) error {
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
func (e *ExtReader) GroupClose() error {
	if e.curGrp == 0 {
		return ErrOperationUnexpected
	}
	if bound := e.declaredEnd(); bound != SizeUnknown && e.ofsFetch != bound {
		return ErrBoundsViolation
	}
	e.curGrp--
	return nil
}

// Detach reports ofs_commit and the outstanding uncommitted length,
// resets ofs_fetch to ofs_commit, and clears the underlying Reader
// reference without tearing down its state (used by the incoming
// pause_handshake: the Reader itself stays bound to Layer 2's buffer
// lifecycle; only the ExtReader's view is detached).
func (e *ExtReader) Detach() (committed, uncommitted int64) {
	committed = e.ofsCommit
	uncommitted = e.ofsFetch - e.ofsCommit
	e.ofsFetch = e.ofsCommit
	e.r = nil
	return committed, uncommitted
}

// CheckDone succeeds iff all groups are closed and the declared total
// is either SizeUnknown or equal to ofs_commit.
func (e *ExtReader) CheckDone() error {
	if e.curGrp != 0 {
		return ErrUnfinishedHandshakeMessage
	}
	if e.grpEnd[0] != SizeUnknown && e.ofsCommit != e.grpEnd[0] {
		return ErrUnfinishedHandshakeMessage
	}
	return nil
}

// Committed returns ofs_commit.
func (e *ExtReader) Committed() int64 { return e.ofsCommit }

// DeclaredTotal returns the size declared for group 0.
func (e *ExtReader) DeclaredTotal() int64 { return e.grpEnd[0] }
