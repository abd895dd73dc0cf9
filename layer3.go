// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import (
	"errors"

	"github.com/rs/zerolog"
)

type outerState uint8

const (
	outerNone outerState = iota
	outerHS
	outerAlert
	outerCCS
	outerApp
)

type hsSubstate uint8

const (
	hsNone hsSubstate = iota
	hsActive
	hsPaused
)

// Layer3 sits above a record layer and parses/emits message-level
// framing for handshake, alert, change-cipher-spec, and
// application-data content in both TLS and DTLS modes, including
// pause/resume for TLS handshake messages that span multiple records.
// It is purely single-threaded and driven by its caller: no operation
// blocks or retries internally.
type Layer3 struct {
	rl   RecordLayer
	mode Mode

	groupDepth        int
	allowInterleaving bool
	log               zerolog.Logger
	metrics           *Metrics

	// Outgoing state.
	outer   outerState
	hsSub   hsSubstate
	clearing bool

	rawW *Writer
	extW *ExtWriter

	hdrBuf     []byte
	hdrWritten bool

	pendingType       uint8
	pendingEpoch      uint64
	pendingLen        int64
	pendingFragOffset int64
	pendingFragLen    int64
	pendingSeqNr      uint16
	curSeqNr          uint16

	pausedEpoch uint64
	pausedType  uint8
	pausedLen   int64

	// Incoming state.
	curCT    ContentType
	haveCur  bool
	curEpoch uint64
	rawR     *Reader
	extR     *ExtReader
	inHsSub  hsSubstate
	inHeader HandshakeHeader

	inPausedEpoch uint64

	alertLevel AlertLevel
	alertDesc  uint8
}

// NewLayer3 constructs a Layer 3 state machine driving rl.
func NewLayer3(rl RecordLayer, opts ...Option) *Layer3 {
	o := newOptions(opts...)
	depth := o.GroupDepth
	if depth <= 0 || depth > maxGroupDepth {
		depth = maxGroupDepth
	}
	return &Layer3{
		rl:                rl,
		mode:              o.Mode,
		groupDepth:        depth,
		allowInterleaving: o.AllowInterleaving,
		log:               o.Logger,
		metrics:           o.Metrics,
	}
}

func (l3 *Layer3) drainClear() error {
	if !l3.clearing {
		return nil
	}
	if err := l3.rl.WriteFlush(); err != nil {
		return err
	}
	l3.clearing = false
	return nil
}

// ---------------------------------------------------------------------
// Outgoing
// ---------------------------------------------------------------------

// WriteHandshake begins (or resumes) writing a handshake message of the
// given type, epoch, and length, returning the ExtWriter the caller
// should use for the body. In DTLS mode, fragOffset/fragLen describe
// the fragment carried by this specific call; length and fragLen may be
// SizeUnknown together (fragOffset must then be 0). In TLS mode,
// fragOffset/fragLen are ignored; length may be SizeUnknown, in which
// case the header is written at Dispatch from the committed byte count
// and the message cannot be paused.
//
// If hs substate is Paused, (epoch, msgType, length) must exactly match
// the paused message, else ErrInvalidArgument. If the current record
// has no room left for the header, returns ErrRetry with the
// record-layer flush-pending flag set; the caller should retry the same
// call after the flush drains.
func (l3 *Layer3) WriteHandshake(epoch uint64, msgType uint8, length, fragOffset, fragLen int64) (*ExtWriter, error) {
	switch l3.hsSub {
	case hsActive:
		return nil, ErrOperationUnexpected
	case hsPaused:
		if !(epoch == l3.pausedEpoch && msgType == l3.pausedType && length == l3.pausedLen) {
			return nil, ErrInvalidArgument
		}
	default: // hsNone
		if l3.outer != outerNone {
			return nil, ErrOperationUnexpected
		}
	}

	if l3.mode == DTLS {
		if length == SizeUnknown {
			if fragOffset != 0 || fragLen != SizeUnknown {
				return nil, ErrInvalidArgument
			}
		} else if fragLen != SizeUnknown && fragOffset+fragLen > length {
			return nil, ErrInvalidArgument
		}
	}

	if err := l3.drainClear(); err != nil {
		return nil, err
	}

	rawW, err := l3.rl.WriteStart(ContentTypeHandshake, epoch)
	if err != nil {
		return nil, err
	}
	l3.rawW = rawW

	wasNone := l3.hsSub == hsNone
	if wasNone {
		hlen := handshakeHeaderLen(l3.mode)
		hdrBuf, gerr := rawW.Get(hlen, true)
		if gerr != nil {
			_ = l3.rl.WriteDone()
			l3.rawW = nil
			l3.clearing = true
			l3.metrics.observeRetry("outgoing")
			return nil, ErrRetry
		}

		total := length
		if l3.mode == DTLS {
			total = fragLen
		}

		l3.extW = NewExtWriter(WithGroupDepth(l3.groupDepth))
		_ = l3.extW.InitExt(total)

		mode2 := PassThrough
		if total == SizeUnknown {
			mode2 = Hold
		}
		if aerr := l3.extW.Attach(rawW, mode2); aerr != nil {
			_ = l3.rl.WriteDone()
			l3.rawW = nil
			return nil, aerr
		}

		var seqNr uint16
		if l3.mode == DTLS {
			if fragOffset == 0 {
				l3.curSeqNr++
			}
			seqNr = l3.curSeqNr
		}

		l3.hdrBuf = hdrBuf
		l3.hdrWritten = false
		l3.pendingType = msgType
		l3.pendingEpoch = epoch
		l3.pendingLen = length
		l3.pendingFragOffset = fragOffset
		l3.pendingFragLen = fragLen
		l3.pendingSeqNr = seqNr

		if total != SizeUnknown {
			herr := encodeHandshakeHeader(hdrBuf, l3.mode, HandshakeHeader{
				MsgType: msgType, Len: length, SeqNr: seqNr,
				FragOffset: fragOffset, FragLen: fragLen,
			})
			if herr != nil {
				_ = l3.rl.WriteDone()
				l3.rawW = nil
				return nil, herr
			}
			l3.hdrWritten = true
		}
	} else {
		// Resuming a paused TLS message: length is always known for TLS,
		// so passthrough is always PASS and no header is reserved again.
		if aerr := l3.extW.Attach(rawW, PassThrough); aerr != nil {
			_ = l3.rl.WriteDone()
			l3.rawW = nil
			return nil, aerr
		}
	}

	l3.outer = outerHS
	l3.hsSub = hsActive
	return l3.extW, nil
}

// WriteAlert writes a complete 2-byte TLS alert.
func (l3 *Layer3) WriteAlert(epoch uint64, level AlertLevel, description uint8) error {
	if l3.outer != outerNone {
		return ErrOperationUnexpected
	}
	if l3.hsSub == hsPaused && !l3.allowInterleaving {
		return ErrNoInterleaving
	}
	if err := l3.drainClear(); err != nil {
		return err
	}
	w, err := l3.rl.WriteStart(ContentTypeAlert, epoch)
	if err != nil {
		return err
	}
	buf, gerr := w.Get(alertHeaderLen, true)
	if gerr != nil {
		_ = l3.rl.WriteDone()
		return gerr
	}
	if eerr := encodeAlert(buf, level, description); eerr != nil {
		_ = l3.rl.WriteDone()
		return eerr
	}
	if cerr := w.Commit(); cerr != nil {
		return cerr
	}
	l3.rawW = w
	l3.outer = outerAlert
	return nil
}

// WriteCCS writes the single-byte change-cipher-spec message.
func (l3 *Layer3) WriteCCS(epoch uint64) error {
	if l3.outer != outerNone {
		return ErrOperationUnexpected
	}
	if l3.hsSub == hsPaused && !l3.allowInterleaving {
		return ErrNoInterleaving
	}
	if err := l3.drainClear(); err != nil {
		return err
	}
	w, err := l3.rl.WriteStart(ContentTypeCCS, epoch)
	if err != nil {
		return err
	}
	buf, gerr := w.Get(ccsHeaderLen, true)
	if gerr != nil {
		_ = l3.rl.WriteDone()
		return gerr
	}
	buf[0] = ccsPayload
	if cerr := w.Commit(); cerr != nil {
		return cerr
	}
	l3.rawW = w
	l3.outer = outerCCS
	return nil
}

// WriteApp begins an application-data message, returning the raw Writer
// for the caller to fill via Get/Commit. Application data carries no
// embedded framing of its own.
func (l3 *Layer3) WriteApp(epoch uint64) (*Writer, error) {
	if l3.outer != outerNone {
		return nil, ErrOperationUnexpected
	}
	if l3.hsSub == hsPaused && !l3.allowInterleaving {
		return nil, ErrNoInterleaving
	}
	if err := l3.drainClear(); err != nil {
		return nil, err
	}
	w, err := l3.rl.WriteStart(ContentTypeApp, epoch)
	if err != nil {
		return nil, err
	}
	l3.rawW = w
	l3.outer = outerApp
	return w, nil
}

// Dispatch finalizes and releases the current outgoing message. For a
// handshake message this requires the ExtWriter report CheckDone, and
// writes the header into the reserved bytes if it was not already
// written (the DTLS unknown-length case).
func (l3 *Layer3) Dispatch() error {
	switch l3.outer {
	case outerHS:
		if err := l3.extW.CheckDone(); err != nil {
			return err
		}
		committed, uncommitted := l3.extW.Detach()

		if !l3.hdrWritten {
			length := l3.pendingLen
			fragLen := l3.pendingFragLen
			if l3.mode == DTLS {
				fragLen = committed
				if length == SizeUnknown {
					length = committed
				}
			} else {
				length = committed
			}
			if herr := encodeHandshakeHeader(l3.hdrBuf, l3.mode, HandshakeHeader{
				MsgType: l3.pendingType, Len: length, SeqNr: l3.pendingSeqNr,
				FragOffset: l3.pendingFragOffset, FragLen: fragLen,
			}); herr != nil {
				return herr
			}
			l3.hdrWritten = true
		}

		if cerr := l3.rawW.CommitPartial(uncommitted); cerr != nil {
			return cerr
		}
		if err := l3.rl.WriteDone(); err != nil {
			return err
		}
		l3.metrics.observeDispatchBytes(committed)
		l3.extW = nil
		l3.rawW = nil
		l3.outer = outerNone
		l3.hsSub = hsNone
		return nil

	case outerAlert, outerCCS, outerApp:
		if err := l3.rl.WriteDone(); err != nil {
			return err
		}
		l3.rawW = nil
		l3.outer = outerNone
		return nil

	default:
		return ErrOperationUnexpected
	}
}

// PauseHandshake suspends an in-progress TLS handshake message at a
// record boundary without repeating its header on resume. DTLS does
// not support pausing; it uses fragment_offset/fragment_length instead.
func (l3 *Layer3) PauseHandshake() error {
	if l3.mode != TLS {
		return ErrOperationUnexpected
	}
	if l3.outer != outerHS || l3.hsSub != hsActive {
		return ErrOperationUnexpected
	}
	if l3.extW.DeclaredTotal() == SizeUnknown {
		return ErrOperationUnexpected
	}
	_, uncommitted := l3.extW.Detach()
	if cerr := l3.rawW.CommitPartial(uncommitted); cerr != nil {
		return cerr
	}
	if err := l3.rl.WriteDone(); err != nil {
		return err
	}
	l3.pausedEpoch = l3.pendingEpoch
	l3.pausedType = l3.pendingType
	l3.pausedLen = l3.pendingLen
	l3.rawW = nil
	l3.outer = outerNone
	l3.hsSub = hsPaused
	return nil
}

// AbortHandshake discards an in-progress outgoing handshake message.
// Requires zero bytes committed so far. This is checked by an assertion
// rather than returned as an error: calling AbortHandshake after
// committing bytes panics via invariant. A message with committed bytes
// must be finished via Dispatch instead.
func (l3 *Layer3) AbortHandshake() error {
	if l3.outer != outerHS || l3.hsSub != hsActive {
		return ErrOperationUnexpected
	}
	committed, _ := l3.extW.Detach()
	invariant(committed == 0, "abort_handshake requires zero committed bytes")
	if err := l3.rl.WriteDone(); err != nil {
		return err
	}
	l3.extW = nil
	l3.rawW = nil
	l3.outer = outerNone
	l3.hsSub = hsNone
	return nil
}

// ---------------------------------------------------------------------
// Incoming
// ---------------------------------------------------------------------

// Read fetches the next record from the record layer and dispatches it
// by content type, parsing fixed headers (alert, CCS, and - when not
// resuming a paused handshake message - the handshake header) inline.
// The parsed content is retrieved via the matching ReadAlert/ReadCCS/
// ReadHandshake/ReadApp call.
func (l3 *Layer3) Read() (ContentType, error) {
	ct, epoch, r, err := l3.rl.ReadStart()
	if err != nil {
		return 0, err
	}
	l3.curCT = ct
	l3.haveCur = true
	l3.curEpoch = epoch
	l3.rawR = r

	switch ct {
	case ContentTypeAlert:
		buf, gerr := r.Get(alertHeaderLen, true)
		if gerr != nil {
			return l3.incomingShortRead(gerr)
		}
		level, desc, derr := decodeAlert(buf)
		if derr != nil {
			_ = l3.rl.ReadDone()
			return 0, derr
		}
		if cerr := r.Commit(); cerr != nil {
			return 0, cerr
		}
		l3.alertLevel, l3.alertDesc = level, desc

	case ContentTypeCCS:
		buf, gerr := r.Get(ccsHeaderLen, true)
		if gerr != nil {
			return l3.incomingShortRead(gerr)
		}
		if derr := decodeCCS(buf); derr != nil {
			_ = l3.rl.ReadDone()
			return 0, derr
		}
		if cerr := r.Commit(); cerr != nil {
			return 0, cerr
		}

	case ContentTypeHandshake:
		switch l3.inHsSub {
		case hsNone:
			hlen := handshakeHeaderLen(l3.mode)
			buf, gerr := r.Get(hlen, true)
			if gerr != nil {
				return l3.incomingShortRead(gerr)
			}
			hdr, derr := decodeHandshakeHeader(buf, l3.mode)
			if derr != nil {
				_ = l3.rl.ReadDone()
				return 0, derr
			}
			if cerr := r.Commit(); cerr != nil {
				return 0, cerr
			}
			l3.inHeader = hdr
			total := hdr.Len
			if l3.mode == DTLS {
				total = hdr.FragLen
			}
			l3.extR = NewExtReader(WithGroupDepth(l3.groupDepth))
			_ = l3.extR.InitExt(total)
			_ = l3.extR.Attach(r)
			l3.inHsSub = hsActive
		case hsPaused:
			invariant(epoch == l3.inPausedEpoch, "resumed handshake record epoch mismatch")
			_ = l3.extR.Attach(r)
			l3.inHsSub = hsActive
		default:
			_ = l3.rl.ReadDone()
			return 0, ErrOperationUnexpected
		}

	case ContentTypeApp:
		// No parsing.

	case ContentTypeACK:
		// DTLS 1.3 ACK records are not a supported content type yet.
		_ = l3.rl.ReadDone()
		return 0, ErrInvalidContent

	default:
		_ = l3.rl.ReadDone()
		return 0, ErrInvalidContent
	}

	return ct, nil
}

func (l3 *Layer3) incomingShortRead(gerr error) (ContentType, error) {
	if !errors.Is(gerr, ErrOutOfData) {
		return 0, gerr
	}
	_ = l3.rl.ReadDone()
	if l3.mode == DTLS {
		return 0, ErrInvalidContent
	}
	// TLS: the record layer is expected to re-aggregate small records;
	// the caller retries once more data is available.
	l3.metrics.observeRetry("incoming")
	return 0, ErrRetry
}

// ReadAlert returns the level and description parsed by the most recent
// Read, failing ErrOperationUnexpected if the current record is not an
// alert.
func (l3 *Layer3) ReadAlert() (AlertLevel, uint8, error) {
	if !l3.haveCur || l3.curCT != ContentTypeAlert {
		return 0, 0, ErrOperationUnexpected
	}
	return l3.alertLevel, l3.alertDesc, nil
}

// ReadCCS confirms the most recent Read produced a valid
// change-cipher-spec record.
func (l3 *Layer3) ReadCCS() error {
	if !l3.haveCur || l3.curCT != ContentTypeCCS {
		return ErrOperationUnexpected
	}
	return nil
}

// ReadApp returns the raw Reader over the current application-data record.
func (l3 *Layer3) ReadApp() (*Reader, error) {
	if !l3.haveCur || l3.curCT != ContentTypeApp {
		return nil, ErrOperationUnexpected
	}
	return l3.rawR, nil
}

// ReadHandshake returns the ExtReader and parsed header for the current
// handshake record (or fragment, on resume).
func (l3 *Layer3) ReadHandshake() (*ExtReader, HandshakeHeader, error) {
	if !l3.haveCur || l3.curCT != ContentTypeHandshake {
		return nil, HandshakeHeader{}, ErrOperationUnexpected
	}
	return l3.extR, l3.inHeader, nil
}

// Consume finishes processing the current record, releasing it back to
// the record layer. For a handshake record, requires the ExtReader
// report CheckDone.
func (l3 *Layer3) Consume() error {
	if !l3.haveCur {
		return ErrOperationUnexpected
	}
	switch l3.curCT {
	case ContentTypeHandshake:
		if err := l3.extR.CheckDone(); err != nil {
			return err
		}
		if _, err := l3.rawR.Reclaim(false); err != nil {
			return err
		}
		if err := l3.rl.ReadDone(); err != nil {
			return err
		}
		l3.inHsSub = hsNone
		l3.extR = nil
	default:
		if _, err := l3.rawR.Reclaim(false); err != nil {
			return err
		}
		if err := l3.rl.ReadDone(); err != nil {
			return err
		}
	}
	l3.haveCur = false
	l3.rawR = nil
	return nil
}

// PauseHandshakeIncoming detaches the ExtReader from the current
// handshake record without tearing it down, so the next Read on a
// matching epoch can resume parsing the same message (TLS only).
func (l3 *Layer3) PauseHandshakeIncoming() error {
	if l3.mode != TLS {
		return ErrOperationUnexpected
	}
	if !l3.haveCur || l3.curCT != ContentTypeHandshake || l3.inHsSub != hsActive {
		return ErrOperationUnexpected
	}
	l3.extR.Detach()
	if _, err := l3.rawR.Reclaim(true); err != nil {
		return err
	}
	if err := l3.rl.ReadDone(); err != nil {
		return err
	}
	l3.inPausedEpoch = l3.curEpoch
	l3.inHsSub = hsPaused
	l3.haveCur = false
	l3.rawR = nil
	return nil
}
