// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/mps"
	"code.hybscloud.com/mps/internal/mockrecord"
)

func TestLayer3TLSHandshakeSingleRecordRoundTrip(t *testing.T) {
	rl := mockrecord.New(4096)
	out := mps.NewLayer3(rl, mps.WithMode(mps.TLS))

	ext, err := out.WriteHandshake(1, 1, 10, 0, 10)
	require.NoError(t, err)
	buf, err := ext.GetExt(10, true)
	require.NoError(t, err)
	copy(buf, []byte("0123456789"))
	require.NoError(t, ext.CommitExt())
	require.NoError(t, out.Dispatch())

	emitted := rl.Emitted()
	require.Len(t, emitted, 1)
	require.Equal(t, mps.ContentTypeHandshake, emitted[0].CT)

	rl2 := mockrecord.New(4096)
	rl2.Queue(emitted...)
	in := mps.NewLayer3(rl2, mps.WithMode(mps.TLS))

	ct, err := in.Read()
	require.NoError(t, err)
	require.Equal(t, mps.ContentTypeHandshake, ct)

	extr, hdr, err := in.ReadHandshake()
	require.NoError(t, err)
	require.EqualValues(t, 1, hdr.MsgType)
	require.EqualValues(t, 10, hdr.Len)

	body, err := extr.GetExt(10, true)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(body))
	require.NoError(t, extr.CommitExt())
	require.NoError(t, in.Consume())
}

func TestLayer3TLSHandshakeFragmentedWithPauseResume(t *testing.T) {
	const recordSize = 8 // 4-byte header + 4 bytes of body per record

	rl := mockrecord.New(recordSize)
	out := mps.NewLayer3(rl, mps.WithMode(mps.TLS))

	ext, err := out.WriteHandshake(1, 1, 10, 0, 10)
	require.NoError(t, err)
	buf, err := ext.GetExt(4, true)
	require.NoError(t, err)
	copy(buf, []byte("0123"))
	require.NoError(t, ext.CommitExt())
	require.NoError(t, out.PauseHandshake())

	ext2, err := out.WriteHandshake(1, 1, 10, 0, 10)
	require.NoError(t, err)
	require.Same(t, ext, ext2)
	buf2, err := ext2.GetExt(6, true)
	require.NoError(t, err)
	copy(buf2, []byte("456789"))
	require.NoError(t, ext2.CommitExt())
	require.NoError(t, out.Dispatch())

	emitted := rl.Emitted()
	require.Len(t, emitted, 2)
	require.Len(t, emitted[0].Payload, 8) // header(4) + body(4)
	require.Len(t, emitted[1].Payload, 6) // body only, no repeated header

	rl2 := mockrecord.New(recordSize)
	rl2.Queue(emitted[0])
	in := mps.NewLayer3(rl2, mps.WithMode(mps.TLS))

	ct, err := in.Read()
	require.NoError(t, err)
	require.Equal(t, mps.ContentTypeHandshake, ct)
	extr, hdr, err := in.ReadHandshake()
	require.NoError(t, err)
	require.EqualValues(t, 10, hdr.Len)

	body1, err := extr.GetExt(4, true)
	require.NoError(t, err)
	require.Equal(t, "0123", string(body1))
	require.NoError(t, extr.CommitExt())
	require.NoError(t, in.PauseHandshakeIncoming())

	rl2.Queue(emitted[1])
	ct, err = in.Read()
	require.NoError(t, err)
	require.Equal(t, mps.ContentTypeHandshake, ct)
	extr2, _, err := in.ReadHandshake()
	require.NoError(t, err)
	require.Same(t, extr, extr2)

	body2, err := extr2.GetExt(6, true)
	require.NoError(t, err)
	require.Equal(t, "456789", string(body2))
	require.NoError(t, extr2.CommitExt())
	require.NoError(t, in.Consume())
}

func TestLayer3AlertRoundTrip(t *testing.T) {
	rl := mockrecord.New(4096)
	out := mps.NewLayer3(rl, mps.WithMode(mps.TLS))
	require.NoError(t, out.WriteAlert(1, mps.AlertLevelWarning, 0))
	require.NoError(t, out.Dispatch())

	rl2 := mockrecord.New(4096)
	rl2.Queue(rl.Emitted()...)
	in := mps.NewLayer3(rl2, mps.WithMode(mps.TLS))

	ct, err := in.Read()
	require.NoError(t, err)
	require.Equal(t, mps.ContentTypeAlert, ct)
	level, desc, err := in.ReadAlert()
	require.NoError(t, err)
	require.Equal(t, mps.AlertLevelWarning, level)
	require.Zero(t, desc)
	require.NoError(t, in.Consume())
}

func TestLayer3DTLSUnknownLengthHandshake(t *testing.T) {
	rl := mockrecord.New(4096)
	out := mps.NewLayer3(rl, mps.WithMode(mps.DTLS))

	ext, err := out.WriteHandshake(2, 11, mps.SizeUnknown, 0, mps.SizeUnknown)
	require.NoError(t, err)
	buf, err := ext.GetExt(20, true)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, ext.CommitExt())
	require.NoError(t, out.Dispatch())

	rl2 := mockrecord.New(4096)
	rl2.Queue(rl.Emitted()...)
	in := mps.NewLayer3(rl2, mps.WithMode(mps.DTLS))

	ct, err := in.Read()
	require.NoError(t, err)
	require.Equal(t, mps.ContentTypeHandshake, ct)
	extr, hdr, err := in.ReadHandshake()
	require.NoError(t, err)
	require.EqualValues(t, 20, hdr.Len)
	require.EqualValues(t, 20, hdr.FragLen)

	body, err := extr.GetExt(20, true)
	require.NoError(t, err)
	require.Len(t, body, 20)
	require.NoError(t, extr.CommitExt())
	require.NoError(t, in.Consume())
}

func TestLayer3NoInterleavingWhilePaused(t *testing.T) {
	rl := mockrecord.New(4096)
	out := mps.NewLayer3(rl, mps.WithMode(mps.TLS))

	ext, err := out.WriteHandshake(1, 1, 4, 0, 4)
	require.NoError(t, err)
	_, err = ext.GetExt(2, true)
	require.NoError(t, err)
	require.NoError(t, ext.CommitExt())
	require.NoError(t, out.PauseHandshake())

	err = out.WriteAlert(1, mps.AlertLevelWarning, 0)
	require.ErrorIs(t, err, mps.ErrNoInterleaving)

	allowed := mps.NewLayer3(rl, mps.WithMode(mps.TLS), mps.WithAllowInterleaving())
	ext3, err := allowed.WriteHandshake(1, 1, 4, 0, 4)
	require.NoError(t, err)
	_, err = ext3.GetExt(2, true)
	require.NoError(t, err)
	require.NoError(t, ext3.CommitExt())
	require.NoError(t, allowed.PauseHandshake())
	require.NoError(t, allowed.WriteAlert(1, mps.AlertLevelWarning, 0))
}

func TestLayer3AbortHandshakeRequiresZeroCommitted(t *testing.T) {
	rl := mockrecord.New(4096)
	out := mps.NewLayer3(rl, mps.WithMode(mps.TLS))

	_, err := out.WriteHandshake(1, 1, 4, 0, 4)
	require.NoError(t, err)
	require.NoError(t, out.AbortHandshake())

	// The writer is available for a fresh message after abort.
	ext, err := out.WriteHandshake(1, 2, 4, 0, 4)
	require.NoError(t, err)
	buf, err := ext.GetExt(4, true)
	require.NoError(t, err)
	copy(buf, []byte("abcd"))
	require.NoError(t, ext.CommitExt())
	require.NoError(t, out.Dispatch())
}
