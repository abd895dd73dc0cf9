// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterCoalescesSmallMessages(t *testing.T) {
	w := NewWriter(make([]byte, 16))

	require.NoError(t, w.Feed(make([]byte, 8)))

	buf, err := w.Get(5, true)
	require.NoError(t, err)
	require.Len(t, buf, 5)
	require.NoError(t, w.Commit())

	written, queued, err := w.Reclaim(true)
	require.NoError(t, err)
	require.EqualValues(t, 5, written)
	require.Zero(t, queued)
}

func TestWriterSpillsIntoQueueWhenOutTooSmall(t *testing.T) {
	w := NewWriter(make([]byte, 32))
	require.NoError(t, w.Feed(make([]byte, 4)))

	buf, err := w.Get(10, true)
	require.NoError(t, err)
	require.Len(t, buf, 10)
	require.NoError(t, w.Commit())

	written, queued, err := w.Reclaim(false)
	require.NoError(t, err)
	require.EqualValues(t, 4, written)
	require.EqualValues(t, 6, queued)
}

func TestWriterFeedDrainsQueueFirst(t *testing.T) {
	w := NewWriter(make([]byte, 32))
	require.NoError(t, w.Feed(make([]byte, 4)))
	_, err := w.Get(10, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	_, queued, err := w.Reclaim(false)
	require.NoError(t, err)
	require.EqualValues(t, 6, queued)

	// Next Feed is too small to drain the whole queue: NEED_MORE.
	err = w.Feed(make([]byte, 3))
	require.ErrorIs(t, err, ErrNeedMore)

	// A Feed sized to drain exactly what remains succeeds: exact-drain
	// is success, not NEED_MORE.
	err = w.Feed(make([]byte, 3))
	require.NoError(t, err)
	require.True(t, w.IsConsuming())
	written, err := w.BytesWritten()
	require.Error(t, err) // still consuming; BytesWritten is a Providing-state query
	require.Zero(t, written)
}

func TestWriterQueueFillsEntireBufferNeedsMore(t *testing.T) {
	w := NewWriter(make([]byte, 4))
	require.NoError(t, w.Feed(make([]byte, 2)))
	buf, err := w.Get(6, false)
	require.NoError(t, err)
	require.Len(t, buf, 4) // short serve bounded by the 4-byte queue
	require.NoError(t, w.Commit())
	_, _, err = w.Reclaim(false)
	require.NoError(t, err)

	err = w.Feed(make([]byte, 1))
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestWriterReclaimDataLeftRequiresForce(t *testing.T) {
	w := NewWriter(nil)
	require.NoError(t, w.Feed(make([]byte, 8)))
	_, err := w.Get(4, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, _, err = w.Reclaim(false)
	require.ErrorIs(t, err, ErrDataLeft)

	written, queued, err := w.Reclaim(true)
	require.NoError(t, err)
	require.EqualValues(t, 4, written)
	require.Zero(t, queued)
}

func TestWriterGetExactOutOfData(t *testing.T) {
	w := NewWriter(nil)
	require.NoError(t, w.Feed(make([]byte, 4)))
	_, err := w.Get(5, true)
	require.ErrorIs(t, err, ErrOutOfData)
	require.True(t, IsFlowControl(err))
}

func TestInvalidArgLeavesStateUsable(t *testing.T) {
	w := NewWriter(nil)

	// Feed(nil) is a programming error; the Writer must stay Providing
	// and accept a valid Feed right afterward.
	err := w.Feed(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.True(t, IsProgrammingError(err))
	require.False(t, w.IsConsuming())

	require.NoError(t, w.Feed(make([]byte, 4)))
	buf, err := w.Get(4, true)
	require.NoError(t, err)
	require.Len(t, buf, 4)
	require.NoError(t, w.Commit())
	written, _, err := w.Reclaim(false)
	require.NoError(t, err)
	require.EqualValues(t, 4, written)
}

func TestWriterCheckFullyCommitted(t *testing.T) {
	w := NewWriter(nil)
	require.NoError(t, w.Feed(make([]byte, 4)))
	_, err := w.Get(2, true)
	require.NoError(t, err)
	require.False(t, w.CheckFullyCommitted())
	require.NoError(t, w.Commit())
	require.True(t, w.CheckFullyCommitted())
}
