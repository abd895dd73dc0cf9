// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderBasicGetCommitReclaim(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.Feed([]byte("hello world")))

	buf, err := r.Get(5, true)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
	require.NoError(t, r.Commit())

	remaining, err := r.Remaining()
	require.NoError(t, err)
	require.EqualValues(t, 6, remaining)

	consumed, err := r.Reclaim(true)
	require.NoError(t, err)
	require.EqualValues(t, 5, consumed)
}

func TestReaderExactOutOfData(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.Feed([]byte("ab")))
	_, err := r.Get(3, true)
	require.ErrorIs(t, err, ErrOutOfData)
}

func TestReaderShortServeWhenNotExact(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.Feed([]byte("ab")))
	buf, err := r.Get(3, false)
	require.NoError(t, err)
	require.Equal(t, "ab", string(buf))
}

func TestReaderReclaimRequiresForceWithDataLeft(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.Feed([]byte("abcd")))
	_, err := r.Get(2, true)
	require.NoError(t, err)
	require.NoError(t, r.Commit())

	_, err = r.Reclaim(false)
	require.ErrorIs(t, err, ErrDataLeft)

	consumed, err := r.Reclaim(true)
	require.NoError(t, err)
	require.EqualValues(t, 2, consumed)
}

func TestReaderBytesReadCumulative(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.Feed([]byte("abcd")))
	_, _ = r.Get(4, true)
	require.NoError(t, r.Commit())
	_, err := r.Reclaim(false)
	require.NoError(t, err)

	require.NoError(t, r.Feed([]byte("xy")))
	_, _ = r.Get(2, true)
	require.NoError(t, r.Commit())
	_, err = r.Reclaim(false)
	require.NoError(t, err)

	total, err := r.BytesRead()
	require.NoError(t, err)
	require.EqualValues(t, 6, total)
}
