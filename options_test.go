// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := newOptions()
	require.Equal(t, TLS, o.Mode)
	require.Equal(t, maxGroupDepth, o.GroupDepth)
	require.False(t, o.AllowInterleaving)
	require.Nil(t, o.Metrics)
}

func TestWithGroupDepthResetsOnNonPositive(t *testing.T) {
	o := newOptions(WithGroupDepth(0))
	require.Equal(t, maxGroupDepth, o.GroupDepth)

	o = newOptions(WithGroupDepth(2))
	require.Equal(t, 2, o.GroupDepth)
}

func TestWithQueueCapacityString(t *testing.T) {
	o := newOptions(WithQueueCapacityString("64KiB"))
	require.Equal(t, 64*1024, o.QueueCapacity)
}

func TestWithQueueCapacityStringIgnoresMalformedInput(t *testing.T) {
	o := newOptions(WithQueueCapacity(128), WithQueueCapacityString("not-a-size"))
	require.Equal(t, 128, o.QueueCapacity)
}

func TestWithBlockAndNonblock(t *testing.T) {
	o := newOptions(WithBlock())
	require.Zero(t, o.RetryDelay)

	o = newOptions(WithNonblock())
	require.Equal(t, -1, int(o.RetryDelay))
}

func TestWithModeAndAllowInterleaving(t *testing.T) {
	o := newOptions(WithMode(DTLS), WithAllowInterleaving())
	require.Equal(t, DTLS, o.Mode)
	require.True(t, o.AllowInterleaving)
}
