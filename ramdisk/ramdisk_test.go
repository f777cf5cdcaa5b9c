// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package ramdisk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/device/conformance"
)

func TestConformance(t *testing.T) {
	conformance.Run(t, func() device.VTable {
		return New("ram0", 64, 512)
	})
}

// TestWriteReadQuery exercises the write-sector-5/read-back/query scenario
// directly, byte for byte.
func TestWriteReadQuery(t *testing.T) {
	ctx := context.Background()
	d := New("ram0", 64, 512)
	require.NoError(t, d.Init())
	require.NoError(t, d.Open(ctx))
	defer d.Close(ctx)

	data := make([]byte, 512)
	data[0], data[1] = 0xDE, 0xAD
	require.NoError(t, d.Wr(ctx, data, 5, 1))

	got := make([]byte, 512)
	require.NoError(t, d.Rd(ctx, got, 5, 1))
	assert.Equal(t, data, got)

	info, err := d.Query(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 512, info.SecSize)
	assert.EqualValues(t, 64*512, info.Size)
	assert.True(t, info.Fixed)
}

func TestInitRejectsBadSecSize(t *testing.T) {
	d := New("ram0", 64, 600)
	assert.Error(t, d.Init())
}

func TestOutOfRangeAccessFails(t *testing.T) {
	ctx := context.Background()
	d := New("ram0", 4, 512)
	require.NoError(t, d.Init())
	require.NoError(t, d.Open(ctx))
	defer d.Close(ctx)

	buf := make([]byte, 512)
	assert.Error(t, d.Rd(ctx, buf, 4, 1))
	assert.Error(t, d.Wr(ctx, buf, 3, 2))
}

func TestIOCtrlAlwaysInvalid(t *testing.T) {
	ctx := context.Background()
	d := New("ram0", 4, 512)
	require.NoError(t, d.Init())
	require.NoError(t, d.Open(ctx))
	defer d.Close(ctx)

	assert.Error(t, d.IOCtrl(ctx, 1, nil))
}
