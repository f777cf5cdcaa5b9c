// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package conformance runs the same sector-API contract checks against any
// device.VTable implementation, generalizing spec.md §8's RAM-disk scenario
// to every device family: ramdisk, NAND-backed, NOR-backed. Grounded on the
// original fs_dev_ramdisk.c reference backend's own exercised contract
// (zero-based sector indexing, Query authority, sector-size round trip).
package conformance

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/device"
)

// Run opens a fresh device via open, exercises the sector-API contract
// against it, then closes it. Call it once per VTable implementation under
// test, e.g.:
//
//	conformance.Run(t, func() device.VTable { return ramdisk.New("t", 64, 512) })
func Run(t *testing.T, open func() device.VTable) {
	t.Helper()
	ctx := context.Background()

	t.Run("QueryAuthority", func(t *testing.T) {
		d := open()
		require.NoError(t, d.Init())
		require.NoError(t, d.Open(ctx))
		defer d.Close(ctx)

		info, err := d.Query(ctx)
		require.NoError(t, err)
		assert.NotZero(t, info.SecSize)
		assert.Contains(t, []uint32{512, 1024, 2048, 4096}, info.SecSize)
		assert.NotZero(t, info.Size)
		assert.Zero(t, info.Size%uint64(info.SecSize), "Size must be a whole multiple of SecSize")
	})

	t.Run("SectorRoundTrip", func(t *testing.T) {
		d := open()
		require.NoError(t, d.Init())
		require.NoError(t, d.Open(ctx))
		defer d.Close(ctx)

		info, err := d.Query(ctx)
		require.NoError(t, err)

		data := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, int(info.SecSize)/4)
		const sec = 5
		require.NoError(t, d.Wr(ctx, data, sec, 1))

		got := make([]byte, info.SecSize)
		require.NoError(t, d.Rd(ctx, got, sec, 1))
		assert.Equal(t, data, got)
	})

	t.Run("ZeroBasedIndexing", func(t *testing.T) {
		d := open()
		require.NoError(t, d.Init())
		require.NoError(t, d.Open(ctx))
		defer d.Close(ctx)

		info, err := d.Query(ctx)
		require.NoError(t, err)

		data0 := bytes.Repeat([]byte{0x01}, int(info.SecSize))
		data1 := bytes.Repeat([]byte{0x02}, int(info.SecSize))
		require.NoError(t, d.Wr(ctx, data0, 0, 1))
		require.NoError(t, d.Wr(ctx, data1, 1, 1))

		got0 := make([]byte, info.SecSize)
		got1 := make([]byte, info.SecSize)
		require.NoError(t, d.Rd(ctx, got0, 0, 1))
		require.NoError(t, d.Rd(ctx, got1, 1, 1))
		assert.Equal(t, data0, got0)
		assert.Equal(t, data1, got1)
		assert.NotEqual(t, got0, got1)
	})

	t.Run("MultiSectorRun", func(t *testing.T) {
		d := open()
		require.NoError(t, d.Init())
		require.NoError(t, d.Open(ctx))
		defer d.Close(ctx)

		info, err := d.Query(ctx)
		require.NoError(t, err)

		const cnt = 3
		data := bytes.Repeat([]byte{0x7A}, int(info.SecSize)*cnt)
		require.NoError(t, d.Wr(ctx, data, 2, cnt))

		got := make([]byte, len(data))
		require.NoError(t, d.Rd(ctx, got, 2, cnt))
		assert.Equal(t, data, got)
	})
}
