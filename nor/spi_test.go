// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/bsp/simnor"
)

func newAT25Chip() *simnor.SPIChip {
	chip := simnor.NewSPIChip(128 * 4096)
	chip.ManufacturerID = 0x1F
	chip.DeviceID = 0x4401
	return chip
}

func TestAT25OpenIdentifies(t *testing.T) {
	chip := newAT25Chip()
	d := NewAT25(chip, 50*time.Millisecond, 500*time.Millisecond)
	require.NoError(t, d.Open(context.Background()))
	assert.EqualValues(t, 128, d.Geometry().BlockCount)
	assert.EqualValues(t, 4096, d.Geometry().BlockSize)
}

func TestAT25OpenRejectsUnknownID(t *testing.T) {
	chip := newAT25Chip()
	chip.ManufacturerID = 0x00
	chip.DeviceID = 0x0000
	d := NewAT25(chip, 50*time.Millisecond, 500*time.Millisecond)
	assert.Error(t, d.Open(context.Background()))
}

func TestAT25ProgramEraseRoundTrip(t *testing.T) {
	chip := newAT25Chip()
	d := NewAT25(chip, 50*time.Millisecond, 500*time.Millisecond)
	require.NoError(t, d.Open(context.Background()))
	ctx := context.Background()

	require.NoError(t, d.EraseBlk(ctx, 0, 4096))

	data := bytes.Repeat([]byte{0xA5}, 600) // straddles the 256-byte page boundary
	require.NoError(t, d.Wr(ctx, data, 100, len(data)))

	got := make([]byte, len(data))
	require.NoError(t, d.Rd(ctx, got, 100, len(got)))
	assert.Equal(t, data, got)
}

func TestAT25EraseTimeout(t *testing.T) {
	chip := newAT25Chip()
	chip.StuckBusy = true
	d := NewAT25(chip, 10*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, d.Open(context.Background()))
	err := d.EraseBlk(context.Background(), 0, 4096)
	assert.Error(t, err)
}

func TestSST25WordProgram(t *testing.T) {
	chip := simnor.NewSPIChip(512 * 4096)
	chip.ManufacturerID = 0xBF
	chip.DeviceID = 0x2541
	d := NewSST25(chip, 50*time.Millisecond, 500*time.Millisecond)
	d.WordMode = true
	require.NoError(t, d.Open(context.Background()))
	ctx := context.Background()

	require.NoError(t, d.EraseBlk(ctx, 0, 4096))

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, d.Wr(ctx, data, 0x10, len(data)))

	got := make([]byte, len(data))
	require.NoError(t, d.Rd(ctx, got, 0x10, len(got)))
	assert.Equal(t, data, got)
}

func TestSST25RevisionAByteProgram(t *testing.T) {
	chip := simnor.NewSPIChip(512 * 4096)
	chip.ManufacturerID = 0xBF
	chip.DeviceID = 0x2541
	d := NewSST25(chip, 50*time.Millisecond, 500*time.Millisecond)
	d.RevisionAQuirk = true
	require.NoError(t, d.Open(context.Background()))
	ctx := context.Background()

	require.NoError(t, d.EraseBlk(ctx, 0, 4096))

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, d.Wr(ctx, data, 0x10, len(data)))

	got := make([]byte, len(data))
	require.NoError(t, d.Rd(ctx, got, 0x10, len(got)))
	assert.Equal(t, data, got)
}

func TestSST25WordModeIgnoresRevisionAQuirk(t *testing.T) {
	chip := simnor.NewSPIChip(512 * 4096)
	chip.ManufacturerID = 0xBF
	chip.DeviceID = 0x2541
	d := NewSST25(chip, 50*time.Millisecond, 500*time.Millisecond)
	d.WordMode = true
	d.RevisionAQuirk = true
	require.NoError(t, d.Open(context.Background()))
	ctx := context.Background()

	require.NoError(t, d.EraseBlk(ctx, 0, 4096))

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, d.Wr(ctx, data, 0x10, len(data)))

	got := make([]byte, len(data))
	require.NoError(t, d.Rd(ctx, got, 0x10, len(got)))
	assert.Equal(t, data, got)
}
