// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/bsp/simnand"
	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/part"
)

func testPart() *part.Descriptor {
	return &part.Descriptor{
		BlkCnt:       1024,
		PgPerBlk:     64,
		PgSize:       2048,
		SpareSize:    64,
		BusWidth:     8,
		FreeSpareMap: part.FreeSpareMap{{Offset: 2, Len: 62}},
	}
}

func TestSectorRoundTrip(t *testing.T) {
	chip := simnand.New()
	ctrl, err := NewController(chip, testPart(), nil, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl.Setup(2048))
	assert.EqualValues(t, 62, ctrl.OOSSizePerSec)

	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i)
	}
	oos := make([]byte, 62)
	for i := range oos {
		oos[i] = byte(0xA0 + i%16)
	}

	ctx := context.Background()
	require.NoError(t, ctrl.WriteSector(ctx, 7, data, oos))

	gotData := make([]byte, 2048)
	gotOOS := make([]byte, 62)
	status, err := ctrl.ReadSector(ctx, 7, gotData, gotOOS)
	require.NoError(t, err)
	assert.Equal(t, EccOK, status)
	assert.Equal(t, data, gotData)
	assert.Equal(t, oos, gotOOS)
}

func TestEraseBlockClearsPage(t *testing.T) {
	chip := simnand.New()
	ctrl, err := NewController(chip, testPart(), nil, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl.Setup(2048))

	ctx := context.Background()
	data := make([]byte, 2048)
	for i := range data {
		data[i] = 0x42
	}
	oos := make([]byte, 62)
	require.NoError(t, ctrl.WriteSector(ctx, 0, data, oos))

	require.NoError(t, ctrl.EraseBlock(ctx, 0))

	buf := make([]byte, 16)
	require.NoError(t, ctrl.PgRdRaw(ctx, 0, 0, buf))
	for _, b := range buf {
		assert.Equal(t, byte(0xFF), b)
	}
}

// fakeStatusExt reports a fixed EccStatus from RdStatusChk, standing in for
// a part family whose device-side status register exposes ECC severity
// directly (e.g. an SLC part with built-in 1-bit correction).
type fakeStatusExt struct {
	status EccStatus
}

func (f *fakeStatusExt) Init() error { return nil }

func (f *fakeStatusExt) RdStatusChk(ExtData) (EccStatus, error) {
	return f.status, nil
}

func TestUncorrectableEccEscalatesToError(t *testing.T) {
	chip := simnand.New()
	p := testPart()

	writer, err := NewController(chip, p, nil, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, writer.Setup(2048))

	ctx := context.Background()
	data := make([]byte, 2048)
	oos := make([]byte, 62)
	require.NoError(t, writer.WriteSector(ctx, 3, data, oos))

	ext := &fakeStatusExt{status: EccUncorrectable}
	reader, err := NewController(chip, p, ext, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, reader.Setup(2048))

	gotData := make([]byte, 2048)
	gotOOS := make([]byte, 62)
	status, err := reader.ReadSector(ctx, 3, gotData, gotOOS)
	assert.Equal(t, EccUncorrectable, status)
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.EccUncorr))
}

func TestReadSectorRejectsWrongBufferLengths(t *testing.T) {
	chip := simnand.New()
	ctrl, err := NewController(chip, testPart(), nil, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl.Setup(2048))

	ctx := context.Background()
	_, err = ctrl.ReadSector(ctx, 0, make([]byte, 10), make([]byte, 62))
	assert.Error(t, err)

	_, err = ctrl.ReadSector(ctx, 0, make([]byte, 2048), make([]byte, 10))
	assert.Error(t, err)
}
