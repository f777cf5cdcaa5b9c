// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package onfi

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/bsp/simnand"
	"github.com/dswarbrick/flashcore/nand"
	"github.com/dswarbrick/flashcore/part"
)

// primaryPageFields describes the handful of primary-page fields each test
// cares about; everything else is left zeroed.
type primaryPageFields struct {
	revision       uint16
	bus16          bool
	extPresent     bool
	extLenField    uint16
	copyCount      byte
	pgSize         uint32
	spareSize      uint16
	pgPerBlk       uint32
	blkPerLUN      uint32
	lunCount       byte
	maxBadBlocks   uint16
	mbeValue       byte
	mbeMultiplier  byte
	partialProgram byte
	eccBits        byte
}

func buildPrimaryPage(f primaryPageFields) []byte {
	buf := make([]byte, 256)
	copy(buf[0:4], "ONFI")
	binary.LittleEndian.PutUint16(buf[4:6], f.revision)
	var b6 byte
	if f.bus16 {
		b6 |= 0x01
	}
	if f.extPresent {
		b6 |= 0x80
	}
	buf[6] = b6
	binary.LittleEndian.PutUint16(buf[12:14], f.extLenField)
	buf[14] = f.copyCount
	binary.LittleEndian.PutUint32(buf[80:84], f.pgSize)
	binary.LittleEndian.PutUint16(buf[84:86], f.spareSize)
	binary.LittleEndian.PutUint32(buf[92:96], f.pgPerBlk)
	binary.LittleEndian.PutUint32(buf[96:100], f.blkPerLUN)
	buf[100] = f.lunCount
	binary.LittleEndian.PutUint16(buf[103:105], f.maxBadBlocks)
	buf[105] = f.mbeValue
	buf[106] = f.mbeMultiplier
	buf[110] = f.partialProgram
	buf[112] = f.eccBits
	binary.LittleEndian.PutUint16(buf[254:256], CRC16(buf[0:254]))
	return buf
}

func basicFields() primaryPageFields {
	return primaryPageFields{
		revision:       1 << 4, // 2.2
		pgSize:         2048,
		spareSize:      64,
		pgPerBlk:       64,
		blkPerLUN:      1024,
		lunCount:       1,
		maxBadBlocks:   80,
		mbeValue:       3,
		mbeMultiplier:  2, // 3 * 10^2 = 300
		partialProgram: 4,
		eccBits:        4,
		copyCount:      1,
	}
}

func TestParseParamPageHappyPath(t *testing.T) {
	raw := buildPrimaryPage(basicFields())
	pp, err := ParseParamPage(raw)
	require.NoError(t, err)

	assert.Equal(t, "2.2", pp.Revision)
	assert.EqualValues(t, 8, pp.BusWidth)
	assert.EqualValues(t, 2048, pp.PgSize)
	assert.EqualValues(t, 64, pp.SpareSize)
	assert.EqualValues(t, 64, pp.PgPerBlk)
	assert.EqualValues(t, 1024, pp.BlkPerLUN)
	assert.EqualValues(t, 4, pp.ECCCorrectableBits)
	assert.EqualValues(t, 300, pp.MaxBlockErases)
}

func TestParseParamPageRejectsBitFlip(t *testing.T) {
	raw := buildPrimaryPage(basicFields())
	raw[100] ^= 0x01 // corrupt a data byte covered by the CRC
	_, err := ParseParamPage(raw)
	assert.Error(t, err)
}

func TestParseParamPageECCEscapeRequiresExtendedPage(t *testing.T) {
	f := basicFields()
	f.eccBits = 0xFF
	f.extPresent = false
	raw := buildPrimaryPage(f)
	pp, err := ParseParamPage(raw)
	require.NoError(t, err)
	assert.True(t, pp.needsExtendedPage())
	assert.False(t, pp.ExtendedPagePresent)
}

func buildExtendedPage(eccBits byte, codewordExp byte) []byte {
	buf := make([]byte, 64) // extLenField=4 -> 64 octets
	copy(buf[2:6], "EPPS")
	buf[16] = sectionECCInfo
	buf[17] = 1 // 1*16 = 16 octets of section data
	buf[32] = eccBits
	buf[33] = codewordExp
	binary.LittleEndian.PutUint16(buf[0:2], CRC16(buf[2:64]))
	return buf
}

func TestParseExtendedParamPageECCInfo(t *testing.T) {
	raw := buildExtendedPage(4, 10) // codeword size 2^10 = 1024
	ext, err := ParseExtendedParamPage(raw, 64)
	require.NoError(t, err)
	assert.EqualValues(t, 4, ext.ECCNbrCorrBits)
	assert.EqualValues(t, 1024, ext.ECCCodewordSize)
}

func TestParseExtendedParamPageRejectsBadSignature(t *testing.T) {
	raw := buildExtendedPage(4, 10)
	raw[2] = 'X'
	binary.LittleEndian.PutUint16(raw[0:2], CRC16(raw[2:64]))
	_, err := ParseExtendedParamPage(raw, 64)
	assert.Error(t, err)
}

func TestParseExtendedParamPageSpecifierRedirectsToRecordedOffset(t *testing.T) {
	buf := make([]byte, 96)
	copy(buf[2:6], "EPPS")

	// Descriptor 0: Specifier, 1*16 octets of data at [32:48).
	buf[16] = sectionSpecifier
	buf[17] = 1
	// Specifier's data records the extra-section-descriptor offset: 48.
	binary.LittleEndian.PutUint16(buf[32:34], 48)

	// Extra descriptor at offset 48: ECC-Info, 1*16 octets of data at [64:80).
	buf[48] = sectionECCInfo
	buf[49] = 1
	buf[64] = 6
	buf[65] = 9 // codeword size 2^9 = 512

	binary.LittleEndian.PutUint16(buf[0:2], CRC16(buf[2:96]))

	ext, err := ParseExtendedParamPage(buf, 96)
	require.NoError(t, err)
	assert.EqualValues(t, 6, ext.ECCNbrCorrBits)
	assert.EqualValues(t, 512, ext.ECCCodewordSize)
}

func TestReadEndToEndAgainstSimulatedChip(t *testing.T) {
	chip := simnand.New()
	chip.ParamPage = buildPrimaryPage(basicFields())

	p := &part.Descriptor{
		BlkCnt:       1024,
		PgPerBlk:     64,
		PgSize:       2048,
		SpareSize:    64,
		BusWidth:     8,
		FreeSpareMap: part.FreeSpareMap{{Offset: 2, Len: 62}},
	}
	ctrl, err := nand.NewController(chip, p, nil, nand.DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl.Setup(2048))

	pp, ext, err := Read(context.Background(), ctrl)
	require.NoError(t, err)
	assert.Nil(t, ext)
	assert.EqualValues(t, 2048, pp.PgSize)
	assert.EqualValues(t, 1024, pp.BlkPerLUN)

	desc := BuildDescriptor(pp, ext, p.FreeSpareMap, part.DefectMarkByte6th1stPage)
	assert.EqualValues(t, 2048, desc.PgSize)
	assert.EqualValues(t, 64, desc.SpareSize)
	assert.EqualValues(t, 64, desc.PgPerBlk)
	assert.EqualValues(t, 1024, desc.BlkCnt)
	assert.EqualValues(t, 4, desc.ECCNbrCorrBits)
}

func TestReadFailsAfterThreeBadCopies(t *testing.T) {
	chip := simnand.New()
	// Three consecutive 256-byte copies, all with a corrupted CRC.
	chip.ParamPage = make([]byte, 256*3)
	for i := 0; i < 3; i++ {
		copy(chip.ParamPage[i*256:], buildPrimaryPage(basicFields()))
		chip.ParamPage[i*256+100] ^= 0x01
	}

	p := &part.Descriptor{
		BlkCnt:       1024,
		PgPerBlk:     64,
		PgSize:       2048,
		SpareSize:    64,
		BusWidth:     8,
		FreeSpareMap: part.FreeSpareMap{{Offset: 2, Len: 62}},
	}
	ctrl, err := nand.NewController(chip, p, nil, nand.DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl.Setup(2048))

	_, _, err = Read(context.Background(), ctrl)
	assert.Error(t, err)
}
