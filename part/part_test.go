// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package part

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreeSpareMapTrimsAtSentinel(t *testing.T) {
	raw := []SpareRange{
		{Offset: 2, Len: 6},
		{Offset: 12, Len: 54},
		{Offset: SpareRangeSentinel, Len: 0},
	}

	m := ParseFreeSpareMap(raw)
	require.Len(t, m, 2)
	assert.EqualValues(t, 60, m.TotalLen())
}

func TestFreeSpareMapValidateRejectsOverlap(t *testing.T) {
	m := FreeSpareMap{
		{Offset: 2, Len: 10},
		{Offset: 8, Len: 10}, // overlaps
	}
	assert.Error(t, m.Validate())
}

func TestFreeSpareMapValidateAcceptsAscending(t *testing.T) {
	m := FreeSpareMap{
		{Offset: 2, Len: 62},
	}
	assert.NoError(t, m.Validate())
}

func TestDescriptorValidateRejectsOddOffsetOn16Bit(t *testing.T) {
	d := &Descriptor{
		BlkCnt: 1024, PgPerBlk: 64, PgSize: 2048, SpareSize: 64,
		BusWidth: 16,
		FreeSpareMap: FreeSpareMap{
			{Offset: 3, Len: 60}, // odd offset
		},
	}
	assert.Error(t, d.Validate())
}

func TestDescriptorValidateOK(t *testing.T) {
	d := &Descriptor{
		BlkCnt: 1024, PgPerBlk: 64, PgSize: 2048, SpareSize: 64,
		BusWidth: 8,
		FreeSpareMap: FreeSpareMap{
			{Offset: 2, Len: 62},
		},
	}
	require.NoError(t, d.Validate())
	assert.EqualValues(t, 1024*64, d.RowAddrSpace())
}
