// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/part"
)

func TestPackUnpackInverseNoNotch(t *testing.T) {
	freeMap := part.FreeSpareMap{{Offset: 2, Len: 62}}
	info := OOSInfo{PgOffset: 2, Len: 16}

	logical := make([]byte, 16)
	for i := range logical {
		logical[i] = byte(i)
	}

	packed, err := packSpare(logical, info, freeMap)
	require.NoError(t, err)
	assert.Equal(t, logical, packed) // no notch inside segment: pack is identity

	unpacked, err := unpackSpare(packed, info, freeMap)
	require.NoError(t, err)
	assert.Equal(t, logical, unpacked[:16])
}

func TestPackUnpackInverseAcrossNotch(t *testing.T) {
	// Two free regions with a 4-byte factory-reserved notch between them.
	freeMap := part.FreeSpareMap{
		{Offset: 8, Len: 10},
		{Offset: 22, Len: 10}, // notch: [18,22)
	}
	// Segment spans from 14 (within first region) across the notch into
	// the second region, ending at 26.
	info := OOSInfo{PgOffset: 14, Len: 12} // physical span [14,26)

	logical := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22} // 8 logical bytes (12 - 4 notch)

	packed, err := packSpare(logical, info, freeMap)
	require.NoError(t, err)
	require.Len(t, packed, 12)

	// Notch at relative offset 18-14=4, length 4, must be 0xFF.
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, packed[4:8])
	assert.Equal(t, logical[:4], packed[:4])
	assert.Equal(t, logical[4:], packed[8:12])

	unpacked, err := unpackSpare(packed, info, freeMap)
	require.NoError(t, err)
	assert.Equal(t, logical, unpacked[:8])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, unpacked[8:12])
}

func TestPackRejectsWrongLogicalLength(t *testing.T) {
	freeMap := part.FreeSpareMap{{Offset: 2, Len: 62}}
	info := OOSInfo{PgOffset: 2, Len: 16}

	_, err := packSpare(make([]byte, 10), info, freeMap)
	assert.Error(t, err)
}
