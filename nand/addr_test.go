// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColAddrSizeSmallPageIsAlwaysOneOctet(t *testing.T) {
	assert.Equal(t, 1, ColAddrSize(512))
}

func TestColAddrSizeLargePage(t *testing.T) {
	assert.Equal(t, 2, ColAddrSize(2048))
	assert.Equal(t, 2, ColAddrSize(4096))
}

func TestRowAddrSizeClampsToThreeOctets(t *testing.T) {
	assert.Equal(t, 3, RowAddrSize(1<<30))
}

func TestSmallPageZoneSelection(t *testing.T) {
	op, col := SmallPageZone(100, 8)
	assert.Equal(t, byte(opReadSetupA), op)
	assert.EqualValues(t, 100, col)

	op, col = SmallPageZone(300, 8)
	assert.Equal(t, byte(opReadSetupB), op)
	assert.EqualValues(t, 300-256, col)

	op, col = SmallPageZone(600, 8)
	assert.Equal(t, byte(opReadSetupC), op)
	assert.EqualValues(t, 600-512, col)

	// 16-bit bus never takes the zone-B path.
	op, col = SmallPageZone(300, 16)
	assert.Equal(t, byte(opReadSetupA), op)
	assert.EqualValues(t, 300, col)
}

func TestColForBusWordAddressing(t *testing.T) {
	assert.EqualValues(t, 50, ColForBus(100, 16))
	assert.EqualValues(t, 100, ColForBus(100, 8))
}

func TestFormatAddrLittleEndianColThenRow(t *testing.T) {
	buf := FormatAddr(2, 3, 0x1234, 0x030201)
	assert.Equal(t, []byte{0x34, 0x12, 0x01, 0x02, 0x03}, buf)
}

func TestFormatRowAddr(t *testing.T) {
	buf := FormatRowAddr(3, 0x030201)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
}
