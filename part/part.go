// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package part defines the immutable NAND part descriptor shared by every
// part-identification layer (ONFI parameter-page reader, static config) and
// consumed by the generic NAND controller.
package part

import (
	"fmt"

	"github.com/dswarbrick/flashcore/ferrors"
)

// DefectMarkType tags one of the six factory bad-block marker conventions
// a NAND part may use. The controller itself never inspects these markers
// (bad-block management is out of scope); the tag is carried so an upstream
// bad-block scanner can interpret the spare area correctly.
type DefectMarkType int

const (
	// DefectMarkWord1stPage: marker is a word in byte/word 1 of spare, page 1 only.
	DefectMarkWord1stPage DefectMarkType = iota
	// DefectMarkWord1stOrLastPage: marker is a word in byte/word 1 of spare, page 1 or last page of block.
	DefectMarkWord1stOrLastPage
	// DefectMarkWord1st2ndPage: marker is a word in byte/word 1 of spare, pages 1 and 2.
	DefectMarkWord1st2ndPage
	// DefectMarkByte6th1stPage: marker is byte 6 of spare, page 1 only.
	DefectMarkByte6th1stPage
	// DefectMarkByte6th1st2ndPage: marker is byte 6 of spare, pages 1 and 2.
	DefectMarkByte6th1st2ndPage
	// DefectMarkByte1stPage: marker is any byte of spare, page 1 only.
	DefectMarkByte1stPage
)

func (d DefectMarkType) String() string {
	switch d {
	case DefectMarkWord1stPage:
		return "word@spare[1], page 1"
	case DefectMarkWord1stOrLastPage:
		return "word@spare[1], page 1 or last"
	case DefectMarkWord1st2ndPage:
		return "word@spare[1], pages 1-2"
	case DefectMarkByte6th1stPage:
		return "byte@spare[6], page 1"
	case DefectMarkByte6th1st2ndPage:
		return "byte@spare[6], pages 1-2"
	case DefectMarkByte1stPage:
		return "any byte@spare, page 1"
	default:
		return fmt.Sprintf("DefectMarkType(%d)", int(d))
	}
}

// SpareRangeSentinel is the offset value that terminates a raw, C-style
// free-spare-map array passed to ParseFreeSpareMap. It is never a valid
// octet offset because it exceeds any page's addressable spare size.
const SpareRangeSentinel = ^uint32(0)

// SpareRange is one (octet_offset, octet_len) entry of a FreeSpareMap.
type SpareRange struct {
	Offset uint32
	Len    uint32
}

// FreeSpareMap is the part-specific ordered, non-overlapping,
// strictly-ascending list of spare-area regions usable for OOS data.
type FreeSpareMap []SpareRange

// ParseFreeSpareMap trims a raw list at its first SpareRangeSentinel entry
// (or the end of raw if no sentinel is present), mirroring the sentinel-
// terminated array the hardware's static configuration tables use.
func ParseFreeSpareMap(raw []SpareRange) FreeSpareMap {
	out := make(FreeSpareMap, 0, len(raw))
	for _, r := range raw {
		if r.Offset == SpareRangeSentinel {
			break
		}
		out = append(out, r)
	}
	return out
}

// TotalLen returns the sum of every region's length.
func (m FreeSpareMap) TotalLen() uint32 {
	var total uint32
	for _, r := range m {
		total += r.Len
	}
	return total
}

// Validate checks the map is non-overlapping and strictly ascending.
func (m FreeSpareMap) Validate() error {
	var prevEnd uint32
	for i, r := range m {
		if r.Len == 0 {
			return ferrors.New(ferrors.InvalidLowParams, "FreeSpareMap.Validate",
				fmt.Errorf("region %d has zero length", i))
		}
		if i > 0 && r.Offset < prevEnd {
			return ferrors.New(ferrors.InvalidLowParams, "FreeSpareMap.Validate",
				fmt.Errorf("region %d starts at %d, before previous region ends at %d", i, r.Offset, prevEnd))
		}
		prevEnd = r.Offset + r.Len
	}
	return nil
}

// Descriptor is the immutable-after-Open NAND part geometry, as produced by
// either the ONFI parameter-page reader or the static config loader.
type Descriptor struct {
	BlkCnt      uint32
	PgPerBlk    uint32
	PgSize      uint32 // octets
	SpareSize   uint32 // octets per page

	BusWidth    uint8 // 8 or 16
	NbrPgmPerPg uint8 // max partial programs per page between erases

	ECCNbrCorrBits  uint8
	ECCCodewordSize uint32

	DefectMarkType DefectMarkType

	MaxBadBlkCnt uint32
	MaxBlkErase  uint32

	FreeSpareMap FreeSpareMap
}

// Validate enforces the Part descriptor invariants from the controller's
// point of view: legal bus width, a usable free-spare map, and page/block
// geometry that is not degenerate.
func (d *Descriptor) Validate() error {
	const op = "Descriptor.Validate"

	if d.BusWidth != 8 && d.BusWidth != 16 {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("bus width %d not in {8,16}", d.BusWidth))
	}
	if d.PgSize == 0 || d.BlkCnt == 0 || d.PgPerBlk == 0 {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("degenerate geometry: PgSize=%d BlkCnt=%d PgPerBlk=%d",
			d.PgSize, d.BlkCnt, d.PgPerBlk))
	}
	if len(d.FreeSpareMap) == 0 {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("empty FreeSpareMap"))
	}
	if err := d.FreeSpareMap.Validate(); err != nil {
		return err
	}
	if d.BusWidth == 16 {
		for i, r := range d.FreeSpareMap {
			if r.Offset%2 != 0 {
				return ferrors.New(ferrors.InvalidLowParams, op,
					fmt.Errorf("16-bit bus requires even spare offsets, region %d starts at %d", i, r.Offset))
			}
		}
	}
	return nil
}

// RowAddrSpace returns the number of addressable rows (pages), used to size
// the row address field.
func (d *Descriptor) RowAddrSpace() uint64 {
	return uint64(d.BlkCnt) * uint64(d.PgPerBlk)
}
