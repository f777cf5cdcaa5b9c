// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"fmt"

	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/part"
)

// OOSInfo locates one sector's out-of-sector metadata within the physical
// spare area of a page: an absolute page offset where the segment begins,
// and the segment's total physical length, which may exceed the sector's
// logical OOS quota when the segment spans a notch (a factory-reserved gap
// between two FreeSpareMap regions).
type OOSInfo struct {
	PgOffset uint32
	Len      uint32
}

// notch is a reserved gap between two consecutive FreeSpareMap regions.
type notch struct {
	offset uint32
	len    uint32
}

// notchesIn derives the notches between consecutive FreeSpareMap regions
// and returns those that fall entirely inside [start, start+length),
// relative to start.
func notchesIn(freeMap part.FreeSpareMap, start, length uint32) []notch {
	var out []notch
	end := start + length
	for i := 1; i < len(freeMap); i++ {
		gapStart := freeMap[i-1].Offset + freeMap[i-1].Len
		gapLen := freeMap[i].Offset - gapStart
		if gapLen == 0 {
			continue
		}
		if gapStart >= start && gapStart+gapLen <= end {
			out = append(out, notch{offset: gapStart - start, len: gapLen})
		}
	}
	return out
}

func notchTotalLen(notches []notch) uint32 {
	var total uint32
	for _, n := range notches {
		total += n.len
	}
	return total
}

// packSpare inserts 0xFF-filled notches into a contiguous logical OOS
// buffer to produce the physical segment buffer that is actually streamed
// to the device, per the Pack algorithm: notches are inserted from the
// leftmost to the rightmost, since each notch's offset is a physical offset
// that only holds once every notch to its left has been inserted.
func packSpare(logical []byte, info OOSInfo, freeMap part.FreeSpareMap) ([]byte, error) {
	notches := notchesIn(freeMap, info.PgOffset, info.Len)
	wantLogicalLen := info.Len - notchTotalLen(notches)
	if uint32(len(logical)) != wantLogicalLen {
		return nil, ferrors.New(ferrors.InvalidLowParams, "packSpare",
			fmt.Errorf("logical OOS length %d does not match segment's logical capacity %d", len(logical), wantLogicalLen))
	}

	buf := make([]byte, info.Len)
	copy(buf, logical)
	filled := uint32(len(logical))

	for _, n := range notches {
		copy(buf[n.offset+n.len:filled+n.len], buf[n.offset:filled])
		for j := n.offset; j < n.offset+n.len; j++ {
			buf[j] = 0xFF
		}
		filled += n.len
	}
	return buf, nil
}

// unpackSpare removes notches from a physical segment buffer, shifting the
// tail left and padding the vacated tail with 0xFF, so that the logically
// useful OOS bytes end up packed into the low portion of the returned
// buffer (whose length remains info.Len, matching the physical segment).
func unpackSpare(physical []byte, info OOSInfo, freeMap part.FreeSpareMap) ([]byte, error) {
	if uint32(len(physical)) != info.Len {
		return nil, ferrors.New(ferrors.InvalidLowParams, "unpackSpare",
			fmt.Errorf("physical buffer length %d does not match segment length %d", len(physical), info.Len))
	}
	notches := notchesIn(freeMap, info.PgOffset, info.Len)

	buf := append([]byte(nil), physical...)
	filled := info.Len

	for i := len(notches) - 1; i >= 0; i-- {
		n := notches[i]
		copy(buf[n.offset:filled-n.len], buf[n.offset+n.len:filled])
		filled -= n.len
		for j := filled; j < filled+n.len; j++ {
			buf[j] = 0xFF
		}
	}
	return buf, nil
}
