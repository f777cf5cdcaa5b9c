// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package simnor

import "testing"

func be24Bytes(addr uint32) [3]byte {
	return [3]byte{byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// TestAAIExplicitAddressOverridesCursor exercises the revision-A byte-wise
// AAI quirk path from the chip's side: when a continuation cycle resends
// its own address instead of relying on the chip's auto-incrementing
// cursor, the chip must honor that address rather than silently falling
// back to wherever its internal cursor last landed.
func TestAAIExplicitAddressOverridesCursor(t *testing.T) {
	c := NewSPIChip(4096)

	c.ChipSelEn()
	c.Wr([]byte{opWREN})
	c.ChipSelDis()

	a := be24Bytes(0x10)
	c.ChipSelEn()
	c.Wr([]byte{opAAIP})
	c.Wr(a[:])
	c.Wr([]byte{0xAA})
	c.ChipSelDis()

	if c.Mem[0x10] != 0xAA {
		t.Fatalf("opening AAI cycle: Mem[0x10] = %#02x, want 0xAA", c.Mem[0x10])
	}
	if c.aaiCursor != 0x11 {
		t.Fatalf("aaiCursor = %#x after opening cycle, want 0x11", c.aaiCursor)
	}

	// A continuation cycle that resends an unrelated address must program
	// there, not at the stale auto-increment cursor (0x11).
	b := be24Bytes(0x20)
	c.ChipSelEn()
	c.Wr([]byte{opAAIP})
	c.Wr(b[:])
	c.Wr([]byte{0xBB})
	c.ChipSelDis()

	if c.Mem[0x20] != 0xBB {
		t.Fatalf("addressed continuation cycle: Mem[0x20] = %#02x, want 0xBB", c.Mem[0x20])
	}
	if c.Mem[0x11] != 0xFF {
		t.Fatalf("addressed continuation cycle must not also fall back to the stale cursor: Mem[0x11] = %#02x, want 0xFF (erased)", c.Mem[0x11])
	}
}

// TestAAIAddresslessContinuationUsesCursor is the normal (non-quirk) path:
// a continuation cycle with no address bytes advances from wherever the
// chip's internal cursor landed after the previous cycle.
func TestAAIAddresslessContinuationUsesCursor(t *testing.T) {
	c := NewSPIChip(4096)

	c.ChipSelEn()
	c.Wr([]byte{opWREN})
	c.ChipSelDis()

	a := be24Bytes(0x40)
	c.ChipSelEn()
	c.Wr([]byte{opAAIP})
	c.Wr(a[:])
	c.Wr([]byte{0xAA})
	c.ChipSelDis()

	c.ChipSelEn()
	c.Wr([]byte{opAAIP})
	c.Wr([]byte{0xBB})
	c.ChipSelDis()

	if c.Mem[0x41] != 0xBB {
		t.Fatalf("addressless continuation: Mem[0x41] = %#02x, want 0xBB (auto-incremented cursor)", c.Mem[0x41])
	}
}
