// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package mmionor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These exercise the word-addressing and bounds-checking logic directly
// against a fake backing slice, sidestepping the real /dev/mem mapping
// that Open performs (not available outside a Linux host with access to
// physical memory).

func TestStrideSingleDevice(t *testing.T) {
	b := &Bus{devCount: 1}
	assert.Equal(t, uintptr(2), b.stride())
}

func TestStrideInterleavedDevices(t *testing.T) {
	b := &Bus{devCount: 2}
	assert.Equal(t, uintptr(4), b.stride())
}

func TestRdWrWordRoundTrip(t *testing.T) {
	b := &Bus{devCount: 1, mem: make([]byte, 16)}

	require.NoError(t, b.WrWord(3, 0xbeef))
	got, err := b.RdWord(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), got)
}

func TestRdWordOutOfRangeFails(t *testing.T) {
	b := &Bus{devCount: 1, mem: make([]byte, 4)}
	_, err := b.RdWord(10)
	assert.Error(t, err)
}

func TestWrWordOutOfRangeFails(t *testing.T) {
	b := &Bus{devCount: 1, mem: make([]byte, 4)}
	assert.Error(t, b.WrWord(10, 0x1234))
}

func TestInterleavedAddressingDoublesOffset(t *testing.T) {
	b := &Bus{devCount: 2, mem: make([]byte, 16)}
	require.NoError(t, b.WrWord(1, 0x1234))
	// stride 4 means logical word 1 lands at byte offset 4, not 2.
	assert.Equal(t, byte(0x34), b.mem[4])
	assert.Equal(t, byte(0x12), b.mem[5])
}
