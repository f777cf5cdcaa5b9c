// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package onfi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16IsSensitiveToAnyBitFlip(t *testing.T) {
	page := make([]byte, 254)
	for i := range page {
		page[i] = byte(i * 7)
	}
	base := CRC16(page)

	for _, bit := range []int{0, 3, 7} {
		flipped := append([]byte(nil), page...)
		flipped[100] ^= 1 << bit
		assert.NotEqual(t, base, CRC16(flipped), "bit %d flip at byte 100 went undetected", bit)
	}
}

func TestCRC16Deterministic(t *testing.T) {
	assert.Equal(t, CRC16([]byte{}), CRC16([]byte{}))
	assert.NotEqual(t, CRC16([]byte{0x00}), CRC16([]byte{0x01}))
}
