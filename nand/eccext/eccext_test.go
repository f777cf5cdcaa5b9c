// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package eccext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/nand"
)

func newCodeword(t *testing.T, size int) ([]byte, nand.ExtData, *Hamming, []byte) {
	t.Helper()
	h := &Hamming{CodewordSize: size}
	require.NoError(t, h.Init())
	data, err := h.Open(nil)
	require.NoError(t, err)
	n, err := h.Setup(data)
	require.NoError(t, err)

	sec := make([]byte, size)
	for i := range sec {
		sec[i] = byte(i*7 + 3)
	}
	oos := make([]byte, n)
	require.NoError(t, h.ECCCalc(data, sec, oos))
	return sec, data, h, oos
}

func TestECCVerifyCleanCodeword(t *testing.T) {
	sec, data, h, oos := newCodeword(t, 256)
	status, err := h.ECCVerify(data, sec, oos)
	require.NoError(t, err)
	assert.Equal(t, nand.EccOK, status)
}

func TestECCVerifyCorrectsSingleDataBitFlip(t *testing.T) {
	sec, data, h, oos := newCodeword(t, 256)
	original := append([]byte(nil), sec...)

	sec[100] ^= 0x08 // flip one bit

	status, err := h.ECCVerify(data, sec, oos)
	require.NoError(t, err)
	assert.Equal(t, nand.EccCorrected, status)
	assert.Equal(t, original, sec)
}

func TestECCVerifyCorrectsSingleParityBitFlip(t *testing.T) {
	sec, data, h, oos := newCodeword(t, 256)
	oos[0] ^= 0x01

	status, err := h.ECCVerify(data, sec, oos)
	require.NoError(t, err)
	assert.Equal(t, nand.EccCorrected, status)
}

func TestECCVerifyDetectsUncorrectableDoubleFlip(t *testing.T) {
	sec, data, h, oos := newCodeword(t, 256)
	sec[10] ^= 0x01
	sec[200] ^= 0x80

	status, err := h.ECCVerify(data, sec, oos)
	assert.Error(t, err)
	assert.Equal(t, nand.EccUncorrectable, status)
}

func TestInitRejectsNonPowerOfTwo(t *testing.T) {
	h := &Hamming{CodewordSize: 300}
	assert.Error(t, h.Init())
}
