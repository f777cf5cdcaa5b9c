// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package eccext implements a software nand.Extension: a Hamming single-
// error-correcting, double-error-detecting code over one codeword of sector
// data, in the style raw SLC NAND controllers compute in hardware. Bit
// manipulation follows the same math/bits idiom as the teacher's bitops.go.
package eccext

import (
	"fmt"
	"math/bits"

	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/nand"
)

// addrBitsFor returns the number of address lines needed to index every bit
// of an n-byte codeword (n*8 bits).
func addrBitsFor(n int) int {
	return bits.Len(uint(n*8 - 1))
}

// parityBytesFor returns how many octets hold 2 parity bits per address
// line (even + odd), rounded up to a whole byte.
func parityBytesFor(addrBits int) int {
	return (2*addrBits + 7) / 8
}

// Hamming is a nand.Extension computing line-parity ECC over fixed-size
// codewords. CodewordSize must be a power of two; the parity size is
// derived from it and is what Setup reports as the per-sector OOS
// reservation.
type Hamming struct {
	CodewordSize int

	addrBits int
}

func (h *Hamming) Init() error {
	const op = "eccext.Hamming.Init"
	if h.CodewordSize <= 0 || h.CodewordSize&(h.CodewordSize-1) != 0 {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("codeword size %d is not a positive power of two", h.CodewordSize))
	}
	h.addrBits = addrBitsFor(h.CodewordSize)
	return nil
}

// codewordState is the per-controller ExtData the controller threads
// through Setup/ECCCalc/ECCVerify.
type codewordState struct {
	parityBytes int
}

func (h *Hamming) Open(cfg any) (nand.ExtData, error) {
	return &codewordState{parityBytes: parityBytesFor(h.addrBits)}, nil
}

func (h *Hamming) Close(nand.ExtData) error { return nil }

// Setup reserves parityBytes octets per codeword of OOS.
func (h *Hamming) Setup(data nand.ExtData) (uint32, error) {
	st := data.(*codewordState)
	return uint32(st.parityBytes), nil
}

// lineParity computes the 2*addrBits parity bits (even/odd per address
// line) over codeword, packed LSB-first into out.
func lineParity(codeword []byte, addrBits int, out []byte) {
	for i := range out {
		out[i] = 0
	}
	for byteIx, b := range codeword {
		for bit := 0; bit < 8 && b != 0; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			k := byteIx*8 + bit
			for line := 0; line < addrBits; line++ {
				parityIx := 2 * line
				if (k>>uint(line))&1 != 0 {
					parityIx++
				}
				out[parityIx/8] ^= 1 << uint(parityIx%8)
			}
		}
	}
}

// ECCCalc computes line parity over secBuf and writes it into the trailing
// parityBytes octets of oosBuf: the sector's OOS quota, whose leading
// octets hold the caller's OOS and whose tail is what Setup reserved.
func (h *Hamming) ECCCalc(data nand.ExtData, secBuf, oosBuf []byte) error {
	const op = "eccext.Hamming.ECCCalc"
	st := data.(*codewordState)
	if len(oosBuf) < st.parityBytes {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("oosBuf has %d octets, need %d", len(oosBuf), st.parityBytes))
	}
	lineParity(secBuf, h.addrBits, oosBuf[len(oosBuf)-st.parityBytes:])
	return nil
}

// ECCVerify recomputes line parity over secBuf, XORs it against the parity
// stored in the trailing parityBytes octets of oosBuf to form a syndrome,
// and classifies the result:
//   - syndrome all-zero: no error
//   - one set bit per address line (addrBits bits) that decodes to a bit
//     index inside secBuf: a flipped data bit, corrected in place
//   - exactly one set bit: a flipped parity bit, data left as is
//   - otherwise: uncorrectable
func (h *Hamming) ECCVerify(data nand.ExtData, secBuf, oosBuf []byte) (nand.EccStatus, error) {
	const op = "eccext.Hamming.ECCVerify"
	st := data.(*codewordState)
	if len(oosBuf) < st.parityBytes {
		return nand.EccUncorrectable, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("oosBuf has %d octets, need %d", len(oosBuf), st.parityBytes))
	}
	stored := oosBuf[len(oosBuf)-st.parityBytes:]

	computed := make([]byte, st.parityBytes)
	lineParity(secBuf, h.addrBits, computed)

	syndrome := make([]byte, st.parityBytes)
	nSet := 0
	for i := range computed {
		syndrome[i] = computed[i] ^ stored[i]
		nSet += bits.OnesCount8(syndrome[i])
	}
	if nSet == 0 {
		return nand.EccOK, nil
	}

	// A single flipped data bit produces exactly one set bit per address
	// line pair (even xor odd always 1, since exactly one of the pair
	// covers the bad bit): addrBits set bits total, forming a valid bit
	// index when decoded.
	if nSet == h.addrBits {
		badBit, ok := decodeSyndrome(syndrome, h.addrBits)
		if !ok {
			return nand.EccUncorrectable, ferrors.New(ferrors.EccUncorr, op, fmt.Errorf("syndrome has %d bits set but does not decode to a single bit index", nSet))
		}
		if badBit/8 >= len(secBuf) {
			return nand.EccUncorrectable, ferrors.New(ferrors.EccUncorr, op, fmt.Errorf("decoded bit index %d exceeds codeword", badBit))
		}
		secBuf[badBit/8] ^= 1 << uint(badBit%8)
		return nand.EccCorrected, nil
	}

	// A single flipped parity (not data) bit produces exactly one set
	// syndrome bit overall: the stored parity was wrong, data is fine.
	if nSet == 1 {
		return nand.EccCorrected, nil
	}

	return nand.EccUncorrectable, ferrors.New(ferrors.EccUncorr, op, fmt.Errorf("syndrome has %d bits set, not correctable", nSet))
}

// decodeSyndrome reconstructs the bad bit index from a syndrome where each
// address line contributed exactly one set bit (odd half set => that
// line's address bit is 1).
func decodeSyndrome(syndrome []byte, addrBits int) (int, bool) {
	idx := 0
	for line := 0; line < addrBits; line++ {
		evenIx := 2 * line
		oddIx := evenIx + 1
		evenSet := syndrome[evenIx/8]&(1<<uint(evenIx%8)) != 0
		oddSet := syndrome[oddIx/8]&(1<<uint(oddIx%8)) != 0
		switch {
		case oddSet && !evenSet:
			idx |= 1 << uint(line)
		case evenSet && !oddSet:
			// address bit is 0, nothing to set
		default:
			return 0, false
		}
	}
	return idx, true
}

var (
	_ nand.Extension        = (*Hamming)(nil)
	_ nand.ExtOpener        = (*Hamming)(nil)
	_ nand.ExtCloser        = (*Hamming)(nil)
	_ nand.ExtSetuper       = (*Hamming)(nil)
	_ nand.ExtEccCalculator = (*Hamming)(nil)
	_ nand.ExtEccVerifier   = (*Hamming)(nil)
)
