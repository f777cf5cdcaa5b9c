// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package onfi reconstructs NAND device geometry from ONFI parameter pages
// retrieved through a nand.Controller, validating the multi-copy CRC and
// optionally walking an extended parameter page.
package onfi

// CRC16 computes the ONFI parameter-page CRC: polynomial 0x8005, initial
// value 0x4F4E, MSB-first (no input/output reflection), no final XOR.
func CRC16(data []byte) uint16 {
	const poly = 0x8005
	crc := uint16(0x4F4E)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
