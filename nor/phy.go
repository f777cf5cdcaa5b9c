// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package nor implements the NOR physical-layer drivers: a uniform PHY
// contract shared by every family, the page-boundary-splitting program/erase
// discipline common to all SPI parts, and one driver per recognized family
// (parallel Intel/CFI, parallel SST39, SPI AT25/SST25/STM25/W25Q).
package nor

import "context"

// IOCtrlOp enumerates the PHY-level I/O-control operations. EraseChip is the
// only one every family must support; families may reject others with
// ferrors.InvalidIoCtl.
type IOCtrlOp int

const (
	// EraseChip erases the entire device in one operation.
	EraseChip IOCtrlOp = iota
)

// Geometry is the device geometry a family's Open call derives from its
// identification sequence (JEDEC ID table lookup, or CFI table parse).
type Geometry struct {
	BlockCount uint32
	BlockSize  uint32
	DeviceSize uint64

	// ProgramPageSize bounds a single program opcode's data length (256 for
	// the SPI families; a CFI-declared multi-byte size for Intel parallel).
	ProgramPageSize uint32
}

// PHY is the uniform contract every NOR family driver satisfies.
type PHY interface {
	Open(ctx context.Context) error
	Close() error

	Rd(ctx context.Context, dest []byte, start uint64, cnt int) error
	Wr(ctx context.Context, src []byte, start uint64, cnt int) error
	EraseBlk(ctx context.Context, start uint64, size uint32) error

	IOCtrl(ctx context.Context, op IOCtrlOp, arg any) error

	Geometry() Geometry
}
