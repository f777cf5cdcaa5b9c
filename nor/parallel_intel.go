// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"context"
	"fmt"
	"time"

	"github.com/dswarbrick/flashcore/bsp"
	"github.com/dswarbrick/flashcore/ferrors"
)

const (
	intelCmdReadArray   = 0x00FF
	intelCmdReadStatus  = 0x0070
	intelCmdClearStatus = 0x0050
	intelCmdProgram     = 0x0040
	intelCmdEraseSetup  = 0x0020
	intelCmdEraseConfrm = 0x00D0
	intelCmdEnterQuery  = 0x0098

	intelCFISetCode = 0x0001

	intelStatusWSMS    = 1 << 7
	intelStatusErase   = 1 << 5
	intelStatusProgram = 1 << 4
	intelStatusBlkLock = 1 << 1
)

// IntelParallel drives Intel/Numonyx-compatible parallel NOR: CFI
// self-identification at the device's CFI query offset, status-register
// polled program/erase, and a return to read-array mode on either outcome.
type IntelParallel struct {
	bus     bsp.ParallelNORBus
	timeout time.Duration
	eraseTO time.Duration
	geom    Geometry
}

func NewIntelParallel(bus bsp.ParallelNORBus, timeout, eraseTimeout time.Duration) *IntelParallel {
	return &IntelParallel{bus: bus, timeout: timeout, eraseTO: eraseTimeout}
}

func (d *IntelParallel) Geometry() Geometry { return d.geom }

// Open enters CFI query mode at offset 0x10, validates the QRY signature
// and the Intel command-set algorithm code, then derives region count,
// block count, block size, device size and multi-byte program size per
// spec.md §4.4. Any CFI inconsistency fails Open.
func (d *IntelParallel) Open(ctx context.Context) error {
	const op = "nor.IntelParallel.Open"

	if err := d.bus.WrWord(0x55, intelCmdEnterQuery); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}

	sig := [3]byte{byte(d.readWord(0x10)), byte(d.readWord(0x11)), byte(d.readWord(0x12))}
	if sig != [3]byte{'Q', 'R', 'Y'} {
		d.bus.WrWord(0, intelCmdReadArray)
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("CFI signature %q != QRY", sig[:]))
	}

	algoLo := d.readWord(0x13)
	algoHi := d.readWord(0x14)
	algo := uint32(algoLo) | uint32(algoHi)<<8
	if algo != intelCFISetCode {
		d.bus.WrWord(0, intelCmdReadArray)
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("CFI command-set algorithm %#06x != Intel (0x0001)", algo))
	}

	sizeExp := d.readWord(0x27)
	deviceSize := uint64(1) << sizeExp

	// The device is word-oriented even without a declared multi-byte
	// write buffer, so the floor is one 16-bit word, not one byte.
	var programPageSize uint32 = 2
	if maxWriteExp := d.readWord(0x2A); maxWriteExp != 0 {
		programPageSize = 1 << maxWriteExp
	}

	regionCount := d.readWord(0x2C)
	var blockCount uint32
	var blockSize uint32
	for i := uint16(0); i < regionCount; i++ {
		base := uint16(0x2D) + 4*i
		numBlocksM1 := uint32(d.readWord(base)) | uint32(d.readWord(base+1))<<8
		blockSizeUnits := uint32(d.readWord(base+2)) | uint32(d.readWord(base+3))<<8
		blockCount += numBlocksM1 + 1
		blockSize = blockSizeUnits * 256 // the last region's size is kept when regions differ
	}
	if regionCount == 0 || blockCount == 0 || blockSize == 0 {
		d.bus.WrWord(0, intelCmdReadArray)
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("CFI erase-block-region table is empty"))
	}

	d.geom = Geometry{
		BlockCount:      blockCount,
		BlockSize:       blockSize,
		DeviceSize:      deviceSize,
		ProgramPageSize: programPageSize,
	}

	if err := d.exitQuery(); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	return nil
}

func (d *IntelParallel) readWord(addr uintptr) uint16 {
	v, _ := d.bus.RdWord(addr)
	return v
}

func (d *IntelParallel) exitQuery() error {
	return d.bus.WrWord(0, intelCmdReadArray)
}

func (d *IntelParallel) Close() error { return d.bus.Close() }

func (d *IntelParallel) Rd(ctx context.Context, dest []byte, start uint64, cnt int) error {
	const op = "nor.IntelParallel.Rd"
	if cnt > len(dest) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("dest too short for cnt %d", cnt))
	}
	if err := d.bus.WrWord(0, intelCmdReadArray); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	for i := 0; i < cnt; i += 2 {
		w, err := d.bus.RdWord(uintptr(start) + uintptr(i))
		if err != nil {
			return ferrors.New(ferrors.IO, op, err)
		}
		dest[i] = byte(w)
		if i+1 < cnt {
			dest[i+1] = byte(w >> 8)
		}
	}
	return nil
}

func (d *IntelParallel) pollStatus(ctx context.Context, timeout time.Duration) (uint16, error) {
	const op = "nor.IntelParallel.pollStatus"
	deadline := time.Now().Add(timeout)
	for {
		st, err := d.bus.RdWord(0)
		if err != nil {
			return 0, ferrors.New(ferrors.IO, op, err)
		}
		if st&intelStatusWSMS != 0 {
			return st, nil
		}
		if time.Now().After(deadline) {
			d.bus.WrWord(0, intelCmdClearStatus)
			d.exitQuery()
			return st, ferrors.New(ferrors.Timeout, op, nil)
		}
		select {
		case <-ctx.Done():
			return st, ferrors.New(ferrors.Timeout, op, ctx.Err())
		default:
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// Wr programs src[0:cnt] starting at start, splitting on the CFI-declared
// multi-byte program boundary exactly as the SPI families split on 256.
func (d *IntelParallel) Wr(ctx context.Context, src []byte, start uint64, cnt int) error {
	const op = "nor.IntelParallel.Wr"
	if cnt > len(src) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("src too short for cnt %d", cnt))
	}
	for _, c := range splitPages(start, cnt, d.geom.ProgramPageSize) {
		if err := d.programChunk(ctx, c.start, src[c.off:c.off+c.len]); err != nil {
			return err
		}
	}
	return nil
}

func (d *IntelParallel) programChunk(ctx context.Context, start uint64, data []byte) error {
	const op = "nor.IntelParallel.programChunk"
	if err := d.bus.WrWord(0, intelCmdClearStatus); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	for i := 0; i < len(data); i += 2 {
		w := uint16(data[i])
		if i+1 < len(data) {
			w |= uint16(data[i+1]) << 8
		}
		addr := uintptr(start) + uintptr(i)
		if err := d.bus.WrWord(addr, intelCmdProgram); err != nil {
			return ferrors.New(ferrors.IO, op, err)
		}
		if err := d.bus.WrWord(addr, w); err != nil {
			return ferrors.New(ferrors.IO, op, err)
		}
		st, err := d.pollStatus(ctx, d.timeout)
		if err != nil {
			return err
		}
		if st&(intelStatusProgram|intelStatusBlkLock) != 0 {
			d.bus.WrWord(0, intelCmdClearStatus)
			d.exitQuery()
			return ferrors.New(ferrors.OpFailed, op, fmt.Errorf("status register reports program error: %#04x", st))
		}
	}
	return d.exitQuery()
}

// EraseBlk erases one block via the Erase-Setup/Erase-Confirm command
// pair, polling status until ready or the family timeout elapses.
func (d *IntelParallel) EraseBlk(ctx context.Context, start uint64, size uint32) error {
	const op = "nor.IntelParallel.EraseBlk"
	if size != d.geom.BlockSize {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("erase size %d != block size %d", size, d.geom.BlockSize))
	}
	if err := d.bus.WrWord(0, intelCmdClearStatus); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	addr := uintptr(start)
	if err := d.bus.WrWord(addr, intelCmdEraseSetup); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	if err := d.bus.WrWord(addr, intelCmdEraseConfrm); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	st, err := d.pollStatus(ctx, d.eraseTO)
	if err != nil {
		return err
	}
	if st&intelStatusErase != 0 {
		d.bus.WrWord(0, intelCmdClearStatus)
		d.exitQuery()
		return ferrors.New(ferrors.OpFailed, op, fmt.Errorf("status register reports erase error: %#04x", st))
	}
	return d.exitQuery()
}

func (d *IntelParallel) IOCtrl(ctx context.Context, op2 IOCtrlOp, arg any) error {
	const op = "nor.IntelParallel.IOCtrl"
	switch op2 {
	case EraseChip:
		for blk := uint32(0); blk < d.geom.BlockCount; blk++ {
			if err := d.EraseBlk(ctx, uint64(blk)*uint64(d.geom.BlockSize), d.geom.BlockSize); err != nil {
				return err
			}
		}
		return nil
	default:
		return ferrors.New(ferrors.InvalidIoCtl, op, fmt.Errorf("unrecognized op %d", op2))
	}
}
