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

const opRDID = 0x9F

// eraseOpcodeFor chooses the opcode spec.md §4.4 says is "chosen by block
// size (4 KiB / 32 KiB / 64 KiB)".
func eraseOpcodeFor(blockSize uint32) (byte, error) {
	switch blockSize {
	case 4096:
		return 0x20, nil
	case 32768:
		return 0x52, nil
	case 65536:
		return 0xD8, nil
	default:
		return 0, fmt.Errorf("unsupported erase block size %d", blockSize)
	}
}

// classicSPI implements the "plain" SPI NOR protocol that AT25, STM25 and
// W25Q families all share: RDID identification, opcode-0x02 page program,
// block-size-selected erase opcode, plain/fast array read. The three family
// types below are thin named wrappers so each can carry its own family
// name and timeout defaults, mirroring spec.md §4.4's "family protocol"
// framing even where the wire-level behavior is identical.
type classicSPI struct {
	bus      bsp.SPINORBus
	family   string
	timeout  time.Duration
	eraseTO  time.Duration
	geometry Geometry
	eraseOp  byte
}

func newClassicSPI(bus bsp.SPINORBus, family string, programTimeout, eraseTimeout time.Duration) *classicSPI {
	return &classicSPI{bus: bus, family: family, timeout: programTimeout, eraseTO: eraseTimeout}
}

func (d *classicSPI) Open(ctx context.Context) error {
	const op = "nor.classicSPI.Open"
	if err := d.bus.Open(); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}

	var idBuf [3]byte
	err := func() error {
		d.bus.Lock()
		defer d.bus.Unlock()
		d.bus.ChipSelEn()
		defer d.bus.ChipSelDis()
		if err := d.bus.Wr([]byte{opRDID}); err != nil {
			return err
		}
		return d.bus.Rd(idBuf[:])
	}()
	if err != nil {
		d.bus.Close()
		return ferrors.New(ferrors.IO, op, err)
	}

	entry, err := lookupJEDEC(idBuf[0], uint16(idBuf[1])<<8|uint16(idBuf[2]))
	if err != nil {
		d.bus.Close()
		return err
	}

	eraseOp, err := eraseOpcodeFor(entry.BlockSize)
	if err != nil {
		d.bus.Close()
		return ferrors.New(ferrors.InvalidCfg, op, err)
	}

	d.eraseOp = eraseOp
	d.geometry = Geometry{
		BlockCount:      entry.BlockCount,
		BlockSize:       entry.BlockSize,
		DeviceSize:      uint64(entry.BlockCount) * uint64(entry.BlockSize),
		ProgramPageSize: 256,
	}
	return nil
}

func (d *classicSPI) Close() error { return d.bus.Close() }

func (d *classicSPI) Geometry() Geometry { return d.geometry }

func (d *classicSPI) Rd(ctx context.Context, dest []byte, start uint64, cnt int) error {
	const op = "nor.classicSPI.Rd"
	if cnt > len(dest) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("dest too short for cnt %d", cnt))
	}
	return readArray(d.bus, true, uint32(start), dest[:cnt])
}

func (d *classicSPI) Wr(ctx context.Context, src []byte, start uint64, cnt int) error {
	const op = "nor.classicSPI.Wr"
	if cnt > len(src) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("src too short for cnt %d", cnt))
	}
	for _, c := range splitPages(start, cnt, d.geometry.ProgramPageSize) {
		if err := programPage(ctx, d.bus, opPP, uint32(c.start), src[c.off:c.off+c.len], d.timeout); err != nil {
			return err
		}
	}
	return nil
}

func (d *classicSPI) EraseBlk(ctx context.Context, start uint64, size uint32) error {
	const op = "nor.classicSPI.EraseBlk"
	if size != d.geometry.BlockSize {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("erase size %d != block size %d", size, d.geometry.BlockSize))
	}
	return eraseRegion(ctx, d.bus, d.eraseOp, uint32(start), d.eraseTO)
}

func (d *classicSPI) IOCtrl(ctx context.Context, op2 IOCtrlOp, arg any) error {
	const op = "nor.classicSPI.IOCtrl"
	switch op2 {
	case EraseChip:
		return eraseChip(ctx, d.bus, d.eraseTO)
	default:
		return ferrors.New(ferrors.InvalidIoCtl, op, fmt.Errorf("unrecognized op %d", op2))
	}
}
