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

const opAAIP = 0xAD // Auto-Address-Increment Program; same opcode starts and continues a burst

// SST25 drives SST25-series SPI NOR using Auto-Address-Increment
// programming instead of plain page-program: WREN; AAIWP with the start
// address and the first one (byte-wise) or two (word-wise) data bytes;
// repeated addressless AAIP continuation cycles; a final short cycle for
// any odd trailing byte; WRDI.
type SST25 struct {
	bus     bsp.SPINORBus
	timeout time.Duration
	eraseTO time.Duration
	geom    Geometry
	eraseOp byte

	// WordMode selects the word-wise AAI variant (two data bytes per
	// cycle) over the byte-wise variant (one data byte per cycle).
	WordMode bool

	// RevisionAQuirk resolves spec.md §9's Open Question for revision-A
	// SST25 byte-wise parts, which do not auto-increment their internal
	// address pointer across AAIP continuation cycles the way later
	// revisions (and the word-wise variant) do: every continuation cycle
	// must resend the current address, not just the opening cycle. It has
	// no effect when WordMode is set, since only the byte-wise AAI
	// command is affected. Unverified against a physical part — callers
	// should default this false and only set it after confirming against
	// real revision-A hardware.
	RevisionAQuirk bool
}

func NewSST25(bus bsp.SPINORBus, timeout, eraseTimeout time.Duration) *SST25 {
	return &SST25{bus: bus, timeout: timeout, eraseTO: eraseTimeout}
}

func (d *SST25) Open(ctx context.Context) error {
	const op = "nor.SST25.Open"
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
	d.geom = Geometry{
		BlockCount:      entry.BlockCount,
		BlockSize:       entry.BlockSize,
		DeviceSize:      uint64(entry.BlockCount) * uint64(entry.BlockSize),
		ProgramPageSize: 256,
	}
	return nil
}

func (d *SST25) Close() error     { return d.bus.Close() }
func (d *SST25) Geometry() Geometry { return d.geom }

func (d *SST25) Rd(ctx context.Context, dest []byte, start uint64, cnt int) error {
	const op = "nor.SST25.Rd"
	if cnt > len(dest) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("dest too short for cnt %d", cnt))
	}
	return readArray(d.bus, true, uint32(start), dest[:cnt])
}

func (d *SST25) EraseBlk(ctx context.Context, start uint64, size uint32) error {
	const op = "nor.SST25.EraseBlk"
	if size != d.geom.BlockSize {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("erase size %d != block size %d", size, d.geom.BlockSize))
	}
	return eraseRegion(ctx, d.bus, d.eraseOp, uint32(start), d.eraseTO)
}

func (d *SST25) IOCtrl(ctx context.Context, op2 IOCtrlOp, arg any) error {
	const op = "nor.SST25.IOCtrl"
	switch op2 {
	case EraseChip:
		return eraseChip(ctx, d.bus, d.eraseTO)
	default:
		return ferrors.New(ferrors.InvalidIoCtl, op, fmt.Errorf("unrecognized op %d", op2))
	}
}

// aaiCycle issues one AAI program cycle within its own chip-select window:
// the first cycle of a burst carries the 3-byte address, subsequent
// cycles carry only the opcode and data.
func aaiCycle(bus bsp.SPINORBus, addr uint32, data []byte, withAddr bool) error {
	bus.Lock()
	defer bus.Unlock()
	bus.ChipSelEn()
	defer bus.ChipSelDis()
	if err := bus.Wr([]byte{opAAIP}); err != nil {
		return err
	}
	if withAddr {
		a := addr3(addr)
		if err := bus.Wr(a[:]); err != nil {
			return err
		}
	}
	return bus.Wr(data)
}

// Wr runs the AAI program sequence for src[0:cnt] starting at start. Per
// spec.md §4.4/§9, the word-wise variant streams two data bytes per cycle
// after the addressed opener cycle; the byte-wise variant streams one. On
// revision-A byte-wise parts (RevisionAQuirk, WordMode false) the chip does
// not auto-increment its address pointer across continuation cycles, so
// every cycle resends the current address instead of only the opener.
func (d *SST25) Wr(ctx context.Context, src []byte, start uint64, cnt int) error {
	const op = "nor.SST25.Wr"
	if cnt > len(src) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("src too short for cnt %d", cnt))
	}
	if cnt == 0 {
		return nil
	}
	data := src[:cnt]

	defer deferWriteDisable(d.bus)
	if err := writeEnable(ctx, d.bus, d.timeout); err != nil {
		return err
	}

	stride := 1
	if d.WordMode {
		stride = 2
	}
	legacyAddressing := d.RevisionAQuirk && !d.WordMode

	cur := uint32(start)
	first := stride
	if first > len(data) {
		first = len(data)
	}
	if err := aaiCycle(d.bus, cur, data[0:first], true); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	if _, err := waitBusyClear(ctx, d.bus, d.timeout); err != nil {
		return err
	}
	cur += uint32(first)
	off := first

	for off < len(data) {
		n := stride
		if n > len(data)-off {
			n = len(data) - off
		}
		if err := aaiCycle(d.bus, cur, data[off:off+n], legacyAddressing); err != nil {
			return ferrors.New(ferrors.IO, op, err)
		}
		if _, err := waitBusyClear(ctx, d.bus, d.timeout); err != nil {
			return err
		}
		cur += uint32(n)
		off += n
	}
	return nil
}
