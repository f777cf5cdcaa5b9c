// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package simnand implements an in-memory NAND chip satisfying bsp.NANDBus,
// bit-exact against the wire protocol the generic NAND controller issues:
// reset, read-ID, read-parameter-page, page read (large and small-page zone
// A/B/C), change-read/write-column, page program, and block erase. It
// exists to make nand.Controller and nand/onfi testable without real
// hardware, mirroring the "simulated back-end satisfying the BSP contract"
// the pack's original test suite runs against every device family.
package simnand

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dswarbrick/flashcore/ferrors"
)

const (
	cmdReset           = 0xFF
	cmdReadID          = 0x90
	cmdReadParamPage   = 0xEC
	cmdReadSetupA      = 0x00
	cmdReadSetupB      = 0x01
	cmdReadSetupC      = 0x50
	cmdReadConfirm     = 0x30
	cmdChangeReadCol   = 0x05
	cmdChangeReadConf  = 0xE0
	cmdProgramSetup    = 0x80
	cmdProgramConfirm  = 0x10
	cmdChangeWriteCol  = 0x85
	cmdEraseSetup      = 0x60
	cmdEraseConfirm    = 0xD0
	cmdReadStatus      = 0x70

	statusFail = 1 << 0
	statusRdy  = 1 << 6
)

type phase int

const (
	phaseIdle phase = iota
	phaseAwaitAddrColRow
	phaseAwaitAddrCol
	phaseAwaitAddrRow
	phaseAwaitAddrOne // single address byte (read ID / param page base)
	phaseReading
	phaseWriting
)

// Chip is an in-memory NAND device. Construct via New, then tune fields
// before the first CmdWr if a test needs a non-default geometry or fault
// injection.
type Chip struct {
	PageSize      uint32
	SpareSize     uint32
	PagesPerBlock uint32
	BlockCount    uint32
	BusWidth      uint8
	ColAddrSize   int
	RowAddrSize   int
	SmallPage     bool

	ManufacturerID byte
	DeviceID       byte

	// ParamPage holds up to three 256-byte ONFI parameter-page copies back
	// to back (len is a multiple of 256).
	ParamPage []byte

	// ProgramBusyFor / EraseBusyFor model realistic completion latency;
	// WaitWhileBusy blocks for this long before reporting ready.
	ProgramBusyFor time.Duration
	EraseBusyFor   time.Duration

	// FailNextOp, when true, causes the next program or erase confirm to
	// set the status-register FAIL bit once, then clears itself.
	FailNextOp bool

	// StuckBusy, when true, makes WaitWhileBusy never report ready — used
	// to exercise the Timeout path.
	StuckBusy bool

	pages map[uint64][]byte // row -> PageSize+SpareSize bytes

	ph      phase
	opcode  byte // persistent read-mode selector: ID / param-page / array-read
	row     uint64
	col     uint32
	writeBuf []byte
	writeRow uint64
	writeCol uint32
	busyUntil time.Time
	opened   bool

	// statusPending and pendingColCmd are one-shot commands (read-status,
	// change-read/write-column) that reposition the column pointer or
	// sample the status register without leaving the ongoing read mode
	// recorded in opcode — mirroring real hardware, where 0x05/0xE0 and
	// 0x70 never change what a subsequent array read returns.
	statusPending bool
	pendingColCmd byte
}

// New returns a Chip with a conventional large-page geometry
// (2048B page, 64 pages/block, 64B spare). Override fields before use for
// other geometries.
func New() *Chip {
	c := &Chip{
		PageSize:       2048,
		SpareSize:      64,
		PagesPerBlock:  64,
		BlockCount:     1024,
		BusWidth:       8,
		ColAddrSize:    2,
		RowAddrSize:    2,
		ManufacturerID: 0xEC,
		DeviceID:       0xDA,
		ProgramBusyFor: 0,
		EraseBusyFor:   0,
		pages:          make(map[uint64][]byte),
	}
	return c
}

func (c *Chip) pageBuf(row uint64) []byte {
	p, ok := c.pages[row]
	if !ok {
		p = make([]byte, c.PageSize+c.SpareSize)
		for i := range p {
			p[i] = 0xFF
		}
		c.pages[row] = p
	}
	return p
}

func (c *Chip) Open() error  { c.opened = true; return nil }
func (c *Chip) Close() error { c.opened = false; return nil }

func (c *Chip) ChipSelEn()  {}
func (c *Chip) ChipSelDis() {}

func (c *Chip) CmdWr(cmd []byte) error {
	if len(cmd) != 1 {
		return fmt.Errorf("simnand: CmdWr expects exactly one byte, got %d", len(cmd))
	}
	op := cmd[0]
	switch op {
	case cmdReset:
		c.ph = phaseIdle
	case cmdReadID:
		c.opcode = op
		c.ph = phaseAwaitAddrOne
	case cmdReadParamPage:
		c.opcode = op
		c.ph = phaseAwaitAddrOne
	case cmdReadSetupA, cmdReadSetupB, cmdReadSetupC:
		c.opcode = op
		c.ph = phaseAwaitAddrColRow
	case cmdReadConfirm:
		c.ph = phaseReading
	case cmdChangeReadCol:
		c.pendingColCmd = op
		c.ph = phaseAwaitAddrCol
	case cmdChangeReadConf:
		c.ph = phaseReading
	case cmdProgramSetup:
		c.opcode = op
		c.ph = phaseAwaitAddrColRow
	case cmdChangeWriteCol:
		c.pendingColCmd = op
		c.ph = phaseAwaitAddrCol
	case cmdProgramConfirm:
		c.commitProgram()
	case cmdEraseSetup:
		c.opcode = op
		c.ph = phaseAwaitAddrRow
	case cmdEraseConfirm:
		c.commitErase()
	case cmdReadStatus:
		c.statusPending = true
		c.ph = phaseReading
	default:
		return ferrors.New(ferrors.IO, "simnand.CmdWr", fmt.Errorf("unrecognized opcode %#02x", op))
	}
	return nil
}

func (c *Chip) AddrWr(addr []byte) error {
	switch c.ph {
	case phaseAwaitAddrOne:
		if len(addr) != 1 {
			return fmt.Errorf("simnand: expected 1 address byte, got %d", len(addr))
		}
		c.col = 0
		if c.opcode == cmdReadParamPage {
			c.ph = phaseReading
		} else {
			c.ph = phaseReading // read ID
		}
	case phaseAwaitAddrColRow:
		if len(addr) != c.ColAddrSize+c.RowAddrSize {
			return fmt.Errorf("simnand: expected %d address bytes, got %d", c.ColAddrSize+c.RowAddrSize, len(addr))
		}
		c.col = leUint(addr[:c.ColAddrSize])
		c.row = uint64(leUint(addr[c.ColAddrSize:]))
		// Small-page zone opcodes carry a column relative to their zone.
		switch c.opcode {
		case cmdReadSetupB:
			c.col += 256
		case cmdReadSetupC:
			c.col += c.PageSize
		}
		if c.opcode == cmdProgramSetup {
			c.writeRow = c.row
			c.writeCol = c.col
			c.writeBuf = append([]byte(nil), c.pageBuf(c.row)...)
			c.ph = phaseWriting
		} else {
			c.ph = phaseIdle // awaiting confirm command
		}
	case phaseAwaitAddrCol:
		if len(addr) != c.ColAddrSize {
			return fmt.Errorf("simnand: expected %d column address bytes, got %d", c.ColAddrSize, len(addr))
		}
		c.col = leUint(addr)
		if c.pendingColCmd == cmdChangeWriteCol {
			c.writeCol = c.col
			c.ph = phaseWriting
		} else {
			c.ph = phaseIdle // awaiting change-read-column confirm (0xE0)
		}
	case phaseAwaitAddrRow:
		if len(addr) != c.RowAddrSize {
			return fmt.Errorf("simnand: expected %d row address bytes, got %d", c.RowAddrSize, len(addr))
		}
		c.row = uint64(leUint(addr))
		c.ph = phaseIdle // awaiting erase confirm (0xD0)
	default:
		return fmt.Errorf("simnand: unexpected AddrWr in phase %d", c.ph)
	}
	return nil
}

func (c *Chip) DataWr(data []byte, width uint8) error {
	if c.ph != phaseWriting {
		return fmt.Errorf("simnand: DataWr outside of a program sequence")
	}
	end := int(c.writeCol) + len(data)
	if end > len(c.writeBuf) {
		grown := make([]byte, end)
		copy(grown, c.writeBuf)
		for i := len(c.writeBuf); i < end; i++ {
			grown[i] = 0xFF
		}
		c.writeBuf = grown
	}
	copy(c.writeBuf[c.writeCol:end], data)
	c.writeCol += uint32(len(data))
	return nil
}

func (c *Chip) DataRd(data []byte, width uint8) error {
	if c.statusPending {
		st := byte(statusRdy)
		if c.FailNextOp {
			st |= statusFail
			c.FailNextOp = false
		}
		for i := range data {
			data[i] = st
		}
		c.statusPending = false
		return nil
	}
	switch c.opcode {
	case cmdReadID:
		if len(data) > 0 {
			data[0] = c.ManufacturerID
		}
		if len(data) > 1 {
			data[1] = c.DeviceID
		}
		return nil
	case cmdReadParamPage:
		n := copy(data, c.ParamPage[int(c.col):])
		c.col += uint32(n)
		return nil
	default:
		if c.ph != phaseReading {
			return fmt.Errorf("simnand: DataRd outside of a read sequence")
		}
		buf := c.pageBuf(c.row)
		n := copy(data, buf[c.col:])
		for i := n; i < len(data); i++ {
			data[i] = 0xFF
		}
		c.col += uint32(len(data))
		return nil
	}
}

func (c *Chip) commitProgram() {
	c.pages[c.writeRow] = c.writeBuf
	c.writeBuf = nil
	c.ph = phaseIdle
	if c.ProgramBusyFor > 0 {
		c.busyUntil = time.Now().Add(c.ProgramBusyFor)
	}
}

func (c *Chip) commitErase() {
	first := (c.row / uint64(c.PagesPerBlock)) * uint64(c.PagesPerBlock)
	for p := uint64(0); p < uint64(c.PagesPerBlock); p++ {
		delete(c.pages, first+p)
	}
	c.ph = phaseIdle
	if c.EraseBusyFor > 0 {
		c.busyUntil = time.Now().Add(c.EraseBusyFor)
	}
}

// WaitWhileBusy polls poll until ready or timeout, additionally honoring
// the chip's own simulated busy window and StuckBusy fault injection.
func (c *Chip) WaitWhileBusy(ctx context.Context, poll func() (bool, error), timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	const pollPeriod = 50 * time.Microsecond

	for {
		if c.StuckBusy {
			if time.Now().After(deadline) {
				return ferrors.New(ferrors.Timeout, "simnand.WaitWhileBusy", nil)
			}
			time.Sleep(pollPeriod)
			continue
		}
		if time.Now().Before(c.busyUntil) {
			if time.Now().After(deadline) {
				return ferrors.New(ferrors.Timeout, "simnand.WaitWhileBusy", nil)
			}
			time.Sleep(pollPeriod)
			continue
		}
		ready, err := poll()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return ferrors.New(ferrors.Timeout, "simnand.WaitWhileBusy", nil)
		}
		time.Sleep(pollPeriod)
	}
}

func leUint(b []byte) uint32 {
	var buf [4]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint32(buf[:])
}
