// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package simnor

import (
	"time"
)

// IntelChip is an in-memory CFI-compliant parallel NOR device, simulating
// query mode, status-register-polled program/erase, and the DWS-never-clears
// fault mode used to exercise the erase-timeout scenario.
type IntelChip struct {
	Mem []byte

	BlockCount      uint32
	BlockSize       uint32
	DeviceSizeExp   byte
	ProgramPageExp  byte // 0 means "no multi-byte program field"

	ProgramBusyFor time.Duration
	EraseBusyFor   time.Duration

	// NeverReady, when true, makes the status register's WSMS bit never
	// set — used to exercise the erase-timeout scenario.
	NeverReady bool
	FailNextOp bool

	queryMode  bool
	statusMode bool // true from a program/erase command until Read-Array is reissued
	pendingCmd byte
	busyUntil  time.Time
}

func NewIntelChip(size int) *IntelChip {
	c := &IntelChip{Mem: make([]byte, size)}
	for i := range c.Mem {
		c.Mem[i] = 0xFF
	}
	return c
}

func (c *IntelChip) Open(base uintptr, busWidth uint8, devCount uint8) error { return nil }
func (c *IntelChip) Close() error                                           { return nil }

func (c *IntelChip) cfiWord(addr uintptr) uint16 {
	switch addr {
	case 0x10:
		return uint16('Q')
	case 0x11:
		return uint16('R')
	case 0x12:
		return uint16('Y')
	case 0x13:
		return 0x01 // algorithm code low byte (0x0001)
	case 0x14:
		return 0x00
	case 0x27:
		return uint16(c.DeviceSizeExp)
	case 0x2A:
		return uint16(c.ProgramPageExp)
	case 0x2C:
		return 1 // one uniform erase-block region
	case 0x2D:
		return uint16(c.BlockCount - 1)
	case 0x2E:
		return 0
	case 0x2F:
		return uint16(c.BlockSize / 256)
	case 0x30:
		return 0
	}
	return 0xFFFF
}

func (c *IntelChip) statusWord() uint16 {
	var st uint16
	ready := !c.NeverReady && time.Now().After(c.busyUntil)
	if ready {
		st |= 1 << 7 // WSMS
	}
	if c.FailNextOp && ready {
		st |= 1 << 4
		c.FailNextOp = false
	}
	return st
}

func (c *IntelChip) RdWord(addr uintptr) (uint16, error) {
	if c.queryMode {
		return c.cfiWord(addr), nil
	}
	if c.statusMode {
		return c.statusWord(), nil
	}
	if int(addr)+1 < len(c.Mem) {
		return uint16(c.Mem[addr]) | uint16(c.Mem[addr+1])<<8, nil
	}
	return 0xFFFF, nil
}

func (c *IntelChip) WrWord(addr uintptr, data uint16) error {
	switch data {
	case 0x0098:
		c.queryMode = true
		return nil
	case 0x00FF:
		c.queryMode = false
		c.statusMode = false
		c.pendingCmd = 0
		return nil
	case 0x0050:
		c.pendingCmd = 0
		return nil
	case 0x0040:
		c.pendingCmd = 0x40
		return nil
	case 0x0020:
		c.pendingCmd = 0x20
		return nil
	case 0x00D0:
		if c.pendingCmd == 0x20 {
			c.eraseBlockAt(addr)
			c.statusMode = true
			if c.EraseBusyFor > 0 {
				c.busyUntil = time.Now().Add(c.EraseBusyFor)
			}
		}
		c.pendingCmd = 0
		return nil
	}
	if c.pendingCmd == 0x40 {
		c.program(addr, data)
		c.statusMode = true
		if c.ProgramBusyFor > 0 {
			c.busyUntil = time.Now().Add(c.ProgramBusyFor)
		}
		c.pendingCmd = 0
	}
	return nil
}

func (c *IntelChip) program(addr uintptr, data uint16) {
	if int(addr)+1 >= len(c.Mem) {
		return
	}
	c.Mem[addr] &= byte(data)
	c.Mem[addr+1] &= byte(data >> 8)
}

func (c *IntelChip) eraseBlockAt(addr uintptr) {
	if c.BlockSize == 0 {
		return
	}
	start := int(addr) - int(addr)%int(c.BlockSize)
	for i := 0; i < int(c.BlockSize) && start+i < len(c.Mem); i++ {
		c.Mem[start+i] = 0xFF
	}
}

// SST39Chip is an in-memory AMD-unlock-protocol parallel NOR device,
// simulating the two-cycle unlock sequence, software-ID query, and
// toggle-bit completion polling.
type SST39Chip struct {
	Mem []byte

	ManufacturerID byte
	DeviceID       uint16
	BlockSize      uint32

	ProgramBusyFor time.Duration
	EraseBusyFor   time.Duration

	unlockStep   int
	softwareID   bool
	pendingCmd   byte
	busyUntil    time.Time
	toggleState  bool
}

func NewSST39Chip(size int) *SST39Chip {
	c := &SST39Chip{Mem: make([]byte, size)}
	for i := range c.Mem {
		c.Mem[i] = 0xFF
	}
	return c
}

func (c *SST39Chip) Open(base uintptr, busWidth uint8, devCount uint8) error { return nil }
func (c *SST39Chip) Close() error                                           { return nil }

func (c *SST39Chip) busy() bool { return time.Now().Before(c.busyUntil) }

func (c *SST39Chip) RdWord(addr uintptr) (uint16, error) {
	if c.softwareID {
		if addr == 0 {
			return uint16(c.ManufacturerID), nil
		}
		return c.DeviceID, nil
	}
	var toggle uint16
	if c.busy() {
		c.toggleState = !c.toggleState
		if c.toggleState {
			toggle = 1 << 6
		}
	}
	if int(addr)+1 < len(c.Mem) {
		return uint16(c.Mem[addr]) | uint16(c.Mem[addr+1])<<8 | toggle, nil
	}
	return 0xFFFF, nil
}

func (c *SST39Chip) WrWord(addr uintptr, data uint16) error {
	switch {
	case addr == 0x5555 && data == 0x00AA:
		c.unlockStep = 1
		return nil
	case addr == 0x2AAA && data == 0x0055 && c.unlockStep == 1:
		c.unlockStep = 2
		return nil
	}

	if c.unlockStep == 2 && addr == 0x5555 {
		switch data {
		case 0x0090:
			c.softwareID = true
		case 0x0080, 0x00A0:
			c.pendingCmd = byte(data)
		case 0x0010:
			for i := range c.Mem {
				c.Mem[i] = 0xFF
			}
			if c.EraseBusyFor > 0 {
				c.busyUntil = time.Now().Add(c.EraseBusyFor)
			}
		}
		c.unlockStep = 0
		return nil
	}

	switch data {
	case 0x00F0:
		c.softwareID = false
		c.pendingCmd = 0
		return nil
	case 0x0030:
		if c.pendingCmd == 0x80 {
			c.eraseBlockAt(addr)
			if c.EraseBusyFor > 0 {
				c.busyUntil = time.Now().Add(c.EraseBusyFor)
			}
		}
		c.pendingCmd = 0
		return nil
	}

	if c.pendingCmd == 0xA0 {
		c.program(addr, byte(data))
		if c.ProgramBusyFor > 0 {
			c.busyUntil = time.Now().Add(c.ProgramBusyFor)
		}
		c.pendingCmd = 0
	}
	return nil
}

func (c *SST39Chip) program(addr uintptr, data byte) {
	if int(addr) < len(c.Mem) {
		c.Mem[addr] &= data
	}
}

func (c *SST39Chip) eraseBlockAt(addr uintptr) {
	if c.BlockSize == 0 {
		return
	}
	start := int(addr) - int(addr)%int(c.BlockSize)
	for i := 0; i < int(c.BlockSize) && start+i < len(c.Mem); i++ {
		c.Mem[start+i] = 0xFF
	}
}
