// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package bsp defines the board-support-package contracts the flashcore
// drivers are written against: chip-select / bus-cycle / clock-frequency
// primitives for NAND, parallel NOR and SPI NOR chips. Implementations are
// the BSP integrator's responsibility; this package also ships simulated
// backends (bsp/simnand, bsp/simnor) sufficient to exercise the drivers in
// tests, and two real bindings: bsp/periphspi over periph.io for SPI NOR,
// and bsp/mmionor over a memory-mapped /dev/mem window for parallel NOR.
package bsp

import (
	"context"
	"time"
)

// NANDBus is the capability set a NAND generic controller drives.
type NANDBus interface {
	Open() error
	Close() error

	ChipSelEn()
	ChipSelDis()

	CmdWr(cmd []byte) error
	AddrWr(addr []byte) error
	DataWr(data []byte, width uint8) error
	DataRd(data []byte, width uint8) error

	// WaitWhileBusy polls poll at driver-chosen granularity until poll
	// reports ready, or timeout elapses. The effective wall-clock wait is
	// guaranteed to be >= timeout when poll never reports ready.
	WaitWhileBusy(ctx context.Context, poll func() (ready bool, err error), timeout time.Duration) error
}

// ParallelNORBus is the capability set a parallel (Intel/SST39-style) NOR
// PHY drives.
type ParallelNORBus interface {
	Open(base uintptr, busWidth uint8, devCount uint8) error
	Close() error

	RdWord(addr uintptr) (uint16, error)
	WrWord(addr uintptr, data uint16) error
}

// SPINORBus is the capability set a SPI NOR PHY drives.
type SPINORBus interface {
	Open() error
	Close() error

	// Lock/Unlock bracket a chip-select window on a bus that may be shared
	// across multiple chip selects.
	Lock()
	Unlock()

	ChipSelEn()
	ChipSelDis()

	Rd(data []byte) error
	Wr(data []byte) error

	SetClkFreq(hz uint32) error

	WaitWhileBusy(ctx context.Context, poll func() (ready bool, err error), timeout time.Duration) error
}
