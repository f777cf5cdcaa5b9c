// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package mmionor is the real bsp.ParallelNORBus binding for boards where
// the NOR array sits on a memory-mapped external bus and is addressable
// through /dev/mem, the same low-level access path the teacher's
// cmd/smartctl uses golang.org/x/sys/unix for (there, a raw capget
// syscall; here, an mmap'd register window).
package mmionor

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/dswarbrick/flashcore/bsp"
	"github.com/dswarbrick/flashcore/ferrors"
)

// Bus maps a physical address window from /dev/mem and exposes it as a
// 16-bit-addressable parallel NOR bus. The window size is fixed at
// construction; the base address is supplied by the controller at Open,
// per the bsp.ParallelNORBus contract.
type Bus struct {
	size int

	physBase uintptr
	f        *os.File
	mem      []byte

	busWidth uint8
	devCount uint8
}

// New returns a Bus that will map a window of size bytes when Open is
// called.
func New(size int) *Bus {
	return &Bus{size: size}
}

// Open maps a size-byte window starting at base from /dev/mem with
// unix.Mmap, recording busWidth and devCount for address scaling (a
// 16-bit-wide bus with 2 interleaved devices doubles the physical stride
// per logical address).
func (b *Bus) Open(base uintptr, busWidth uint8, devCount uint8) error {
	const op = "mmionor.Bus.Open"

	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return ferrors.New(ferrors.IO, op, fmt.Errorf("opening /dev/mem: %w", err))
	}

	pageSize := os.Getpagesize()
	mapOffset := int64(base) - int64(base)%int64(pageSize)
	mapLen := b.size + int(int64(base)-mapOffset)

	mem, err := unix.Mmap(int(f.Fd()), mapOffset, mapLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return ferrors.New(ferrors.IO, op, fmt.Errorf("mmap of physical window %#x: %w", base, err))
	}

	b.f = f
	b.physBase = base
	b.mem = mem[int64(base)-mapOffset:]
	b.busWidth = busWidth
	b.devCount = devCount
	return nil
}

func (b *Bus) Close() error {
	const op = "mmionor.Bus.Close"
	if b.mem != nil {
		if err := unix.Munmap(b.mem); err != nil {
			return ferrors.New(ferrors.IO, op, err)
		}
		b.mem = nil
	}
	if b.f != nil {
		return b.f.Close()
	}
	return nil
}

// stride is the physical byte distance between two consecutive 16-bit
// logical addresses: interleaved devices multiply it, matching how a
// byte-wide bus built from two interleaved 8-bit parts doubles physical
// address spacing relative to logical word addressing.
func (b *Bus) stride() uintptr {
	if b.devCount == 0 {
		return 2
	}
	return 2 * uintptr(b.devCount)
}

func (b *Bus) RdWord(addr uintptr) (uint16, error) {
	const op = "mmionor.Bus.RdWord"
	off := addr * b.stride()
	if int(off)+1 >= len(b.mem) {
		return 0, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("address %#x exceeds mapped window", addr))
	}
	return binary.LittleEndian.Uint16(b.mem[off : off+2]), nil
}

func (b *Bus) WrWord(addr uintptr, data uint16) error {
	const op = "mmionor.Bus.WrWord"
	off := addr * b.stride()
	if int(off)+1 >= len(b.mem) {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("address %#x exceeds mapped window", addr))
	}
	binary.LittleEndian.PutUint16(b.mem[off:off+2], data)
	return nil
}

var _ bsp.ParallelNORBus = (*Bus)(nil)
