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
	opWREN  = 0x06
	opWRDI  = 0x04
	opRDSR  = 0x05
	opPP    = 0x02 // page program
	opRead  = 0x03
	opFRead = 0x0B // fast read, one dummy byte after address

	statusBusy = 1 << 0
	statusWEL  = 1 << 1
	statusFail = 1 << 5 // program/erase-fail, as reported by most SPI families' status register

	opChipErase = 0xC7
)

// pageChunk is one program-opcode's worth of work: a device-address start
// and the [off, off+len) slice of the caller's buffer it carries.
type pageChunk struct {
	start uint64
	off   int
	len   int
}

// splitPages implements spec.md §8 testable property 6: an arbitrary
// (start, cnt) is split into an initial partial page that aligns up to the
// next pageSize boundary, zero or more full pages, and a final partial page.
// Every chunk's len is <= pageSize.
func splitPages(start uint64, cnt int, pageSize uint32) []pageChunk {
	if cnt <= 0 {
		return nil
	}
	var chunks []pageChunk
	off := 0
	cur := start
	remaining := cnt

	firstLen := int(pageSize) - int(cur%uint64(pageSize))
	if firstLen > remaining {
		firstLen = remaining
	}
	chunks = append(chunks, pageChunk{start: cur, off: off, len: firstLen})
	off += firstLen
	cur += uint64(firstLen)
	remaining -= firstLen

	for remaining > 0 {
		n := int(pageSize)
		if n > remaining {
			n = remaining
		}
		chunks = append(chunks, pageChunk{start: cur, off: off, len: n})
		off += n
		cur += uint64(n)
		remaining -= n
	}
	return chunks
}

// addr3 encodes a NOR address as the 3-byte, big-endian (MSB-first) form
// every family's command stream carries per spec.md §4.4/§6.
func addr3(a uint32) [3]byte {
	return [3]byte{byte(a >> 16), byte(a >> 8), byte(a)}
}

func readStatus(bus bsp.SPINORBus) (byte, error) {
	bus.Lock()
	defer bus.Unlock()
	bus.ChipSelEn()
	defer bus.ChipSelDis()

	buf := []byte{opRDSR, 0x00}
	if err := bus.Wr(buf[0:1]); err != nil {
		return 0, err
	}
	if err := bus.Rd(buf[1:2]); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// writeEnable issues WREN and polls the status register until the
// Write-Enable-Latch bit is observed set, per spec.md §4.4's shared program
// discipline ("poll status until the Write-Enable-Latch bit is set").
func writeEnable(ctx context.Context, bus bsp.SPINORBus, timeout time.Duration) error {
	const op = "nor.writeEnable"
	if err := func() error {
		bus.Lock()
		defer bus.Unlock()
		bus.ChipSelEn()
		defer bus.ChipSelDis()
		return bus.Wr([]byte{opWREN})
	}(); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}

	err := bus.WaitWhileBusy(ctx, func() (bool, error) {
		st, err := readStatus(bus)
		if err != nil {
			return false, err
		}
		return st&statusWEL != 0, nil
	}, timeout)
	if err != nil {
		return ferrors.New(ferrors.Timeout, op, err)
	}
	return nil
}

func writeDisable(bus bsp.SPINORBus) error {
	bus.Lock()
	defer bus.Unlock()
	bus.ChipSelEn()
	defer bus.ChipSelDis()
	return bus.Wr([]byte{opWRDI})
}

// deferWriteDisable runs writeDisable for its side effect, counting a
// failure rather than dropping it: by the time the enclosing program/erase
// call's own defer fires, its real return value is already fixed, so a
// WRDI failure can only be surfaced as a metric, not returned to the caller.
func deferWriteDisable(bus bsp.SPINORBus) {
	if err := writeDisable(bus); err != nil {
		ferrors.Incr(ferrors.IO)
	}
}

// waitBusyClear polls the status register's BUSY bit, per spec.md §4.4
// ("poll the BUSY bit until clear with a per-family timeout").
func waitBusyClear(ctx context.Context, bus bsp.SPINORBus, timeout time.Duration) (byte, error) {
	const op = "nor.waitBusyClear"
	var last byte
	err := bus.WaitWhileBusy(ctx, func() (bool, error) {
		st, err := readStatus(bus)
		if err != nil {
			return false, err
		}
		last = st
		return st&statusBusy == 0, nil
	}, timeout)
	if err != nil {
		return last, ferrors.New(ferrors.Timeout, op, err)
	}
	return last, nil
}

// programPage runs the full SPI program sequence spec.md §4.4 describes:
// Write-Enable, Page-Program opcode + 3-byte address, up to one page of
// data within a single chip-select window, deassert, poll BUSY, then
// Write-Disable unconditionally.
func programPage(ctx context.Context, bus bsp.SPINORBus, opcode byte, addr uint32, data []byte, timeout time.Duration) error {
	const op = "nor.programPage"
	if len(data) == 0 || len(data) > 256 {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("program chunk length %d out of [1,256]", len(data)))
	}
	defer deferWriteDisable(bus)

	if err := writeEnable(ctx, bus, timeout); err != nil {
		return err
	}

	err := func() error {
		bus.Lock()
		defer bus.Unlock()
		bus.ChipSelEn()
		defer bus.ChipSelDis()
		a := addr3(addr)
		if err := bus.Wr([]byte{opcode}); err != nil {
			return err
		}
		if err := bus.Wr(a[:]); err != nil {
			return err
		}
		return bus.Wr(data)
	}()
	if err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}

	st, err := waitBusyClear(ctx, bus, timeout)
	if err != nil {
		return err
	}
	if st&statusFail != 0 {
		return ferrors.New(ferrors.OpFailed, op, fmt.Errorf("status register reports program failure: %#02x", st))
	}
	return nil
}

// eraseRegion runs the shared erase sequence of spec.md §4.4: Write-Enable,
// the size-selected erase opcode plus address, poll BUSY with a
// family-specific timeout, then Write-Disable unconditionally. The caller
// has already chosen eraseOpcode from its block-size table.
func eraseRegion(ctx context.Context, bus bsp.SPINORBus, eraseOpcode byte, addr uint32, timeout time.Duration) error {
	const op = "nor.eraseRegion"
	defer deferWriteDisable(bus)

	if err := writeEnable(ctx, bus, timeout); err != nil {
		return err
	}

	err := func() error {
		bus.Lock()
		defer bus.Unlock()
		bus.ChipSelEn()
		defer bus.ChipSelDis()
		a := addr3(addr)
		if err := bus.Wr([]byte{eraseOpcode}); err != nil {
			return err
		}
		return bus.Wr(a[:])
	}()
	if err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}

	st, err := waitBusyClear(ctx, bus, timeout)
	if err != nil {
		return err
	}
	if st&statusFail != 0 {
		return ferrors.New(ferrors.OpFailed, op, fmt.Errorf("status register reports erase failure: %#02x", st))
	}
	return nil
}

func eraseChip(ctx context.Context, bus bsp.SPINORBus, timeout time.Duration) error {
	const op = "nor.eraseChip"
	defer deferWriteDisable(bus)

	if err := writeEnable(ctx, bus, timeout); err != nil {
		return err
	}
	err := func() error {
		bus.Lock()
		defer bus.Unlock()
		bus.ChipSelEn()
		defer bus.ChipSelDis()
		return bus.Wr([]byte{opChipErase})
	}()
	if err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	st, err := waitBusyClear(ctx, bus, timeout)
	if err != nil {
		return err
	}
	if st&statusFail != 0 {
		return ferrors.New(ferrors.OpFailed, op, fmt.Errorf("status register reports chip-erase failure: %#02x", st))
	}
	return nil
}

// readArray issues a plain (0x03) or fast (0x0B, with one dummy byte) read
// within a single chip-select window.
func readArray(bus bsp.SPINORBus, fast bool, addr uint32, dest []byte) error {
	bus.Lock()
	defer bus.Unlock()
	bus.ChipSelEn()
	defer bus.ChipSelDis()

	a := addr3(addr)
	opcode := byte(opRead)
	if fast {
		opcode = opFRead
	}
	if err := bus.Wr([]byte{opcode}); err != nil {
		return err
	}
	if err := bus.Wr(a[:]); err != nil {
		return err
	}
	if fast {
		if err := bus.Wr([]byte{0x00}); err != nil {
			return err
		}
	}
	return bus.Rd(dest)
}
