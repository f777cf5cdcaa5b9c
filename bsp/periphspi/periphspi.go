// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package periphspi is the real bsp.SPINORBus binding for boards reachable
// through periph.io: a spi.Conn for the data phase and a gpio.PinIO for
// manual chip-select bracketing, following the CS-assert/Tx/CS-deassert
// pattern of the periph.io SPI flash drivers in the retrieval pack.
package periphspi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/dswarbrick/flashcore/ferrors"
)

// Bus is a real SPI NOR bus: a periph.io SPI port opened in mode 0, a
// manually-driven chip-select line (periph.io's spi.Conn asserts CS only
// for the duration of a single Tx, which is too fine-grained for the
// multi-Tx command sequences flashcore's nor drivers issue within one
// chip-select window), and a mutex for boards where one SPI bus serves
// multiple chip selects.
type Bus struct {
	portName string
	csPin    string

	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinIO

	mu sync.Mutex
}

// New returns a Bus bound to the named periph.io SPI port and chip-select
// GPIO pin. Both names are resolved by spireg/gpioreg at Open.
func New(portName, csPin string) *Bus {
	return &Bus{portName: portName, csPin: csPin}
}

func (b *Bus) Open() error {
	const op = "periphspi.Bus.Open"

	if _, err := host.Init(); err != nil {
		return ferrors.New(ferrors.IO, op, fmt.Errorf("periph host init: %w", err))
	}

	port, err := spireg.Open(b.portName)
	if err != nil {
		return ferrors.New(ferrors.IO, op, fmt.Errorf("opening SPI port %q: %w", b.portName, err))
	}
	conn, err := port.Connect(1*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return ferrors.New(ferrors.IO, op, fmt.Errorf("configuring SPI connection: %w", err))
	}

	if b.csPin != "" {
		cs := gpioreg.ByName(b.csPin)
		if cs == nil {
			port.Close()
			return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("chip-select pin %q not found", b.csPin))
		}
		if err := cs.Out(gpio.High); err != nil {
			port.Close()
			return ferrors.New(ferrors.IO, op, fmt.Errorf("initializing chip-select pin high: %w", err))
		}
		b.cs = cs
	}

	b.port = port
	b.conn = conn
	return nil
}

func (b *Bus) Close() error {
	if b.port == nil {
		return nil
	}
	return b.port.Close()
}

func (b *Bus) Lock()   { b.mu.Lock() }
func (b *Bus) Unlock() { b.mu.Unlock() }

func (b *Bus) ChipSelEn() {
	if b.cs != nil {
		b.cs.Out(gpio.Low)
	}
}

func (b *Bus) ChipSelDis() {
	if b.cs != nil {
		b.cs.Out(gpio.High)
	}
}

// Wr clocks data out, discarding whatever is clocked back in.
func (b *Bus) Wr(data []byte) error {
	const op = "periphspi.Bus.Wr"
	if err := b.conn.Tx(data, nil); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	return nil
}

// Rd clocks len(data) bytes of zeros out while capturing what comes back
// into data, the standard periph.io full-duplex idiom for a read phase
// that follows a command already written via Wr within the same
// chip-select window.
func (b *Bus) Rd(data []byte) error {
	const op = "periphspi.Bus.Rd"
	if err := b.conn.Tx(make([]byte, len(data)), data); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	return nil
}

func (b *Bus) SetClkFreq(hz uint32) error {
	const op = "periphspi.Bus.SetClkFreq"
	conn, err := b.port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	b.conn = conn
	return nil
}

func (b *Bus) WaitWhileBusy(ctx context.Context, poll func() (ready bool, err error), timeout time.Duration) error {
	const op = "periphspi.Bus.WaitWhileBusy"
	deadline := time.Now().Add(timeout)
	for {
		ready, err := poll()
		if err != nil {
			return ferrors.New(ferrors.IO, op, err)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return ferrors.New(ferrors.Timeout, op, nil)
		}
		select {
		case <-ctx.Done():
			return ferrors.New(ferrors.Timeout, op, ctx.Err())
		default:
		}
		time.Sleep(100 * time.Microsecond)
	}
}
