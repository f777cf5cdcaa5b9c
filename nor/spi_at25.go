// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"time"

	"github.com/dswarbrick/flashcore/bsp"
)

// AT25 drives Atmel/Adesto AT25-series SPI NOR: RDID identification, plain
// page-program, block-size-selected erase, per spec.md §4.4.
type AT25 struct {
	*classicSPI
}

// NewAT25 returns a PHY bound to bus, using timeout for program/write-enable
// polling and eraseTimeout for erase/chip-erase polling.
func NewAT25(bus bsp.SPINORBus, timeout, eraseTimeout time.Duration) *AT25 {
	return &AT25{classicSPI: newClassicSPI(bus, "AT25", timeout, eraseTimeout)}
}
