// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"time"

	"github.com/dswarbrick/flashcore/bsp"
)

// STM25 drives STMicroelectronics/Numonyx M25Px-series SPI NOR, the same
// classic protocol as AT25 under a different JEDEC identity.
type STM25 struct {
	*classicSPI
}

func NewSTM25(bus bsp.SPINORBus, timeout, eraseTimeout time.Duration) *STM25 {
	return &STM25{classicSPI: newClassicSPI(bus, "STM25", timeout, eraseTimeout)}
}
