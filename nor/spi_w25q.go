// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"time"

	"github.com/dswarbrick/flashcore/bsp"
)

// W25Q drives Winbond W25Q-series SPI NOR, the same classic protocol as
// AT25/STM25 under a different JEDEC identity.
type W25Q struct {
	*classicSPI
}

func NewW25Q(bus bsp.SPINORBus, timeout, eraseTimeout time.Duration) *W25Q {
	return &W25Q{classicSPI: newClassicSPI(bus, "W25Q", timeout, eraseTimeout)}
}
