// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"testing"
	"time"

	"github.com/dswarbrick/flashcore/bsp/simnor"
	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/device/conformance"
)

func openTestNORDevice() device.VTable {
	chip := simnor.NewSPIChip(1024 * 4096)
	chip.ManufacturerID = 0xEF
	chip.DeviceID = 0x4016 // W25Q32: 1024 blocks * 4096B
	phy := NewW25Q(chip, 50*time.Millisecond, 500*time.Millisecond)
	return NewDevice("nor-sim0", phy)
}

func TestDeviceConformance(t *testing.T) {
	conformance.Run(t, openTestNORDevice)
}
