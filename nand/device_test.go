// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"testing"

	"github.com/dswarbrick/flashcore/bsp/simnand"
	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/device/conformance"
)

func openTestDevice() device.VTable {
	chip := simnand.New()
	p := testPart()
	return NewDevice("nand-sim0", chip, p, nil, DefaultTimeouts, p.PgSize)
}

func TestDeviceConformance(t *testing.T) {
	conformance.Run(t, openTestDevice)
}
