// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package bsp

// ChipSelectGuard brackets a NAND chip-select window so that every exit
// path — including an error return from an intermediate bus cycle — still
// releases the chip. It is the idiomatic-Go rendering of the source
// driver's macro-based early-return idiom (FS_ERR_CHK), which unified the
// "release chip-select on error" pattern at every call site.
type ChipSelectGuard struct {
	en  func()
	dis func()
	on  bool
}

// WithChipSelect asserts chip-select via en and returns a guard whose
// Release method (deferred by the caller) deasserts it via dis exactly
// once, regardless of how many times Release is called.
func WithChipSelect(en, dis func()) *ChipSelectGuard {
	en()
	return &ChipSelectGuard{en: en, dis: dis, on: true}
}

// Release deasserts chip-select if it has not already been deasserted.
func (g *ChipSelectGuard) Release() {
	if g.on {
		g.dis()
		g.on = false
	}
}
