// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package device defines the sector-API façade that unifies every block
// driver family (RAM disk, NAND-backed, NOR-backed) behind one contract, per
// spec.md §4.5.
package device

import "context"

// Info is what Query returns: the caller-authoritative sector geometry.
type Info struct {
	SecSize uint32
	Size    uint64 // total addressable bytes, a multiple of SecSize
	Fixed   bool   // true for devices whose size cannot change at runtime
}

// Descriptor is the handle a caller holds across a device's Open/Close
// window; its zero value is not a valid open device.
type Descriptor struct {
	Name string
}

// VTable unifies every driver family behind one caller-facing contract.
// Sector numbers are zero-based physical sector indices; SecSize and the
// total sector count reported by Query are authoritative for the caller.
type VTable interface {
	NameGet() string

	Init() error
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	Rd(ctx context.Context, dest []byte, startSec uint64, cnt uint32) error
	Wr(ctx context.Context, src []byte, startSec uint64, cnt uint32) error

	Query(ctx context.Context) (Info, error)

	IOCtrl(ctx context.Context, op int, arg any) error
}
