// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package ramdisk is the reference device.VTable backend: a flat byte slice
// addressed by sector, with no translation layer and no wear concerns.
// Grounded on the fs_dev_ramdisk.c RAM-disk driver's sector-indexed linear
// copy, generalized from a single fixed-name unit to many named instances.
package ramdisk

import (
	"context"
	"fmt"
	"sync"

	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/ferrors"
)

// Disk is an in-memory block device: SecCount sectors of SecSize bytes
// each, addressed zero-based. Its Size is fixed for the life of the
// instance, matching the original RAM-disk driver's Fixed = true.
type Disk struct {
	mu   sync.Mutex
	name string

	secSize  uint32
	secCount uint64
	mem      []byte

	opened bool
}

// New allocates a Disk with name, secCount sectors of secSize bytes each.
// secSize must be one of 512, 1024, 2048, 4096, matching the sizes the
// original RAM-disk driver accepted.
func New(name string, secCount uint64, secSize uint32) *Disk {
	return &Disk{name: name, secSize: secSize, secCount: secCount}
}

func (d *Disk) NameGet() string { return d.name }

// Init validates configuration and allocates the backing store. It does
// not touch hardware, matching every driver family's Init/Open split.
func (d *Disk) Init() error {
	const op = "ramdisk.Disk.Init"

	switch d.secSize {
	case 512, 1024, 2048, 4096:
	default:
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("sector size %d not in {512,1024,2048,4096}", d.secSize))
	}
	if d.secCount < 1 {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("sector count must be >= 1, got %d", d.secCount))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.mem = make([]byte, d.secCount*uint64(d.secSize))
	return nil
}

func (d *Disk) Open(ctx context.Context) error {
	const op = "ramdisk.Disk.Open"
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mem == nil {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Init was not called, or failed"))
	}
	d.opened = true
	return nil
}

func (d *Disk) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *Disk) Rd(ctx context.Context, dest []byte, startSec uint64, cnt uint32) error {
	const op = "ramdisk.Disk.Rd"
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return ferrors.New(ferrors.InvalidOp, op, fmt.Errorf("device not open"))
	}
	if startSec+uint64(cnt) > d.secCount {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("sector range [%d,%d) exceeds %d sectors", startSec, startSec+uint64(cnt), d.secCount))
	}
	cntOctets := uint64(cnt) * uint64(d.secSize)
	if uint64(len(dest)) < cntOctets {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("dest too short: need %d bytes, got %d", cntOctets, len(dest)))
	}

	off := startSec * uint64(d.secSize)
	copy(dest[:cntOctets], d.mem[off:off+cntOctets])
	return nil
}

func (d *Disk) Wr(ctx context.Context, src []byte, startSec uint64, cnt uint32) error {
	const op = "ramdisk.Disk.Wr"
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return ferrors.New(ferrors.InvalidOp, op, fmt.Errorf("device not open"))
	}
	if startSec+uint64(cnt) > d.secCount {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("sector range [%d,%d) exceeds %d sectors", startSec, startSec+uint64(cnt), d.secCount))
	}
	cntOctets := uint64(cnt) * uint64(d.secSize)
	if uint64(len(src)) < cntOctets {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("src too short: need %d bytes, got %d", cntOctets, len(src)))
	}

	off := startSec * uint64(d.secSize)
	copy(d.mem[off:off+cntOctets], src[:cntOctets])
	return nil
}

func (d *Disk) Query(ctx context.Context) (device.Info, error) {
	const op = "ramdisk.Disk.Query"
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return device.Info{}, ferrors.New(ferrors.InvalidOp, op, fmt.Errorf("device not open"))
	}
	return device.Info{
		SecSize: d.secSize,
		Size:    d.secCount * uint64(d.secSize),
		Fixed:   true,
	}, nil
}

// IOCtrl has no control operations defined for the RAM disk; every opcode
// is invalid, matching the original driver's unconditional
// FS_ERR_DEV_INVALID_IO_CTRL.
func (d *Disk) IOCtrl(ctx context.Context, op int, arg any) error {
	return ferrors.New(ferrors.InvalidIoCtl, "ramdisk.Disk.IOCtrl", fmt.Errorf("opcode %d not supported", op))
}
