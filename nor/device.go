// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"context"
	"fmt"

	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/ferrors"
)

// Device adapts any PHY family driver to device.VTable. A VTable "sector"
// is one erase block: NOR has no sub-block rewrite primitive (programming
// can only clear bits, never set them), so the smallest unit a Wr can
// safely overwrite without corrupting neighboring data is a full block,
// exactly as the sector size the RAM-disk and NAND adapters expose for
// their own atomic rewrite units.
type Device struct {
	name string
	phy  PHY

	geom Geometry
}

// NewDevice returns a Device driving phy, whose Geometry().BlockSize
// becomes the reported sector size once Open (which calls phy.Open) has
// run.
func NewDevice(name string, phy PHY) *Device {
	return &Device{name: name, phy: phy}
}

func (d *Device) NameGet() string { return d.name }

// Init is a no-op: PHY identification (and therefore Geometry) only
// becomes available once Open issues the family's JEDEC/CFI probe.
func (d *Device) Init() error { return nil }

func (d *Device) Open(ctx context.Context) error {
	if err := d.phy.Open(ctx); err != nil {
		return err
	}
	d.geom = d.phy.Geometry()
	return nil
}

func (d *Device) Close(ctx context.Context) error {
	return d.phy.Close()
}

func (d *Device) Query(ctx context.Context) (device.Info, error) {
	const op = "nor.Device.Query"
	if d.geom.BlockSize == 0 {
		return device.Info{}, ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Open not called"))
	}
	return device.Info{
		SecSize: d.geom.BlockSize,
		Size:    d.geom.DeviceSize,
		Fixed:   true,
	}, nil
}

func (d *Device) checkRange(op string, startSec uint64, cnt uint32) error {
	if d.geom.BlockSize == 0 {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Open not called"))
	}
	totalBlocks := uint64(d.geom.DeviceSize / uint64(d.geom.BlockSize))
	if startSec+uint64(cnt) > totalBlocks {
		return ferrors.New(ferrors.InvalidLowParams, op,
			fmt.Errorf("block range [%d,%d) exceeds device", startSec, startSec+uint64(cnt)))
	}
	return nil
}

func (d *Device) Rd(ctx context.Context, dest []byte, startSec uint64, cnt uint32) error {
	const op = "nor.Device.Rd"
	if err := d.checkRange(op, startSec, cnt); err != nil {
		return err
	}
	byteLen := uint64(cnt) * uint64(d.geom.BlockSize)
	if uint64(len(dest)) != byteLen {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("dest length %d != cnt*SecSize (%d*%d)", len(dest), cnt, d.geom.BlockSize))
	}
	return d.phy.Rd(ctx, dest, startSec*uint64(d.geom.BlockSize), int(byteLen))
}

// Wr erases each whole block in [startSec, startSec+cnt) and programs src
// over it. Since the sector size is exactly one erase block, no
// read-erase-merge is needed: the whole addressed unit is being replaced.
func (d *Device) Wr(ctx context.Context, src []byte, startSec uint64, cnt uint32) error {
	const op = "nor.Device.Wr"
	if err := d.checkRange(op, startSec, cnt); err != nil {
		return err
	}
	byteLen := uint64(cnt) * uint64(d.geom.BlockSize)
	if uint64(len(src)) != byteLen {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("src length %d != cnt*SecSize (%d*%d)", len(src), cnt, d.geom.BlockSize))
	}
	for i := uint32(0); i < cnt; i++ {
		blockStart := (startSec + uint64(i)) * uint64(d.geom.BlockSize)
		if err := d.phy.EraseBlk(ctx, blockStart, d.geom.BlockSize); err != nil {
			return err
		}
	}
	return d.phy.Wr(ctx, src, startSec*uint64(d.geom.BlockSize), int(byteLen))
}

func (d *Device) IOCtrl(ctx context.Context, op int, arg any) error {
	return d.phy.IOCtrl(ctx, IOCtrlOp(op), arg)
}

var _ device.VTable = (*Device)(nil)
