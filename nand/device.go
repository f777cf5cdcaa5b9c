// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"context"
	"fmt"

	"github.com/dswarbrick/flashcore/bsp"
	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/part"
)

// Device adapts a Controller to device.VTable, the same way fs_dev_nand.c
// wires FS_NAND_SecRdHandler/FS_NAND_SecWrHandler behind the generic
// FS_DEV_API table declared as FS_NAND (fs_dev_nand.h). Logical OOS is
// round-tripped internally; VTable callers see sector data only.
type Device struct {
	name     string
	bus      bsp.NANDBus
	part     *part.Descriptor
	ext      Extension
	timeouts Timeouts
	secSize  uint32

	ctrlr  *Controller
	oosBuf []byte
}

// NewDevice returns a Device bound to bus and part, ready for Init. ext may
// be nil for parts with no ECC extension. secSize must divide part.PgSize.
func NewDevice(name string, bus bsp.NANDBus, p *part.Descriptor, ext Extension, timeouts Timeouts, secSize uint32) *Device {
	return &Device{name: name, bus: bus, part: p, ext: ext, timeouts: timeouts, secSize: secSize}
}

func (d *Device) NameGet() string { return d.name }

// Init builds the underlying Controller and runs its sector-layout setup.
// The BSP handle itself is not touched here; Open does that.
func (d *Device) Init() error {
	ctrlr, err := NewController(d.bus, d.part, d.ext, d.timeouts)
	if err != nil {
		return err
	}
	if err := ctrlr.Setup(d.secSize); err != nil {
		return err
	}
	d.ctrlr = ctrlr
	d.oosBuf = make([]byte, ctrlr.OOSSizePerSec)
	return nil
}

func (d *Device) Open(ctx context.Context) error {
	const op = "nand.Device.Open"
	if d.ctrlr == nil {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Init not called"))
	}
	if err := d.bus.Open(); err != nil {
		return ferrors.New(ferrors.IO, op, err)
	}
	return nil
}

func (d *Device) Close(ctx context.Context) error {
	return d.bus.Close()
}

func (d *Device) totalSectors() uint64 {
	return d.part.RowAddrSpace() * uint64(d.ctrlr.nSecPerPg)
}

func (d *Device) Query(ctx context.Context) (device.Info, error) {
	const op = "nand.Device.Query"
	if d.ctrlr == nil {
		return device.Info{}, ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Init not called"))
	}
	return device.Info{
		SecSize: d.ctrlr.SecSize,
		Size:    d.part.RowAddrSpace() * uint64(d.part.PgSize),
		Fixed:   true, // NAND geometry is fixed by the part descriptor at Open
	}, nil
}

// Rd reads cnt consecutive sectors starting at startSec into dest (length
// cnt*SecSize), discarding their logical OOS.
func (d *Device) Rd(ctx context.Context, dest []byte, startSec uint64, cnt uint32) error {
	const op = "nand.Device.Rd"
	if d.ctrlr == nil {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Init not called"))
	}
	if uint64(len(dest)) != uint64(cnt)*uint64(d.ctrlr.SecSize) {
		return ferrors.New(ferrors.InvalidLowParams, op,
			fmt.Errorf("dest length %d != cnt*SecSize (%d*%d)", len(dest), cnt, d.ctrlr.SecSize))
	}
	if startSec+uint64(cnt) > d.totalSectors() {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("sector range [%d,%d) exceeds device", startSec, startSec+uint64(cnt)))
	}
	for i := uint32(0); i < cnt; i++ {
		sec := startSec + uint64(i)
		chunk := dest[uint64(i)*uint64(d.ctrlr.SecSize) : uint64(i+1)*uint64(d.ctrlr.SecSize)]
		if status, err := d.ctrlr.ReadSector(ctx, sec, chunk, d.oosBuf); err != nil {
			return err
		} else if status == EccCriticalCorrected {
			ferrors.Incr(ferrors.EccCriticalCorr)
		}
	}
	return nil
}

// Wr programs cnt consecutive sectors starting at startSec from src (length
// cnt*SecSize), with a blank (0xFF) logical OOS per sector.
func (d *Device) Wr(ctx context.Context, src []byte, startSec uint64, cnt uint32) error {
	const op = "nand.Device.Wr"
	if d.ctrlr == nil {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("Init not called"))
	}
	if uint64(len(src)) != uint64(cnt)*uint64(d.ctrlr.SecSize) {
		return ferrors.New(ferrors.InvalidLowParams, op,
			fmt.Errorf("src length %d != cnt*SecSize (%d*%d)", len(src), cnt, d.ctrlr.SecSize))
	}
	if startSec+uint64(cnt) > d.totalSectors() {
		return ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("sector range [%d,%d) exceeds device", startSec, startSec+uint64(cnt)))
	}
	blankOOS := make([]byte, d.ctrlr.OOSSizePerSec)
	for i := range blankOOS {
		blankOOS[i] = 0xFF
	}
	for i := uint32(0); i < cnt; i++ {
		sec := startSec + uint64(i)
		chunk := src[uint64(i)*uint64(d.ctrlr.SecSize) : uint64(i+1)*uint64(d.ctrlr.SecSize)]
		if err := d.ctrlr.WriteSector(ctx, sec, chunk, blankOOS); err != nil {
			return err
		}
	}
	return nil
}

// IOCtrl forwards to the underlying Controller's IOCtrlOp-keyed dispatch.
func (d *Device) IOCtrl(ctx context.Context, op int, arg any) error {
	if d.ctrlr == nil {
		return ferrors.New(ferrors.InvalidCfg, "nand.Device.IOCtrl", fmt.Errorf("Init not called"))
	}
	return d.ctrlr.IOCtrl(ctx, IOCtrlOp(op), arg)
}

var _ device.VTable = (*Device)(nil)
