// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package nand implements the generic NAND controller: it owns the command
// protocol, translates (sector_index, sector_size) into (row, column) bus
// addresses, packs/unpacks out-of-sector metadata into the gapped physical
// spare area, and drives an optional ECC extension.
package nand

import (
	"context"
	"fmt"
	"time"

	"github.com/dswarbrick/flashcore/bsp"
	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/part"
)

// Timeouts bounds every wait-while-busy call the controller issues.
type Timeouts struct {
	Reset   time.Duration
	Read    time.Duration
	Program time.Duration
	Erase   time.Duration
}

// DefaultTimeouts are conservative small/large-page NAND figures (in
// microseconds, per SPEC_FULL.md's liveness model).
var DefaultTimeouts = Timeouts{
	Reset:   1000 * time.Microsecond,
	Read:    100 * time.Microsecond,
	Program: 700 * time.Microsecond,
	Erase:   10 * time.Millisecond,
}

// Controller is the per-open NAND generic controller state. It exclusively
// owns its BSP handle and scratch buffers for the lifetime of the open.
type Controller struct {
	bus  bsp.NANDBus
	p    *part.Descriptor
	ext  Extension
	extD ExtData

	smallPage bool

	ColAddrSize int
	RowAddrSize int

	SecSize             uint32
	nSecPerPg           uint32
	rsvdSize            uint32
	spareSizePerSec     uint32
	OOSSizePerSec       uint32
	SpareTotalAvailSize uint32

	freeMapAbs part.FreeSpareMap // FreeSpareMap entries, rebased to absolute page offsets (+PgSize)
	oosInfoTbl []OOSInfo

	spareBuf  []byte
	timeouts  Timeouts
}

// NewController wires a Controller to an already-open BSP handle and an
// immutable part descriptor. Call Setup before issuing any sector I/O.
//
// A non-nil ext is run through RegisterExtension, so its Init runs exactly
// once even if the same Extension value backs multiple controllers (e.g.
// several partitions of the same part family sharing one ECC engine).
func NewController(bus bsp.NANDBus, p *part.Descriptor, ext Extension, timeouts Timeouts) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if ext != nil {
		if err := RegisterExtension(ext); err != nil {
			return nil, err
		}
	}
	c := &Controller{
		bus:         bus,
		p:           p,
		ext:         ext,
		smallPage:   p.PgSize == 512,
		ColAddrSize: ColAddrSize(p.PgSize),
		RowAddrSize: RowAddrSize(p.RowAddrSpace()),
		timeouts:    timeouts,
	}
	return c, nil
}

// Setup divides the page into n = PgSize/secSize logical sectors, asks the
// extension (if any) to reserve ECC octets per sector, and builds the
// physical OOS segment table by walking the part's FreeSpareMap.
func (c *Controller) Setup(secSize uint32) error {
	const op = "Controller.Setup"

	if secSize == 0 || c.p.PgSize%secSize != 0 {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("sector size %d does not divide page size %d", secSize, c.p.PgSize))
	}
	c.SecSize = secSize
	c.nSecPerPg = c.p.PgSize / secSize

	if opener, ok := c.ext.(ExtOpener); ok {
		ed, err := opener.Open(c.p)
		if err != nil {
			return ferrors.New(ferrors.InvalidCfg, op, err)
		}
		c.extD = ed
	}

	var rsvd uint32
	if su, ok := c.ext.(ExtSetuper); ok {
		r, err := su.Setup(c.extD)
		if err != nil {
			return err
		}
		rsvd = r
	}
	c.rsvdSize = rsvd

	total := c.p.FreeSpareMap.TotalLen()
	if total%c.nSecPerPg != 0 {
		return ferrors.New(ferrors.InvalidLowParams, op,
			fmt.Errorf("spare area total %d not evenly divisible across %d sectors/page", total, c.nSecPerPg))
	}
	c.SpareTotalAvailSize = total
	c.spareSizePerSec = total / c.nSecPerPg
	if c.spareSizePerSec < rsvd {
		return ferrors.New(ferrors.InvalidCfg, op,
			fmt.Errorf("per-sector spare quota %d smaller than ECC reservation %d", c.spareSizePerSec, rsvd))
	}
	c.OOSSizePerSec = c.spareSizePerSec - rsvd

	c.freeMapAbs = make(part.FreeSpareMap, len(c.p.FreeSpareMap))
	for i, r := range c.p.FreeSpareMap {
		c.freeMapAbs[i] = part.SpareRange{Offset: c.p.PgSize + r.Offset, Len: r.Len}
	}

	tbl, err := buildOOSInfoTbl(c.freeMapAbs, int(c.nSecPerPg), c.spareSizePerSec)
	if err != nil {
		return err
	}
	var maxLen uint32
	for i, seg := range tbl {
		if seg.PgOffset < c.p.PgSize {
			return ferrors.New(ferrors.InvalidLowParams, op,
				fmt.Errorf("sector %d OOS segment at %d precedes spare area start %d", i, seg.PgOffset, c.p.PgSize))
		}
		if c.p.BusWidth == 16 && seg.PgOffset%2 != 0 {
			return ferrors.New(ferrors.InvalidLowParams, op,
				fmt.Errorf("sector %d OOS segment starts at odd offset %d on a 16-bit bus", i, seg.PgOffset))
		}
		if seg.Len > maxLen {
			maxLen = seg.Len
		}
	}
	c.oosInfoTbl = tbl
	c.spareBuf = make([]byte, maxLen)
	return nil
}

// buildOOSInfoTbl walks freeMap (already rebased to absolute page offsets)
// consuming segLen logical octets per sector. When a region is exhausted
// mid-sector, the cursor jumps to the next region's start; the jump
// distance is attributed to the segment's total length (corrected reading
// of the Open Question in SPEC_FULL.md §9 — not to the logical quota
// consumed), so a segment spanning multiple regions records its true
// physical span.
func buildOOSInfoTbl(freeMap part.FreeSpareMap, nSec int, segLen uint32) ([]OOSInfo, error) {
	if len(freeMap) == 0 {
		return nil, ferrors.New(ferrors.InvalidLowParams, "buildOOSInfoTbl", fmt.Errorf("empty free-spare map"))
	}

	tbl := make([]OOSInfo, nSec)
	regionIdx := 0
	cursor := freeMap[0].Offset
	remainInRegion := freeMap[0].Len

	for i := 0; i < nSec; i++ {
		segStart := cursor
		var consumed uint32
		for consumed < segLen {
			if remainInRegion == 0 {
				regionIdx++
				if regionIdx >= len(freeMap) {
					return nil, ferrors.New(ferrors.InvalidLowParams, "buildOOSInfoTbl",
						fmt.Errorf("free-spare map exhausted building sector %d's OOS segment", i))
				}
				cursor = freeMap[regionIdx].Offset
				remainInRegion = freeMap[regionIdx].Len
				continue
			}
			take := segLen - consumed
			if take > remainInRegion {
				take = remainInRegion
			}
			cursor += take
			consumed += take
			remainInRegion -= take
		}
		tbl[i] = OOSInfo{PgOffset: segStart, Len: cursor - segStart}
	}
	return tbl, nil
}

func (c *Controller) addrFor(sec uint64) (row uint64, secOff uint32, col uint32) {
	row = sec / uint64(c.nSecPerPg)
	secOff = uint32(sec % uint64(c.nSecPerPg))
	col = secOff * c.SecSize
	return
}

func (c *Controller) issueReadSetup(row uint64, col uint32) error {
	if c.smallPage {
		opcode, biased := SmallPageZone(col, c.p.BusWidth)
		if err := c.bus.CmdWr([]byte{opcode}); err != nil {
			return err
		}
		addr := FormatAddr(c.ColAddrSize, c.RowAddrSize, ColForBus(biased, c.p.BusWidth), row)
		return c.bus.AddrWr(addr)
	}
	if err := c.bus.CmdWr([]byte{opReadSetupA}); err != nil {
		return err
	}
	addr := FormatAddr(c.ColAddrSize, c.RowAddrSize, ColForBus(col, c.p.BusWidth), row)
	if err := c.bus.AddrWr(addr); err != nil {
		return err
	}
	return c.bus.CmdWr([]byte{opReadConfirm})
}

func (c *Controller) issueChangeReadColumn(col uint32) error {
	if err := c.bus.CmdWr([]byte{opChangeReadCol}); err != nil {
		return err
	}
	addr := FormatAddr(c.ColAddrSize, 0, ColForBus(col, c.p.BusWidth), 0)
	if err := c.bus.AddrWr(addr); err != nil {
		return err
	}
	return c.bus.CmdWr([]byte{opChangeReadConf})
}

func (c *Controller) issueChangeWriteColumn(col uint32) error {
	if err := c.bus.CmdWr([]byte{opChangeWriteCol}); err != nil {
		return err
	}
	addr := FormatAddr(c.ColAddrSize, 0, ColForBus(col, c.p.BusWidth), 0)
	return c.bus.AddrWr(addr)
}

func (c *Controller) readStatus() (byte, error) {
	if err := c.bus.CmdWr([]byte{opReadStatus}); err != nil {
		return 0, err
	}
	st := make([]byte, 1)
	if err := c.bus.DataRd(st, c.p.BusWidth); err != nil {
		return 0, err
	}
	return st[0], nil
}

func (c *Controller) readyPoll() (bool, error) {
	st, err := c.readStatus()
	if err != nil {
		return false, err
	}
	return st&statusRdyBit != 0, nil
}

// readPageWindow reads an arbitrary absolute byte window of page row into
// dst, selecting the correct small-page zone opcode when needed, and
// re-issuing read-setup after the busy wait so the column pointer is
// valid, exactly as ReadSector does for its data and OOS phases.
func (c *Controller) readPageWindow(ctx context.Context, row uint64, absOffset uint32, dst []byte, timeout time.Duration) error {
	guard := bsp.WithChipSelect(c.bus.ChipSelEn, c.bus.ChipSelDis)
	defer guard.Release()

	if err := c.issueReadSetup(row, absOffset); err != nil {
		return err
	}
	if err := c.bus.WaitWhileBusy(ctx, c.readyPoll, timeout); err != nil {
		return err
	}
	if err := c.issueReadSetup(row, absOffset); err != nil {
		return err
	}
	return c.bus.DataRd(dst, c.p.BusWidth)
}

// ReadSector reads sector sec's data into data (length SecSize) and its
// logical OOS into oos (length OOSSizePerSec), returning the worst ECC
// outcome the extension reported. A fatal bus/timeout error always takes
// precedence and releases chip-select before returning.
func (c *Controller) ReadSector(ctx context.Context, sec uint64, data, oos []byte) (EccStatus, error) {
	const op = "Controller.ReadSector"
	if uint32(len(data)) != c.SecSize {
		return EccOK, ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("data buffer length %d != sector size %d", len(data), c.SecSize))
	}
	if uint32(len(oos)) != c.OOSSizePerSec {
		return EccOK, ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("oos buffer length %d != OOSSizePerSec %d", len(oos), c.OOSSizePerSec))
	}

	row, secOff, col := c.addrFor(sec)
	seg := c.oosInfoTbl[secOff]

	guard := bsp.WithChipSelect(c.bus.ChipSelEn, c.bus.ChipSelDis)
	defer guard.Release()

	if err := c.issueReadSetup(row, col); err != nil {
		return EccOK, c.fatal(op, err)
	}
	if err := c.bus.WaitWhileBusy(ctx, c.readyPoll, c.timeouts.Read); err != nil {
		return EccOK, c.fatal(op, err)
	}

	status := EccOK
	if checker, ok := c.ext.(ExtStatusChecker); ok {
		st, err := checker.RdStatusChk(c.extD)
		if err != nil {
			return EccOK, c.fatal(op, err)
		}
		if st == EccUncorrectable {
			return st, c.terminal(st)
		}
		status = worseEcc(status, st)
	}

	// Re-issue read-setup so the column pointer is valid, then stream data.
	if err := c.issueReadSetup(row, col); err != nil {
		return EccOK, c.fatal(op, err)
	}
	if err := c.bus.DataRd(data, c.p.BusWidth); err != nil {
		return EccOK, c.fatal(op, err)
	}

	// OOS segment.
	if c.smallPage {
		if err := c.issueReadSetup(row, seg.PgOffset); err != nil {
			return EccOK, c.fatal(op, err)
		}
	} else {
		if err := c.issueChangeReadColumn(seg.PgOffset); err != nil {
			return EccOK, c.fatal(op, err)
		}
	}
	physical := c.spareBuf[:seg.Len]
	if err := c.bus.DataRd(physical, c.p.BusWidth); err != nil {
		return EccOK, c.fatal(op, err)
	}

	logical, err := unpackSpare(physical, seg, c.freeMapAbs)
	if err != nil {
		return EccOK, c.fatal(op, err)
	}
	copy(oos, logical[:c.OOSSizePerSec])

	if verifier, ok := c.ext.(ExtEccVerifier); ok {
		fullOOS := logical[:c.spareSizePerSec]
		st, err := verifier.ECCVerify(c.extD, data, fullOOS)
		if err != nil {
			return EccOK, c.fatal(op, err)
		}
		status = worseEcc(status, st)
	}

	if status == EccUncorrectable {
		return status, c.terminal(status)
	}
	return status, nil
}

// terminal records an ECC status as an error for callers that treat
// uncorrectable data as data-loss, and increments the matching counter.
func (c *Controller) terminal(st EccStatus) error {
	code, ok := st.ToErrorCode()
	if ok {
		ferrors.Incr(code)
		return ferrors.New(code, "Controller.ReadSector", nil)
	}
	return nil
}

// fatal wraps a propagated bus/timeout error, incrementing its counter.
func (c *Controller) fatal(op string, err error) error {
	if fe, ok := err.(*ferrors.Error); ok {
		ferrors.Incr(fe.Code)
		return err
	}
	ferrors.Incr(ferrors.IO)
	return ferrors.New(ferrors.IO, op, err)
}

// WriteSector programs sector sec with data (length SecSize) and logical
// OOS oos (length OOSSizePerSec), invoking the extension's ECC_Calc to
// fill the reserved portion of the physical OOS segment before it is
// packed and streamed.
func (c *Controller) WriteSector(ctx context.Context, sec uint64, data, oos []byte) error {
	const op = "Controller.WriteSector"
	if uint32(len(data)) != c.SecSize {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("data buffer length %d != sector size %d", len(data), c.SecSize))
	}
	if uint32(len(oos)) != c.OOSSizePerSec {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("oos buffer length %d != OOSSizePerSec %d", len(oos), c.OOSSizePerSec))
	}

	row, secOff, col := c.addrFor(sec)
	seg := c.oosInfoTbl[secOff]

	guard := bsp.WithChipSelect(c.bus.ChipSelEn, c.bus.ChipSelDis)
	defer guard.Release()

	if err := c.bus.CmdWr([]byte{opProgramSetup}); err != nil {
		return c.fatal(op, err)
	}
	addr := FormatAddr(c.ColAddrSize, c.RowAddrSize, ColForBus(col, c.p.BusWidth), row)
	if err := c.bus.AddrWr(addr); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.DataWr(data, c.p.BusWidth); err != nil {
		return c.fatal(op, err)
	}

	logical := make([]byte, c.spareSizePerSec)
	copy(logical, oos)
	if calc, ok := c.ext.(ExtEccCalculator); ok {
		if err := calc.ECCCalc(c.extD, data, logical); err != nil {
			return c.fatal(op, err)
		}
	}

	physical, err := packSpare(logical, seg, c.freeMapAbs)
	if err != nil {
		return c.fatal(op, err)
	}

	if c.smallPage {
		// Continue the same write stream: pad from the end of the data
		// region up to the OOS segment's column, then stream the segment.
		if col+c.SecSize < seg.PgOffset {
			pad := make([]byte, seg.PgOffset-(col+c.SecSize))
			for i := range pad {
				pad[i] = 0xFF
			}
			if err := c.bus.DataWr(pad, c.p.BusWidth); err != nil {
				return c.fatal(op, err)
			}
		}
		if err := c.bus.DataWr(physical, c.p.BusWidth); err != nil {
			return c.fatal(op, err)
		}
	} else {
		if err := c.issueChangeWriteColumn(seg.PgOffset); err != nil {
			return c.fatal(op, err)
		}
		if err := c.bus.DataWr(physical, c.p.BusWidth); err != nil {
			return c.fatal(op, err)
		}
	}

	if err := c.bus.CmdWr([]byte{opProgramConfirm}); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.WaitWhileBusy(ctx, c.readyPoll, c.timeouts.Program); err != nil {
		return c.fatal(op, err)
	}
	st, err := c.readStatus()
	if err != nil {
		return c.fatal(op, err)
	}
	if st&statusFailBit != 0 {
		ferrors.Incr(ferrors.OpFailed)
		return ferrors.New(ferrors.OpFailed, op, nil)
	}
	return nil
}

// EraseBlock erases block blk, addressing its first page's row only (erase
// has no column component).
func (c *Controller) EraseBlock(ctx context.Context, blk uint32) error {
	const op = "Controller.EraseBlock"
	if uint64(blk) >= uint64(c.p.BlkCnt) {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("block %d out of range [0,%d)", blk, c.p.BlkCnt))
	}
	row := uint64(blk) * uint64(c.p.PgPerBlk)

	guard := bsp.WithChipSelect(c.bus.ChipSelEn, c.bus.ChipSelDis)
	defer guard.Release()

	if err := c.bus.CmdWr([]byte{opEraseSetup}); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.AddrWr(FormatRowAddr(c.RowAddrSize, row)); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.CmdWr([]byte{opEraseConfirm}); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.WaitWhileBusy(ctx, c.readyPoll, c.timeouts.Erase); err != nil {
		return c.fatal(op, err)
	}
	st, err := c.readStatus()
	if err != nil {
		return c.fatal(op, err)
	}
	if st&statusFailBit != 0 {
		ferrors.Incr(ferrors.OpFailed)
		return ferrors.New(ferrors.OpFailed, op, nil)
	}
	return nil
}

// OOSRdRaw reads and unpacks OOS for one sector without invoking ECC.
func (c *Controller) OOSRdRaw(ctx context.Context, sec uint64, dst []byte) error {
	const op = "Controller.OOSRdRaw"
	if uint32(len(dst)) != c.OOSSizePerSec {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("dst length %d != OOSSizePerSec %d", len(dst), c.OOSSizePerSec))
	}
	row, secOff, _ := c.addrFor(sec)
	seg := c.oosInfoTbl[secOff]

	physical := make([]byte, seg.Len)
	if err := c.readPageWindow(ctx, row, seg.PgOffset, physical, c.timeouts.Read); err != nil {
		return c.fatal(op, err)
	}
	logical, err := unpackSpare(physical, seg, c.freeMapAbs)
	if err != nil {
		return c.fatal(op, err)
	}
	copy(dst, logical[:c.OOSSizePerSec])
	return nil
}

// SpareRdRaw reads an arbitrary window of the physical spare area of page
// pageIx, where relOffset is relative to the start of the spare area.
func (c *Controller) SpareRdRaw(ctx context.Context, pageIx uint64, relOffset uint32, dst []byte) error {
	const op = "Controller.SpareRdRaw"
	if err := c.readPageWindow(ctx, pageIx, c.p.PgSize+relOffset, dst, c.timeouts.Read); err != nil {
		return c.fatal(op, err)
	}
	return nil
}

// PgRdRaw reads an arbitrary byte window of physical page pageIx, selecting
// the appropriate zone opcode for small pages automatically.
func (c *Controller) PgRdRaw(ctx context.Context, pageIx uint64, absOffset uint32, dst []byte) error {
	const op = "Controller.PgRdRaw"
	if err := c.readPageWindow(ctx, pageIx, absOffset, dst, c.timeouts.Read); err != nil {
		return c.fatal(op, err)
	}
	return nil
}

// IOCtrl dispatches PARAM_PG_RD (used by the ONFI part layer) and
// PHY_RD_PAGE (raw full-page read).
func (c *Controller) IOCtrl(ctx context.Context, op IOCtrlOp, arg any) error {
	switch op {
	case ParamPgRd:
		a, ok := arg.(*ParamPgRdArg)
		if !ok {
			return ferrors.New(ferrors.InvalidIoCtl, "Controller.IOCtrl", fmt.Errorf("ParamPgRd expects *ParamPgRdArg"))
		}
		return c.paramPgRd(ctx, a)
	case PhyRdPage:
		a, ok := arg.(*PhyRdPageArg)
		if !ok {
			return ferrors.New(ferrors.InvalidIoCtl, "Controller.IOCtrl", fmt.Errorf("PhyRdPage expects *PhyRdPageArg"))
		}
		return c.PgRdRaw(ctx, a.PageIx, a.Offset, a.Dest)
	default:
		return ferrors.New(ferrors.InvalidIoCtl, "Controller.IOCtrl", fmt.Errorf("unknown op %d", op))
	}
}

func (c *Controller) paramPgRd(ctx context.Context, a *ParamPgRdArg) error {
	const op = "Controller.paramPgRd"
	if len(a.Dest) != ONFIParamPageLen {
		return ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("dest length %d != %d", len(a.Dest), ONFIParamPageLen))
	}

	guard := bsp.WithChipSelect(c.bus.ChipSelEn, c.bus.ChipSelDis)
	defer guard.Release()

	if err := c.bus.CmdWr([]byte{opReadParamPage}); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.AddrWr([]byte{0x00}); err != nil {
		return c.fatal(op, err)
	}
	if err := c.bus.WaitWhileBusy(ctx, c.readyPoll, c.timeouts.Read); err != nil {
		return c.fatal(op, err)
	}
	if a.RelAddr != 0 {
		if err := c.issueChangeReadColumn(a.RelAddr); err != nil {
			return c.fatal(op, err)
		}
	}
	if err := c.bus.DataRd(a.Dest, c.p.BusWidth); err != nil {
		return c.fatal(op, err)
	}
	return nil
}
