// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package onfi

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/nand"
	"github.com/dswarbrick/flashcore/part"
)

// maxCopyRetries bounds how many of the up-to-three on-chip parameter-page
// copies Read will try before giving up, per spec.md §8 testable property 4
// ("after three consecutive failures Open returns InvalidLowParams").
const maxCopyRetries = 3

// revisionBits maps each ONFI revision bit (bit index within bytes 4-5) to
// its version string. Checked from the highest bit down so the newest
// revision a part advertises support for wins.
var revisionBits = []struct {
	bit  uint
	name string
}{
	{5, "2.3"},
	{4, "2.2"},
	{3, "2.1"},
	{2, "2.0"},
	{1, "1.0"},
	{0, "1.0 (backward compatible)"},
}

// countMatches reports how many byte positions of got equal the
// corresponding position of want; used to score the "ONFI" signature
// against a measured tolerance of bit errors instead of requiring an exact
// match.
func countMatches(got, want []byte) int {
	n := 0
	for i := range want {
		if i < len(got) && got[i] == want[i] {
			n++
		}
	}
	return n
}

func parseRevision(word uint16) string {
	for _, rb := range revisionBits {
		if word&(1<<rb.bit) != 0 {
			return rb.name
		}
	}
	return "unknown"
}

// ParamPage is the parsed, CRC-validated primary ONFI parameter page.
type ParamPage struct {
	Revision            string
	BusWidth             uint8 // 8 or 16
	ExtendedPagePresent  bool
	ExtendedPageLen      uint32 // octets (field value * 16)
	CopyCount            uint8
	PgSize               uint32
	SpareSize            uint16
	PgPerBlk             uint32
	BlkPerLUN            uint32
	LUNCount             uint8
	MaxBadBlocks         uint16
	MaxBlockErases       uint32
	PartialProgramsPerPg uint8
	ECCCorrectableBits   uint8 // 0xFF: "see extended parameter page"
}

// needsExtendedPage reports whether the ECC-correctability escape (0xFF at
// byte 112) requires an extended parameter page read.
func (p *ParamPage) needsExtendedPage() bool {
	return p.ECCCorrectableBits == 0xFF
}

// ParseParamPage validates raw's CRC (bytes 254-255 over bytes 0-253) and
// decodes the fields spec.md's external-interfaces layout names.
func ParseParamPage(raw []byte) (*ParamPage, error) {
	const op = "onfi.ParseParamPage"
	if len(raw) != nand.ONFIParamPageLen {
		return nil, ferrors.New(ferrors.InvalidLowParams, op,
			fmt.Errorf("parameter page length %d != %d", len(raw), nand.ONFIParamPageLen))
	}

	if sigMatches := countMatches(raw[0:4], []byte("ONFI")); sigMatches < 2 {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("signature %q matches ONFI in only %d of 4 bytes", raw[0:4], sigMatches))
	}

	gotCRC := binary.LittleEndian.Uint16(raw[254:256])
	wantCRC := CRC16(raw[0:254])
	if gotCRC != wantCRC {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("CRC mismatch: got %#04x want %#04x", gotCRC, wantCRC))
	}

	mbeMultiplier := raw[106]
	if mbeMultiplier > 9 {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("max-block-erase multiplier %d exceeds 9", mbeMultiplier))
	}
	mbeValue := uint32(raw[105])
	var mbe uint32 = mbeValue
	for i := byte(0); i < mbeMultiplier; i++ {
		mbe *= 10
	}

	p := &ParamPage{
		Revision:             parseRevision(binary.LittleEndian.Uint16(raw[4:6])),
		BusWidth:             8,
		ExtendedPagePresent:  raw[6]&0x80 != 0,
		ExtendedPageLen:      uint32(binary.LittleEndian.Uint16(raw[12:14])) * 16,
		CopyCount:            raw[14],
		PgSize:               binary.LittleEndian.Uint32(raw[80:84]),
		SpareSize:            binary.LittleEndian.Uint16(raw[84:86]),
		PgPerBlk:             binary.LittleEndian.Uint32(raw[92:96]),
		BlkPerLUN:            binary.LittleEndian.Uint32(raw[96:100]),
		LUNCount:             raw[100],
		MaxBadBlocks:         binary.LittleEndian.Uint16(raw[103:105]),
		MaxBlockErases:       mbe,
		PartialProgramsPerPg: raw[110],
		ECCCorrectableBits:   raw[112],
	}
	if raw[6]&0x01 != 0 {
		p.BusWidth = 16
	}
	return p, nil
}

// Extended parameter page section types. ONFI reserves a wide type space;
// these are the three spec.md names as recognized.
const (
	sectionUnused    byte = 0x00
	sectionECCInfo   byte = 0x02
	sectionSpecifier byte = 0x0F
)

// ExtParamPage is the parsed extended parameter page, currently only
// carrying the ECC-Info section's fields (the only section type the
// controller's Setup/Extension path consumes).
type ExtParamPage struct {
	ECCNbrCorrBits  uint8
	ECCCodewordSize uint32
}

type sectionDesc struct {
	typ      byte
	lenIn16s byte
}

// parseSectionDescriptors reads consecutive 2-byte (type, length-in-16s)
// descriptors starting at offset within buf, stopping at the first Unused
// descriptor or after max entries, whichever comes first.
func parseSectionDescriptors(buf []byte, offset uint32, max int) ([]sectionDesc, error) {
	const op = "onfi.parseSectionDescriptors"
	var out []sectionDesc
	for i := 0; i < max; i++ {
		pos := offset + uint32(2*i)
		if pos+2 > uint32(len(buf)) {
			return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("section descriptor at %d overruns buffer", pos))
		}
		t := buf[pos]
		if t == sectionUnused {
			break
		}
		out = append(out, sectionDesc{typ: t, lenIn16s: buf[pos+1]})
	}
	return out, nil
}

// ParseExtendedParamPage validates raw's signature and leading CRC (over
// bytes 2..declaredLen) and walks its section descriptors, applying the
// corrected reading of spec.md §9's Open Question: a Specifier section's
// extra-section range is derived from the section's own recorded offset
// (its first two data bytes), never from the section's type tag.
func ParseExtendedParamPage(raw []byte, declaredLen uint32) (*ExtParamPage, error) {
	const op = "onfi.ParseExtendedParamPage"
	if uint32(len(raw)) < declaredLen || declaredLen < 32 {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("extended page length %d too short", declaredLen))
	}
	buf := raw[:declaredLen]

	gotCRC := binary.LittleEndian.Uint16(buf[0:2])
	wantCRC := CRC16(buf[2:declaredLen])
	if gotCRC != wantCRC {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("extended page CRC mismatch: got %#04x want %#04x", gotCRC, wantCRC))
	}
	if string(buf[2:6]) != "EPPS" {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("bad extended page signature %q", buf[2:6]))
	}

	queue, err := parseSectionDescriptors(buf, 16, 8)
	if err != nil {
		return nil, err
	}

	ext := &ExtParamPage{}
	var eccSeen bool
	dataOffset := uint32(32)

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		secLen := uint32(d.lenIn16s) * 16
		if dataOffset+secLen > declaredLen {
			return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("section type %#02x overruns extended page", d.typ))
		}
		data := buf[dataOffset : dataOffset+secLen]

		switch d.typ {
		case sectionECCInfo:
			if eccSeen {
				return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("multiple ECC-Info sections"))
			}
			if len(data) < 2 {
				return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("ECC-Info section too short"))
			}
			eccSeen = true
			ext.ECCNbrCorrBits = data[0]
			ext.ECCCodewordSize = 1 << data[1]
		case sectionSpecifier:
			if len(data) < 2 {
				return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("Specifier section too short"))
			}
			extraOffset := uint32(binary.LittleEndian.Uint16(data[0:2]))
			extra, err := parseSectionDescriptors(buf, extraOffset, 8)
			if err != nil {
				return nil, err
			}
			queue = append(queue, extra...)
		}
		dataOffset += secLen
	}

	if !eccSeen {
		return nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("no ECC-Info section found"))
	}
	return ext, nil
}

// Controller is the subset of *nand.Controller the ONFI reader drives.
type Controller interface {
	IOCtrl(ctx context.Context, op nand.IOCtrlOp, arg any) error
}

// Read retrieves and validates the primary parameter page, retrying across
// alternate on-chip copies (256-byte stride) up to maxCopyRetries times,
// and, if the ECC-correctability escape is set, reads and validates the
// extended parameter page too.
func Read(ctx context.Context, ctrl Controller) (*ParamPage, *ExtParamPage, error) {
	const op = "onfi.Read"

	var pp *ParamPage
	var lastErr error
	for copyIx := 0; copyIx < maxCopyRetries; copyIx++ {
		raw := make([]byte, nand.ONFIParamPageLen)
		arg := &nand.ParamPgRdArg{RelAddr: uint32(copyIx) * nand.ONFIParamPageLen, Dest: raw}
		if err := ctrl.IOCtrl(ctx, nand.ParamPgRd, arg); err != nil {
			lastErr = err
			continue
		}
		p, err := ParseParamPage(raw)
		if err != nil {
			lastErr = err
			continue
		}
		pp = p
		break
	}
	if pp == nil {
		return nil, nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("all %d parameter-page copies failed: %w", maxCopyRetries, lastErr))
	}

	if !pp.needsExtendedPage() {
		return pp, nil, nil
	}
	if !pp.ExtendedPagePresent {
		return nil, nil, ferrors.New(ferrors.InvalidLowParams, op, fmt.Errorf("ECC correctability escape set but no extended parameter page is indicated"))
	}

	extRaw := make([]byte, pp.ExtendedPageLen)
	extAddr := uint32(pp.CopyCount) * nand.ONFIParamPageLen
	// Extended pages may exceed one 256-byte stream; read sequential
	// ONFIParamPageLen-sized chunks starting at extAddr until filled.
	for off := 0; off < len(extRaw); off += nand.ONFIParamPageLen {
		end := off + nand.ONFIParamPageLen
		if end > len(extRaw) {
			end = len(extRaw)
		}
		chunk := make([]byte, nand.ONFIParamPageLen)
		arg := &nand.ParamPgRdArg{RelAddr: extAddr + uint32(off), Dest: chunk}
		if err := ctrl.IOCtrl(ctx, nand.ParamPgRd, arg); err != nil {
			return nil, nil, ferrors.New(ferrors.InvalidLowParams, op, err)
		}
		copy(extRaw[off:end], chunk[:end-off])
	}

	ext, err := ParseExtendedParamPage(extRaw, pp.ExtendedPageLen)
	if err != nil {
		return nil, nil, err
	}
	return pp, ext, nil
}

// BuildDescriptor combines ONFI-probed geometry with caller-supplied
// spare-layout knowledge that ONFI does not standardize (the free-spare
// map and defect-mark convention are board/part-family conventions, not
// parameter-page fields).
func BuildDescriptor(pp *ParamPage, ext *ExtParamPage, freeSpareMap part.FreeSpareMap, defectMark part.DefectMarkType) *part.Descriptor {
	d := &part.Descriptor{
		BlkCnt:         pp.BlkPerLUN * uint32(pp.LUNCount),
		PgPerBlk:       pp.PgPerBlk,
		PgSize:         pp.PgSize,
		SpareSize:      uint32(pp.SpareSize),
		BusWidth:       pp.BusWidth,
		NbrPgmPerPg:    pp.PartialProgramsPerPg,
		DefectMarkType: defectMark,
		MaxBadBlkCnt:   uint32(pp.MaxBadBlocks),
		MaxBlkErase:    pp.MaxBlockErases,
		FreeSpareMap:   freeSpareMap,
	}
	if ext != nil {
		d.ECCNbrCorrBits = ext.ECCNbrCorrBits
		d.ECCCodewordSize = ext.ECCCodewordSize
	} else {
		d.ECCNbrCorrBits = pp.ECCCorrectableBits
	}
	return d
}
