// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

// NAND command opcodes, bit-exact per the wire protocol the generic NAND
// controller drives (see SPEC_FULL.md §6).
const (
	opReset          byte = 0xFF
	opReadID         byte = 0x90
	opReadParamPage  byte = 0xEC
	opReadSetupA     byte = 0x00 // large page, or small page zone A
	opReadSetupB     byte = 0x01 // small page zone B
	opReadSetupC     byte = 0x50 // small page zone C
	opReadConfirm    byte = 0x30 // large page only
	opChangeReadCol  byte = 0x05
	opChangeReadConf byte = 0xE0
	opProgramSetup   byte = 0x80
	opProgramConfirm byte = 0x10
	opChangeWriteCol byte = 0x85
	opEraseSetup     byte = 0x60
	opEraseConfirm   byte = 0xD0
	opReadStatus     byte = 0x70
)

const (
	statusFailBit byte = 1 << 0
	statusRdyBit  byte = 1 << 6
)

// ONFIParamPageLen is the fixed length of one ONFI parameter-page copy.
const ONFIParamPageLen = 256

// IOCtrl opcodes dispatched by Controller.IOCtrl.
type IOCtrlOp int

const (
	// ParamPgRd reads one ONFI parameter-page copy at a caller-supplied
	// relative address, for use by the ONFI part layer.
	ParamPgRd IOCtrlOp = iota
	// PhyRdPage reads an entire raw physical page.
	PhyRdPage
)

// ParamPgRdArg is the argument to the ParamPgRd io-ctl: RelAddr selects
// which parameter-page copy to read (0, 256, 512, ...) via change-read-
// column; Dest receives ONFIParamPageLen bytes.
type ParamPgRdArg struct {
	RelAddr uint32
	Dest    []byte
}

// PhyRdPageArg is the argument to the PhyRdPage io-ctl.
type PhyRdPageArg struct {
	PageIx uint64
	Offset uint32
	Dest   []byte
}
