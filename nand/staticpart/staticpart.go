// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package staticpart loads a part.Descriptor from a YAML configuration file
// instead of querying it from the device, for NAND parts that have no
// queryable parameter page (small-page, pre-ONFI, or ONFI-silent) and whose
// geometry is instead known at board-bring-up time. Grounded on
// fs_dev_nand_part_static.c's FS_NAND_PART_STATIC_CFG field table, which
// this mirrors field-for-field; serialized with gopkg.in/yaml.v2 the way the
// teacher's drivedb tooling serializes its own config tables.
package staticpart

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/flashcore/ferrors"
	"github.com/dswarbrick/flashcore/part"
)

// spareRangeCfg mirrors part.SpareRange with YAML tags; part.SpareRange
// itself carries no struct tags since it is also built programmatically by
// ONFI parsing.
type spareRangeCfg struct {
	Offset uint32 `yaml:"offset"`
	Len    uint32 `yaml:"len"`
}

// Config is the on-disk shape of a static part descriptor. Field names and
// defaults mirror FS_NAND_PART_STATIC_CFG_FIELDS: BlkCnt, PgPerBlk, PgSize
// and SpareSize have no usable default and must be supplied; the rest fall
// back to the same defaults the original table declares.
type Config struct {
	BlkCnt    uint32 `yaml:"blk_cnt"`
	PgPerBlk  uint32 `yaml:"pg_per_blk"`
	PgSize    uint32 `yaml:"pg_size"`
	SpareSize uint32 `yaml:"spare_size"`

	BusWidth    uint8 `yaml:"bus_width"`
	NbrPgmPerPg uint8 `yaml:"nbr_pgm_per_pg"`

	ECCNbrCorrBits  uint8  `yaml:"ecc_nbr_corr_bits"`
	ECCCodewordSize uint32 `yaml:"ecc_codeword_size"`

	// DefectMarkType names one of part.DefectMarkType's String() labels,
	// e.g. "word@spare[1], page 1".
	DefectMarkType string `yaml:"defect_mark_type"`

	MaxBadBlkCnt uint32 `yaml:"max_bad_blk_cnt"`
	MaxBlkErase  uint32 `yaml:"max_blk_erase"`

	FreeSpareMap []spareRangeCfg `yaml:"free_spare_map"`
}

// defaultConfig mirrors FS_NAND_PartStatic_DfltCfg: every field the original
// table defaults to a non-zero value.
func defaultConfig() Config {
	return Config{
		NbrPgmPerPg:    1,
		BusWidth:       8,
		ECCNbrCorrBits: 255,
		MaxBadBlkCnt:   65535,
		MaxBlkErase:    1,
	}
}

var defectMarkNames = map[string]part.DefectMarkType{
	"word@spare[1], page 1":        part.DefectMarkWord1stPage,
	"word@spare[1], page 1 or last": part.DefectMarkWord1stOrLastPage,
	"word@spare[1], pages 1-2":     part.DefectMarkWord1st2ndPage,
	"byte@spare[6], page 1":        part.DefectMarkByte6th1stPage,
	"byte@spare[6], pages 1-2":     part.DefectMarkByte6th1st2ndPage,
	"any byte@spare, page 1":       part.DefectMarkByte1stPage,
}

// Load reads a YAML static part configuration from r and builds a
// part.Descriptor, applying the same defaults as FS_NAND_PartStatic_DfltCfg
// for any field the YAML document omits.
func Load(r io.Reader) (*part.Descriptor, error) {
	const op = "staticpart.Load"

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, ferrors.New(ferrors.IO, op, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("parsing static part config: %w", err))
	}

	mark := part.DefectMarkWord1stPage
	if cfg.DefectMarkType != "" {
		m, ok := defectMarkNames[cfg.DefectMarkType]
		if !ok {
			return nil, ferrors.New(ferrors.InvalidCfg, op, fmt.Errorf("unrecognized defect_mark_type %q", cfg.DefectMarkType))
		}
		mark = m
	}

	spareMap := make(part.FreeSpareMap, 0, len(cfg.FreeSpareMap))
	for _, r := range cfg.FreeSpareMap {
		spareMap = append(spareMap, part.SpareRange{Offset: r.Offset, Len: r.Len})
	}

	d := &part.Descriptor{
		BlkCnt:          cfg.BlkCnt,
		PgPerBlk:        cfg.PgPerBlk,
		PgSize:          cfg.PgSize,
		SpareSize:       cfg.SpareSize,
		BusWidth:        cfg.BusWidth,
		NbrPgmPerPg:     cfg.NbrPgmPerPg,
		ECCNbrCorrBits:  cfg.ECCNbrCorrBits,
		ECCCodewordSize: cfg.ECCCodewordSize,
		DefectMarkType:  mark,
		MaxBadBlkCnt:    cfg.MaxBadBlkCnt,
		MaxBlkErase:     cfg.MaxBlkErase,
		FreeSpareMap:    spareMap,
	}

	if err := d.Validate(); err != nil {
		return nil, ferrors.New(ferrors.InvalidCfg, op, err)
	}
	return d, nil
}

// LoadFile opens path and calls Load on its contents.
func LoadFile(path string) (*part.Descriptor, error) {
	const op = "staticpart.LoadFile"

	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.New(ferrors.IO, op, err)
	}
	defer f.Close()

	d, err := Load(f)
	if err != nil {
		return nil, err
	}
	return d, nil
}
