// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package staticpart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/part"
)

const sampleYAML = `
blk_cnt: 1024
pg_per_blk: 64
pg_size: 2048
spare_size: 64
bus_width: 8
ecc_nbr_corr_bits: 4
ecc_codeword_size: 512
defect_mark_type: "word@spare[1], page 1"
free_spare_map:
  - offset: 4
    len: 60
`

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	d, err := Load(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.EqualValues(t, 1024, d.BlkCnt)
	assert.EqualValues(t, 64, d.PgPerBlk)
	assert.EqualValues(t, 2048, d.PgSize)
	assert.EqualValues(t, 64, d.SpareSize)
	assert.EqualValues(t, 8, d.BusWidth)
	assert.EqualValues(t, 1, d.NbrPgmPerPg) // default, not in YAML
	assert.EqualValues(t, 4, d.ECCNbrCorrBits)
	assert.Equal(t, part.DefectMarkWord1stPage, d.DefectMarkType)
	assert.EqualValues(t, 65535, d.MaxBadBlkCnt) // default
	assert.EqualValues(t, 1, d.MaxBlkErase)      // default
	require.Len(t, d.FreeSpareMap, 1)
	assert.EqualValues(t, 4, d.FreeSpareMap[0].Offset)
	assert.EqualValues(t, 60, d.FreeSpareMap[0].Len)
}

func TestLoadRejectsUnknownDefectMark(t *testing.T) {
	bad := strings.Replace(sampleYAML, "word@spare[1], page 1", "nonsense", 1)
	_, err := Load(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestLoadRejectsDegenerateGeometry(t *testing.T) {
	const noGeom = `
bus_width: 8
free_spare_map:
  - offset: 4
    len: 60
`
	_, err := Load(strings.NewReader(noGeom))
	assert.Error(t, err)
}

func TestLoadRejectsEmptySpareMap(t *testing.T) {
	const noSpare = `
blk_cnt: 1024
pg_per_blk: 64
pg_size: 2048
spare_size: 64
bus_width: 8
`
	_, err := Load(strings.NewReader(noSpare))
	assert.Error(t, err)
}
