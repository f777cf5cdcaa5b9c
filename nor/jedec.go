// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/dswarbrick/flashcore/ferrors"
)

// jedecEntry is one recognized SPI NOR part: manufacturer/device ID tuple
// plus the geometry spec.md §4.4 says a recognized entry supplies.
type jedecEntry struct {
	Manufacturer byte   `toml:"manufacturer_id"`
	Device       uint16 `toml:"device_id"`
	Name         string `toml:"name"`
	BlockCount   uint32 `toml:"block_count"`
	BlockSize    uint32 `toml:"block_size"`
}

type jedecTable struct {
	Part []jedecEntry `toml:"part"`
}

//go:embed jedec_table.toml
var jedecTableTOML string

var jedecParts []jedecEntry

func init() {
	var t jedecTable
	if _, err := toml.Decode(jedecTableTOML, &t); err != nil {
		panic(fmt.Sprintf("nor: embedded JEDEC table failed to parse: %v", err))
	}
	jedecParts = t.Part
}

// lookupJEDEC matches a (manufacturer, device) ID tuple against the
// built-in table. Per spec.md §4.4, "on mismatch of manufacturer ID the
// open fails; on mismatch of device ID the open fails" — both are surfaced
// identically as no recognized entry.
func lookupJEDEC(manufacturer byte, device uint16) (jedecEntry, error) {
	const op = "nor.lookupJEDEC"
	for _, p := range jedecParts {
		if p.Manufacturer == manufacturer && p.Device == device {
			return p, nil
		}
	}
	return jedecEntry{}, ferrors.New(ferrors.IO, op,
		fmt.Errorf("no JEDEC table entry for manufacturer %#02x device %#04x", manufacturer, device))
}
