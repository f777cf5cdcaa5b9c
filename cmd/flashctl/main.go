// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Command flashctl opens a block device backend and reports its geometry,
// or runs a destructive sector round-trip smoke test against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/dswarbrick/flashcore/device"
	"github.com/dswarbrick/flashcore/ramdisk"
	"github.com/dswarbrick/flashcore/utils"
)

func openBackend(kind string, secCount uint64, secSize uint32) (device.VTable, error) {
	switch kind {
	case "ram":
		return ramdisk.New("ram0", secCount, secSize), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want \"ram\")", kind)
	}
}

func smokeTest(ctx context.Context, d device.VTable) error {
	info, err := d.Query(ctx)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	src := make([]byte, info.SecSize)
	for i := range src {
		src[i] = byte(i)
	}
	if err := d.Wr(ctx, src, 0, 1); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	dst := make([]byte, info.SecSize)
	if err := d.Rd(ctx, dst, 0, 1); err != nil {
		return fmt.Errorf("read: %w", err)
	}

	for i := range src {
		if src[i] != dst[i] {
			return fmt.Errorf("round-trip mismatch at byte %d: wrote %#02x, read %#02x", i, src[i], dst[i])
		}
	}
	return nil
}

func main() {
	fmt.Println("flashctl - flash device inspection utility")
	fmt.Printf("Built with %s on %s (%s)\n\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	backend := flag.String("backend", "ram", "Backend to open: \"ram\"")
	secCount := flag.Uint64("sectors", 64, "Number of sectors")
	secSize := flag.Uint("secsize", 512, "Sector size in bytes")
	test := flag.Bool("test", false, "Run a destructive sector write/read round-trip smoke test")
	flag.Parse()

	ctx := context.Background()

	d, err := openBackend(*backend, *secCount, uint32(*secSize))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := d.Init(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := d.Open(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer d.Close(ctx)

	info, err := d.Query(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("Device   : %s\n", d.NameGet())
	fmt.Printf("Sec Size : %d bytes\n", info.SecSize)
	fmt.Printf("Size     : %s (%d sectors)\n", utils.FormatBytes(info.Size), info.Size/uint64(info.SecSize))
	fmt.Printf("Fixed    : %v\n", info.Fixed)

	if *test {
		if err := smokeTest(ctx, d); err != nil {
			fmt.Println("smoke test failed:", err)
			os.Exit(1)
		}
		fmt.Println("smoke test passed")
	}
}
