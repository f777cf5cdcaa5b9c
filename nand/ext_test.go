// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/flashcore/bsp/simnand"
)

type stubExt struct{ inits int }

func (s *stubExt) Init() error { s.inits++; return nil }

func TestRegisterExtensionIdempotent(t *testing.T) {
	t.Cleanup(resetExtensionRegistry)
	resetExtensionRegistry()

	e := &stubExt{}
	require.NoError(t, RegisterExtension(e))
	require.NoError(t, RegisterExtension(e))
	assert.Equal(t, 1, e.inits)
	assert.Len(t, globalExtensions.entries, 1)
}

func TestRegisterExtensionBounded(t *testing.T) {
	t.Cleanup(resetExtensionRegistry)
	resetExtensionRegistry()

	for i := 0; i < maxExtensions; i++ {
		require.NoError(t, RegisterExtension(&stubExt{}))
	}
	assert.Error(t, RegisterExtension(&stubExt{}))
}

// TestNewControllerRegistersExtension confirms Controller construction runs
// the extension through the registry (so Init fires) instead of touching it
// directly, the same extension instance a caller might share across several
// partitions of one part family. (A stub stands in for eccext.Hamming,
// which imports this package and so cannot be used from its internal
// tests.)
func TestNewControllerRegistersExtension(t *testing.T) {
	t.Cleanup(resetExtensionRegistry)
	resetExtensionRegistry()

	h := &stubExt{}
	chip := simnand.New()
	ctrl, err := NewController(chip, testPart(), h, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl.Setup(2048))
	assert.NotZero(t, ctrl.OOSSizePerSec)
	assert.Len(t, globalExtensions.entries, 1)

	// A second controller sharing the same extension instance must not
	// re-run Init or grow the registry.
	ctrl2, err := NewController(chip, testPart(), h, DefaultTimeouts)
	require.NoError(t, err)
	require.NoError(t, ctrl2.Setup(2048))
	assert.Len(t, globalExtensions.entries, 1)
	assert.Equal(t, 1, h.inits)
}
