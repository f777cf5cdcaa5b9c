// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSplitPagesBoundary exercises spec.md §8 testable property 6: a write
// straddling a page boundary emits exactly one initial partial page, then
// full pages, then a final partial page, and no chunk exceeds pageSize.
func TestSplitPagesBoundary(t *testing.T) {
	chunks := splitPages(300, 600, 256)

	assert.Len(t, chunks, 3)
	assert.Equal(t, pageChunk{start: 300, off: 0, len: 212}, chunks[0]) // up to 512
	assert.Equal(t, pageChunk{start: 512, off: 212, len: 256}, chunks[1])
	assert.Equal(t, pageChunk{start: 768, off: 468, len: 132}, chunks[2])

	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, c.len, 256)
		total += c.len
	}
	assert.Equal(t, 600, total)
}

func TestSplitPagesAlignedStart(t *testing.T) {
	chunks := splitPages(256, 512, 256)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 256, chunks[0].len)
	assert.Equal(t, 256, chunks[1].len)
}

func TestSplitPagesShorterThanOnePage(t *testing.T) {
	chunks := splitPages(10, 5, 256)
	assert.Len(t, chunks, 1)
	assert.Equal(t, pageChunk{start: 10, off: 0, len: 5}, chunks[0])
}
