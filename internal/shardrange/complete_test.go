package shardrange_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/containersharder/internal/shardrange"
)

func TestCheckCompleteRangesTiledIsEmpty(t *testing.T) {
	ranges := []shardrange.ShardRange{
		r("", "x"),
		r("x", "y"),
		r("y", ""),
	}
	assert.Empty(t, shardrange.CheckCompleteRanges(ranges))
}

func TestCheckCompleteRangesFindsGap(t *testing.T) {
	ranges := []shardrange.ShardRange{
		r("", "m"),
		r("n", ""), // gap between "m" and "n"
	}
	gaps := shardrange.CheckCompleteRanges(ranges)
	if assert.Len(t, gaps, 1) {
		assert.Equal(t, "m", gaps[0].Upper)
	}
}

func TestFindOverlappingRanges(t *testing.T) {
	a := r("", "m")
	b := r("g", "z") // overlaps a
	c := r("z", "")  // disjoint from both

	groups := shardrange.FindOverlappingRanges([]shardrange.ShardRange{a, b, c})
	if assert.Len(t, groups, 1) {
		assert.Len(t, groups[0], 2)
	}
}
