package analyser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/containersharder/internal/analyser"
	"github.com/dreamware/containersharder/internal/shardrange"
)

func sr(lower, upper string, ts float64) shardrange.ShardRange {
	return shardrange.ShardRange{
		Account:   ".shards_a",
		Container: lower + "-" + upper,
		Lower:     lower,
		Upper:     upper,
		Timestamp: shardrange.FromSeconds(ts),
		State:     shardrange.StateActive,
	}
}

// Two competing two-way splits of the same namespace, at two timestamps:
// an older split at "m" and a newer retried split at "g". Both tile
// -∞..+∞ completely, so Analyse must return two complete paths with the
// ts=2 pair ranked ahead of the ts=1 pair.
func TestAnalyseTwoCompetingSplits(t *testing.T) {
	older1 := sr("", "m", 1)
	older2 := sr("m", "", 1)
	newer1 := sr("", "g", 2)
	newer2 := sr("g", "", 2)

	paths, err := analyser.Analyse([]shardrange.ShardRange{older1, older2, newer1, newer2})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.True(t, paths[0].Complete)
	assert.True(t, paths[1].Complete)

	require.Len(t, paths[0].Ranges, 2)
	assert.Equal(t, "g", paths[0].Ranges[0].Upper)
	assert.Equal(t, "g", paths[0].Ranges[1].Lower)

	require.Len(t, paths[1].Ranges, 2)
	assert.Equal(t, "m", paths[1].Ranges[0].Upper)
	assert.Equal(t, "m", paths[1].Ranges[1].Lower)

	// The newer pair's ranges are exactly the leftover of the older path and
	// vice versa: the two complete paths partition the same four ranges.
	assert.Len(t, paths[0].Leftover, 2)
	assert.Len(t, paths[1].Leftover, 2)
}

// A single pristine tiling with no history to reconcile: one complete path,
// no leftovers.
func TestAnalyseSingleCompletePath(t *testing.T) {
	a := sr("", "m", 1)
	b := sr("m", "", 1)

	paths, err := analyser.Analyse([]shardrange.ShardRange{a, b})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, paths[0].Complete)
	assert.Empty(t, paths[0].Leftover)
}

// A range missing its continuation never reaches +∞, so the reconstructed
// path is incomplete.
func TestAnalyseIncompletePathFromGap(t *testing.T) {
	a := sr("", "m", 1)

	paths, err := analyser.Analyse([]shardrange.ShardRange{a})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.False(t, paths[0].Complete)
	assert.Equal(t, []shardrange.ShardRange{a}, paths[0].Ranges)
}

// A two-way split whose upper shard was itself re-split later forms a fork
// in the DAG: the direct two-way split and the three-way path (with the
// re-split upper shard) are both recorded as independent complete paths,
// and the newer (larger maximum timestamp) one sorts first.
func TestAnalyseForkAtReSplitShard(t *testing.T) {
	left := sr("", "m", 1)
	right := sr("m", "", 1)

	middleLeft := sr("m", "t", 2)
	middleRight := sr("t", "", 2)

	paths, err := analyser.Analyse([]shardrange.ShardRange{left, right, middleLeft, middleRight})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.True(t, paths[0].Complete)
	assert.Len(t, paths[0].Ranges, 3)
	assert.Equal(t, "m", paths[0].Ranges[0].Upper)
	assert.Equal(t, "t", paths[0].Ranges[1].Upper)

	assert.True(t, paths[1].Complete)
	assert.Len(t, paths[1].Ranges, 2)
}

func TestAnalyseRejectsMalformedBounds(t *testing.T) {
	bad := sr("z", "a", 1)
	_, err := analyser.Analyse([]shardrange.ShardRange{bad})
	require.Error(t, err)
}

func TestAnalyseEmptyInput(t *testing.T) {
	paths, err := analyser.Analyse(nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

// Tie-break: two complete paths that happen to share the same maximum
// timestamp must still come back in a stable, deterministic order rather
// than an arbitrary one.
func TestAnalyseBreaksTimestampTies(t *testing.T) {
	olderA := sr("", "m", 1)
	olderB := sr("m", "", 1)
	newerA := sr("", "g", 1) // same max timestamp as the olderA/olderB pair
	newerB := sr("g", "", 1)

	paths1, err := analyser.Analyse([]shardrange.ShardRange{olderA, olderB, newerA, newerB})
	require.NoError(t, err)
	require.Len(t, paths1, 2)

	paths2, err := analyser.Analyse([]shardrange.ShardRange{olderA, olderB, newerA, newerB})
	require.NoError(t, err)
	require.Len(t, paths2, 2)

	assert.Equal(t, paths1[0].Ranges, paths2[0].Ranges)
	assert.Equal(t, paths1[1].Ranges, paths2[1].Ranges)
}
