package shardrange

import "sort"

// Gap describes a break in namespace coverage: an Upper bound with no
// successor range whose Lower matches it.
type Gap struct {
	// Upper is the end of the range before the gap (the dangling upper
	// bound). Lower is the start of the range after the gap, if any was
	// found; it is "" when the gap runs to +∞ (no successor exists at all).
	Upper string
	Lower string
}

// CheckCompleteRanges returns the gaps in a tiling of ranges: for every
// range whose Upper has no other range's Lower equal to it, a Gap is
// reported. A fully tiled [-∞, +∞) set (e.g. [-∞,x), [x,y), [y,+∞)) yields
// an empty slice.
func CheckCompleteRanges(ranges []ShardRange) []Gap {
	lowers := make(map[string]bool, len(ranges))
	for _, r := range ranges {
		lowers[r.Lower] = true
	}

	var gaps []Gap
	for _, r := range ranges {
		if isUnboundedUpper(r.Upper) {
			continue
		}
		if !lowers[r.Upper] {
			next := ""
			for _, o := range ranges {
				if o.Lower > r.Upper && (next == "" || o.Lower < next) {
					next = o.Lower
				}
			}
			gaps = append(gaps, Gap{Upper: r.Upper, Lower: next})
		}
	}
	return gaps
}

// OverlapSet is a group of mutually overlapping ranges.
type OverlapSet []ShardRange

// FindOverlappingRanges partitions ranges into sets of mutual overlap.
// Ranges that don't overlap anything else are omitted (a singleton set
// carries no audit signal). Nothing in the sharder calls it; only
// complete_test.go exercises it.
func FindOverlappingRanges(ranges []ShardRange) []OverlapSet {
	sorted := make([]ShardRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	// Union-find over indices into `sorted`, grouping any transitively
	// overlapping chain into one set.
	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Overlaps(sorted[j]) {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]ShardRange)
	for i, r := range sorted {
		root := find(i)
		groups[root] = append(groups[root], r)
	}

	var out []OverlapSet
	for _, g := range groups {
		if len(g) > 1 {
			out = append(out, OverlapSet(g))
		}
	}
	return out
}
