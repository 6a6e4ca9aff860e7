package analyser

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dreamware/containersharder/internal/shardrange"
)

// ErrMalformedRanges is returned by Analyse when an input range fails
// structural validation (Lower >= Upper with a concrete Upper).
var ErrMalformedRanges = errors.New("analyser: malformed shard ranges")

// Path is one reconstructed candidate history through the input ranges,
// newest (by the tie-broken timestamp used to order results) first.
type Path struct {
	// Ranges is the path's ranges in namespace order (sorted by Lower).
	Ranges []shardrange.ShardRange
	// Leftover holds every input range not part of this path -- the debris
	// a caller discards (or reconciles) once it commits to this path.
	Leftover []shardrange.ShardRange
	// Complete reports whether the path tiles all the way from -∞ to +∞.
	Complete bool
}

// rangeLink is one node of the build DAG. upper points at the slice of
// child links whose Lower equals this node's Upper; it starts out private
// to the node and is replaced wholesale by an existing slice pointer when
// the build pass discovers that some other node already claimed this
// Upper as its own waiting point, so two nodes that share a bound always
// observe the same children through the same backing slice.
type rangeLink struct {
	r     shardrange.ShardRange
	upper *[]*rangeLink
}

// analyser holds the mutable state threaded through build, scan, and pick.
// A fresh one is created per Analyse call; nothing survives between calls.
type analyser struct {
	all        []shardrange.ShardRange
	complete   [][]shardrange.ShardRange
	incomplete [][]shardrange.ShardRange
	newest     map[shardrange.Timestamp][]string
}

// Analyse reconstructs every candidate path through ranges and returns them
// newest-first. The input is never mutated. Duplicate ranges (identical in
// every field) collapse to one.
func Analyse(ranges []shardrange.ShardRange) ([]Path, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "analyser: range %s", r.Name()), ErrMalformedRanges)
		}
	}

	a := &analyser{
		all:    ranges,
		newest: make(map[shardrange.Timestamp][]string),
	}

	roots, gaps := a.build(ranges)
	a.scan(roots, gaps)
	a.breakTies()
	return a.pick(), nil
}

// build sorts ranges by (Lower, Timestamp) and wires each one to the nodes
// already known to continue at its Upper bound (if any), per §4.2's "model
// as a DAG with integer node ids stored in a flat arena; edges by id to
// avoid back-pointers" design note -- realised here as a map from bound
// value to a shared slice pointer rather than literal integer ids, since Go
// slices already give us that indirection without a separate arena array.
func (a *analyser) build(ranges []shardrange.ShardRange) (roots []*rangeLink, gaps []*rangeLink) {
	sorted := make([]shardrange.ShardRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	path := &[]*rangeLink{}
	upto := map[string]*[]*rangeLink{"": path}

	for _, rng := range sorted {
		rl := &rangeLink{r: rng, upper: &[]*rangeLink{}}

		if target, ok := upto[rng.Lower]; ok {
			*target = append(*target, rl)
		} else {
			gaps = append(gaps, rl)
		}

		if rng.Upper != "" {
			if existing, ok := upto[rng.Upper]; ok {
				rl.upper = existing
			} else {
				upto[rng.Upper] = rl.upper
			}
		}
	}

	return *path, gaps
}

// walk follows the DAG from rl, taking the first child as the primary
// continuation and recording every other child as an independent path via
// postResult. ts is the newest timestamp seen so far on this path.
func (a *analyser) walk(rl *rangeLink, ts shardrange.Timestamp, result []shardrange.ShardRange) (newest shardrange.Timestamp, complete bool, out []shardrange.ShardRange) {
	newest = shardrange.Max(ts, rl.r.Timestamp)
	result = append(result, rl.r)

	kids := *rl.upper
	if len(kids) == 0 {
		return newest, rl.r.Upper == "", result
	}

	if len(kids) > 1 {
		for i, child := range kids {
			if i == 0 {
				continue
			}
			branch := append([]shardrange.ShardRange(nil), result...)
			n, c, res := a.walk(child, newest, branch)
			a.postResult(n, c, res)
		}
	}

	return a.walk(kids[0], newest, result)
}

func (a *analyser) scan(roots, gaps []*rangeLink) {
	for _, rl := range roots {
		newest, complete, result := a.walk(rl, rl.r.Timestamp, nil)
		a.postResult(newest, complete, result)
	}
	for _, rl := range gaps {
		// A path rooted at a gap never starts at -∞, so it can never be
		// complete regardless of what walk finds at its far end.
		newest, _, result := a.walk(rl, rl.r.Timestamp, nil)
		a.postResult(newest, false, result)
	}
}

// postResult files one walked result as complete or incomplete, attempting
// to splice an incomplete result that begins after a real lower bound onto
// whichever already-recorded incomplete path plausibly precedes it, then
// records the result's (possibly merged) newest timestamp.
func (a *analyser) postResult(newest shardrange.Timestamp, complete bool, result []shardrange.ShardRange) {
	var idx string

	if complete {
		idx = completeKey(len(a.complete))
		a.complete = append(a.complete, result)
	} else {
		if len(result) > 0 && result[0].Lower != "" {
			bestIdx := -1
			var bestLast shardrange.ShardRange
			for i, inc := range a.incomplete {
				last := inc[len(inc)-1]
				if last.Upper == "" || !last.Less(result[0]) {
					continue
				}
				if bestIdx == -1 || bestLast.Less(last) {
					bestIdx, bestLast = i, last
				}
			}
			if bestIdx != -1 {
				merged := append(append([]shardrange.ShardRange(nil), a.incomplete[bestIdx]...), result...)
				a.incomplete[bestIdx] = merged
				idx = incompleteKey(bestIdx)

				curTS, found := a.tsFor(idx)
				if found {
					combined := shardrange.Max(curTS, newest)
					if combined.Compare(curTS) == 0 {
						return
					}
					a.removeFromNewest(curTS, idx)
					newest = combined
				}
			}
		}
		if idx == "" {
			idx = incompleteKey(len(a.incomplete))
			a.incomplete = append(a.incomplete, result)
		}
	}

	a.newest[newest] = append(a.newest[newest], idx)
}

func (a *analyser) tsFor(idx string) (shardrange.Timestamp, bool) {
	for ts, idxs := range a.newest {
		for _, id := range idxs {
			if id == idx {
				return ts, true
			}
		}
	}
	return shardrange.Timestamp{}, false
}

func (a *analyser) removeFromNewest(ts shardrange.Timestamp, idx string) {
	idxs := a.newest[ts]
	if len(idxs) <= 1 {
		delete(a.newest, ts)
		return
	}
	kept := make([]string, 0, len(idxs)-1)
	for _, id := range idxs {
		if id != idx {
			kept = append(kept, id)
		}
	}
	a.newest[ts] = kept
}

// breakTies resolves every timestamp currently shared by more than one path:
// for each contender, it computes what is unique to that contender relative
// to every other tied contender, reduces each such difference to its
// maximum timestamp, and ranks contenders by the concatenation of those
// maxima (sorted descending) read as a string. Ties are re-filed under the
// same base timestamp with strictly increasing offsets, so the contender
// whose unique history is lexicographically greatest ends up with the
// highest offset and therefore wins when pick sorts newest-first.
func (a *analyser) breakTies() {
	type tieGroup struct {
		ts  shardrange.Timestamp
		ids []string
	}
	var groups []tieGroup
	for ts, ids := range a.newest {
		if len(ids) > 1 {
			groups = append(groups, tieGroup{ts, append([]string(nil), ids...)})
		}
	}

	for _, g := range groups {
		type scored struct {
			idx string
			key string
		}
		scoredList := make([]scored, 0, len(g.ids))

		for _, idx := range g.ids {
			path := a.pathFor(idx)
			set := toSet(path)

			var maxima []shardrange.Timestamp
			for _, other := range g.ids {
				if other == idx {
					continue
				}
				diff := setDifference(set, toSet(a.pathFor(other)))
				if len(diff) == 0 {
					continue
				}
				maxima = append(maxima, maxTimestamp(diff))
			}
			sort.Slice(maxima, func(i, j int) bool { return maxima[j].Before(maxima[i]) })

			var sb strings.Builder
			for _, m := range maxima {
				sb.WriteString(m.String())
			}
			scoredList = append(scoredList, scored{idx, sb.String()})
		}

		sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].key < scoredList[j].key })

		delete(a.newest, g.ts)
		ts := g.ts
		for _, s := range scoredList {
			ts = ts.BumpOffset()
			a.newest[ts] = []string{s.idx}
		}
	}
}

// pick sorts the surviving timestamps newest-first and renders one Path per
// entry, each carrying the ranges not on that path as Leftover.
func (a *analyser) pick() []Path {
	keys := make([]shardrange.Timestamp, 0, len(a.newest))
	for ts := range a.newest {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[j].Before(keys[i]) })

	allSet := toSet(a.all)

	out := make([]Path, 0, len(keys))
	for _, ts := range keys {
		idx := a.newest[ts][0]
		path := a.pathFor(idx)

		sorted := append([]shardrange.ShardRange(nil), path...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

		leftoverSet := setDifference(allSet, toSet(path))
		out = append(out, Path{
			Ranges:   sorted,
			Leftover: setToSlice(leftoverSet),
			Complete: strings.HasPrefix(idx, "c"),
		})
	}
	return out
}

func (a *analyser) pathFor(idx string) []shardrange.ShardRange {
	n := indexOf(idx)
	if strings.HasPrefix(idx, "c") {
		return a.complete[n]
	}
	return a.incomplete[n]
}

func completeKey(n int) string   { return "c" + itoa(n) }
func incompleteKey(n int) string { return "i" + itoa(n) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func indexOf(idx string) int {
	n := 0
	for _, c := range idx[1:] {
		n = n*10 + int(c-'0')
	}
	return n
}

func toSet(ranges []shardrange.ShardRange) map[shardrange.ShardRange]struct{} {
	set := make(map[shardrange.ShardRange]struct{}, len(ranges))
	for _, r := range ranges {
		set[r] = struct{}{}
	}
	return set
}

func setDifference(a, b map[shardrange.ShardRange]struct{}) map[shardrange.ShardRange]struct{} {
	out := make(map[shardrange.ShardRange]struct{})
	for r := range a {
		if _, ok := b[r]; !ok {
			out[r] = struct{}{}
		}
	}
	return out
}

func setToSlice(set map[shardrange.ShardRange]struct{}) []shardrange.ShardRange {
	out := make([]shardrange.ShardRange, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func maxTimestamp(set map[shardrange.ShardRange]struct{}) shardrange.Timestamp {
	var max shardrange.Timestamp
	first := true
	for r := range set {
		if first || r.Timestamp.After(max) {
			max = r.Timestamp
			first = false
		}
	}
	return max
}
