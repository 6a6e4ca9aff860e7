package shardrange

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
)

// State is the lifecycle state of a ShardRange, tracked independently of
// the owning broker's own db_state (UNSHARDED/SHARDING/SHARDED/COLLAPSED).
type State string

// The states a ShardRange can hold, per §3 of the sharder spec. Transitions
// are monotonic: FOUND -> CREATED -> (CLEAVED|ACTIVE) -> ACTIVE is the split
// path; ACTIVE -> SHARDING -> SHARDED and ACTIVE -> SHRINKING and
// ACTIVE -> EXPANDING -> ACTIVE are the only other permitted transitions.
// Deleted=true is terminal regardless of State.
const (
	StateFound     State = "FOUND"
	StateCreated   State = "CREATED"
	StateCleaved   State = "CLEAVED"
	StateActive    State = "ACTIVE"
	StateSharding  State = "SHARDING"
	StateShrinking State = "SHRINKING"
	StateExpanding State = "EXPANDING"
	StateSharded   State = "SHARDED"
)

// ShardRange describes the namespace [Lower, Upper) owned by one container,
// plus the metadata needed to drive sharding, shrinking, and reconciliation.
//
// Lower and Upper are inclusive/exclusive string bounds; the empty string
// means unbounded below (Lower) or above (Upper). Bounds compare
// lexicographically on UTF-8 bytes.
type ShardRange struct {
	Account        string
	Container      string
	Lower          string
	Upper          string
	Timestamp      Timestamp
	State          State
	StateTimestamp Timestamp
	MetaTimestamp  Timestamp
	ObjectCount    int64
	BytesUsed      int64
	Deleted        bool
	// Epoch disambiguates donor/acceptor identity during a shrink; the zero
	// Timestamp means "no epoch set".
	Epoch Timestamp
}

// Name returns the "account/container" identity of the owning container.
func (r ShardRange) Name() string {
	return r.Account + "/" + r.Container
}

// Validate checks the structural invariant Lower < Upper unless Upper is
// unbounded (""), returning an error describing the violation otherwise.
func (r ShardRange) Validate() error {
	if r.Upper != "" && r.Lower >= r.Upper {
		return fmt.Errorf("%w: invalid bounds for %s: lower %q >= upper %q", ErrMalformedBounds, r.Name(), r.Lower, r.Upper)
	}
	return nil
}

// isUnboundedUpper reports whether upper represents +∞.
func isUnboundedUpper(upper string) bool { return upper == "" }

// isUnboundedLower reports whether lower represents -∞.
func isUnboundedLower(lower string) bool { return lower == "" }

// maxLower returns the lexicographically greater of two lower bounds, with
// "" (unbounded, i.e. -∞) always losing to any concrete value.
func maxLower(a, b string) string {
	if isUnboundedLower(a) {
		return b
	}
	if isUnboundedLower(b) {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// minUpper returns the lexicographically lesser of two upper bounds, with
// "" (unbounded, i.e. +∞) always losing to any concrete value.
func minUpper(a, b string) string {
	if isUnboundedUpper(a) {
		return b
	}
	if isUnboundedUpper(b) {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// upperLess reports whether upper bound a sorts before upper bound b, with
// "" (+∞) sorting after every concrete value.
func upperLess(a, b string) bool {
	if a == b {
		return false
	}
	if isUnboundedUpper(a) {
		return false
	}
	if isUnboundedUpper(b) {
		return true
	}
	return a < b
}

// Overlaps reports whether r and other share any part of their namespace:
// max(r.Lower, other.Lower) < min(r.Upper, other.Upper) under
// empty-upper-is-+∞ semantics.
func (r ShardRange) Overlaps(other ShardRange) bool {
	lower := maxLower(r.Lower, other.Lower)
	upper := minUpper(r.Upper, other.Upper)
	if isUnboundedUpper(upper) {
		return true
	}
	return lower < upper
}

// Includes reports whether outer's namespace fully contains inner's:
// outer.Lower <= inner.Lower && inner.Upper <= outer.Upper.
func (outer ShardRange) Includes(inner ShardRange) bool {
	lowerOK := isUnboundedLower(outer.Lower) || outer.Lower <= inner.Lower
	upperOK := isUnboundedUpper(outer.Upper) || (!isUnboundedUpper(inner.Upper) && inner.Upper <= outer.Upper)
	return lowerOK && upperOK
}

// SameBounds reports whether r and other describe the same [Lower, Upper).
func (r ShardRange) SameBounds(other ShardRange) bool {
	return r.Lower == other.Lower && r.Upper == other.Upper
}

// Less orders ranges by (Lower, Timestamp), the order the range analyser's
// build step sorts on: for a fixed Lower, newer edits sort after older ones.
func (r ShardRange) Less(other ShardRange) bool {
	if r.Lower != other.Lower {
		return r.Lower < other.Lower
	}
	return r.Timestamp.Before(other.Timestamp)
}

// MakePath deterministically names a child container so that repeated
// discovery of the same split (e.g. after a crash mid-scan) yields the same
// child name. Mirrors swift.common.utils.ShardRange.make_path: the name is
// derived from a hash of the parent identity, root container, timestamp and
// split index, so it is a pure function of its inputs.
func MakePath(shardAccount, rootContainer, parentContainer string, ts Timestamp, index int) (account, container string) {
	h := md5.New()
	fmt.Fprintf(h, "%s-%s-%s-%s-%d", shardAccount, rootContainer, parentContainer, ts.String(), index)
	sum := h.Sum(nil)
	shortHash := binary.BigEndian.Uint32(sum[:4])
	return shardAccount, fmt.Sprintf("%s-%s-%d-%x", rootContainer, parentContainer, index, shortHash)
}

// ErrMalformedBounds is returned by validation helpers when a range's
// bounds cannot be reconciled with the structural invariants in §3.
var ErrMalformedBounds = errors.New("shardrange: malformed bounds")
