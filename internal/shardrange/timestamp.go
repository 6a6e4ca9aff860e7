package shardrange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a monotonically comparable point in time, normalised to a
// fixed-precision decimal with an optional integer offset used to break
// ties between events that land in the same microsecond.
//
// The offset exists solely for the range analyser's tie-break pass
// (§4.2 step 5 of the sharder spec): when two candidate paths share the
// same maximum timestamp, each tied path's timestamp gets an offset, the
// winner's the largest, so that the winner sorts strictly after (newer
// than) the others, without perturbing the second-granularity value
// operators actually look at.
type Timestamp struct {
	seconds float64
	offset  uint64
}

// Now returns the current time as a Timestamp with a zero offset.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to a Timestamp with a zero offset.
func FromTime(t time.Time) Timestamp {
	return Timestamp{seconds: float64(t.UnixNano()) / 1e9}
}

// FromSeconds builds a Timestamp directly from a unix-epoch seconds value.
func FromSeconds(seconds float64) Timestamp {
	return Timestamp{seconds: seconds}
}

// Parse reads the normalised wire format "<seconds>[_<hex-offset>]" produced
// by String. It accepts the bare decimal form too, for convenience in tests
// and config files.
func Parse(s string) (Timestamp, error) {
	main, offsetPart, hasOffset := strings.Cut(s, "_")
	seconds, err := strconv.ParseFloat(main, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("shardrange: invalid timestamp %q: %w", s, err)
	}
	var offset uint64
	if hasOffset {
		offset, err = strconv.ParseUint(offsetPart, 16, 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("shardrange: invalid timestamp offset %q: %w", s, err)
		}
	}
	return Timestamp{seconds: seconds, offset: offset}, nil
}

// Seconds returns the unix-epoch seconds component, ignoring the offset.
func (t Timestamp) Seconds() float64 { return t.seconds }

// Offset returns the tie-break offset.
func (t Timestamp) Offset() uint64 { return t.offset }

// IsZero reports whether this is the zero-value Timestamp.
func (t Timestamp) IsZero() bool { return t.seconds == 0 && t.offset == 0 }

// WithOffset returns a copy of t with its offset set to the given value.
func (t Timestamp) WithOffset(offset uint64) Timestamp {
	t.offset = offset
	return t
}

// BumpOffset returns a copy of t with its offset incremented by one --
// exactly the operation the analyser's tie-break pass performs.
func (t Timestamp) BumpOffset() Timestamp {
	t.offset++
	return t
}

// Add returns t shifted by d. Used when constructing an "older" shard-range
// copy one tick behind the original (§4.7 of the sharder spec).
func (t Timestamp) Add(d time.Duration) Timestamp {
	t.seconds += d.Seconds()
	return t
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after other,
// comparing seconds first and the tie-break offset second.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.seconds < other.seconds:
		return -1
	case t.seconds > other.seconds:
		return 1
	case t.offset < other.offset:
		return -1
	case t.offset > other.offset:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool { return t.Compare(other) > 0 }

// Max returns the later of t and other.
func Max(t, other Timestamp) Timestamp {
	if t.After(other) {
		return t
	}
	return other
}

// String renders the normalised wire format: 10 integer digits, a decimal
// point, 5 fractional digits, and -- when non-zero -- an underscore
// followed by the 16-hex-digit offset.
func (t Timestamp) String() string {
	base := fmt.Sprintf("%016.5f", t.seconds)
	if t.offset == 0 {
		return base
	}
	return fmt.Sprintf("%s_%016x", base, t.offset)
}

// MarshalJSON renders the Timestamp as a JSON string in its normalised form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

// UnmarshalJSON parses the normalised form produced by MarshalJSON.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("shardrange: timestamp must be a JSON string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
