package types

import (
	"encoding/json"
	"math"
	"time"
)

// UnixTimestamp is the defensive decode point for provider timestamps.
// Providers report instants as numeric seconds; payloads occasionally carry
// them as strings, null, zero or negative values. All call sites go through
// ParseUnixSeconds so malformed values are dropped in exactly one place
// instead of being mishandled independently at six call sites.
type UnixTimestamp struct {
	raw json.Number
	set bool
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (t *UnixTimestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			// leave unset, never fail decoding on a bad timestamp
			return nil
		}
		n = json.Number(s)
	}

	t.raw = n
	t.set = true
	return nil
}

// IsSet reports whether the payload carried a value at all
func (t UnixTimestamp) IsSet() bool {
	return t.set
}

// Time validates and converts the value. The second return is false when
// the value is missing, non-numeric, non-finite, zero or negative; such
// values must be omitted from writes, never stored as epoch-zero dates.
func (t UnixTimestamp) Time() (time.Time, bool) {
	if !t.set {
		return time.Time{}, false
	}

	secs, err := t.raw.Float64()
	if err != nil {
		return time.Time{}, false
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return time.Time{}, false
	}

	return time.UnixMilli(int64(secs * 1000)).UTC(), true
}

// ParseUnixSeconds converts a raw numeric-seconds value to a UTC instant.
// Returns nil for anything that is not a finite number greater than zero.
func ParseUnixSeconds(secs float64) *time.Time {
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return nil
	}
	ts := time.UnixMilli(int64(secs * 1000)).UTC()
	return &ts
}
