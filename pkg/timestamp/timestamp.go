// Package timestamp handles Unix millisecond timestamps, the canonical time
// representation of widget configurations and execution results.
//
// A value of 0 means "not set". Functions treat it as such rather than as the epoch.
package timestamp

import (
	"encoding/json"
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// FromTime converts a time.Time to Unix milliseconds. The zero time maps to 0.
func FromTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// ToTime converts Unix milliseconds to time.Time. 0 maps to the zero time.
func ToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format renders ms as RFC3339 in UTC, or "" when unset.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// secondsCutoff separates second-based from millisecond-based numeric input
// (1e12 ms is September 2001).
const secondsCutoff = 1e12

// Parse converts the timestamp encodings found in stored configurations
// (milliseconds, seconds, numeric strings, RFC3339 strings, time.Time) to
// Unix milliseconds. Unrecognized input yields 0.
func Parse(input any) int64 {
	switch v := input.(type) {
	case nil:
		return 0
	case int64:
		if v == 0 || v > secondsCutoff {
			return v
		}
		return v * 1000
	case int:
		return Parse(int64(v))
	case float64:
		if v > secondsCutoff {
			return int64(v)
		}
		return int64(v * 1000)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return Parse(n)
		}
		if f, err := v.Float64(); err == nil {
			return Parse(f)
		}
		return 0
	case string:
		if v == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return FromTime(t)
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(n)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(f)
		}
		return 0
	case time.Time:
		return FromTime(v)
	case *time.Time:
		if v == nil {
			return 0
		}
		return FromTime(*v)
	default:
		return 0
	}
}

// Max returns the later of two timestamps, ignoring unset values.
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
