package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// CanonicalLayout is the fixed-offset UTC rendering every timestamp field is
// normalized to, e.g. 2023-11-14T22:13:20.000000+0000.
const CanonicalLayout = "2006-01-02T15:04:05.000000-0700"

// millisThreshold separates epoch seconds from epoch milliseconds.
// Values strictly above it are milliseconds.
const millisThreshold = 1e12

// Epoch seconds outside [minEpochSeconds, maxEpochSeconds] fall outside years
// 0001..9999 and cannot be rendered in CanonicalLayout.
const (
	minEpochSeconds = -62135596800 // 0001-01-01T00:00:00Z
	maxEpochSeconds = 253402300799 // 9999-12-31T23:59:59Z
)

// isoLayouts accept a trailing Z or an explicit numeric offset, with or
// without a colon. Fractional seconds are accepted by time.Parse regardless.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
}

// ParseTimestamp interprets v as an instant. It accepts epoch numbers
// (int, float, json.Number, digit-only strings) and ISO-8601 strings that carry
// a zone designator. ok is false for anything else.
func ParseTimestamp(v any) (t time.Time, ok bool) {
	switch n := v.(type) {
	case int:
		return fromEpochInt(int64(n))
	case int64:
		return fromEpochInt(n)
	case int32:
		return fromEpochInt(int64(n))
	case uint64:
		if n > math.MaxInt64 {
			return time.Time{}, false
		}
		return fromEpochInt(int64(n))
	case float64:
		return fromEpochFloat(n)
	case float32:
		return fromEpochFloat(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return fromEpochInt(i)
		}
		if f, err := n.Float64(); err == nil {
			return fromEpochFloat(f)
		}
		return time.Time{}, false
	case string:
		return parseString(n)
	default:
		return time.Time{}, false
	}
}

// Timestamp renders v in CanonicalLayout when it can be parsed and returns it
// unchanged otherwise.
func Timestamp(v any) any {
	t, ok := ParseTimestamp(v)
	if !ok {
		return v
	}
	return t.UTC().Format(CanonicalLayout)
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if isDigits(s) {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return fromEpochInt(i)
	}
	if !strings.Contains(s, "T") {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpochInt(i int64) (time.Time, bool) {
	if i > millisThreshold {
		if i/1000 > maxEpochSeconds {
			return time.Time{}, false
		}
		return time.UnixMilli(i).UTC(), true
	}
	if i < minEpochSeconds {
		return time.Time{}, false
	}
	return time.Unix(i, 0).UTC(), true
}

func fromEpochFloat(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f > millisThreshold {
		f /= 1000
	}
	if f > maxEpochSeconds || f < minEpochSeconds {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	nsec := math.Round(frac*1e6) * 1e3
	return time.Unix(int64(sec), int64(nsec)).UTC(), true
}

// IsEpochString reports whether s is a digit-only epoch value rather than an
// ISO-8601 timestamp.
func IsEpochString(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && isDigits(s)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
