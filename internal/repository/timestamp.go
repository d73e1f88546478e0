package repository

import (
	"strings"
	"time"
)

// TimestampKind tells how a stored createdAt value was represented.
type TimestampKind int

const (
	// TimestampMissing covers absent, null and unparseable values.
	TimestampMissing TimestampKind = iota
	// TimestampNative is a store-native timestamp: a time.Time held by the
	// memory store, or a {"seconds","nanos"} object written by exporters.
	TimestampNative
	// TimestampPlain is a date/time string or a Unix millisecond number.
	TimestampPlain
)

func (k TimestampKind) String() string {
	switch k {
	case TimestampNative:
		return "native"
	case TimestampPlain:
		return "plain"
	default:
		return "missing"
	}
}

// Timestamp is a createdAt value normalized at the store boundary.
type Timestamp struct {
	Kind TimestampKind
	Time time.Time
}

var plainLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp classifies a raw document value.
func ParseTimestamp(v any) Timestamp {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return Timestamp{}
		}
		return Timestamp{Kind: TimestampNative, Time: t.UTC()}
	case *time.Time:
		if t == nil {
			return Timestamp{}
		}
		return ParseTimestamp(*t)
	case map[string]any:
		return parseNative(t)
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range plainLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return Timestamp{Kind: TimestampPlain, Time: parsed.UTC()}
			}
		}
	case float64:
		if t > 0 {
			return Timestamp{Kind: TimestampPlain, Time: time.UnixMilli(int64(t)).UTC()}
		}
	case int64:
		if t > 0 {
			return Timestamp{Kind: TimestampPlain, Time: time.UnixMilli(t).UTC()}
		}
	case int:
		if t > 0 {
			return Timestamp{Kind: TimestampPlain, Time: time.UnixMilli(int64(t)).UTC()}
		}
	}
	return Timestamp{}
}

func parseNative(m map[string]any) Timestamp {
	secs, ok := number(m, "seconds")
	if !ok {
		secs, ok = number(m, "_seconds")
	}
	if !ok {
		return Timestamp{}
	}
	nanos, ok := number(m, "nanos")
	if !ok {
		nanos, _ = number(m, "_nanoseconds")
	}
	return Timestamp{Kind: TimestampNative, Time: time.Unix(int64(secs), int64(nanos)).UTC()}
}

// OrNow returns the parsed time, or now for a missing value. Missing
// timestamps therefore sort as the newest reviews.
func (t Timestamp) OrNow(now time.Time) time.Time {
	if t.Kind == TimestampMissing {
		return now
	}
	return t.Time
}
