package model

import "time"

// TimestampLayout is the canonical string form used for collector_tstamp
// persistence and bookmark comparison. Fixed-width fractional seconds and a
// forced UTC offset keep lexicographic string comparison equivalent to
// chronological comparison (spec §9 "Bookmark as string comparison"), should
// callers choose to compare the formatted strings directly instead of the
// time.Time values this package carries internally.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in the canonical bookmark/storage form, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses the canonical form back into a time.Time. It also
// accepts RFC3339(Nano) as a fallback for values produced by other tooling.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
