package domain

import "time"

// TimeFormat is fixed-width UTC so that stored timestamps sort the same
// lexicographically and chronologically.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Timestamp formats t for storage.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Now returns the current storage timestamp.
func Now() string {
	return Timestamp(time.Now())
}
