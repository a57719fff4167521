package domain

import "time"

// Granularity is the length of a fixed rate-limit window.
type Granularity string

const (
	WindowMinute Granularity = "minute"
	WindowHour   Granularity = "hour"
)

// Duration returns the window length.
func (g Granularity) Duration() time.Duration {
	switch g {
	case WindowHour:
		return time.Hour
	default:
		return time.Minute
	}
}

// WindowStart truncates t to the start of the window containing it, in UTC.
func (g Granularity) WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(g.Duration())
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == WindowMinute || g == WindowHour
}
