package utils

import "time"

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// Now returns current time (useful for mocking in tests)
var Now Clock = time.Now

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
