package util

import "time"

// Timestamp is an injectable clock.
type Timestamp func() time.Time

// FixedTime always reports t. Useful for expiry checks in tests.
func FixedTime(t time.Time) Timestamp {
	return func() time.Time {
		return t
	}
}
