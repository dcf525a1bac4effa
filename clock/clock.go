// Package clock provides the injectable time capability used throughout
// the core so that upload and access decisions can be tested against a
// pinned instant instead of wall-clock time.
package clock

import "time"

// Clock returns the current instant. Implementations must be safe for
// concurrent use; the zero value of a struct embedding a Clock should use
// Default.
type Clock func() time.Time

// Default returns the system wall clock, normalized to UTC so that
// expiresAtEpochMs comparisons are not sensitive to the process's local
// timezone.
func Default() Clock {
	return func() time.Time { return time.Now().UTC() }
}

// Fixed returns a Clock that always reports t, for pinning time in tests.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// EpochMs returns c's current instant as milliseconds since the Unix epoch,
// the unit index.Record.ExpiresAtEpochMs is expressed in.
func (c Clock) EpochMs() int64 {
	return c().UnixMilli()
}
