package shared

import "time"

// Clock supplies the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// SystemClock returns the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}
