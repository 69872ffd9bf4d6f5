package tracker

import "time"

// SetNow replaces the clock of the package and returns a func restoring it.
func SetNow(now func() time.Time) (restore func()) {
	nowFunc = now
	return func() { nowFunc = time.Now }
}
