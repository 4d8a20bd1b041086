package attendance

import "time"

// SetNowFunc replaces the service clock and returns a func restoring it.
func SetNowFunc(f func() time.Time) (restore func()) {
	prev := nowFunc
	nowFunc = f
	return func() { nowFunc = prev }
}
