package utils

import "time"

// SystemClock is the wall clock with stdlib timers.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc returns *time.Timer, which satisfies dto.Timer.
func (SystemClock) AfterFunc(d time.Duration, f func()) interface{ Stop() bool } {
	return time.AfterFunc(d, f)
}
