package moderation

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
func (realScheduler) Now() time.Time {
	return time.Now()
}

func RealScheduler() Scheduler {
	return realScheduler{}
}
