package button

import (
	"time"

	"golang.org/x/sys/unix"
)

// Clock is monotonic time since an arbitrary point, same base as
// input event timestamps after EVIOCSCLOCKID(CLOCK_MONOTONIC).
type Clock interface {
	Now() time.Duration
}

type MonoClock struct{}

func (MonoClock) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// only EINVAL/EFAULT possible, neither applies to CLOCK_MONOTONIC
		panic("clock_gettime(CLOCK_MONOTONIC) err=" + err.Error())
	}
	return time.Duration(ts.Nano())
}

// ManualClock for tests, not safe for concurrent use.
type ManualClock struct{ T time.Duration }

func (self *ManualClock) Now() time.Duration      { return self.T }
func (self *ManualClock) Set(t time.Duration)     { self.T = t }
func (self *ManualClock) Advance(d time.Duration) { self.T += d }
func (self *ManualClock) AdvanceMs(ms int)        { self.T += time.Duration(ms) * time.Millisecond }
