package button

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/buttond/log2"
)

const DefaultDebounce = 10 * time.Millisecond

// ErrExit is returned by FireDue after running an action with ExitAfter.
var ErrExit = errors.New("exit requested by action")

// Runner executes action commands. Start must not block on the command.
type Runner interface {
	Start(command string)
	// Run waits for command completion, used before exit.
	Run(command string) error
}

type FireFunc func(key *Key, action *Action, elapsed time.Duration)

// Scheduler owns key table and computes loop wakeups.
// Not safe for concurrent use, single loop owns it.
type Scheduler struct {
	Log      *log2.Log
	Clock    Clock
	Runner   Runner
	Debounce time.Duration
	// OnFire is called after an action command was started, optional.
	OnFire FireFunc
	// OnIgnore is called when press cycle ended without matching action, optional.
	OnIgnore func(key *Key, elapsed time.Duration)

	keys   []*Key
	byCode map[uint16]*Key
}

func NewScheduler(log *log2.Log, clock Clock, runner Runner, debounce time.Duration) *Scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Scheduler{
		Log:      log,
		Clock:    clock,
		Runner:   runner,
		Debounce: debounce,
		byCode:   make(map[uint16]*Key, 16),
	}
}

// Add registers key. Iteration order of FireDue is Add order.
func (self *Scheduler) Add(k *Key) error {
	if len(k.Actions) == 0 {
		return errors.NotValidf("key %s without actions", k.String())
	}
	if _, ok := self.byCode[k.Code]; ok {
		return errors.AlreadyExistsf("key %s", k.String())
	}
	self.keys = append(self.keys, k)
	self.byCode[k.Code] = k
	return nil
}

// AddStopTimer adds pseudo key which exits after d from now.
func (self *Scheduler) AddStopTimer(d time.Duration) error {
	k := NewKey(StopCode, "stop-timer", []Action{{Kind: Long, Threshold: d, ExitAfter: true}})
	if err := self.Add(k); err != nil {
		return err
	}
	k.Start(self.Clock.Now())
	return nil
}

func (self *Scheduler) Keys() []*Key { return self.keys }

func (self *Scheduler) Key(code uint16) *Key { return self.byCode[code] }

// Notify routes device notification to key state machine.
// Returns false for unconfigured codes.
func (self *Scheduler) Notify(code uint16, pressed bool, ts time.Duration) bool {
	if code == StopCode {
		return false
	}
	k := self.byCode[code]
	if k == nil {
		return false
	}
	before := k.state
	if pressed {
		k.Press(ts)
	} else {
		k.Release(ts, self.Clock.Now(), self.Debounce)
	}
	if self.Log.Enabled(log2.LTrace) {
		self.Log.Tracef("key %s pressed=%t state %s -> %s", k.String(), pressed, before.String(), k.state.String())
	}
	return true
}

// Wait returns how long loop may block. ok=false means block indefinitely.
func (self *Scheduler) Wait() (time.Duration, bool) {
	now := self.Clock.Now()
	var min time.Duration
	found := false
	for _, k := range self.keys {
		t, armed := k.Wakeup()
		if !armed {
			continue
		}
		d := t - now
		if d < 0 {
			d = 0
		}
		if !found || d < min {
			min = d
			found = true
		}
	}
	return min, found
}

// PollTimeout converts Wait to poll(2) milliseconds, -1 blocks forever.
// Rounds up, waking before deadline only spins the loop.
func (self *Scheduler) PollTimeout() int {
	d, ok := self.Wait()
	if !ok {
		return -1
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// FireDue runs every armed wakeup at or before now, in Add order.
// Must be called after every poll return.
func (self *Scheduler) FireDue() error {
	now := self.Clock.Now()
	for _, k := range self.keys {
		t, armed := k.Wakeup()
		if !armed || t > now {
			continue
		}
		action, elapsed, prev := k.expire(now)
		if action == nil {
			if prev == StateDebouncing {
				self.Log.Debugf("ignoring key %s released after %s", k.String(), elapsed)
				if self.OnIgnore != nil {
					self.OnIgnore(k, elapsed)
				}
			} else {
				self.Log.Errorf("woke up for key %s after %s without matching action, this should not happen", k.String(), elapsed)
			}
			continue
		}
		if err := self.run(k, action, elapsed); err != nil {
			return err
		}
	}
	return nil
}

func (self *Scheduler) run(k *Key, a *Action, elapsed time.Duration) error {
	if a.Command != "" {
		self.Log.Debugf("key %s action %s running %q after %s", k.String(), a.String(), a.Command, elapsed)
		if a.ExitAfter {
			if err := self.Runner.Run(a.Command); err != nil {
				self.Log.Debugf("command %q err=%v", a.Command, err)
			}
		} else {
			self.Runner.Start(a.Command)
		}
	}
	if self.OnFire != nil {
		self.OnFire(k, a, elapsed)
	}
	if a.ExitAfter {
		if k.Code == StopCode {
			self.Log.Infof("exiting after stop timeout")
		} else {
			self.Log.Infof("exiting after processing key %s", k.String())
		}
		return ErrExit
	}
	return nil
}
