package button

import (
	"fmt"
	"time"
)

//go:generate stringer -type=State -trimprefix=State
type State uint8

const (
	StateReleased   State = iota
	StatePressed          // press seen, long wakeup armed if any long action
	StateDebouncing       // release seen, waiting for chatter to settle
	StateHandled          // long action fired, ignore until real release
)

// StopCode is the pseudo key code of the stop timer, no device reports it.
const StopCode uint16 = 0

type Key struct {
	Code    uint16
	Name    string
	Actions []Action

	state     State
	pressed   time.Duration
	released  time.Duration
	wakeup    time.Duration
	hasWakeup bool
}

func NewKey(code uint16, name string, actions []Action) *Key {
	as := make([]Action, len(actions))
	copy(as, actions)
	SortActions(as)
	return &Key{Code: code, Name: name, Actions: as}
}

func (self *Key) String() string {
	if self.Name != "" {
		return fmt.Sprintf("%s(%d)", self.Name, self.Code)
	}
	return fmt.Sprintf("key(%d)", self.Code)
}

func (self *Key) State() State { return self.state }

// Wakeup returns the armed wakeup time, ok=false when nothing is armed.
func (self *Key) Wakeup() (time.Duration, bool) { return self.wakeup, self.hasWakeup }

// Pressed returns press timestamp of the current cycle.
func (self *Key) Pressed() time.Duration { return self.pressed }

// Press handles press notification at device time ts.
func (self *Key) Press(ts time.Duration) {
	switch self.state {
	case StateReleased:
		self.pressed = ts
		self.armPress()
	case StateDebouncing:
		// chatter: keep original press time and its long wakeup
		self.armPress()
	case StatePressed, StateHandled:
		// repress or firmware autorepeat
	}
}

// Release handles release notification at device time ts, debounce wakeup from now.
func (self *Key) Release(ts, now, debounce time.Duration) {
	switch self.state {
	case StatePressed:
		self.state = StateDebouncing
		self.released = ts
		self.arm(now + debounce)
	case StateHandled:
		self.state = StateReleased
	case StateReleased, StateDebouncing:
		// process started with key held, or release after handled long press
	}
}

// Start arms key as pressed at now, used by the stop timer.
func (self *Key) Start(now time.Duration) {
	self.state = StateReleased
	self.Press(now)
}

// expire runs wakeup transition. Returns matched action (maybe nil),
// elapsed press duration and state before transition.
func (self *Key) expire(now time.Duration) (*Action, time.Duration, State) {
	prev := self.state
	if prev != StateDebouncing {
		// still held, artificial release
		self.released = now
	}
	elapsed := self.released - self.pressed
	if elapsed < 0 {
		elapsed = 0
	}
	action := Classify(self.Actions, elapsed)

	self.hasWakeup = false
	if prev == StateDebouncing {
		self.state = StateReleased
	} else {
		self.state = StateHandled
	}
	return action, elapsed, prev
}

func (self *Key) armPress() {
	self.state = StatePressed
	// short action always sorts first, so last not long means no long actions
	last := &self.Actions[len(self.Actions)-1]
	if last.Kind != Long {
		self.hasWakeup = false
		return
	}
	self.arm(self.pressed + last.Threshold)
}

func (self *Key) arm(t time.Duration) {
	self.wakeup = t
	self.hasWakeup = true
}
