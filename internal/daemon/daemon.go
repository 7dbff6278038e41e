// Package daemon runs the single event loop: poll inputs, fire due key wakeups, process input.
package daemon

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/buttond/hardware/input"
	"github.com/temoto/buttond/internal/button"
	"github.com/temoto/buttond/log2"
	"github.com/temoto/buttond/state"
	"github.com/temoto/buttond/tele"
	"golang.org/x/sys/unix"
)

type Daemon struct {
	Log   *log2.Log
	Alive *alive.Alive
	Clock button.Clock
	Sched *button.Scheduler
	Input *input.Dispatch
	Tele  tele.Teler
	Stat  *tele.Stat

	config *state.Config
	wake   [2]int
}

// New validates config, nothing is opened yet.
func New(log *log2.Log, c *state.Config, runner button.Runner, clock button.Clock) (*Daemon, error) {
	keys, sources, err := c.Build()
	if err != nil {
		return nil, err
	}
	self := &Daemon{
		Log:    log,
		Alive:  alive.NewAlive(),
		Clock:  clock,
		Sched:  button.NewScheduler(log, clock, runner, c.Debounce()),
		Input:  input.NewDispatch(log, input.Options{TestMode: c.TestMode}, sources),
		Tele:   tele.New(c.Tele),
		Stat:   tele.NewStat(c.Metrics.Textfile),
		config: c,
		wake:   [2]int{-1, -1},
	}
	for _, k := range keys {
		if err := self.Sched.Add(k); err != nil {
			return nil, err
		}
		log.Debugf("key %s actions %v", k.String(), k.Actions)
	}
	self.Sched.OnFire = self.onFire
	self.Sched.OnIgnore = self.onIgnore
	self.Input.OnEvent = self.onEvent
	self.Input.OnState = self.onState
	return self, nil
}

// Start opens inputs, after it returns without error the daemon is ready.
func (self *Daemon) Start(ctx context.Context) error {
	self.Log.SetErrorFunc(func(err error) {
		self.Stat.Errors.Inc()
		self.Tele.Error(err)
	})
	if err := self.Tele.Init(ctx, self.Log, self.config.Tele); err != nil {
		return errors.Annotate(err, "tele")
	}
	if err := unix.Pipe2(self.wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return errors.Annotate(err, "wake pipe")
	}
	self.Input.SetWakeFd(self.wake[0])
	if err := self.Input.Start(); err != nil {
		return err
	}
	if d := self.config.StopAfter(); d > 0 {
		if err := self.Sched.AddStopTimer(d); err != nil {
			return err
		}
		self.Log.Debugf("stop timer in %s", d)
	}
	return nil
}

// Run blocks until Stop (nil) or an action requested exit (button.ErrExit).
// Other errors are fatal.
func (self *Daemon) Run() error {
	for self.Alive.IsRunning() {
		if _, err := self.Input.Poll(self.Sched.PollTimeout()); err != nil {
			return err
		}
		// wakeups fire on every return, timeout or EINTR too
		if err := self.Sched.FireDue(); err != nil {
			return err
		}
		if err := self.Input.Process(); err != nil {
			return err
		}
	}
	return nil
}

// Stop is safe to call from other goroutines, e.g. signal handler.
func (self *Daemon) Stop() {
	self.Alive.Stop()
	if self.wake[1] >= 0 {
		_, _ = unix.Write(self.wake[1], []byte{0})
	}
}

func (self *Daemon) Close() {
	self.Input.Close()
	self.Tele.Close()
	for i, fd := range self.wake {
		if fd >= 0 {
			_ = unix.Close(fd)
			self.wake[i] = -1
		}
	}
	self.writeStat()
}

func (self *Daemon) onEvent(e input.Event) {
	ts := e.Time
	if !e.Trusted {
		ts = self.Clock.Now()
	}
	ok := self.Sched.Notify(e.Code, e.Pressed(), ts)
	self.Stat.KeyEvent(e.Value, ok)
	if !ok && self.Log.Enabled(log2.LTrace) {
		self.Log.Tracef("%s key %s(%d) value=%d time=%s: ignore, not configured",
			e.Source, input.KeyName(e.Code), e.Code, e.Value, e.Time)
	}
}

func (self *Daemon) onFire(k *button.Key, a *button.Action, elapsed time.Duration) {
	f := tele.Fired{
		Key:     k.Name,
		Code:    k.Code,
		Action:  a.String(),
		Command: a.Command,
		Elapsed: elapsed,
		Exit:    a.ExitAfter,
	}
	self.Stat.Fired(&f)
	self.Tele.Fired(f)
	self.writeStat()
}

func (self *Daemon) onIgnore(k *button.Key, elapsed time.Duration) {
	self.Stat.Ignored.Inc()
}

func (self *Daemon) onState(s *input.Source, prev input.SourceState) {
	sc := tele.SourceChange{Path: s.Path, Prev: prev.String(), State: s.State().String()}
	self.Stat.SourceChanged(&sc)
	self.Tele.SourceChanged(sc)
	self.writeStat()
}

func (self *Daemon) writeStat() {
	if err := self.Stat.Write(); err != nil {
		self.Log.Error(err)
	}
}
