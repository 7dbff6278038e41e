// Package input multiplexes /dev/input/event* sources with inotify in a single poll(2).
package input

import (
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/buttond/log2"
	"github.com/temoto/inputevent-go"
	"golang.org/x/sys/unix"
)

const readBufRecords = 64

type Event struct {
	Source string
	Code   uint16
	// Value 0 released, 1 pressed, 2 autorepeat.
	Value int32
	// Time is CLOCK_MONOTONIC only if Trusted.
	Time    time.Duration
	Trusted bool
}

func (e *Event) Pressed() bool { return e.Value != 0 }

type EventFunc func(Event)
type StateFunc func(s *Source, prev SourceState)

type Options struct {
	// TestMode skips EVIOCSCLOCKID for pipes and regular files.
	TestMode bool
}

// Dispatch owns input sources and the inotify watcher.
// Not safe for concurrent use, single loop owns it.
type Dispatch struct {
	Log     *log2.Log
	OnEvent EventFunc
	OnState StateFunc

	opt     Options
	sources []*Source
	watcher *Watcher
	wakeFd  int
	buf     []byte

	pollfds []unix.PollFd
	polled  []*Source // parallel to pollfds, nil for inotify/wake
}

func NewDispatch(log *log2.Log, opt Options, configs []SourceConfig) *Dispatch {
	self := &Dispatch{
		Log:     log,
		opt:     opt,
		watcher: NewWatcher(),
		wakeFd:  -1,
		buf:     make([]byte, readBufRecords*inputevent.EventSizeof),
	}
	for _, c := range configs {
		self.sources = append(self.sources, NewSource(c))
	}
	return self
}

func (self *Dispatch) Sources() []*Source { return self.sources }

// SetWakeFd adds fd to poll set, it is drained and otherwise ignored.
// Used to interrupt Poll from another goroutine.
func (self *Dispatch) SetWakeFd(fd int) { self.wakeFd = fd }

// Start opens all sources. Error is fatal.
func (self *Dispatch) Start() error {
	if len(self.sources) == 0 {
		return errors.NotValidf("no input sources")
	}
	for _, s := range self.sources {
		if err := self.reopen(s); err != nil {
			return err
		}
	}
	return nil
}

func (self *Dispatch) Close() {
	for _, s := range self.sources {
		s.close()
	}
	_ = self.watcher.Close()
}

// Poll blocks until input or timeout (ms, -1 forever).
// EINTR is not an error, caller runs its cycle and polls again.
func (self *Dispatch) Poll(timeout int) (int, error) {
	self.pollfds = self.pollfds[:0]
	self.polled = self.polled[:0]
	for _, s := range self.sources {
		if s.state == SourceOpen {
			self.add(s.fd, s)
		}
	}
	if fd := self.watcher.Fd(); fd >= 0 {
		self.add(fd, nil)
	}
	if self.wakeFd >= 0 {
		self.add(self.wakeFd, nil)
	}
	n, err := unix.Poll(self.pollfds, timeout)
	if err == unix.EINTR {
		for i := range self.pollfds {
			self.pollfds[i].Revents = 0
		}
		return 0, nil
	}
	if err != nil {
		return 0, errors.Annotate(err, "poll")
	}
	return n, nil
}

// Process handles readiness reported by last Poll. Error is fatal.
func (self *Dispatch) Process() error {
	watchReady := false
	for i := range self.pollfds {
		pfd := &self.pollfds[i]
		if pfd.Revents == 0 {
			continue
		}
		s := self.polled[i]
		switch {
		case s != nil:
			if err := self.processSource(s, pfd.Revents); err != nil {
				return err
			}
		case int(pfd.Fd) == self.watcher.Fd():
			watchReady = true
		case int(pfd.Fd) == self.wakeFd:
			drainFd(self.wakeFd, self.buf)
		}
		pfd.Revents = 0
	}
	if watchReady {
		return self.processWatch()
	}
	return nil
}

func (self *Dispatch) add(fd int, s *Source) {
	self.pollfds = append(self.pollfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	self.polled = append(self.polled, s)
}

func (self *Dispatch) processSource(s *Source, revents int16) error {
	// source may have been closed by earlier processing in this cycle
	if s.state != SourceOpen {
		return nil
	}
	var err error
	if revents&unix.POLLIN != 0 {
		err = s.drain(self.buf, func(ie inputevent.InputEvent) { self.emit(s, &ie) })
	}
	switch {
	case err == io.EOF && s.regular:
		return self.exhausted(s)
	case err != nil && s.regular:
		// reopening would replay the file from start
		self.Log.Errorf("input %s: %v", s.Path, err)
		return self.exhausted(s)
	case err == io.EOF:
		self.Log.Debugf("input %s: writer closed, reopening", s.Path)
		return self.reopen(s)
	case err != nil:
		self.Log.Errorf("input %s: %v, reopening", s.Path, err)
		return self.reopen(s)
	case revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0:
		self.Log.Debugf("input %s: hangup revents=%#x, reopening", s.Path, revents)
		return self.reopen(s)
	}
	return nil
}

func (self *Dispatch) emit(s *Source, ie *inputevent.InputEvent) {
	e := Event{
		Source:  s.Path,
		Code:    ie.Code,
		Value:   ie.Value,
		Time:    eventTime(ie),
		Trusted: s.Trusted,
	}
	if self.OnEvent != nil {
		self.OnEvent(e)
	}
}

// reopen is the recovery attempt: close, open, on ENOENT wait for reappearance.
// Watched sources keep the directory watch while open, so deletion is noticed.
func (self *Dispatch) reopen(s *Source) error {
	prev := s.state
	s.close()
	if s.Watch {
		// armed before open, creation in between is not lost
		if err := self.watch(s); err != nil {
			return err
		}
	}
	err := s.open(self.Log, self.opt.TestMode)
	if err == nil {
		self.Log.Infof("input %s: opened monotonic=%t", s.Path, s.Trusted)
		self.changed(s, prev)
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Annotatef(err, "open %s", s.Path)
	}
	if !s.Watch {
		return errors.Annotatef(err, "open %s (not watched)", s.Path)
	}
	s.state = SourceAwaiting
	self.Log.Infof("input %s: waiting for file to appear", s.Path)
	self.changed(s, prev)
	return nil
}

// exhausted handles end of regular file, replays are never repeated.
func (self *Dispatch) exhausted(s *Source) error {
	prev := s.state
	s.close()
	if !s.Watch {
		self.Log.Infof("input %s: end of file", s.Path)
		self.changed(s, prev)
		return nil
	}
	if err := self.watch(s); err != nil {
		return err
	}
	s.state = SourceAwaiting
	self.Log.Infof("input %s: end of file, waiting for it to be created again", s.Path)
	self.changed(s, prev)
	return nil
}

func (self *Dispatch) watch(s *Source) error {
	if s.wd >= 0 {
		return nil
	}
	self.Log.Debugf("input %s: setting up inotify watch on %s", s.Path, s.dir)
	wd, err := self.watcher.Add(s.dir)
	if err != nil {
		return errors.Annotatef(err, "watch %s", s.Path)
	}
	s.wd = wd
	return nil
}

func (self *Dispatch) processWatch() error {
	events, err := self.watcher.Read()
	if err != nil {
		return err
	}
	for i := range events {
		if err := self.processWatchEvent(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

func (self *Dispatch) processWatchEvent(e *WatchEvent) error {
	for _, s := range self.sources {
		if s.wd < 0 || s.wd != e.Wd {
			continue
		}
		self.Log.Tracef("inotify wd=%d mask=%#x name=%q for %s", e.Wd, e.Mask, e.Name, s.Path)
		switch {
		case e.DirGone():
			// directory removed from under the watch, arm again
			s.wd = -1
			if s.state != SourceOpen {
				if err := self.reopen(s); err != nil {
					return err
				}
			} else if err := self.watch(s); err != nil {
				return err
			}
		case e.Name != s.base:
		case e.Created() && s.state != SourceOpen:
			self.Log.Debugf("input %s: created, reopening", s.Path)
			if err := self.reopen(s); err != nil {
				return err
			}
		case e.Deleted() && s.state == SourceOpen:
			prev := s.state
			s.close()
			s.state = SourceAwaiting
			self.Log.Infof("input %s: deleted, waiting for it to appear", s.Path)
			self.changed(s, prev)
		}
	}
	return nil
}

func (self *Dispatch) changed(s *Source, prev SourceState) {
	if self.OnState != nil && prev != s.state {
		self.OnState(s, prev)
	}
}

func drainFd(fd int, buf []byte) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
	}
}
