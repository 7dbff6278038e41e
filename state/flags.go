package state

import (
	"flag"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Flags collects command line bindings in the order given.
// -s/-l start an action, -a and -x refer to the last started action.
type Flags struct {
	ConfigPath string
	Version    bool
	Help       bool

	cli        Config
	hasCommand bool
}

func NewFlags(fs *flag.FlagSet) *Flags {
	self := &Flags{}
	fs.StringVar(&self.ConfigPath, "config", "", "HCL config file, optional")
	fs.BoolVar(&self.Version, "V", false, "show version")
	fs.BoolVar(&self.Help, "h", false, "show this help")
	fs.BoolVar(&self.cli.TestMode, "test", false, "test mode: inputs are pipes or files, timestamps from clock")
	fs.IntVar(&self.cli.DebounceMs, "d", 0, "debounce `ms` (default 10)")
	fs.IntVar(&self.cli.StopAfterMs, "t", 0, "exit successfully after `ms` even if no key was pressed")
	fs.Func("i", "input event `file`, e.g. /dev/input/event2, repeatable", func(s string) error {
		self.cli.Inputs = append(self.cli.Inputs, InputConfig{Path: s})
		return nil
	})
	fs.Func("I", "input event `file` which may be missing or disappear, watched with inotify", func(s string) error {
		self.cli.Inputs = append(self.cli.Inputs, InputConfig{Path: s, Watch: true})
		return nil
	})
	fs.Func("s", "short press on `key[:ms]` (default 1000), action runs on release before ms", func(s string) error {
		return self.addAction(s, false)
	})
	fs.Func("l", "long press on `key[:ms]` (default 5000), action runs once key was held ms", func(s string) error {
		return self.addAction(s, true)
	})
	fs.Func("a", "`command` for last -s/-l, run with /bin/sh -c", func(s string) error {
		a := self.last()
		if a == nil {
			return errors.NotValidf("action can only be provided after setting key")
		}
		if self.hasCommand {
			return errors.AlreadyExistsf("action for this key")
		}
		a.Command = s
		self.hasCommand = true
		return nil
	})
	fs.BoolFunc("x", "exit after last -s/-l action ran", func(string) error {
		a := self.last()
		if a == nil {
			return errors.NotValidf("-x can only be provided after setting key")
		}
		a.Exit = true
		return nil
	})
	fs.BoolFunc("v", "verbose, repeatable: debug, trace with key events", func(string) error {
		self.cli.Verbose++
		return nil
	})
	fs.BoolFunc("vv", "same as -v -v", func(string) error {
		self.cli.Verbose += 2
		return nil
	})
	return self
}

func (self *Flags) addAction(s string, long bool) error {
	if self.last() != nil && !self.hasCommand {
		return errors.NotValidf("must set action (-a) before specifying next key")
	}
	name, ms := s, 0
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		name = s[:i]
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n <= 0 {
			return errors.NotValidf("duration in %q", s)
		}
		ms = n
	}
	if name == "" {
		return errors.NotValidf("empty key in %q", s)
	}
	kc := KeyConfig{Name: name}
	if long {
		kc.Long = []ActionConfig{{Ms: ms}}
	} else {
		kc.Short = []ActionConfig{{Ms: ms}}
	}
	self.cli.Keys = append(self.cli.Keys, kc)
	self.hasCommand = false
	return nil
}

func (self *Flags) last() *ActionConfig {
	if len(self.cli.Keys) == 0 {
		return nil
	}
	kc := &self.cli.Keys[len(self.cli.Keys)-1]
	if len(kc.Long) != 0 {
		return &kc.Long[0]
	}
	return &kc.Short[0]
}

// Apply validates flag sequence and merges it over c.
// Lists are appended, numbers override when given.
func (self *Flags) Apply(c *Config) error {
	if self.last() != nil && !self.hasCommand {
		return errors.NotValidf("last key was defined without action (-a)")
	}
	c.Inputs = append(c.Inputs, self.cli.Inputs...)
	c.Keys = append(c.Keys, self.cli.Keys...)
	if self.cli.DebounceMs != 0 {
		c.DebounceMs = self.cli.DebounceMs
	}
	if self.cli.StopAfterMs != 0 {
		c.StopAfterMs = self.cli.StopAfterMs
	}
	c.Verbose += self.cli.Verbose
	c.TestMode = c.TestMode || self.cli.TestMode
	return nil
}

// Verbose is known before config is read, for early logging.
func (self *Flags) Verbose() int { return self.cli.Verbose }
