// Package run executes action commands with /bin/sh, like system(3) without waiting.
package run

import (
	"os"
	"os/exec"

	"github.com/juju/errors"
	"github.com/temoto/buttond/log2"
)

const DefaultShell = "/bin/sh"

// Shell implements button.Runner.
// Output goes to our stdout/stderr, exit status is only logged.
type Shell struct {
	Log   *log2.Log
	Shell string
}

func NewShell(log *log2.Log) *Shell {
	return &Shell{Log: log, Shell: DefaultShell}
}

func (self *Shell) command(command string) *exec.Cmd {
	cmd := exec.Command(self.Shell, "-c", command)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	return cmd
}

// Start does not wait for command, child is reaped in background.
func (self *Shell) Start(command string) {
	cmd := self.command(command)
	if err := cmd.Start(); err != nil {
		self.Log.Errorf("command %q start: %v", command, err)
		return
	}
	self.Log.Debugf("command %q started pid=%d", command, cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		self.Log.Debugf("command %q pid=%d finished err=%v", command, cmd.Process.Pid, err)
	}()
}

func (self *Shell) Run(command string) error {
	err := self.command(command).Run()
	return errors.Annotatef(err, "command %q", command)
}
