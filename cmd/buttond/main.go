package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/buttond/internal/button"
	buttond "github.com/temoto/buttond/internal/daemon"
	"github.com/temoto/buttond/internal/run"
	"github.com/temoto/buttond/log2"
	"github.com/temoto/buttond/state"
)

var BuildVersion string = "unknown" // set by ldflags -X

const helpText = `Semantics: a short press action happens on release, if and only if
the button was released before its threshold (default 1000ms).
A long press action happens even if key is still pressed, once it has been
held for at least its threshold (default 5000ms). With several long actions
on one key, the longest reached one runs.

Key can be a name (KEY_POWER, power, BTN_0) or code from
linux/input-event-codes.h. Run with -vv to see codes of pressed keys.

Keyboards with repeat in firmware produce quick repetitions (<debounce)
which are handled as if key were pressed continuously.
`

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags := state.NewFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\nOptions:\n", fs.Name())
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\n%s", helpText)
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if flags.Help {
		fs.SetOutput(os.Stdout)
		fs.Usage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Printf("%s version %s\n", fs.Name(), BuildVersion)
		os.Exit(0)
	}

	log := log2.NewStderr(log2.Verbosity(flags.Verbose()))
	config := state.NewConfig()
	if flags.ConfigPath != "" {
		if err := config.ReadFiles(log, state.NewOsFullReader("."), flags.ConfigPath); err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
	}
	if err := flags.Apply(config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	log.SetLevel(config.LogLevel())

	d, err := buttond.New(log, config, run.NewShell(log), button.MonoClock{})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		d.Close()
		log.Fatal(errors.ErrorStack(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Infof("received %s, stopping", sig)
			sdnotify(log, daemon.SdNotifyStopping)
			d.Stop()
		case <-d.Alive.StopChan():
		}
	}()

	sdnotify(log, daemon.SdNotifyReady)
	log.Debugf("running")
	err = d.Run()
	cancel()
	d.Close()
	if err != nil && err != button.ErrExit {
		log.Fatal(errors.ErrorStack(err))
	}
}

func sdnotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Errorf("sdnotify: %v", err)
	}
	return ok
}
