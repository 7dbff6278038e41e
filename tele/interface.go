// Package tele reports fired actions and input source changes,
// to an MQTT broker and to a prometheus textfile.
package tele

import (
	"context"

	"github.com/temoto/buttond/log2"
	tele_config "github.com/temoto/buttond/tele/config"
)

// Teler is telemetry client, daemon side.
// Methods must not block the event loop.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	Error(error)
	Fired(Fired)
	SourceChanged(SourceChange)
}

// New returns Mqtt if enabled in config, Noop otherwise.
func New(c tele_config.Config) Teler {
	if !c.Enable {
		return Noop{}
	}
	return NewMqtt()
}
