package tele

import (
	"context"

	"github.com/temoto/buttond/log2"
	tele_config "github.com/temoto/buttond/tele/config"
)

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }

func (Noop) Close() {}

func (Noop) Error(error) {}

func (Noop) Fired(Fired) {}

func (Noop) SourceChanged(SourceChange) {}
