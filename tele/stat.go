package tele

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Stat counters live in a private registry, written as node_exporter textfile.
// Safe for concurrent use.
type Stat struct {
	Registry *prometheus.Registry

	KeyEvents     *prometheus.CounterVec
	Actions       *prometheus.CounterVec
	Ignored       prometheus.Counter
	SourceChanges *prometheus.CounterVec
	Errors        prometheus.Counter

	textfile string
}

func NewStat(textfile string) *Stat {
	self := &Stat{
		Registry: prometheus.NewRegistry(),
		KeyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buttond",
			Name:      "key_events_total",
			Help:      "EV_KEY records read from inputs.",
		}, []string{"value", "configured"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buttond",
			Name:      "actions_total",
			Help:      "Fired actions by key and action.",
		}, []string{"key", "action"}),
		Ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buttond",
			Name:      "presses_ignored_total",
			Help:      "Press cycles completed without matching action.",
		}),
		SourceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buttond",
			Name:      "source_changes_total",
			Help:      "Input source state changes by new state.",
		}, []string{"path", "state"}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buttond",
			Name:      "errors_total",
			Help:      "Errors logged.",
		}),
		textfile: textfile,
	}
	self.Registry.MustRegister(self.KeyEvents, self.Actions, self.Ignored, self.SourceChanges, self.Errors)
	return self
}

func (self *Stat) KeyEvent(value int32, configured bool) {
	v := "press"
	switch value {
	case 0:
		v = "release"
	case 2:
		v = "repeat"
	}
	c := "false"
	if configured {
		c = "true"
	}
	self.KeyEvents.WithLabelValues(v, c).Inc()
}

func (self *Stat) Fired(f *Fired) {
	self.Actions.WithLabelValues(f.Key, f.Action).Inc()
}

func (self *Stat) SourceChanged(sc *SourceChange) {
	self.SourceChanges.WithLabelValues(sc.Path, sc.State).Inc()
}

// Write replaces textfile atomically, no-op without textfile.
func (self *Stat) Write() error {
	if self.textfile == "" {
		return nil
	}
	err := prometheus.WriteToTextfile(self.textfile, self.Registry)
	return errors.Annotatef(err, "metrics textfile=%s", self.textfile)
}
