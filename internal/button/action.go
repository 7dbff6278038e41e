package button

import (
	"fmt"
	"sort"
	"time"

	"github.com/juju/errors"
)

//go:generate stringer -type=Kind
type Kind uint8

const (
	// Short fires on release held less than Threshold. At most one per key.
	Short Kind = iota
	// Long fires once held at least Threshold, even before release.
	Long
)

type Action struct {
	Kind      Kind
	Threshold time.Duration
	// Opaque shell command, empty means nothing to run.
	Command string
	// Stop the loop with success after running Command.
	ExitAfter bool
}

func (a *Action) String() string {
	op := "<"
	if a.Kind == Long {
		op = ">="
	}
	s := fmt.Sprintf("%s(%s%dms)", a.Kind.String(), op, a.Threshold/time.Millisecond)
	if a.ExitAfter {
		s += "+exit"
	}
	return s
}

func (a *Action) match(elapsed time.Duration) bool {
	switch a.Kind {
	case Short:
		return elapsed < a.Threshold
	case Long:
		return elapsed >= a.Threshold
	}
	panic(fmt.Sprintf("code error invalid action kind=%d", a.Kind))
}

// SortActions orders short first, then long by ascending threshold.
// Classify and Key.press depend on this order.
func SortActions(as []Action) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].Kind != as[j].Kind {
			return as[i].Kind == Short
		}
		return as[i].Threshold < as[j].Threshold
	})
}

// ValidateActions checks sorted actions of one key.
func ValidateActions(as []Action) error {
	if len(as) == 0 {
		return errors.NotValidf("no actions")
	}
	shorts := 0
	for i := range as {
		a := &as[i]
		if a.Threshold < 0 {
			return errors.NotValidf("action %s negative threshold", a.String())
		}
		if a.Kind == Short {
			shorts++
		}
		if i > 0 && as[i-1].Kind == a.Kind && as[i-1].Threshold == a.Threshold {
			return errors.NotValidf("duplicate action %s", a.String())
		}
	}
	if shorts > 1 {
		return errors.NotValidf("%d short actions, only one allowed", shorts)
	}
	if shorts == 1 && len(as) > 1 && as[0].Threshold > as[1].Threshold {
		return errors.NotValidf("short threshold %s exceeds smallest long threshold %s",
			as[0].Threshold, as[1].Threshold)
	}
	return nil
}

// Classify returns the best action for a press held for elapsed, or nil.
// Short actions are checked ascending, then long ones descending,
// so the longest satisfied long tier wins.
func Classify(as []Action, elapsed time.Duration) *Action {
	for i := 0; i < len(as) && as[i].Kind == Short; i++ {
		if as[i].match(elapsed) {
			return &as[i]
		}
	}
	for i := len(as) - 1; i >= 0 && as[i].Kind == Long; i-- {
		if as[i].match(elapsed) {
			return &as[i]
		}
	}
	return nil
}
