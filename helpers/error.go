package helpers

import (
	"strings"

	"github.com/juju/errors"
)

// FoldErrors joins messages one per line, nil entries and duplicates skipped.
// Single error is returned as is, keeping its type for errors.Is* checks.
func FoldErrors(errs []error) error {
	var first error
	ss := make([]string, 0, len(errs))
	seen := make(map[string]struct{}, len(errs))
	for _, e := range errs {
		if e == nil {
			continue
		}
		s := e.Error()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if first == nil {
			first = e
		}
		ss = append(ss, s)
	}
	switch len(ss) {
	case 0:
		return nil
	case 1:
		return first
	}
	return errors.New(strings.Join(ss, "\n"))
}
