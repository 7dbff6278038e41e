package tele

import (
	"time"

	"github.com/tidwall/sjson"
)

const (
	TopicConnect = "c"
	TopicFired   = "fired"
	TopicSource  = "source"
	TopicError   = "error"
)

type Fired struct {
	Key     string
	Code    uint16
	Action  string
	Command string
	Elapsed time.Duration
	Exit    bool
}

type SourceChange struct {
	Path  string
	Prev  string
	State string
}

func (self *Fired) Marshal() ([]byte, error) {
	return marshal(
		"key", self.Key,
		"code", self.Code,
		"action", self.Action,
		"command", self.Command,
		"elapsed_ms", int64(self.Elapsed/time.Millisecond),
		"exit", self.Exit,
	)
}

func (self *SourceChange) Marshal() ([]byte, error) {
	return marshal("path", self.Path, "prev", self.Prev, "state", self.State)
}

func marshalError(err error) ([]byte, error) {
	return marshal("error", err.Error())
}

// marshal builds flat JSON object from path, value pairs
func marshal(kv ...interface{}) ([]byte, error) {
	b := []byte("{}")
	var err error
	for i := 0; i+1 < len(kv); i += 2 {
		if b, err = sjson.SetBytes(b, kv[i].(string), kv[i+1]); err != nil {
			return nil, err
		}
	}
	return b, nil
}
