package input

import (
	"bytes"
	"io"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/buttond/log2"
	"github.com/temoto/inputevent-go"
	"golang.org/x/sys/unix"
)

// _IOW('E', 0xa0, int)
const evIocsClockID = 0x400445a0

var ErrPartialRecord = errors.New("partial input_event record")

//go:generate stringer -type=SourceState -trimprefix=Source
type SourceState uint8

const (
	SourceClosed SourceState = iota
	SourceOpen
	SourceAwaiting // waiting for reappearance via inotify
)

type SourceConfig struct {
	Path string
	// Watch allows the file to be absent or disappear, it is reopened when created again.
	Watch bool
}

// Source is one input device file session.
type Source struct {
	Path  string
	Watch bool
	// Trusted means kernel agreed to CLOCK_MONOTONIC timestamps.
	Trusted bool

	dir     string
	base    string
	fd      int
	wd      int
	state   SourceState
	regular bool
	pending []byte
}

func NewSource(c SourceConfig) *Source {
	self := &Source{
		Path:  c.Path,
		Watch: c.Watch,
		fd:    -1,
		wd:    -1,
	}
	if c.Watch {
		self.dir, self.base = filepath.Split(c.Path)
		self.dir = filepath.Clean(self.dir)
		if self.dir == "" {
			self.dir = "."
		}
	}
	return self
}

func (self *Source) String() string     { return self.Path }
func (self *Source) State() SourceState { return self.state }
func (self *Source) Fd() int            { return self.fd }

// Dir returns watched directory and base name, empty for not watched sources.
func (self *Source) Dir() (string, string) { return self.dir, self.base }

// open tries to open device read-only non-blocking.
// testMode skips EVIOCSCLOCKID, pipes and files don't support it.
func (self *Source) open(log *log2.Log, testMode bool) error {
	fd, err := unix.Open(self.Path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return err
	}
	self.fd = fd
	self.regular = st.Mode&unix.S_IFMT == unix.S_IFREG
	self.pending = self.pending[:0]
	self.state = SourceOpen
	self.Trusted = false
	if !testMode {
		if err := unix.IoctlSetPointerInt(fd, evIocsClockID, unix.CLOCK_MONOTONIC); err != nil {
			log.Errorf("input %s: could not request monotonic timestamps, using receive time err=%v", self.Path, err)
		} else {
			self.Trusted = true
		}
	}
	return nil
}

func (self *Source) close() {
	if self.fd >= 0 {
		_ = unix.Close(self.fd)
		self.fd = -1
	}
	self.pending = self.pending[:0]
	self.state = SourceClosed
}

// drain reads everything available and calls fun for each EV_KEY record.
// Returns io.EOF when writer side is gone, ErrPartialRecord on trailing garbage.
func (self *Source) drain(buf []byte, fun func(inputevent.InputEvent)) error {
	for {
		n, err := unix.Read(self.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			return errors.Annotatef(err, "read %s", self.Path)
		}
		if n == 0 {
			if len(self.pending) != 0 {
				return errors.Annotatef(ErrPartialRecord, "%s eof with %d bytes", self.Path, len(self.pending))
			}
			return io.EOF
		}
		self.pending = append(self.pending, buf[:n]...)
		self.pending = parseRecords(self.pending, fun)
	}
	if len(self.pending) != 0 {
		return errors.Annotatef(ErrPartialRecord, "%s %d bytes", self.Path, len(self.pending))
	}
	return nil
}

// parseRecords consumes whole records, returns unconsumed tail.
func parseRecords(b []byte, fun func(inputevent.InputEvent)) []byte {
	r := bytes.NewReader(b)
	for r.Len() >= inputevent.EventSizeof {
		ie, err := inputevent.ReadOne(r)
		if err != nil {
			break
		}
		if ie.Type == EvKey {
			fun(ie)
		}
	}
	rest := b[len(b)-r.Len():]
	return append(b[:0], rest...)
}

func eventTime(ie *inputevent.InputEvent) time.Duration {
	return time.Duration(ie.Time.Sec)*time.Second + time.Duration(ie.Time.Usec)*time.Microsecond
}
