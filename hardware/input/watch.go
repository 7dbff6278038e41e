package input

import (
	"bytes"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// SentinelName is created in a watch directory made by us,
// so the directory is not empty and some tools don't remove it.
const SentinelName = ".buttond-watch"

const watchMask = unix.IN_CREATE | unix.IN_MOVED_TO | unix.IN_DELETE | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF

type WatchEvent struct {
	Wd   int
	Mask uint32
	Name string
}

func (e *WatchEvent) Created() bool { return e.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 }
func (e *WatchEvent) Deleted() bool { return e.Mask&unix.IN_DELETE != 0 }

// DirGone means watch descriptor is no longer valid and must be added again.
func (e *WatchEvent) DirGone() bool {
	return e.Mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_IGNORED) != 0
}

// Watcher is the one inotify instance of the process, created on first Add.
type Watcher struct {
	fd  int
	buf []byte
}

func NewWatcher() *Watcher { return &Watcher{fd: -1} }

func (self *Watcher) Fd() int { return self.fd }

func (self *Watcher) init() error {
	if self.fd >= 0 {
		return nil
	}
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return errors.Annotate(err, "inotify init")
	}
	self.fd = fd
	self.buf = make([]byte, 4096)
	return nil
}

// Add watches dir for create/delete, creating dir and a sentinel file
// if dir is missing. Returns watch descriptor.
func (self *Watcher) Add(dir string) (int, error) {
	if err := self.init(); err != nil {
		return -1, err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return -1, errors.Annotatef(err, "create watch dir %s", dir)
		}
		f, err := os.OpenFile(filepath.Join(dir, SentinelName), os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return -1, errors.Annotatef(err, "create sentinel in %s", dir)
		}
		f.Close()
	}
	wd, err := unix.InotifyAddWatch(self.fd, dir, watchMask)
	if err != nil {
		return -1, errors.Annotatef(err, "inotify add watch %s", dir)
	}
	return wd, nil
}

// Read drains pending notifications.
func (self *Watcher) Read() ([]WatchEvent, error) {
	var events []WatchEvent
	for {
		n, err := unix.Read(self.fd, self.buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return events, nil
		}
		if err != nil {
			return events, errors.Annotate(err, "inotify read")
		}
		if n <= 0 {
			return events, nil
		}
		events, err = parseInotify(self.buf[:n], events)
		if err != nil {
			return events, err
		}
	}
}

func (self *Watcher) Close() error {
	if self.fd < 0 {
		return nil
	}
	err := unix.Close(self.fd)
	self.fd = -1
	return err
}

func parseInotify(b []byte, events []WatchEvent) ([]WatchEvent, error) {
	off := 0
	for off+unix.SizeofInotifyEvent <= len(b) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&b[off]))
		end := off + unix.SizeofInotifyEvent + int(raw.Len)
		if end > len(b) {
			return events, errors.Errorf("inotify event size=%d exceeds read=%d", end, len(b))
		}
		name := b[off+unix.SizeofInotifyEvent : end]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		events = append(events, WatchEvent{Wd: int(raw.Wd), Mask: raw.Mask, Name: string(name)})
		off = end
	}
	if off != len(b) {
		return events, errors.Errorf("inotify read has weird size %d/%d", off, len(b))
	}
	return events, nil
}
