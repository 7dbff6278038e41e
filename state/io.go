package state

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// FullReader abstracts config storage, tests use MockFullReader.
type FullReader interface {
	Normalize(name string) string
	// nil,nil = not found
	ReadAll(name string) ([]byte, error)
}

// OsFullReader resolves relative names against directory of the main config file,
// so includes work regardless of working directory.
type OsFullReader struct {
	base string
}

func NewOsFullReader(base string) *OsFullReader {
	self := &OsFullReader{base: filepath.Clean(base)}
	_ = self.SetBase(base)
	return self
}

func (self *OsFullReader) SetBase(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Annotatef(err, "config base dir=%s", dir)
	}
	self.base = abs
	return nil
}

func (self *OsFullReader) Normalize(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(self.base, name)
}

func (*OsFullReader) ReadAll(path string) ([]byte, error) {
	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, errors.Annotatef(err, "read %s", path)
}

type MockFullReader struct {
	Map map[string]string
}

func NewMockFullReader(sources map[string]string) *MockFullReader {
	return &MockFullReader{Map: sources}
}

func (self *MockFullReader) Normalize(name string) string { return filepath.Clean(name) }

func (self *MockFullReader) ReadAll(name string) ([]byte, error) {
	if s, ok := self.Map[name]; ok {
		return []byte(s), nil
	}
	return nil, nil
}
