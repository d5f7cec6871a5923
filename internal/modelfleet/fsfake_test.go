package modelfleet

import (
	"os"
	"time"

	"github.com/modeld/fleet/internal/fsadapter"
)

// fakeFS is a minimal in-memory fsadapter.FS for tests: dirs maps a
// base path to the version-directory names List should report.
type fakeFS struct {
	dirs map[string][]string
}

func (f *fakeFS) Stat(path string) (os.FileInfo, error) {
	if _, ok := f.dirs[path]; !ok {
		return nil, fsadapter.ErrPathInvalid
	}
	return fakeFileInfo(path), nil
}

func (f *fakeFS) List(path string) ([]string, error) {
	names, ok := f.dirs[path]
	if !ok {
		return nil, fsadapter.ErrPathInvalid
	}
	return names, nil
}

func (f *fakeFS) Open(string) ([]byte, error) { return nil, nil }

type fakeFileInfo string

func (fi fakeFileInfo) Name() string       { return string(fi) }
func (fi fakeFileInfo) Size() int64        { return 0 }
func (fi fakeFileInfo) Mode() os.FileMode  { return os.ModeDir }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return true }
func (fi fakeFileInfo) Sys() any           { return nil }
