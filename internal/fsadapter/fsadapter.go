// Package fsadapter implements the filesystem collaborator required by
// spec §6: list/stat/open against a model repository path. Only the
// local-disk implementation lives here; cloud object-store schemes are
// pluggable but out of scope (spec §1).
package fsadapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathInvalid is returned when the base path cannot be statted.
var ErrPathInvalid = errors.New("path invalid")

// FS is the three-operation contract spec §6 requires of a filesystem
// adapter. Path schemes and their credential contracts are pluggable at
// the caller; this package only implements the "local" scheme.
type FS interface {
	List(path string) ([]string, error)
	Stat(path string) (os.FileInfo, error)
	Open(path string) ([]byte, error)
}

// Local is the local-disk FS implementation.
type Local struct{}

// NewLocal constructs a Local filesystem adapter.
func NewLocal() *Local { return &Local{} }

// ExpandHome expands a leading '~' to the user's home directory,
// adapted from the teacher's fsutil.ExpandHome.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists reports whether path exists, adapted from fsutil.PathExists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

func (l *Local) List(path string) ([]string, error) {
	base, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathInvalid, path)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (l *Local) Stat(path string) (os.FileInfo, error) {
	base, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathInvalid, path)
		}
		return nil, err
	}
	return fi, nil
}

func (l *Local) Open(path string) ([]byte, error) {
	base, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathInvalid, path)
		}
		return nil, err
	}
	return b, nil
}
