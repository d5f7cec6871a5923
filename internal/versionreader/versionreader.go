// Package versionreader implements spec §4.A: given a model's base
// path, enumerate the numeric version directories present on disk.
// Adapted from the teacher's internal/registry/loader.go directory scan,
// generalized from "scan for *.gguf files" to "scan for positive
// integer-named subdirectories".
package versionreader

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/modeld/fleet/internal/fsadapter"
)

// ErrPathInvalid mirrors spec §4.A's PATH_INVALID outcome.
var ErrPathInvalid = fsadapter.ErrPathInvalid

// Reader is pure with respect to its input path: it never mutates the
// filesystem, only lists it.
type Reader struct {
	fs  fsadapter.FS
	log zerolog.Logger
}

// New constructs a Reader over the given filesystem adapter.
func New(fs fsadapter.FS, log zerolog.Logger) *Reader {
	return &Reader{fs: fs, log: log.With().Str("component", "versionreader").Logger()}
}

// Versions returns the set of positive-integer version directory names
// present under basePath. A base path that cannot be statted yields
// ErrPathInvalid. An empty but valid directory yields the empty set,
// which is not an error (spec §4.A).
func (r *Reader) Versions(basePath string) ([]int, error) {
	if _, err := r.fs.Stat(basePath); err != nil {
		if errors.Is(err, fsadapter.ErrPathInvalid) || errors.Is(err, ErrPathInvalid) {
			return nil, ErrPathInvalid
		}
		return nil, err
	}
	names, err := r.fs.List(basePath)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(names))
	for _, name := range names {
		v, err := strconv.Atoi(name)
		if err != nil {
			r.log.Warn().Str("base_path", basePath).Str("entry", name).Msg("ignoring non-numeric version directory")
			continue
		}
		if v <= 0 {
			r.log.Warn().Str("base_path", basePath).Int("version", v).Msg("ignoring non-positive version directory")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
