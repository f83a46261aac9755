// Package watcher discovers candidate input files for the transcription daemon.
package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/dictionary"
)

// ErrInputDirMissing is returned when the input directory is gone at listing time.
var ErrInputDirMissing = errors.New("input directory missing")

// Lister lists the input directory once per poll cycle.
type Lister struct {
	dir string
}

// NewLister creates a Lister for dir.
func NewLister(dir string) *Lister {
	return &Lister{dir: dir}
}

// ListCandidates returns the names of the regular entries present in the
// input directory, in directory listing order. It has no side effects.
func (l *Lister) ListCandidates() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInputDirMissing, l.dir, err)
		}
		return nil, fmt.Errorf("list input directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Eligible reports whether name belongs to the daemon serving lang: it must
// start with the language code and must not be a dictionary sidecar.
func Eligible(name, lang string) bool {
	if !strings.HasPrefix(name, lang) {
		return false
	}
	return filepath.Ext(name) != dictionary.Ext
}
