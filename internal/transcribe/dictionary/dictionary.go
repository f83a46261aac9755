// Package dictionary loads per-file vocabulary sidecars.
package dictionary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the extension of a vocabulary sidecar file.
const Ext = ".dict"

// Loader consumes sidecars from the input directory.
type Loader struct {
	dir string
}

// NewLoader creates a Loader reading sidecars from inputDir.
func NewLoader(inputDir string) *Loader {
	return &Loader{dir: inputDir}
}

// SidecarPath returns the sidecar path for an input file name: the same base
// name with the extension replaced by Ext.
func SidecarPath(dir, inputName string) string {
	base := strings.TrimSuffix(inputName, filepath.Ext(inputName))
	return filepath.Join(dir, base+Ext)
}

// Load reads and deletes the sidecar belonging to inputName. The content is
// returned verbatim; ok is false when no sidecar exists.
func (l *Loader) Load(inputName string) (vocabulary string, ok bool, err error) {
	path := SidecarPath(l.dir, inputName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read dictionary: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return "", false, fmt.Errorf("remove dictionary: %w", err)
	}

	return string(data), true, nil
}
