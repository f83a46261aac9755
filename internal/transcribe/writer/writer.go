// Package writer persists transcripts and removes consumed temp files.
package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptExt is the extension of transcript files.
const TranscriptExt = ".txt"

// Writer saves transcripts into the output directory.
type Writer struct {
	dir string
}

// New creates a Writer for outputDir.
func New(outputDir string) *Writer {
	return &Writer{dir: outputDir}
}

// Path returns the transcript path for an input file name.
func (w *Writer) Path(inputName string) string {
	name := filepath.Base(inputName)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(w.dir, base+TranscriptExt)
}

// Write stores text verbatim as <base>.txt, replacing any existing transcript
// of the same name, and returns the path written.
func (w *Writer) Write(ctx context.Context, inputName, text string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if w.dir == "" {
		return "", fmt.Errorf("output directory is required")
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := w.Path(inputName)
	if err := os.WriteFile(outputPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	return outputPath, nil
}

// RemoveIfExists deletes path. A missing file is not an error, so repeated
// calls are no-ops.
func RemoveIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
