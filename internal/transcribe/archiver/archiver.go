// Package archiver moves consumed input files out of the input directory.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrSourceNotFound is returned when the source file does not exist.
var ErrSourceNotFound = errors.New("source file not found")

// FileArchiver moves files into a flat archive directory.
type FileArchiver struct {
	now func() time.Time
}

// NewFileArchiver creates a new FileArchiver.
func NewFileArchiver() *FileArchiver {
	return &FileArchiver{now: time.Now}
}

// Archive moves sourcePath into archiveDir, creating the directory if needed.
// The original name is kept unless a file of that name is already archived,
// in which case a -HHMMSS suffix is added. When a rename is not possible
// (e.g. across devices) the file is copied and the original deleted only
// after the copy succeeded.
func (a *FileArchiver) Archive(ctx context.Context, sourcePath, archiveDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrSourceNotFound
		}
		return err
	}

	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	destPath := a.destination(sourcePath, archiveDir)

	if err := os.Rename(sourcePath, destPath); err == nil {
		return nil
	}

	if err := copyFile(sourcePath, destPath, srcInfo.Mode()); err != nil {
		return fmt.Errorf("archive file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return os.Remove(sourcePath)
}

func (a *FileArchiver) destination(sourcePath, archiveDir string) string {
	baseName := filepath.Base(sourcePath)
	destPath := filepath.Join(archiveDir, baseName)

	if _, err := os.Stat(destPath); err == nil {
		ext := filepath.Ext(baseName)
		stem := strings.TrimSuffix(baseName, ext)
		destPath = filepath.Join(archiveDir, fmt.Sprintf("%s-%s%s", stem, a.now().Format("150405"), ext))
	}
	return destPath
}

// copyFile copies src to dst, preserving the file mode.
func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	return dstFile.Sync()
}
