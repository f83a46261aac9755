// Package pidfile manages the per-language PID file of a running daemon.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Common errors
var (
	ErrNoPIDFile      = errors.New("no PID file found")
	ErrInvalidPID     = errors.New("invalid PID in file")
	ErrAlreadyRunning = errors.New("daemon already running")
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// File is a PID file at a fixed path.
type File struct {
	path string
}

// New returns a handle for the PID file at path.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the PID file location.
func (f *File) Path() string {
	return f.path
}

// Write creates the PID file with the given process ID.
// Creates parent directories if needed.
func (f *File) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.path), dirPerm); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	content := strconv.Itoa(pid) + "\n"
	if err := os.WriteFile(f.path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Read reads the PID from the file.
// Returns ErrNoPIDFile if the file doesn't exist and ErrInvalidPID if the
// content is not a positive integer.
func (f *File) Read() (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPIDFile
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrInvalidPID
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks whether the process named in the file is alive.
// With no PID file it returns (false, 0, nil); with a stale file it returns
// (false, pid, nil).
func (f *File) IsRunning() (bool, int, error) {
	pid, err := f.Read()
	if err != nil {
		if errors.Is(err, ErrNoPIDFile) {
			return false, 0, nil
		}
		return false, 0, err
	}

	alive, err := Alive(pid)
	return alive, pid, err
}

// CleanStale removes the PID file if its process is not running.
// Returns true if a stale PID file was removed.
func (f *File) CleanStale() (bool, error) {
	running, pid, err := f.IsRunning()
	if err != nil {
		return false, err
	}
	if running || pid == 0 {
		return false, nil
	}
	if err := f.Remove(); err != nil {
		return false, err
	}
	return true, nil
}

// Acquire records the current process in the file. It fails with
// ErrAlreadyRunning when another live process owns it; a stale file is replaced.
func (f *File) Acquire() error {
	running, pid, err := f.IsRunning()
	if err != nil && !errors.Is(err, ErrInvalidPID) {
		return err
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}
	return f.Write(os.Getpid())
}

// Alive reports whether a process with pid exists, using signal 0.
func Alive(pid int) (bool, error) {
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	case errors.Is(err, unix.EPERM):
		// Exists but belongs to another user.
		return true, nil
	default:
		return false, fmt.Errorf("check process: %w", err)
	}
}
