package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// Near the maximum PID on most Linux systems, almost certainly unused.
const stalePID = 4194300

func testFile(t *testing.T) *File {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "data", "sttd-ru.pid"))
}

func TestWriteAndRead(t *testing.T) {
	f := testFile(t)

	if err := f.Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	pid, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if pid != 12345 {
		t.Errorf("expected PID 12345, got %d", pid)
	}

	info, err := os.Stat(f.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected permissions 644, got %o", info.Mode().Perm())
	}
}

func TestReadNoPIDFile(t *testing.T) {
	if _, err := testFile(t).Read(); err != ErrNoPIDFile {
		t.Errorf("expected ErrNoPIDFile, got: %v", err)
	}
}

func TestReadInvalidContent(t *testing.T) {
	for _, content := range []string{"not-a-number\n", "-1\n", "0", ""} {
		f := testFile(t)
		os.MkdirAll(filepath.Dir(f.Path()), 0755)
		os.WriteFile(f.Path(), []byte(content), 0644)

		if _, err := f.Read(); err != ErrInvalidPID {
			t.Errorf("content %q: expected ErrInvalidPID, got: %v", content, err)
		}
	}
}

func TestRemove(t *testing.T) {
	f := testFile(t)
	f.Write(12345)

	if err := f.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed")
	}
	if err := f.Remove(); err != nil {
		t.Errorf("expected no error removing nonexistent file, got: %v", err)
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	f := testFile(t)
	dir := filepath.Dir(f.Path())

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected data directory to not exist initially")
	}
	if err := f.Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("expected data directory to be created")
	}
}

func TestIsRunningWithCurrentProcess(t *testing.T) {
	f := testFile(t)
	f.Write(os.Getpid())

	running, pid, err := f.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if !running {
		t.Error("expected process to be running")
	}
	if pid != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), pid)
	}
}

func TestIsRunningWithNoPIDFile(t *testing.T) {
	running, pid, err := testFile(t).IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running || pid != 0 {
		t.Errorf("expected (false, 0), got (%v, %d)", running, pid)
	}
}

func TestIsRunningWithStalePID(t *testing.T) {
	f := testFile(t)
	os.MkdirAll(filepath.Dir(f.Path()), 0755)
	os.WriteFile(f.Path(), []byte(strconv.Itoa(stalePID)+"\n"), 0644)

	running, pid, err := f.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running {
		t.Skip("stale PID is unexpectedly running, skipping test")
	}
	if pid != stalePID {
		t.Errorf("expected PID %d, got %d", stalePID, pid)
	}
}

func TestCleanStaleRemovesFile(t *testing.T) {
	f := testFile(t)
	f.Write(stalePID)

	if alive, _ := Alive(stalePID); alive {
		t.Skip("stale PID is unexpectedly running, skipping test")
	}

	removed, err := f.CleanStale()
	if err != nil {
		t.Fatalf("CleanStale failed: %v", err)
	}
	if !removed {
		t.Error("expected stale PID file to be removed")
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed")
	}
}

func TestCleanStaleDoesNotRemoveRunning(t *testing.T) {
	f := testFile(t)
	f.Write(os.Getpid())

	removed, err := f.CleanStale()
	if err != nil {
		t.Fatalf("CleanStale failed: %v", err)
	}
	if removed {
		t.Error("expected running process PID file to not be removed")
	}
	if _, err := os.Stat(f.Path()); os.IsNotExist(err) {
		t.Error("expected PID file to still exist")
	}
}

func TestAcquire_WritesCurrentPID(t *testing.T) {
	f := testFile(t)

	if err := f.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pid, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), pid)
	}
}

func TestAcquire_ReplacesStaleFile(t *testing.T) {
	f := testFile(t)
	f.Write(stalePID)

	if alive, _ := Alive(stalePID); alive {
		t.Skip("stale PID is unexpectedly running, skipping test")
	}
	if err := f.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if pid, _ := f.Read(); pid != os.Getpid() {
		t.Errorf("expected stale PID to be replaced, got %d", pid)
	}
}

func TestAcquire_RefusesLiveOwner(t *testing.T) {
	f := testFile(t)
	// PID 1 always exists.
	f.Write(1)

	if err := f.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got: %v", err)
	}
}
