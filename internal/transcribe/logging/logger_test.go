package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, cfg Config) *FileLogger {
	t.Helper()
	if cfg.LogDir == "" {
		cfg.LogDir = t.TempDir()
	}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// fixedClock makes the shared sink report t as the current time.
func fixedClock(l *FileLogger, t time.Time) {
	l.sink.now = func() time.Time { return t }
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestNew_OpensDatedFileUnderPrefix(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l := newTestLogger(t, Config{LogDir: dir, Prefix: "ru_daemon"})

	today := time.Now().UTC().Format("2006-01-02")
	want := filepath.Join(dir, "ru_daemon-"+today+".log")
	if l.LogPath() != want {
		t.Errorf("LogPath = %q, want %q", l.LogPath(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestNew_FailsWhenLogDirIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(Config{LogDir: filepath.Join(blocker, "logs")}); err == nil {
		t.Fatal("expected an error for a log dir below a regular file")
	}
}

func TestFileLogger_ComponentsShareOneFile(t *testing.T) {
	root := newTestLogger(t, Config{Prefix: "en_daemon", Component: "daemon"})
	pipeline := root.WithComponent("pipeline")
	normalize := root.WithComponent("normalize")

	root.Info("daemon launched")
	normalize.Debug("dropped")
	normalize.Error("conversion failed", errors.New("exit status 1"), String("file", "en_a.ogg"))
	pipeline.Info("file transcribed", String("file", "en_b.ogg"))

	if files := logFiles(t, root.sink.dir); len(files) != 1 {
		t.Fatalf("log files = %v, want one shared file", files)
	}
	if pipeline.LogPath() != root.LogPath() {
		t.Errorf("component LogPath = %q, root = %q", pipeline.LogPath(), root.LogPath())
	}

	lines := strings.Split(strings.TrimSpace(readFile(t, root.LogPath())), "\n")
	want := []string{
		"INFO  [daemon] daemon launched",
		`ERROR [normalize] conversion failed error="exit status 1" file=en_a.ogg`,
		"INFO  [pipeline] file transcribed file=en_b.ogg",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %d lines", lines, len(want))
	}
	for i, line := range lines {
		if !strings.HasSuffix(line, want[i]) {
			t.Errorf("line %d = %q, want suffix %q", i, line, want[i])
		}
	}
}

func TestFileLogger_ComponentInheritsMinLevel(t *testing.T) {
	cfg := Config{Prefix: "ru_daemon"}.WithMinLevel(LevelError)
	root := newTestLogger(t, cfg)
	child := root.WithComponent("pipeline")

	child.Info("not written")
	child.Error("written", errors.New("boom"))

	content := readFile(t, root.LogPath())
	if strings.Contains(content, "not written") {
		t.Errorf("info line passed an error threshold:\n%s", content)
	}
	if !strings.Contains(content, "[pipeline] written error=boom") {
		t.Errorf("error line missing:\n%s", content)
	}
}

func TestFileLogger_DebugEnabledByWithMinLevel(t *testing.T) {
	l := newTestLogger(t, Config{Prefix: "sttd"}.WithMinLevel(LevelDebug))

	l.Debug("chunk", Int("bytes", 4000))

	if content := readFile(t, l.LogPath()); !strings.Contains(content, "DEBUG chunk bytes=4000") {
		t.Errorf("debug line missing:\n%s", content)
	}
}

func TestFileLogger_RotatesAtUTCMidnightForAllComponents(t *testing.T) {
	root := newTestLogger(t, Config{Prefix: "ru_daemon", Component: "daemon"})
	pipeline := root.WithComponent("pipeline")
	dir := root.sink.dir

	fixedClock(root, time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))
	pipeline.Info("late")

	fixedClock(root, time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC))
	pipeline.Info("early")
	root.Info("still here")

	first := filepath.Join(dir, "ru_daemon-2026-03-01.log")
	second := filepath.Join(dir, "ru_daemon-2026-03-02.log")

	if got := readFile(t, first); !strings.Contains(got, "[pipeline] late") || strings.Contains(got, "early") {
		t.Errorf("first day log:\n%s", got)
	}
	got := readFile(t, second)
	for _, want := range []string{"[pipeline] early", "[daemon] still here"} {
		if !strings.Contains(got, want) {
			t.Errorf("second day log missing %q:\n%s", want, got)
		}
	}
	if root.LogPath() != second || pipeline.LogPath() != second {
		t.Errorf("LogPath after rotation = %q / %q, want %q", root.LogPath(), pipeline.LogPath(), second)
	}
}

func TestFileLogger_WritesAfterCloseGoOnlyToConsole(t *testing.T) {
	var console bytes.Buffer
	root := newTestLogger(t, Config{Prefix: "en_daemon", Component: "daemon", Console: &console})
	child := root.WithComponent("pipeline")
	path := root.LogPath()

	child.Info("before close")
	if err := root.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	child.Info("after close")
	root.Error("terminated", errors.New("input directory missing"))

	if err := root.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	file := readFile(t, path)
	if !strings.Contains(file, "before close") {
		t.Errorf("file missing line written before Close:\n%s", file)
	}
	if strings.Contains(file, "after close") || strings.Contains(file, "terminated") {
		t.Errorf("file received lines after Close:\n%s", file)
	}

	mirror := console.String()
	for _, want := range []string{
		"[pipeline] before close",
		"[pipeline] after close",
		`[daemon] terminated error="input directory missing"`,
	} {
		if !strings.Contains(mirror, want) {
			t.Errorf("console missing %q:\n%s", want, mirror)
		}
	}
}

func TestNew_RemovesLogsPastRetention(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	day := func(n int) string { return now.AddDate(0, 0, -n).Format("2006-01-02") }

	stale := filepath.Join(dir, "ru_daemon-"+day(10)+".log")
	recent := filepath.Join(dir, "ru_daemon-"+day(3)+".log")
	otherLang := filepath.Join(dir, "en_daemon-"+day(10)+".log")
	undated := filepath.Join(dir, "ru_daemon-latest.log")
	for _, p := range []string{stale, recent, otherLang, undated} {
		if err := os.WriteFile(p, []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	newTestLogger(t, Config{LogDir: dir, Prefix: "ru_daemon", RetentionDays: 7})

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("log older than the retention window should be removed")
	}
	for _, kept := range []string{recent, otherLang, undated} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("%s should be kept: %v", filepath.Base(kept), err)
		}
	}
}

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))

	got := formatLine(ts, LevelError, "pipeline", "file failed", errors.New("exit status 1"), []Field{
		String("file", "ru_a.mp3"),
		Duration("elapsed", 1500*time.Millisecond),
		Float64("ratio", 0.5),
		Bool("dictionary", true),
		Int64("bytes", 96000),
		String("text", "два слова"),
		String("output", ""),
	})

	want := `2026-03-01T09:00:00Z ERROR [pipeline] file failed error="exit status 1" ` +
		`file=ru_a.mp3 elapsed=1.5s ratio=0.500 dictionary=true bytes=96000 text="два слова" output=""` + "\n"
	if got != want {
		t.Errorf("formatLine =\n%q\nwant\n%q", got, want)
	}

	if got := formatLine(ts, LevelInfo, "", "polling", nil, nil); got != "2026-03-01T09:00:00Z INFO  polling\n" {
		t.Errorf("formatLine without component = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: " DEBUG ", want: LevelDebug},
		{in: "info", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "Error", want: LevelError},
		{in: "warn", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	if LevelDebug.String() != "DEBUG" || LevelInfo.String() != "INFO" || LevelError.String() != "ERROR" {
		t.Error("unexpected level names")
	}
	if Level(42).String() != "UNKNOWN" {
		t.Errorf("Level(42) = %q", Level(42).String())
	}
}
