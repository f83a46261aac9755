package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/ledger"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/logging"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/normalize"
)

const testRate = 8000

// writeWav writes a silent 16-bit mono waveform with the given number of frames.
func writeWav(path string, rate, frames int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fakeNormalizer stands in for ffmpeg. It writes a waveform of Frames frames
// to TmpDir and removes the input.
type fakeNormalizer struct {
	TmpDir string
	Frames int

	// Fail lists input names whose conversion fails; the input stays in place.
	Fail map[string]bool
	// NoOutput lists input names that are consumed without producing a waveform.
	NoOutput map[string]bool

	mu    sync.Mutex
	calls []string
}

func (n *fakeNormalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	name := filepath.Base(inputPath)
	n.mu.Lock()
	n.calls = append(n.calls, name)
	n.mu.Unlock()

	if n.Fail[name] {
		return "", &normalize.ConversionError{Path: inputPath, Err: errors.New("exit status 1")}
	}

	out := filepath.Join(n.TmpDir, strings.TrimSuffix(name, filepath.Ext(name))+normalize.WavExt)
	if !n.NoOutput[name] {
		if err := writeWav(out, testRate, n.Frames); err != nil {
			return "", err
		}
	}
	if err := os.Remove(inputPath); err != nil {
		return "", err
	}
	return out, nil
}

func (n *fakeNormalizer) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRecorder) Entries() []ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Entry(nil), r.entries...)
}

// workDirs creates input, output and tmp directories under a temp root.
func workDirs(t *testing.T) (root, in, out, tmp string) {
	t.Helper()
	root = t.TempDir()
	in = filepath.Join(root, "input")
	out = filepath.Join(root, "output")
	tmp = filepath.Join(root, "tmp")
	for _, d := range []string{in, out, tmp} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return root, in, out, tmp
}

func touch(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// memLogger keeps the messages of Error calls.
type memLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *memLogger) Info(string, ...logging.Field)  {}
func (l *memLogger) Debug(string, ...logging.Field) {}

func (l *memLogger) Error(msg string, err error, _ ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg+": "+err.Error())
}

func (l *memLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// brokenRecognizer fails every call.
type brokenRecognizer struct {
	finals int
}

func (r *brokenRecognizer) AcceptWaveform([]byte) (bool, error) {
	return false, errors.New("engine fault")
}

func (r *brokenRecognizer) Result() (string, error) {
	return "", errors.New("engine fault")
}

func (r *brokenRecognizer) FinalResult() (string, error) {
	r.finals++
	return "", errors.New("engine reset fault")
}

func (r *brokenRecognizer) Close() error { return nil }

// stuckWavWriter writes transcripts with the real writer and then replaces
// the temporary waveform with a non-empty directory, so it cannot be removed.
type stuckWavWriter struct {
	TranscriptWriter
	wav string
}

func (w *stuckWavWriter) Write(ctx context.Context, inputName, text string) (string, error) {
	out, err := w.TranscriptWriter.Write(ctx, inputName, text)
	if err != nil {
		return "", err
	}
	if err := os.Remove(w.wav); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(w.wav, "held"), 0755); err != nil {
		return "", err
	}
	return out, nil
}
