package recognizer

import (
	"fmt"
	"sync/atomic"
)

// DefaultStubBoundarySeconds is how much audio a stub recognizer accepts
// before it reports an utterance boundary.
const DefaultStubBoundarySeconds = 2

// StubModel produces deterministic placeholder transcripts without a speech
// engine. Each segment is rendered as "[<seconds>s]", prefixed with the
// grammar when one was supplied.
type StubModel struct {
	BoundarySeconds int

	created atomic.Int64
}

// NewStubModel returns a StubModel with the default boundary spacing.
func NewStubModel() *StubModel {
	return &StubModel{BoundarySeconds: DefaultStubBoundarySeconds}
}

// Created reports how many recognizers this model has produced.
func (m *StubModel) Created() int64 {
	return m.created.Load()
}

// NewRecognizer implements Model.
func (m *StubModel) NewRecognizer(sampleRate int, grammar string) (Recognizer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("recognizer: invalid sample rate %d", sampleRate)
	}
	m.created.Add(1)

	seconds := m.BoundarySeconds
	if seconds <= 0 {
		seconds = DefaultStubBoundarySeconds
	}
	return &stubRecognizer{
		bytesPerSecond: sampleRate * 2,
		boundaryBytes:  sampleRate * 2 * seconds,
		grammar:        grammar,
	}, nil
}

// Close implements Model.
func (m *StubModel) Close() error { return nil }

type stubRecognizer struct {
	bytesPerSecond int
	boundaryBytes  int
	grammar        string

	pending int
	last    string
}

func (r *stubRecognizer) AcceptWaveform(chunk []byte) (bool, error) {
	r.pending += len(chunk)
	if r.pending < r.boundaryBytes {
		return false, nil
	}
	r.last = r.render(r.pending)
	r.pending = 0
	return true, nil
}

func (r *stubRecognizer) Result() (string, error) {
	text := r.last
	r.last = ""
	return text, nil
}

func (r *stubRecognizer) FinalResult() (string, error) {
	if r.pending == 0 {
		return "", nil
	}
	text := r.render(r.pending)
	r.pending = 0
	r.last = ""
	return text, nil
}

func (r *stubRecognizer) Close() error { return nil }

func (r *stubRecognizer) render(n int) string {
	text := fmt.Sprintf("[%.2fs]", float64(n)/float64(r.bytesPerSecond))
	if r.grammar != "" {
		text = r.grammar + " " + text
	}
	return text
}
