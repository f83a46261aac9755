// Package recognizer wraps the streaming speech engine behind small
// Model and Recognizer interfaces.
package recognizer

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNativeUnavailable is returned when the binary was built without the vosk tag.
	ErrNativeUnavailable = errors.New("recognizer: native vosk backend unavailable (build with -tags vosk)")
	// ErrModelMissing is returned when the language model directory does not exist.
	ErrModelMissing = errors.New("recognizer: language model not found")
	// ErrUnknownEngine is returned by Open for an unsupported engine name.
	ErrUnknownEngine = errors.New("recognizer: unknown engine")
)

// Model is a loaded language model. It is safe to create several
// recognizers from one model.
type Model interface {
	// NewRecognizer returns a recognizer for 16-bit mono PCM at sampleRate.
	// A non-empty grammar restricts decoding to the given vocabulary; its
	// format is passed through to the engine untouched.
	NewRecognizer(sampleRate int, grammar string) (Recognizer, error)
	Close() error
}

// Recognizer holds the decoding state of one audio stream. It must not be
// used from more than one goroutine at a time.
type Recognizer interface {
	// AcceptWaveform feeds a chunk of PCM and reports whether an utterance
	// boundary was reached.
	AcceptWaveform(chunk []byte) (bool, error)
	// Result returns the text of the utterance completed by the last boundary.
	Result() (string, error)
	// FinalResult flushes pending audio and returns its text. The recognizer
	// is ready for a new stream afterwards.
	FinalResult() (string, error)
	Close() error
}

// Open loads the model for engine. The stub engine ignores modelPath.
func Open(engine, modelPath string) (Model, error) {
	switch engine {
	case "stub":
		return NewStubModel(), nil
	case "vosk":
		if _, err := os.Stat(modelPath); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrModelMissing, modelPath, err)
		}
		return NewVoskModel(modelPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}
