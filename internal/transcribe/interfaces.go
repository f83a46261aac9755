package transcribe

import (
	"context"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/ledger"
)

// Lister lists candidate file names in the input directory.
type Lister interface {
	ListCandidates() ([]string, error)
}

// Normalizer converts an input file into the canonical waveform and
// consumes the input. It returns the waveform path.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) (string, error)
}

// DictionaryLoader consumes the vocabulary sidecar of an input file.
type DictionaryLoader interface {
	Load(inputName string) (vocabulary string, ok bool, err error)
}

// TranscriptWriter persists the transcript of an input file.
type TranscriptWriter interface {
	Write(ctx context.Context, inputName, text string) (string, error)
}

// Stabilizer waits for a file to finish writing.
type Stabilizer interface {
	WaitForStable(ctx context.Context, path string) error
}

// Recorder stores the outcome of every processed file.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}
