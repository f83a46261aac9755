package transcribe

import (
	"errors"
	"fmt"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/decoder"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/watcher"
)

// ErrInputDirMissing is returned when the input directory disappears while
// the daemon is polling. It is fatal under every failure policy.
var ErrInputDirMissing = watcher.ErrInputDirMissing

// Processing stages, also used as failure reasons in metrics and the ledger.
const (
	StageStabilize  = "stabilize"
	StageConvert    = "conversion"
	StageDictionary = "dictionary"
	StageRecognizer = "recognizer"
	StageDecode     = "decode"
	StageWrite      = "write"
)

// FileError is a failure while processing one input file.
type FileError struct {
	File  string
	Stage string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// IsStreamFatal reports whether err is a stream-level or container-format
// failure: the normalized waveform was missing or shorter than its header.
func IsStreamFatal(err error) bool {
	return errors.Is(err, decoder.ErrStreamMissing) || errors.Is(err, decoder.ErrTruncatedContainer)
}
