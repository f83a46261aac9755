// Package decoder runs the streaming recognition loop over a normalized waveform.
package decoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/recognizer"
)

const (
	// HeaderSize is the canonical waveform header length. It is skipped, not parsed.
	HeaderSize = 44
	// ChunkSize is the number of PCM bytes fed to the recognizer per call.
	ChunkSize = 4000
)

var (
	// ErrStreamMissing is returned when the normalized waveform cannot be found.
	ErrStreamMissing = errors.New("normalized stream missing")
	// ErrTruncatedContainer is returned when the waveform is shorter than its header.
	ErrTruncatedContainer = errors.New("waveform container truncated")
)

// Result is the outcome of decoding one stream.
type Result struct {
	Text string
	// Segments lists the recognized texts in the order produced; the last
	// entry is always the final result.
	Segments []string
	// Bytes is the number of PCM payload bytes fed to the recognizer.
	Bytes int64
}

// DecodeFile opens path and decodes it with rec.
func DecodeFile(path string, rec recognizer.Recognizer) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %w", ErrStreamMissing, err)
		}
		return Result{}, fmt.Errorf("open stream: %w", err)
	}
	defer f.Close()

	return Decode(f, rec)
}

// Decode skips the header, feeds the payload to rec in ChunkSize pieces and
// collects one segment per utterance boundary plus the final result. The
// segments are joined with single spaces.
func Decode(r io.Reader, rec recognizer.Recognizer) (Result, error) {
	if _, err := io.CopyN(io.Discard, r, HeaderSize); err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, ErrTruncatedContainer
		}
		return Result{}, fmt.Errorf("skip header: %w", err)
	}

	var res Result
	buf := make([]byte, ChunkSize)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			res.Bytes += int64(n)
			boundary, acceptErr := rec.AcceptWaveform(buf[:n])
			if acceptErr != nil {
				return res, fmt.Errorf("accept waveform: %w", acceptErr)
			}
			if boundary {
				text, resultErr := rec.Result()
				if resultErr != nil {
					return res, resultErr
				}
				res.Segments = append(res.Segments, text)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read stream: %w", err)
		}
	}

	final, err := rec.FinalResult()
	if err != nil {
		return res, err
	}
	res.Segments = append(res.Segments, final)
	res.Text = strings.Join(res.Segments, " ")
	return res, nil
}
