// Package normalize converts arbitrary audio containers into the canonical
// mono PCM waveform the decoder expects, by handing them to ffmpeg.
package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/logging"
)

// WavExt is the extension of normalized waveform files.
const WavExt = ".wav"

// ErrEmptyCommand is returned when the converter command line is blank.
var ErrEmptyCommand = errors.New("normalize: converter command is empty")

// ConversionError reports a converter run that did not produce a usable waveform.
type ConversionError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("convert %s: %v", e.Path, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Archiver moves a consumed input elsewhere instead of deleting it.
type Archiver interface {
	Archive(ctx context.Context, sourcePath, archiveDir string) error
}

// Options configures an FFmpegNormalizer.
type Options struct {
	// Command is the converter executable and its leading flags, split with shell quoting rules.
	Command string
	// TmpDir receives the normalized <base>.wav files.
	TmpDir string
	// SampleRate is the target PCM sample rate.
	SampleRate int
	// Strict turns converter failures and malformed output into a ConversionError
	// and keeps the source file.
	Strict bool
	// Archiver, when set together with ArchiveDir, receives consumed inputs.
	Archiver   Archiver
	ArchiveDir string
	Logger     logging.Logger
}

// FFmpegNormalizer runs one converter process per input file.
type FFmpegNormalizer struct {
	command []string
	opts    Options
	logger  logging.Logger
}

// NewFFmpegNormalizer parses the converter command line and returns a normalizer.
func NewFFmpegNormalizer(opts Options) (*FFmpegNormalizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse converter command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	return &FFmpegNormalizer{command: args, opts: opts, logger: logger}, nil
}

// OutputPath returns the temp-area waveform path for an input file.
func (n *FFmpegNormalizer) OutputPath(inputPath string) string {
	name := filepath.Base(inputPath)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(n.opts.TmpDir, base+WavExt)
}

// Normalize converts inputPath into a mono waveform at the configured sample
// rate and consumes the input. In strict mode a failed conversion returns a
// *ConversionError and leaves the input in place; otherwise the input is
// consumed regardless of the converter's exit status.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	outputPath := n.OutputPath(inputPath)

	args := append([]string{}, n.command[1:]...)
	args = append(args,
		"-i", inputPath,
		"-y",
		"-ac", "1",
		"-ar", strconv.Itoa(n.opts.SampleRate),
		outputPath,
	)

	cmd := exec.CommandContext(ctx, n.command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	stderrText := strings.TrimSpace(stderr.String())

	if n.opts.Strict {
		if runErr != nil {
			// The converter may have written part of the waveform before failing.
			os.Remove(outputPath)
			return "", &ConversionError{Path: inputPath, Stderr: stderrText, Err: runErr}
		}
		if err := Verify(outputPath, n.opts.SampleRate); err != nil {
			os.Remove(outputPath)
			return "", &ConversionError{Path: inputPath, Stderr: stderrText, Err: err}
		}
	} else if runErr != nil {
		n.logger.Error("converter failed, consuming input anyway", runErr,
			logging.String("file", inputPath),
			logging.String("stderr", stderrText),
		)
	}

	if err := n.consume(ctx, inputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (n *FFmpegNormalizer) consume(ctx context.Context, inputPath string) error {
	if n.opts.Archiver != nil && n.opts.ArchiveDir != "" {
		if err := n.opts.Archiver.Archive(ctx, inputPath, n.opts.ArchiveDir); err != nil {
			return fmt.Errorf("archive input: %w", err)
		}
		return nil
	}
	if err := os.Remove(inputPath); err != nil {
		return fmt.Errorf("remove input: %w", err)
	}
	return nil
}
