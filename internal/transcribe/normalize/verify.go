package normalize

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Verification errors
var (
	ErrNotWaveform     = errors.New("output is not a RIFF/WAVE file")
	ErrNotMono         = errors.New("output is not mono")
	ErrWrongSampleRate = errors.New("output sample rate does not match")
)

// Info describes a waveform file.
type Info struct {
	Channels   int
	SampleRate int
	BitDepth   int
	Duration   time.Duration
}

// Inspect reads the header of the waveform at path.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, ErrNotWaveform
	}

	info := Info{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
	}
	if d, err := dec.Duration(); err == nil {
		info.Duration = d
	}
	return info, nil
}

// Verify checks that path is a mono waveform at sampleRate.
func Verify(path string, sampleRate int) error {
	info, err := Inspect(path)
	if err != nil {
		return err
	}
	if info.Channels != 1 {
		return fmt.Errorf("%w: %d channels", ErrNotMono, info.Channels)
	}
	if info.SampleRate != sampleRate {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongSampleRate, info.SampleRate, sampleRate)
	}
	return nil
}
