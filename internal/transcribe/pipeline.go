package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/decoder"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/ledger"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/logging"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/metrics"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/recognizer"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/watcher"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/writer"
)

// PipelineConfig holds the settings the pipeline needs from Config.
type PipelineConfig struct {
	Language      string
	SampleRate    int
	InputDir      string
	FailurePolicy string
}

// Components are the collaborators of a Pipeline. Stabilizer, Ledger,
// Metrics and Logger are optional.
type Components struct {
	Lister            Lister
	Normalizer        Normalizer
	Dictionary        DictionaryLoader
	Model             recognizer.Model
	DefaultRecognizer recognizer.Recognizer
	Writer            TranscriptWriter
	Stabilizer        Stabilizer
	Ledger            Recorder
	Metrics           *metrics.Metrics
	Logger            logging.Logger
}

// FileResult describes one transcribed file.
type FileResult struct {
	File       string
	Output     string
	Text       string
	Dictionary bool
	Bytes      int64
	Elapsed    time.Duration
}

// fileStamp identifies an unchanged file across poll cycles.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// Pipeline processes the eligible files of one poll cycle, strictly one at
// a time. It is not safe for concurrent use.
type Pipeline struct {
	cfg PipelineConfig
	c   Components
	log logging.Logger

	// failed remembers inputs that failed and stayed in place, so they are
	// not retried until they change.
	failed map[string]fileStamp
	now    func() time.Time
}

// NewPipeline wires the components into a Pipeline.
func NewPipeline(cfg PipelineConfig, c Components) *Pipeline {
	if c.Logger == nil {
		c.Logger = logging.Nop{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New(cfg.Language)
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyIsolate
	}
	return &Pipeline{
		cfg:    cfg,
		c:      c,
		log:    c.Logger,
		failed: make(map[string]fileStamp),
		now:    time.Now,
	}
}

// RunCycle lists the input directory once and processes every eligible
// file in listing order. It returns the number of transcripts written.
//
// A listing failure is always returned. A per-file failure is logged and
// skipped, except that stream-level failures are returned under the
// terminate policy. When ctx is cancelled the cycle stops after the file in
// progress and returns without error.
func (p *Pipeline) RunCycle(ctx context.Context) (int, error) {
	names, err := p.c.Lister.ListCandidates()
	if err != nil {
		return 0, err
	}
	p.c.Metrics.PollCycles.Inc()
	defer p.c.Metrics.LastCycleTimestamp.SetToCurrentTime()

	p.prune(names)

	processed := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return processed, nil
		}
		if !watcher.Eligible(name, p.cfg.Language) {
			continue
		}
		if p.skip(name) {
			continue
		}
		p.c.Metrics.FilesDiscovered.Inc()

		if _, err := p.ProcessFile(ctx, name); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return processed, nil
			}
			if p.cfg.FailurePolicy == PolicyTerminate && IsStreamFatal(err) {
				return processed, err
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// ProcessFile runs normalize, dictionary lookup, decode, write and cleanup
// for one input file. Once conversion starts the file is processed to
// completion even if ctx is cancelled.
func (p *Pipeline) ProcessFile(ctx context.Context, name string) (FileResult, error) {
	start := p.now()
	inputPath := filepath.Join(p.cfg.InputDir, name)

	if _, err := os.Stat(inputPath); errors.Is(err, os.ErrNotExist) {
		p.log.Debug("input vanished before processing", logging.String("file", name))
		return FileResult{}, nil
	}

	if p.c.Stabilizer != nil {
		if err := p.c.Stabilizer.WaitForStable(ctx, inputPath); err != nil {
			if ctx.Err() != nil {
				return FileResult{}, ctx.Err()
			}
			return FileResult{}, p.fail(ctx, name, StageStabilize, err, start)
		}
	}

	fctx := context.WithoutCancel(ctx)

	wavPath, err := p.c.Normalizer.Normalize(fctx, inputPath)
	if err != nil {
		return FileResult{}, p.fail(fctx, name, StageConvert, err, start)
	}

	vocabulary, _, err := p.c.Dictionary.Load(name)
	if err != nil {
		writer.RemoveIfExists(wavPath)
		return FileResult{}, p.fail(fctx, name, StageDictionary, err, start)
	}

	rec := p.c.DefaultRecognizer
	restricted := vocabulary != ""
	if restricted {
		rec, err = p.c.Model.NewRecognizer(p.cfg.SampleRate, vocabulary)
		if err != nil {
			writer.RemoveIfExists(wavPath)
			return FileResult{}, p.fail(fctx, name, StageRecognizer, err, start)
		}
		defer rec.Close()
		p.c.Metrics.DictionaryRecognizers.Inc()
	}

	decoded, err := decoder.DecodeFile(wavPath, rec)
	if err != nil {
		if !restricted {
			// Drop whatever the shared recognizer buffered before the failure.
			if _, resetErr := rec.FinalResult(); resetErr != nil {
				p.log.Error("reset default recognizer", resetErr, logging.String("file", name))
			}
		}
		writer.RemoveIfExists(wavPath)
		return FileResult{}, p.fail(fctx, name, StageDecode, err, start)
	}

	output, err := p.c.Writer.Write(fctx, name, decoded.Text)
	if err != nil {
		writer.RemoveIfExists(wavPath)
		return FileResult{}, p.fail(fctx, name, StageWrite, err, start)
	}

	if err := writer.RemoveIfExists(wavPath); err != nil {
		p.log.Error("remove temp waveform", err,
			logging.String("file", name),
			logging.String("path", wavPath),
		)
		p.c.Metrics.CleanupErrors.Inc()
	}

	res := FileResult{
		File:       name,
		Output:     output,
		Text:       decoded.Text,
		Dictionary: restricted,
		Bytes:      decoded.Bytes,
		Elapsed:    p.now().Sub(start),
	}
	p.succeed(fctx, res)
	return res, nil
}

func (p *Pipeline) succeed(ctx context.Context, res FileResult) {
	p.log.Info("file transcribed",
		logging.String("file", res.File),
		logging.String("output", res.Output),
		logging.Duration("elapsed", res.Elapsed),
		logging.String("text", res.Text),
		logging.Bool("dictionary", res.Dictionary),
		logging.Int64("bytes", res.Bytes),
	)

	m := p.c.Metrics
	m.FilesTranscribed.Inc()
	m.PayloadBytes.Add(float64(res.Bytes))
	m.DecodeDuration.Observe(res.Elapsed.Seconds())
	if p.cfg.SampleRate > 0 {
		m.AudioDuration.Observe(float64(res.Bytes) / float64(2*p.cfg.SampleRate))
	}

	p.record(ctx, ledger.Entry{
		Language:   p.cfg.Language,
		File:       res.File,
		Output:     res.Output,
		Status:     ledger.StatusTranscribed,
		Text:       res.Text,
		Dictionary: res.Dictionary,
		Bytes:      res.Bytes,
		Elapsed:    res.Elapsed,
	})
}

func (p *Pipeline) fail(ctx context.Context, name, stage string, err error, start time.Time) error {
	ferr := &FileError{File: name, Stage: stage, Err: err}

	p.log.Error("file failed", err,
		logging.String("file", name),
		logging.String("stage", stage),
	)
	p.c.Metrics.FilesFailed.WithLabelValues(stage).Inc()

	if info, statErr := os.Stat(filepath.Join(p.cfg.InputDir, name)); statErr == nil {
		p.failed[name] = fileStamp{size: info.Size(), modTime: info.ModTime()}
	}

	p.record(ctx, ledger.Entry{
		Language: p.cfg.Language,
		File:     name,
		Status:   ledger.StatusFailed,
		Reason:   stage + ": " + err.Error(),
		Elapsed:  p.now().Sub(start),
	})
	return ferr
}

func (p *Pipeline) record(ctx context.Context, e ledger.Entry) {
	if p.c.Ledger == nil {
		return
	}
	if err := p.c.Ledger.Record(ctx, e); err != nil {
		p.log.Error("ledger write failed", err, logging.String("file", e.File))
	}
}

// skip reports whether name failed earlier and has not changed since.
func (p *Pipeline) skip(name string) bool {
	stamp, ok := p.failed[name]
	if !ok {
		return false
	}
	info, err := os.Stat(filepath.Join(p.cfg.InputDir, name))
	if err != nil || info.Size() != stamp.size || !info.ModTime().Equal(stamp.modTime) {
		delete(p.failed, name)
		return false
	}
	p.c.Metrics.FilesSkipped.Inc()
	return true
}

// prune forgets failed inputs that are no longer listed.
func (p *Pipeline) prune(names []string) {
	if len(p.failed) == 0 {
		return
	}
	listed := make(map[string]struct{}, len(names))
	for _, name := range names {
		listed[name] = struct{}{}
	}
	for name := range p.failed {
		if _, ok := listed[name]; !ok {
			delete(p.failed, name)
		}
	}
}
