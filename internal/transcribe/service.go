package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/archiver"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/dictionary"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/ledger"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/logging"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/metrics"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/normalize"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/pidfile"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/recognizer"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/stabilizer"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/watcher"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/writer"
)

// workDirPerm is applied to the input, output and temp directories.
const workDirPerm = 0o777

// State is the daemon lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StatePolling
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePolling:
		return "polling"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithModel uses m instead of loading the configured engine.
func WithModel(m recognizer.Model) Option {
	return func(s *Service) { s.model = m }
}

// WithNormalizer replaces the ffmpeg normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithLogger replaces the daily file logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the polling daemon for one language.
type Service struct {
	cfg  *Config
	lang string

	state atomic.Int32

	logger     logging.Logger
	fileLogger *logging.FileLogger
	model      recognizer.Model
	defaultRec recognizer.Recognizer
	normalizer Normalizer
	ledger     *ledger.Ledger
	metrics    *metrics.Metrics
	notifier   *watcher.Notifier
	pipeline   *Pipeline
	pid        *pidfile.File

	removeAll func(string) error
	wipeOnce  sync.Once
	closeOnce sync.Once
}

// NewService runs the Initializing state: it opens logging, loads the model
// and the default recognizer, and creates the working directories. A failure
// here releases what was opened and leaves the directories untouched.
func NewService(cfg *Config, lang string, opts ...Option) (*Service, error) {
	if lang == "" {
		return nil, ErrLanguageRequired
	}
	start := time.Now()

	s := &Service{
		cfg:       cfg,
		lang:      lang,
		pid:       pidfile.New(cfg.PidFilePath(lang)),
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setState(StateInitializing)

	if err := s.init(); err != nil {
		s.close()
		return nil, err
	}

	s.logger.Info("initialized in",
		logging.Duration("elapsed", time.Since(start)),
	)
	return s, nil
}

func (s *Service) init() error {
	d := s.cfg.Daemon

	if s.logger == nil {
		level, err := logging.ParseLevel(d.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logCfg := logging.Config{
			LogDir:        d.LogDir,
			Prefix:        s.lang + "_daemon",
			RetentionDays: d.LogRetentionDays,
			Component:     "daemon",
		}.WithMinLevel(level)
		if s.cfg.ConsoleLog() {
			logCfg.Console = os.Stdout
		}
		fl, err := logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		s.fileLogger = fl
		s.logger = fl
	}

	s.logger.Info("daemon launched",
		logging.String("language", s.lang),
		logging.String("engine", d.Engine),
		logging.String("model", s.cfg.ModelPath(s.lang)),
		logging.String("data_path", d.DataPath),
	)

	if err := s.ensureWorkDirs(); err != nil {
		s.logger.Error("create working directories", err)
		return err
	}

	if s.model == nil {
		model, err := recognizer.Open(d.Engine, s.cfg.ModelPath(s.lang))
		if err != nil {
			s.logger.Error("load model", err)
			return fmt.Errorf("load model: %w", err)
		}
		s.model = model
	}
	rec, err := s.model.NewRecognizer(d.WavRate, "")
	if err != nil {
		s.logger.Error("create default recognizer", err)
		return fmt.Errorf("create default recognizer: %w", err)
	}
	s.defaultRec = rec

	ledgerPath := ""
	if s.cfg.LedgerEnabled() {
		ledgerPath = d.LedgerPath
	}
	lg, err := ledger.Open(context.Background(), ledgerPath)
	if err != nil {
		s.logger.Error("open ledger", err, logging.String("path", ledgerPath))
		return fmt.Errorf("open ledger: %w", err)
	}
	s.ledger = lg

	s.metrics = metrics.New(s.lang)

	if s.normalizer == nil {
		nopts := normalize.Options{
			Command:    d.FFmpegCommand,
			TmpDir:     s.cfg.TmpDir(),
			SampleRate: d.WavRate,
			Strict:     s.cfg.Strict(),
			ArchiveDir: d.ArchiveDir,
			Logger:     s.component("normalize"),
		}
		if d.ArchiveDir != "" {
			nopts.Archiver = archiver.NewFileArchiver()
		}
		n, err := normalize.NewFFmpegNormalizer(nopts)
		if err != nil {
			s.logger.Error("create normalizer", err)
			return fmt.Errorf("create normalizer: %w", err)
		}
		s.normalizer = n
	}

	comps := Components{
		Lister:            watcher.NewLister(s.cfg.InputDir()),
		Normalizer:        s.normalizer,
		Dictionary:        dictionary.NewLoader(s.cfg.InputDir()),
		Model:             s.model,
		DefaultRecognizer: s.defaultRec,
		Writer:            writer.New(s.cfg.OutputDir()),
		Ledger:            s.ledger,
		Metrics:           s.metrics,
		Logger:            s.component("pipeline"),
	}
	if d.StabilizationChecks > 0 {
		stab := stabilizer.NewPollStabilizer(s.cfg.StabilizationInterval(), d.StabilizationChecks)
		stab.Timeout = s.cfg.StabilizationTimeout()
		comps.Stabilizer = stab
	}
	s.pipeline = NewPipeline(PipelineConfig{
		Language:      s.lang,
		SampleRate:    d.WavRate,
		InputDir:      s.cfg.InputDir(),
		FailurePolicy: d.FailurePolicy,
	}, comps)

	if d.WakeOnChange {
		n, err := watcher.NewNotifier(s.cfg.InputDir(), func(name string) bool {
			return watcher.Eligible(name, s.lang)
		})
		if err != nil {
			s.logger.Error("directory notifications unavailable, polling only", err)
		} else {
			s.notifier = n
		}
	}
	return nil
}

// component returns a logger tagged with name, sharing the daemon's file.
func (s *Service) component(name string) logging.Logger {
	if s.fileLogger != nil {
		return s.fileLogger.WithComponent(name)
	}
	return s.logger
}

func (s *Service) ensureWorkDirs() error {
	for _, dir := range s.cfg.WorkDirs() {
		if err := os.MkdirAll(dir, workDirPerm); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		// MkdirAll is subject to the umask.
		if err := os.Chmod(dir, workDirPerm); err != nil {
			return fmt.Errorf("chmod %s: %w", dir, err)
		}
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
}

// Run polls the input directory until ctx is cancelled, SIGINT or SIGTERM
// arrives, or a fatal error occurs. It always ends in Terminating. An
// interruption returns nil; a fatal error is returned unchanged.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.pid.Acquire(); err != nil {
		s.logger.Error("acquire pid file", err, logging.String("path", s.pid.Path()))
		s.close()
		return fmt.Errorf("acquire pid file: %w", err)
	}

	s.setState(StatePolling)
	interval := s.cfg.PollInterval()
	s.logger.Info("polling",
		logging.String("input", s.cfg.InputDir()),
		logging.String("output", s.cfg.OutputDir()),
		logging.Duration("interval", interval),
		logging.Bool("wake_on_change", s.notifier != nil),
	)

	var wake <-chan struct{}
	if s.notifier != nil {
		wake = s.notifier.C()
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		n, err := s.pipeline.RunCycle(ctx)
		if err != nil {
			return s.terminate(err)
		}
		if n > 0 {
			s.writeMetrics()
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return s.terminate(nil)
		case <-timer.C:
		case <-wake:
		}
	}
}

// terminate runs the Terminating state and returns cause.
func (s *Service) terminate(cause error) error {
	s.setState(StateTerminating)

	if cause != nil {
		s.logger.Error("fatal error, terminating", cause)
	} else {
		s.logger.Info("interrupted, terminating")
	}

	if s.cfg.WipeOnExit() {
		s.wipe()
	}
	s.writeMetrics()

	if err := s.pid.Remove(); err != nil {
		s.logger.Error("remove pid file", err, logging.String("path", s.pid.Path()))
	}
	s.logger.Info("daemon terminated", logging.String("language", s.lang))
	s.close()
	return cause
}

// wipe removes the working directories, at most once per Service.
func (s *Service) wipe() {
	s.wipeOnce.Do(func() {
		for _, dir := range s.cfg.WorkDirs() {
			if err := s.removeAll(dir); err != nil {
				s.logger.Error("remove working directory", err, logging.String("dir", dir))
				continue
			}
			s.logger.Info("removed working directory", logging.String("dir", dir))
		}
	})
}

func (s *Service) writeMetrics() {
	path := s.cfg.Daemon.MetricsTextfile
	if path == "" || s.metrics == nil {
		return
	}
	if err := s.metrics.WriteTextfile(path); err != nil {
		s.logger.Error("write metrics textfile", err, logging.String("path", path))
	}
}

// Close releases the model, recognizers, ledger and log file without
// touching the working directories. Run calls it on exit.
func (s *Service) Close() error {
	s.close()
	return nil
}

func (s *Service) close() {
	s.closeOnce.Do(func() {
		var errs []error
		if s.notifier != nil {
			errs = append(errs, s.notifier.Close())
		}
		if s.defaultRec != nil {
			errs = append(errs, s.defaultRec.Close())
		}
		if s.model != nil {
			errs = append(errs, s.model.Close())
		}
		if s.ledger != nil {
			errs = append(errs, s.ledger.Close())
		}
		if err := errors.Join(errs...); err != nil && s.logger != nil {
			s.logger.Error("release resources", err)
		}
		if s.fileLogger != nil {
			s.fileLogger.Close()
		}
	})
}

// Metrics returns the daemon's collectors.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}
