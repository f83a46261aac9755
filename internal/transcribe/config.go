// Package transcribe provides the daemon configuration, the per-file
// transcription pipeline, and the polling service that drives it.
package transcribe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when --config is not given
const DefaultConfigFile = "config.yaml"

// DefaultLanguage is used when no language argument is passed on the command line
const DefaultLanguage = "ru"

// Default values for optional configuration fields
const (
	DefaultWavRate                 = 16000
	DefaultResponseFrequency       = 1.0
	DefaultInputFilePath           = "input/"
	DefaultOutputFilePath          = "output/"
	DefaultTmpFilePath             = "tmp/"
	DefaultEngine                  = EngineVosk
	DefaultFFmpegCommand           = "ffmpeg -hide_banner -loglevel error"
	DefaultFailurePolicy           = PolicyIsolate
	DefaultLogDir                  = "logs"
	DefaultLogRetentionDays        = 30
	DefaultLogLevel                = "info"
	DefaultLedgerFile              = "sttd.db"
	DefaultStabilizationIntervalMs = 500
)

// Recognition engines
const (
	EngineVosk = "vosk"
	EngineStub = "stub"
)

// Failure policies
const (
	// PolicyIsolate logs and skips a file whose processing fails.
	PolicyIsolate = "isolate"
	// PolicyTerminate stops the daemon on stream-level failures.
	PolicyTerminate = "terminate"
)

// Config is loaded once at startup and shared read-only by every component.
type Config struct {
	Daemon DaemonConfig `yaml:"daemon"`
}

// DaemonConfig holds the [daemon] section.
type DaemonConfig struct {
	WavRate                 int     `yaml:"wav_rate"`
	ResponseFrequency       float64 `yaml:"daemon_response_frequency"`
	ModelRoot               string  `yaml:"model_root"`
	DataPath                string  `yaml:"data_path"`
	InputFilePath           string  `yaml:"input_file_path"`
	OutputFilePath          string  `yaml:"output_file_path"`
	TmpFilePath             string  `yaml:"tmp_file_path"`
	Engine                  string  `yaml:"engine"`
	FFmpegCommand           string  `yaml:"ffmpeg_command"`
	StrictConversion        *bool   `yaml:"strict_conversion"`
	FailurePolicy           string  `yaml:"failure_policy"`
	WipeOnExit              *bool   `yaml:"wipe_on_exit"`
	WakeOnChange            bool    `yaml:"wake_on_change"`
	StabilizationIntervalMs int     `yaml:"stabilization_interval_ms"`
	StabilizationChecks     int     `yaml:"stabilization_checks"`
	StabilizationTimeoutMs  int     `yaml:"stabilization_timeout_ms"`
	ArchiveDir              string  `yaml:"archive_dir"`
	LogDir                  string  `yaml:"log_dir"`
	LogRetentionDays        int     `yaml:"log_retention_days"`
	LogLevel                string  `yaml:"log_level"`
	ConsoleLog              *bool   `yaml:"console_log"`
	LedgerPath              string  `yaml:"ledger_path"`
	DisableLedger           bool    `yaml:"disable_ledger"`
	MetricsTextfile         string  `yaml:"metrics_textfile"`
}

// Validation errors
var (
	ErrDataPathRequired   = errors.New("daemon.data_path is required")
	ErrModelRootRequired  = errors.New("daemon.model_root is required")
	ErrInvalidWavRate     = errors.New("daemon.wav_rate must be > 0")
	ErrInvalidFrequency   = errors.New("daemon.daemon_response_frequency must be > 0")
	ErrInvalidEngine      = errors.New("daemon.engine must be \"vosk\" or \"stub\"")
	ErrInvalidPolicy      = errors.New("daemon.failure_policy must be \"isolate\" or \"terminate\"")
	ErrInvalidStabilize   = errors.New("daemon.stabilization_* values must be >= 0")
	ErrLanguageRequired   = errors.New("language code is required")
	ErrDuplicateWorkPaths = errors.New("input, output and tmp paths must be distinct and not nested")
	ErrWorkPathOutside    = errors.New("input, output and tmp paths must be subdirectories of daemon.data_path")
	ErrStateInWorkPath    = errors.New("ledger and log paths must be outside the input, output and tmp paths")
	ErrArchiveInWorkPath  = errors.New("daemon.archive_dir must be outside the input, output and tmp paths")
)

// Load reads the YAML configuration at path, applies environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults sets default values for optional fields that are empty or zero.
func (c *Config) ApplyDefaults() {
	d := &c.Daemon
	if d.WavRate == 0 {
		d.WavRate = DefaultWavRate
	}
	if d.ResponseFrequency == 0 {
		d.ResponseFrequency = DefaultResponseFrequency
	}
	if d.InputFilePath == "" {
		d.InputFilePath = DefaultInputFilePath
	}
	if d.OutputFilePath == "" {
		d.OutputFilePath = DefaultOutputFilePath
	}
	if d.TmpFilePath == "" {
		d.TmpFilePath = DefaultTmpFilePath
	}
	if d.Engine == "" {
		d.Engine = DefaultEngine
	}
	if d.FFmpegCommand == "" {
		d.FFmpegCommand = DefaultFFmpegCommand
	}
	if d.StrictConversion == nil {
		d.StrictConversion = boolPtr(true)
	}
	if d.FailurePolicy == "" {
		d.FailurePolicy = DefaultFailurePolicy
	}
	if d.WipeOnExit == nil {
		d.WipeOnExit = boolPtr(true)
	}
	if d.StabilizationChecks > 0 && d.StabilizationIntervalMs == 0 {
		d.StabilizationIntervalMs = DefaultStabilizationIntervalMs
	}
	if d.LogDir == "" {
		d.LogDir = DefaultLogDir
	}
	if d.LogRetentionDays == 0 {
		d.LogRetentionDays = DefaultLogRetentionDays
	}
	if d.LogLevel == "" {
		d.LogLevel = DefaultLogLevel
	}
	if d.ConsoleLog == nil {
		d.ConsoleLog = boolPtr(true)
	}
	if d.LedgerPath == "" && d.DataPath != "" {
		d.LedgerPath = filepath.Join(d.DataPath, DefaultLedgerFile)
	}
}

// Validate checks that required fields are present and enumerations are known.
func (c *Config) Validate() error {
	d := c.Daemon
	if d.DataPath == "" {
		return ErrDataPathRequired
	}
	if d.ModelRoot == "" && d.Engine != EngineStub {
		return ErrModelRootRequired
	}
	if d.WavRate <= 0 {
		return ErrInvalidWavRate
	}
	if d.ResponseFrequency <= 0 {
		return ErrInvalidFrequency
	}
	switch d.Engine {
	case EngineVosk, EngineStub:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidEngine, d.Engine)
	}
	switch d.FailurePolicy {
	case PolicyIsolate, PolicyTerminate:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidPolicy, d.FailurePolicy)
	}
	if d.StabilizationChecks < 0 || d.StabilizationIntervalMs < 0 || d.StabilizationTimeoutMs < 0 {
		return ErrInvalidStabilize
	}
	return c.validatePaths()
}

// validatePaths keeps the working directories, which are wiped on exit,
// apart from each other and from everything that must survive a wipe.
func (c *Config) validatePaths() error {
	d := c.Daemon
	data := absPath(d.DataPath)
	work := make([]string, 0, 3)
	for _, dir := range c.WorkDirs() {
		dir = absPath(dir)
		if dir == data || !within(dir, data) {
			return fmt.Errorf("%w: %s", ErrWorkPathOutside, dir)
		}
		work = append(work, dir)
	}
	for i := range work {
		for j := range work {
			if i != j && within(work[i], work[j]) {
				return ErrDuplicateWorkPaths
			}
		}
	}

	var state []string
	if c.LedgerEnabled() {
		state = append(state, d.LedgerPath)
	}
	if d.LogDir != "" {
		state = append(state, d.LogDir)
	}
	for _, path := range state {
		for _, dir := range work {
			if within(absPath(path), dir) {
				return fmt.Errorf("%w: %s", ErrStateInWorkPath, path)
			}
		}
	}

	if d.ArchiveDir != "" {
		archive := absPath(d.ArchiveDir)
		for _, dir := range work {
			if within(archive, dir) {
				return fmt.Errorf("%w: %s", ErrArchiveInWorkPath, d.ArchiveDir)
			}
		}
	}
	return nil
}

// within reports whether path is dir or lies below it. Both must be absolute.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// InputDir is the directory producers drop audio files into.
func (c *Config) InputDir() string {
	return filepath.Join(c.Daemon.DataPath, c.Daemon.InputFilePath)
}

// OutputDir is where transcripts are written.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Daemon.DataPath, c.Daemon.OutputFilePath)
}

// TmpDir holds normalized waveforms while they are decoded.
func (c *Config) TmpDir() string {
	return filepath.Join(c.Daemon.DataPath, c.Daemon.TmpFilePath)
}

// WorkDirs returns the input, output and temp directories in that order.
func (c *Config) WorkDirs() []string {
	return []string{c.InputDir(), c.OutputDir(), c.TmpDir()}
}

// ModelPath returns the language model directory for lang.
func (c *Config) ModelPath(lang string) string {
	return filepath.Join(c.Daemon.ModelRoot, "models", lang)
}

// PollInterval converts daemon_response_frequency to a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.ResponseFrequency * float64(time.Second))
}

// StabilizationInterval converts stabilization_interval_ms to a duration.
func (c *Config) StabilizationInterval() time.Duration {
	return time.Duration(c.Daemon.StabilizationIntervalMs) * time.Millisecond
}

// StabilizationTimeout converts stabilization_timeout_ms to a duration. Zero
// lets a file settle for as long as it takes.
func (c *Config) StabilizationTimeout() time.Duration {
	return time.Duration(c.Daemon.StabilizationTimeoutMs) * time.Millisecond
}

// Strict reports whether converter failures are treated as per-file errors.
func (c *Config) Strict() bool {
	return c.Daemon.StrictConversion == nil || *c.Daemon.StrictConversion
}

// WipeOnExit reports whether Terminating removes the working directories.
func (c *Config) WipeOnExit() bool {
	return c.Daemon.WipeOnExit == nil || *c.Daemon.WipeOnExit
}

// ConsoleLog reports whether log lines are mirrored to stdout.
func (c *Config) ConsoleLog() bool {
	return c.Daemon.ConsoleLog == nil || *c.Daemon.ConsoleLog
}

// LedgerEnabled reports whether processing history is persisted.
func (c *Config) LedgerEnabled() bool {
	return !c.Daemon.DisableLedger && c.Daemon.LedgerPath != ""
}

// PidFilePath returns the PID file for the daemon serving lang.
func (c *Config) PidFilePath(lang string) string {
	return filepath.Join(c.Daemon.DataPath, "sttd-"+lang+".pid")
}

func (c *Config) applyEnvOverrides() {
	overrideInt(&c.Daemon.WavRate, "STTD_WAV_RATE")
	overrideFloat(&c.Daemon.ResponseFrequency, "STTD_DAEMON_RESPONSE_FREQUENCY")
	overrideString(&c.Daemon.ModelRoot, "STTD_MODEL_ROOT")
	overrideString(&c.Daemon.DataPath, "STTD_DATA_PATH")
	overrideString(&c.Daemon.Engine, "STTD_ENGINE")
	overrideString(&c.Daemon.FailurePolicy, "STTD_FAILURE_POLICY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// expandPaths expands ~ to the user's home directory in path fields.
func (c *Config) expandPaths() {
	d := &c.Daemon
	d.ModelRoot = expandTilde(d.ModelRoot)
	d.DataPath = expandTilde(d.DataPath)
	d.ArchiveDir = expandTilde(d.ArchiveDir)
	d.LogDir = expandTilde(d.LogDir)
	d.LedgerPath = expandTilde(d.LedgerPath)
	d.MetricsTextfile = expandTilde(d.MetricsTextfile)
}

// expandTilde expands ~ at the beginning of a path to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func boolPtr(b bool) *bool { return &b }
