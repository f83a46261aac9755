// Package metrics holds the daemon's Prometheus collectors. The daemon opens
// no network listener; collectors are exported through a node_exporter
// textfile instead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all collectors for one daemon instance.
type Metrics struct {
	registry *prometheus.Registry

	PollCycles       prometheus.Counter
	FilesDiscovered  prometheus.Counter
	FilesTranscribed prometheus.Counter
	FilesFailed      *prometheus.CounterVec
	FilesSkipped     prometheus.Counter
	CleanupErrors    prometheus.Counter

	DictionaryRecognizers prometheus.Counter
	PayloadBytes          prometheus.Counter
	DecodeDuration        prometheus.Histogram
	AudioDuration         prometheus.Histogram
	LastCycleTimestamp    prometheus.Gauge
}

// New creates the collectors on a private registry labelled with lang.
func New(lang string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"language": lang}

	return &Metrics{
		registry: reg,

		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_poll_cycles_total",
			Help:        "Total number of input directory scans",
			ConstLabels: labels,
		}),
		FilesDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_files_discovered_total",
			Help:        "Total number of eligible input files seen by a poll cycle",
			ConstLabels: labels,
		}),
		FilesTranscribed: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_files_transcribed_total",
			Help:        "Total number of transcripts written",
			ConstLabels: labels,
		}),
		FilesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "sttd_files_failed_total",
			Help:        "Total number of input files whose processing failed, by stage",
			ConstLabels: labels,
		}, []string{"reason"}),
		FilesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_files_skipped_total",
			Help:        "Total number of eligible files skipped after an earlier failure",
			ConstLabels: labels,
		}),
		CleanupErrors: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_cleanup_errors_total",
			Help:        "Total number of temporary waveforms that could not be removed",
			ConstLabels: labels,
		}),

		DictionaryRecognizers: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_dictionary_recognizers_total",
			Help:        "Total number of vocabulary-restricted recognizers created",
			ConstLabels: labels,
		}),
		PayloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "sttd_pcm_bytes_total",
			Help:        "Total PCM payload bytes fed to the recognizer",
			ConstLabels: labels,
		}),
		DecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "sttd_decode_duration_seconds",
			Help:        "Time spent decoding one file, conversion included",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4 minutes
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "sttd_audio_duration_seconds",
			Help:        "Duration of decoded audio",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		}),
		LastCycleTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "sttd_last_poll_timestamp_seconds",
			Help:        "Unix time of the last completed poll cycle",
			ConstLabels: labels,
		}),
	}
}

// Registry returns the private registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes the current values in the text exposition
// format, for collection by node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
