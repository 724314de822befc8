package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus collectors for transcription and download jobs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Transcription metrics
	Transcriptions        *prometheus.CounterVec
	EngineLoads           *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	SkippedPackets        prometheus.Counter

	// Download metrics
	Downloads     *prometheus.CounterVec
	DownloadBytes prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_transcriptions_total",
			Help: "Finished transcription jobs by outcome",
		}, []string{"outcome"}),
		EngineLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_engine_loads_total",
			Help: "Engine construction attempts by path and result",
		}, []string{"path", "result"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_transcription_duration_seconds",
			Help:    "Wall time of transcription jobs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}),
		SkippedPackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_audio_skipped_packets_total",
			Help: "Corrupt audio packets skipped while decoding",
		}),
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_model_downloads_total",
			Help: "Finished model downloads by outcome",
		}, []string{"outcome"}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_model_download_bytes_total",
			Help: "Bytes received for model downloads",
		}),
	}
}

// RecordTranscription records a finished job with outcome "done" or "failed".
func (m *Metrics) RecordTranscription(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordEngineLoad records one engine construction attempt.
func (m *Metrics) RecordEngineLoad(accelerated, ok bool) {
	if m == nil {
		return
	}
	path := "cpu"
	if accelerated {
		path = "accelerated"
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.EngineLoads.WithLabelValues(path, result).Inc()
}

// ObserveSkippedPackets counts corrupt packets dropped by the decoder loop.
func (m *Metrics) ObserveSkippedPackets(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedPackets.Add(float64(n))
}

// RecordDownload records a finished download.
func (m *Metrics) RecordDownload(outcome string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(outcome).Inc()
}

// AddDownloadBytes counts received bytes.
func (m *Metrics) AddDownloadBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DownloadBytes.Add(float64(n))
}

// Handler serves the gathered metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
