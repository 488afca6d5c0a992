package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all dashboard metrics
type Metrics struct {
	// Poll counters
	PollsTotal         atomic.Uint64
	StatusFetchErrors  atomic.Uint64
	HistoryFetchErrors atomic.Uint64

	// Submission counters
	AnalyzeRequests atomic.Uint64
	AnalyzeErrors   atomic.Uint64
	AnalyzeRejected atomic.Uint64
	TollRequests    atomic.Uint64
	TollErrors      atomic.Uint64
	TollRejected    atomic.Uint64

	// Camera counters
	FramesCaptured atomic.Uint64
	CaptureErrors  atomic.Uint64
	CameraActive   atomic.Uint64 // 0 = off, 1 = on

	// Archive counters
	ArchivedFrames atomic.Uint64
	ArchiveDropped atomic.Uint64
	ArchiveErrors  atomic.Uint64

	// Latest values
	UploadInFlight    atomic.Uint64 // 0 = idle, 1 = busy
	HistoryEntries    atomic.Uint64
	PollLatencyMs     atomic.Uint64
	AnalyzeLatencyMs  atomic.Uint64
	LastPollTimestamp atomic.Int64 // unix seconds

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

type gauge struct {
	name  string
	help  string
	value func() float64
}

func counterOf(v *atomic.Uint64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	gauges := []gauge{
		{"traffix_polls_total", "Total dashboard refresh cycles", counterOf(&m.PollsTotal)},
		{"traffix_status_fetch_errors_total", "Failed /status fetches", counterOf(&m.StatusFetchErrors)},
		{"traffix_history_fetch_errors_total", "Failed /toll-history fetches", counterOf(&m.HistoryFetchErrors)},
		{"traffix_analyze_requests_total", "Analyze submissions sent to the API", counterOf(&m.AnalyzeRequests)},
		{"traffix_analyze_errors_total", "Analyze submissions that failed", counterOf(&m.AnalyzeErrors)},
		{"traffix_analyze_rejected_total", "Analyze submissions rejected while another was in flight", counterOf(&m.AnalyzeRejected)},
		{"traffix_toll_requests_total", "Toll submissions sent to the API", counterOf(&m.TollRequests)},
		{"traffix_toll_errors_total", "Toll submissions that failed", counterOf(&m.TollErrors)},
		{"traffix_toll_rejected_total", "Toll submissions rejected locally", counterOf(&m.TollRejected)},
		{"traffix_frames_captured_total", "Camera frames captured for analysis", counterOf(&m.FramesCaptured)},
		{"traffix_capture_errors_total", "Camera captures that failed before upload", counterOf(&m.CaptureErrors)},
		{"traffix_camera_active", "Camera active (0=off, 1=on)", counterOf(&m.CameraActive)},
		{"traffix_archive_frames_total", "Captured frames written to the archive", counterOf(&m.ArchivedFrames)},
		{"traffix_archive_dropped_total", "Captured frames dropped by a full archive queue", counterOf(&m.ArchiveDropped)},
		{"traffix_archive_errors_total", "Archive write failures", counterOf(&m.ArchiveErrors)},
		{"traffix_upload_in_flight", "Analyze upload in flight (0=idle, 1=busy)", counterOf(&m.UploadInFlight)},
		{"traffix_toll_history_entries", "Entries in the last fetched toll history", counterOf(&m.HistoryEntries)},
		{"traffix_poll_latency_ms", "Duration of the last refresh cycle in milliseconds", counterOf(&m.PollLatencyMs)},
		{"traffix_analyze_latency_ms", "Duration of the last analyze call in milliseconds", counterOf(&m.AnalyzeLatencyMs)},
		{"traffix_last_poll_timestamp_seconds", "Unix time of the last refresh cycle", func() float64 {
			return float64(m.LastPollTimestamp.Load())
		}},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: g.name,
				Help: g.help,
			},
			g.value,
		))
	}
}

// ObservePoll records the duration of a completed refresh cycle
func (m *Metrics) ObservePoll(started time.Time) {
	m.PollsTotal.Add(1)
	m.PollLatencyMs.Store(uint64(time.Since(started).Milliseconds()))
	m.LastPollTimestamp.Store(started.Unix())
}

// ObserveAnalyze records the duration of an analyze call
func (m *Metrics) ObserveAnalyze(duration time.Duration) {
	m.AnalyzeLatencyMs.Store(uint64(duration.Milliseconds()))
}

// SetFlag stores a boolean gauge
func SetFlag(v *atomic.Uint64, on bool) {
	if on {
		v.Store(1)
		return
	}
	v.Store(0)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns an http.Server exposing /metrics on addr. The caller
// owns its lifecycle and should Shutdown it alongside the main server.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
