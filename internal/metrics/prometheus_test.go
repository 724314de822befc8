package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecorders verifies each recorder updates its collector.
func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTranscription("done", 1.5)
	m.RecordTranscription("failed", 0.2)
	m.RecordEngineLoad(true, false)
	m.RecordEngineLoad(false, true)
	m.ObserveSkippedPackets(3)
	m.RecordDownload("done")
	m.AddDownloadBytes(400)

	if got := testutil.ToFloat64(m.Transcriptions.WithLabelValues("done")); got != 1 {
		t.Fatalf("done transcriptions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EngineLoads.WithLabelValues("accelerated", "error")); got != 1 {
		t.Fatalf("accelerated failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EngineLoads.WithLabelValues("cpu", "ok")); got != 1 {
		t.Fatalf("cpu loads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SkippedPackets); got != 3 {
		t.Fatalf("skipped packets = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.DownloadBytes); got != 400 {
		t.Fatalf("download bytes = %v, want 400", got)
	}
}

// TestNilMetricsIsNoop verifies disabled metrics never panic.
func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTranscription("done", 1)
	m.RecordEngineLoad(true, true)
	m.ObserveSkippedPackets(1)
	m.RecordDownload("failed")
	m.AddDownloadBytes(10)
}

// TestHandlerServesRegistry verifies the exposition endpoint.
func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordDownload("done")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), `whisper_model_downloads_total{outcome="done"} 1`) {
		t.Fatalf("metrics body missing download counter:\n%s", body)
	}
}
