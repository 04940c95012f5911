package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// value returns the value of the named counter or gauge whose labels match
// the given label values, or -1 when absent
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			pairs := metric.GetLabel()
			if len(pairs) != len(labels) {
				continue
			}
			match := true
			for i, pair := range pairs {
				if pair.GetValue() != labels[i] {
					match = false
				}
			}
			if !match {
				continue
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return -1
}

func TestNewMetricsIndependentRegistries(t *testing.T) {
	first := NewMetrics()
	second := NewMetrics()

	first.RecordRecordingStarted()

	if got := value(t, first, "whisper_recordings_started_total"); got != 1 {
		t.Errorf("Expected 1 recording started, got %f", got)
	}
	if got := value(t, second, "whisper_recordings_started_total"); got != 0 {
		t.Errorf("Expected second registry untouched, got %f", got)
	}
}

func TestRecordingLifecycle(t *testing.T) {
	m := NewMetrics()

	m.RecordRecordingStarted()
	if got := value(t, m, "whisper_recording_active"); got != 1 {
		t.Errorf("Expected active gauge 1, got %f", got)
	}

	m.RecordRecordingStopped(3.5, true)
	if got := value(t, m, "whisper_recording_active"); got != 0 {
		t.Errorf("Expected active gauge 0, got %f", got)
	}
	if got := value(t, m, "whisper_auto_stops_total"); got != 1 {
		t.Errorf("Expected 1 auto stop, got %f", got)
	}

	m.RecordRecordingStopped(1, false)
	if got := value(t, m, "whisper_recordings_stopped_total"); got != 2 {
		t.Errorf("Expected 2 stops, got %f", got)
	}
	if got := value(t, m, "whisper_auto_stops_total"); got != 1 {
		t.Errorf("Expected auto stops unchanged, got %f", got)
	}
}

func TestTranscriptionKinds(t *testing.T) {
	m := NewMetrics()

	m.RecordTranscriptionRequest(KindInterim)
	m.RecordTranscriptionRequest(KindInterim)
	m.RecordTranscriptionRequest(KindFinal)
	m.RecordTranscriptionFailure(KindFinal, 0.2)

	if got := value(t, m, "whisper_transcription_requests_total", KindInterim); got != 2 {
		t.Errorf("Expected 2 interim requests, got %f", got)
	}
	if got := value(t, m, "whisper_transcription_failures_total", KindFinal); got != 1 {
		t.Errorf("Expected 1 final failure, got %f", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	m.RecordRecordingStarted()
	m.RecordRecordingStopped(1, true)
	m.RecordAcquireFailure()
	m.SetSpeaking(true)
	m.RecordChunkEncoded(10)
	m.RecordSilenceAbandoned()
	m.RecordEncodeFailure()
	m.RecordTranscriptionRequest(KindFinal)
	m.RecordTranscriptionSuccess(KindFinal, 1)
	m.RecordTranscriptionFailure(KindFinal, 1)
	m.RecordHTTPRequest("GET", "/health", "200", 0.1)
	m.RecordHTTPError("GET", "/health", "internal")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.SetSpeaking(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "whisper_speaking 1") {
		t.Error("Expected whisper_speaking in output")
	}
}
