package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordRowsLoaded("quote", 10)
	m.RecordRecordsEmitted("quote", 8)
	m.RecordReject("precision_loss")
	m.RecordReject("precision_loss")
	m.RecordRun("quote", "ok", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.rowsLoaded.WithLabelValues("quote")); got != 10 {
		t.Errorf("Expected rows loaded 10, got %f", got)
	}
	if got := testutil.ToFloat64(m.recordsEmitted.WithLabelValues("quote")); got != 8 {
		t.Errorf("Expected records emitted 8, got %f", got)
	}
	if got := testutil.ToFloat64(m.rowsRejected.WithLabelValues("precision_loss")); got != 2 {
		t.Errorf("Expected 2 rejects, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("quote", "ok")); got != 1 {
		t.Errorf("Expected 1 run, got %f", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New(DefaultConfig())
	b := New(DefaultConfig())
	a.RecordReplaySent(3)
	if got := testutil.ToFloat64(b.replaySent); got != 0 {
		t.Fatalf("monitors share state: %f", got)
	}
	a.ReplayClientConnected()
	a.ReplayClientConnected()
	a.ReplayClientDisconnected()
	if got := testutil.ToFloat64(a.replayClients); got != 1 {
		t.Fatalf("Expected 1 replay client, got %f", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.SetInboxPending(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tw_ingest_inbox_pending_files 4") {
		t.Fatalf("metric missing from output:\n%s", body)
	}
}
