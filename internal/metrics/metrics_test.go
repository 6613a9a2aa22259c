package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveFetch("alpha", "success", 120*time.Millisecond)
	m.ObserveFetch("alpha", "success", 80*time.Millisecond)
	m.ObserveFetch("alpha", "throttled", time.Second)
	m.Document("alpha", "relevant")
	m.Deal("alpha", "accepted")
	m.StoreOutcome("success")
	m.SetBreakerState("alpha", 1, true)

	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("alpha", "success")); got != 2 {
		t.Errorf("fetches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BreakerTrips.WithLabelValues("alpha")); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("alpha")); got != 1 {
		t.Errorf("state = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("alpha", "success", time.Second)
	m.Deal("alpha", "accepted")
	m.ObserveRun("ok", time.Now(), time.Now())
	if m.Handler() == nil {
		t.Fatal("nil metrics should still return a handler")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRun("ok", time.Now().Add(-3*time.Second), time.Now())

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `mergertracker_runs_total{result="ok"} 1`) {
		t.Errorf("runs counter missing from output:\n%s", body)
	}
}
