package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveResources(2, 1)
	m.WorkerOpened("ok")
	m.WorkerOpened("depth_exceeded")
	m.TurnCompleted("blocking", "completed", 1500*time.Millisecond)
	m.WorkerEnded("completed")
	m.PlanSubmitted("accepted")
	m.TaskFinished("blocked")
	m.RunFinished("failed")
	m.EventDropped()
	m.TokensUsed(120, 30)
	m.TokensUsed(80, 10)

	if got := testutil.ToFloat64(m.SlotsInUse); got != 2 {
		t.Errorf("SlotsInUse = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.WorkersActive); got != 0 {
		t.Errorf("WorkersActive = %v, want 0 after open+end", got)
	}
	if got := testutil.ToFloat64(m.WorkerOpens.WithLabelValues("depth_exceeded")); got != 1 {
		t.Errorf("WorkerOpens{depth_exceeded} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TaskOutcomes.WithLabelValues("blocked")); got != 1 {
		t.Errorf("TaskOutcomes{blocked} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsDropped); got != 1 {
		t.Errorf("EventsDropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("input")); got != 200 {
		t.Errorf("Tokens{input} = %v, want 200", got)
	}
	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("output")); got != 40 {
		t.Errorf("Tokens{output} = %v, want 40", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResources(1, 1)
	m.WorkerOpened("ok")
	m.WorkerEnded("error")
	m.TurnCompleted("nonblocking", "message", time.Second)
	m.PlanSubmitted("accepted")
	m.TaskFinished("completed")
	m.RunFinished("completed")
	m.EventDropped()
	m.TokensUsed(1, 1)
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RunFinished("completed")

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(buf.String(), `delegate_runs_total{status="completed"} 1`) {
		t.Errorf("metrics output missing runs counter:\n%s", buf.String())
	}
}
