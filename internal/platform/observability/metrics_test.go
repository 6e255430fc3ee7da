package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics returned error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	body := scrape(t, handler)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime metrics in output, got:\n%s", body)
	}
}

func TestSyncRecorder_ExportsCounters(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	provider, err := newMeterProvider(registry)
	if err != nil {
		t.Fatalf("newMeterProvider returned error: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	recorder, err := NewSyncRecorder(provider.Meter(MeterName))
	if err != nil {
		t.Fatalf("NewSyncRecorder returned error: %v", err)
	}

	ctx := context.Background()
	recorder.ObserveSync(ctx, "employees", table.OutcomeWritten, 2)
	recorder.ObserveSync(ctx, "employees", table.OutcomeNoOp, 1)
	recorder.ObserveSync(ctx, "tasks", table.OutcomeFailed, 3)

	body := scrape(t, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	for _, want := range []string{
		"timesheet_sync_writes_total",
		"timesheet_sync_attempts_total",
		`outcome="written"`,
		`outcome="noop"`,
		`outcome="failed"`,
		`table="employees"`,
		`table="tasks"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output, got:\n%s", want, body)
		}
	}
}
