package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/audit"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m := NewMetrics("his-server")
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/charges/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.POST("/api/v1/charges/:id/pay", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "already paid")
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/charges/1"},
		{http.MethodGet, "/api/v1/charges/2"},
		{http.MethodPost, "/api/v1/charges/1/pay"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	out := m.Expose()
	want := []string{
		`http_server_request_duration_seconds_count{service="his-server",method="GET",route="/api/v1/charges/:id",status_code="200"} 2`,
		`http_server_request_duration_seconds_count{service="his-server",method="POST",route="/api/v1/charges/:id/pay",status_code="400"} 1`,
		`http_server_active_requests{service="his-server"} 0`,
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("missing %q in\n%s", w, out)
		}
	}
	if strings.Contains(out, "/api/v1/charges/1\"") {
		t.Error("raw ids must not become labels")
	}
}

func TestRecord_CountsBusinessEvents(t *testing.T) {
	m := NewMetrics("his-server")
	var rec audit.Recorder = m
	ctx := context.Background()

	_ = rec.Record(ctx, audit.Event{Action: audit.ActionPaymentProcessed})
	_ = rec.Record(ctx, audit.Event{Action: audit.ActionPaymentProcessed})
	_ = rec.Record(ctx, audit.Event{Action: audit.ActionDispensed})

	if got := m.EventCount(audit.ActionPaymentProcessed); got != 2 {
		t.Errorf("expected 2 payments, got %d", got)
	}
	if !strings.Contains(m.Expose(), `his_business_events_total{action="prescription.dispensed"} 1`) {
		t.Error("expected dispensed counter in exposition")
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics("his-server")
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := m.Handler()(e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), "# TYPE http_server_request_duration_seconds histogram") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "db_pool_connections") {
		t.Error("pool gauges should be absent without a pool")
	}
}
