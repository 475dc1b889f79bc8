package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesWellFormed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-abc.123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return nil })(c)
	if got := rec.Header().Get(RequestIDHeader); got != "client-abc.123" {
		t.Errorf("expected client id to be preserved, got %q", got)
	}
}

func TestRequestID_ReplacesMalformed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return nil })(c)
	if got := rec.Header().Get(RequestIDHeader); strings.Contains(got, " ") || got == "" {
		t.Errorf("expected generated id, got %q", got)
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/charges", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "u-1"))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "rid-1")

	err := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	})(c)
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["request_id"] != "rid-1" || line["user_id"] != "u-1" {
		t.Errorf("unexpected log fields: %v", line)
	}
	if line["status"] != float64(http.StatusNotFound) {
		t.Errorf("expected status 404 in log, got %v", line["status"])
	}
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("boom")
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
}

func TestAudit_LogsAPIAccess(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges/6f1c/pay", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserRolesKey, []string{auth.RoleCashier}))
	c := e.NewContext(req, httptest.NewRecorder())

	err := Audit(zerolog.New(&buf))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["resource"] != "charges" || line["resource_id"] != "6f1c" || line["action"] != "pay" {
		t.Errorf("unexpected access entry: %v", line)
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())

	_ = Audit(zerolog.New(&buf))(func(c echo.Context) error { return nil })(c)
	if buf.Len() != 0 {
		t.Errorf("expected no access log for /health, got %s", buf.String())
	}
}

func TestAudit_PassesErrorThrough(t *testing.T) {
	want := errors.New("handler failed")
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/api/v1/medical-records/1", nil), httptest.NewRecorder())

	if err := Audit(zerolog.Nop())(func(c echo.Context) error { return want })(c); err != want {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestSplitResourcePath(t *testing.T) {
	tests := []struct {
		path              string
		resource, id, sub string
	}{
		{"/api/v1/charges", "charges", "", ""},
		{"/api/v1/charges/", "charges", "", ""},
		{"/api/v1/prescriptions/abc/dispense", "prescriptions", "abc", "dispense"},
		{"/api/v1/", "unknown", "", ""},
	}
	for _, tt := range tests {
		r, id, sub := splitResourcePath(tt.path)
		if r != tt.resource || id != tt.id || sub != tt.sub {
			t.Errorf("splitResourcePath(%q) = (%q,%q,%q)", tt.path, r, id, sub)
		}
	}
}

func TestRequestIDFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "rid-ctx")
	c := e.NewContext(req, httptest.NewRecorder())

	var got string
	_ = RequestID()(func(c echo.Context) error {
		got = RequestIDFromContext(c.Request().Context())
		return nil
	})(c)
	if got != "rid-ctx" {
		t.Errorf("expected rid-ctx on request context, got %q", got)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Error("expected empty id for bare context")
	}
}
