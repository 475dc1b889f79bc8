package registration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/auth"
)

func TestHandler_Complete(t *testing.T) {
	f := newFixture()
	reg := f.register(t)
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.ContextWithCaller(req.Context(), f.doctorCaller()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(reg.ID.String())

	if err := h.Complete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":1`) {
		t.Errorf("expected completed status in body: %s", rec.Body.String())
	}
}

func TestHandler_Get(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.Get(c); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_List_RequiresFilter(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/registrations", nil), httptest.NewRecorder())
	if err := h.List(c); err == nil {
		t.Error("expected error without filter")
	}
}
