package medicine

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

func newCallerRequest(method, target, body string, caller auth.Caller) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.ContextWithCaller(req.Context(), caller))
}

func TestHandler_Get_DoctorProjection(t *testing.T) {
	s, _ := newTestService()
	m := seedMedicine(t, s, "AMX", "12.50", 5, 1)
	h := NewHandler(s)
	e := echo.New()

	doctor := auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleDoctor}}
	rec := httptest.NewRecorder()
	c := e.NewContext(newCallerRequest(http.MethodGet, "/", "", doctor), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "purchase_price") {
		t.Errorf("doctor response leaked purchase price: %s", rec.Body.String())
	}
}

func TestHandler_UpdateStock(t *testing.T) {
	s, _ := newTestService()
	m := seedMedicine(t, s, "AMX", "12.50", 5, 1)
	h := NewHandler(s)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newCallerRequest(http.MethodPost, "/", `{"quantity":-9,"reason":"breakage"}`, pharmacist), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	err := h.UpdateStock(c)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(newCallerRequest(http.MethodPost, "/", `{"quantity":20,"reason":"delivery"}`, pharmacist), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.UpdateStock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"stock_quantity":25`) {
		t.Errorf("expected stock 25 in response: %s", rec.Body.String())
	}
}

func TestHandler_SearchForPharmacist_BadPrice(t *testing.T) {
	s, _ := newTestService()
	h := NewHandler(s)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/medicines/pharmacy-search?min_price=abc", nil), httptest.NewRecorder())
	if err := h.SearchForPharmacist(c); err == nil {
		t.Error("expected error for invalid min_price")
	}
}
