package prescription

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func TestHandler_Create_IgnoresClientPrice(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"registration_id":"` + f.record.RegistrationID.String() + `","items":[{"medicine_id":"` +
		f.amoxil.ID.String() + `","quantity":1,"unit_price":"0.01"}],"total_amount":"0.01"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newCallerRequest(http.MethodPost, "/prescriptions", body, f.doctor), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_amount":"12.5"`) {
		t.Errorf("expected catalog price in body: %s", rec.Body.String())
	}
}

func TestHandler_Dispense_Unpaid(t *testing.T) {
	f := newFixture()
	p := f.create(t)
	h := NewHandler(f.svc)
	e := echo.New()

	c := e.NewContext(newCallerRequest(http.MethodPost, "/", "", f.pharmacist), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Dispense(c); !apperr.Is(err, apperr.KindState) {
		t.Errorf("expected state error, got %v", err)
	}
}

func TestHandler_List_RequiresFilter(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	c := e.NewContext(newCallerRequest(http.MethodGet, "/prescriptions", "", f.doctor), httptest.NewRecorder())
	if err := h.List(c); err == nil {
		t.Error("expected error without record_id or registration_id")
	}
}
