package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

func runJWT(t *testing.T, cfg JWTConfig, header string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	var seen echo.Context
	h := JWTMiddleware(cfg)(func(c echo.Context) error {
		called = true
		seen = c
		return nil
	})
	err := h(c)
	if seen == nil {
		seen = c
	}
	return seen, called, err
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	doctorID := uuid.New()
	sub := uuid.New()
	tok, err := SignToken(testKey, TokenRequest{
		Subject:    sub,
		Roles:      []string{RoleDoctor},
		HospitalID: "north",
		DoctorID:   &doctorID,
		TTL:        time.Minute,
	})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	c, called, err := runJWT(t, JWTConfig{SigningKey: testKey}, "Bearer "+tok)
	if err != nil || !called {
		t.Fatalf("expected pass, err=%v", err)
	}
	caller, err := CallerFromContext(c.Request().Context())
	if err != nil {
		t.Fatalf("CallerFromContext: %v", err)
	}
	if caller.UserID != sub {
		t.Errorf("expected subject %s, got %s", sub, caller.UserID)
	}
	if caller.DoctorID == nil || *caller.DoctorID != doctorID {
		t.Errorf("expected doctor id %s, got %v", doctorID, caller.DoctorID)
	}
	if !caller.HasRole(RoleDoctor) || caller.HasRole(RoleCashier) {
		t.Errorf("unexpected roles %v", caller.Roles)
	}
	if got, _ := c.Get("jwt_hospital_id").(string); got != "north" {
		t.Errorf("expected hospital north, got %q", got)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired, _ := SignToken(testKey, TokenRequest{Subject: uuid.New(), Roles: []string{RoleNurse}, TTL: -time.Minute})
	otherKey, _ := SignToken([]byte("another-key-another-key-another!"), TokenRequest{Subject: uuid.New(), Roles: []string{RoleNurse}})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage", "Bearer not-a-token"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + otherKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, called, err := runJWT(t, JWTConfig{SigningKey: testKey}, tt.header)
			if called {
				t.Fatal("handler should not be called")
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %v", err)
			}
		})
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var caller Caller
	h := DevAuthMiddleware(JWTConfig{})(func(c echo.Context) error {
		var err error
		caller, err = CallerFromContext(c.Request().Context())
		return err
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !caller.IsAdmin() {
		t.Errorf("expected admin caller, got %v", caller.Roles)
	}
	if caller.UserID.String() != DevUserID {
		t.Errorf("unexpected dev user %s", caller.UserID)
	}
}

func TestCallerFromContext_InvalidSubject(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "dev-user")
	if _, err := CallerFromContext(ctx); err == nil {
		t.Error("expected error for non-uuid subject")
	}
	ctx = context.WithValue(context.Background(), UserIDKey, uuid.NewString())
	ctx = context.WithValue(ctx, DoctorIDKey, "nope")
	if _, err := CallerFromContext(ctx); err == nil {
		t.Error("expected error for invalid doctor id")
	}
}

func TestSignToken_Validation(t *testing.T) {
	if _, err := SignToken(nil, TokenRequest{Roles: []string{RoleAdmin}}); err == nil {
		t.Error("expected error without key")
	}
	if _, err := SignToken(testKey, TokenRequest{}); err == nil {
		t.Error("expected error without roles")
	}
}
