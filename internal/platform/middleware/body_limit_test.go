package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 1 << 20},
		{"512K", 512 << 10},
		{"1M", 1 << 20},
		{"2mb", 2 << 20},
		{"1G", 1 << 30},
		{"4096", 4096},
		{"lots", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := ParseSize(tt.in); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	read := func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	}

	tests := []struct {
		name          string
		body          string
		contentLength int64
		wantCode      int
	}{
		{"within limit", `{"reason":"x"}`, -1, 0},
		{"declared too large", strings.Repeat("a", 10), 100, http.StatusRequestEntityTooLarge},
		{"streamed too large", strings.Repeat("a", 64), -1, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/charges", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			c := e.NewContext(req, httptest.NewRecorder())

			err := BodyLimit("32")(read)(c)
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != tt.wantCode {
				t.Fatalf("expected %d, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestBodyLimit_SkipsEmptyBody(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := BodyLimit("1")(func(echo.Context) error { return nil })(c); err != nil {
		t.Fatal(err)
	}
}
