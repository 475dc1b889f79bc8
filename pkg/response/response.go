// Package response writes the {code, message, data} envelope used by every
// API endpoint.
package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/apperr"
)

type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Code: http.StatusOK, Message: "success", Data: data})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Code: http.StatusCreated, Message: "success", Data: data})
}

// BadRequest builds an error for malformed input caught at the boundary.
func BadRequest(format string, args ...interface{}) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// ErrorHandler maps service and echo errors to the envelope. Server errors
// are logged with the request id and reported to Sentry; their details never
// reach the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := classify(err)
		rid, _ := c.Get("request_id").(string)

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
			report(err, c, rid)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, Envelope{Code: status, Message: message})
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
		}
	}
}

func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Code < http.StatusInternalServerError {
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}
		return he.Code, msg
	}
	return apperr.HTTPStatus(err), apperr.PublicMessage(err)
}

func report(err error, c echo.Context, rid string) {
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", rid)
		scope.SetTag("path", c.Path())
		scope.SetRequest(c.Request())
		hub.CaptureException(err)
	})
}
