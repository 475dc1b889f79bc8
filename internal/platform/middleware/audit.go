package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
)

// AccessEntry describes one API request for the access log.
type AccessEntry struct {
	RequestID  string
	UserID     string
	Roles      []string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	Status     int
	RemoteIP   string
	Timestamp  time.Time
}

// Audit writes a structured access line for every /api/v1 request. Business
// transitions are recorded separately by the services through audit.Recorder.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := accessEntry(c)
			if he, ok := err.(*echo.HTTPError); ok {
				entry.Status = he.Code
			}

			logger.Info().
				Str("type", "access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("roles", entry.Roles).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.Status).
				Str("remote_ip", entry.RemoteIP).
				Msg("api_access")

			return err
		}
	}
}

func accessEntry(c echo.Context) AccessEntry {
	req := c.Request()
	ctx := req.Context()
	rid, _ := c.Get("request_id").(string)
	resource, id, sub := splitResourcePath(req.URL.Path)

	action := methodToAction(req.Method)
	if sub != "" && req.Method == http.MethodPost {
		action = sub
	}

	return AccessEntry{
		RequestID:  rid,
		UserID:     auth.UserIDFromContext(ctx),
		Roles:      auth.RolesFromContext(ctx),
		Action:     action,
		Resource:   resource,
		ResourceID: id,
		Method:     req.Method,
		Path:       req.URL.Path,
		Status:     c.Response().Status,
		RemoteIP:   c.RealIP(),
		Timestamp:  time.Now().UTC(),
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResourcePath splits /api/v1/charges/<id>/pay into
// ("charges", "<id>", "pay").
func splitResourcePath(path string) (resource, id, sub string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) > 0 {
		resource = segments[0]
	}
	if len(segments) > 1 {
		id = segments[1]
	}
	if len(segments) > 2 {
		sub = segments[2]
	}
	if resource == "" {
		resource = "unknown"
	}
	return resource, id, sub
}
