package nursing

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/nurse", auth.RequireRole(auth.RoleNurse))
	g.POST("/check-in", h.CheckIn)
	g.POST("/registrations/:id/cancel", h.Cancel)
	g.GET("/queue", h.Queue)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req CheckInRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest("invalid request body")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	res, err := h.svc.CheckIn(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return response.Created(c, res)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	var body cancelRequest
	if err := c.Bind(&body); err != nil {
		return response.BadRequest("invalid request body")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	reg, err := h.svc.CancelCheckIn(c.Request().Context(), caller, id, body.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, reg)
}

// Queue defaults to the caller's own department.
func (h *Handler) Queue(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	var deptID uuid.UUID
	if s := c.QueryParam("department_id"); s != "" {
		if deptID, err = uuid.Parse(s); err != nil {
			return response.BadRequest("invalid department_id")
		}
	} else if caller.DepartmentID != nil {
		deptID = *caller.DepartmentID
	}
	groups, err := h.svc.DepartmentQueue(c.Request().Context(), deptID, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return response.OK(c, groups)
}
