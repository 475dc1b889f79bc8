package registration

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/pagination"
	"github.com/his/his/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleDoctor, auth.RoleCashier))
	read.GET("/registrations", h.List)
	read.GET("/registrations/:id", h.Get)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/registrations/:id/complete", h.Complete)
	doctor.GET("/doctor/queue", h.DoctorQueue)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	reg, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, reg)
}

func (h *Handler) List(c echo.Context) error {
	if regNo := c.QueryParam("reg_no"); regNo != "" {
		reg, err := h.svc.GetByRegNo(c.Request().Context(), regNo)
		if err != nil {
			return err
		}
		return response.OK(c, reg)
	}
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return response.BadRequest("patient_id or reg_no is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	reg, err := h.svc.Complete(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return response.OK(c, reg)
}

func (h *Handler) DoctorQueue(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	items, err := h.svc.DoctorQueue(c.Request().Context(), caller, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return response.OK(c, items)
}
