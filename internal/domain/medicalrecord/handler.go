package medicalrecord

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
	g := api.Group("", auth.RequireRole(auth.RoleDoctor))
	g.PUT("/medical-records", h.Save)
	g.GET("/medical-records", h.GetByRegistration)
	g.GET("/medical-records/:id", h.Get)
	g.POST("/medical-records/:id/submit", h.Submit)
	g.DELETE("/medical-records/:id", h.Delete)
}

func (h *Handler) Save(c echo.Context) error {
	var req SaveRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest("invalid request body")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	rec, err := h.svc.Save(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return response.OK(c, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, rec)
}

func (h *Handler) GetByRegistration(c echo.Context) error {
	regID, err := uuid.Parse(c.QueryParam("registration_id"))
	if err != nil {
		return response.BadRequest("registration_id is required")
	}
	rec, err := h.svc.GetByRegistration(c.Request().Context(), regID)
	if err != nil {
		return err
	}
	return response.OK(c, rec)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	rec, err := h.svc.Submit(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return response.OK(c, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	if err := h.svc.Delete(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return response.OK(c, nil)
}
