package staff

import (
	"strconv"

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
	api.GET("/departments", h.ListDepartments)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/departments", h.CreateDepartment)
	admin.POST("/doctors", h.CreateDoctor)
}

func (h *Handler) CreateDepartment(c echo.Context) error {
	var d Department
	if err := c.Bind(&d); err != nil {
		return response.BadRequest("invalid request body")
	}
	if err := h.svc.CreateDepartment(c.Request().Context(), &d); err != nil {
		return err
	}
	return response.Created(c, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	items, err := h.svc.ListDepartments(c.Request().Context(), activeOnly)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return response.BadRequest("invalid request body")
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return err
	}
	return response.Created(c, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	deptID, err := uuid.Parse(c.QueryParam("department_id"))
	if err != nil {
		return response.BadRequest("department_id is required")
	}
	activeOnly := c.QueryParam("active") != "false"
	items, err := h.svc.ListDoctorsByDepartment(c.Request().Context(), deptID, activeOnly)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}
