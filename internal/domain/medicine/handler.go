package medicine

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RoleNurse, auth.RoleCashier))
	read.GET("/medicines/:id", h.Get)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/medicines/doctor-search", h.SearchForDoctor)

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacist))
	pharmacy.GET("/medicines/pharmacy-search", h.SearchForPharmacist)
	pharmacy.GET("/medicines/stats", h.Stats)
	pharmacy.GET("/medicines/:id/movements", h.ListMovements)
	pharmacy.POST("/medicines", h.Create)
	pharmacy.PUT("/medicines/:id", h.Update)
	pharmacy.DELETE("/medicines/:id", h.Deactivate)
	pharmacy.POST("/medicines/:id/stock", h.UpdateStock)
}

type stockRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *Handler) Create(c echo.Context) error {
	var m Medicine
	if err := c.Bind(&m); err != nil {
		return response.BadRequest("invalid request body")
	}
	if err := h.svc.Create(c.Request().Context(), &m); err != nil {
		return err
	}
	return response.Created(c, NewPharmacistView(&m))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, ViewFor(m, caller))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	var m Medicine
	if err := c.Bind(&m); err != nil {
		return response.BadRequest("invalid request body")
	}
	updated, err := h.svc.Update(c.Request().Context(), id, &m)
	if err != nil {
		return err
	}
	return response.OK(c, NewPharmacistView(updated))
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OK(c, nil)
}

func (h *Handler) UpdateStock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	var req stockRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest("invalid request body")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	m, err := h.svc.UpdateStock(c.Request().Context(), caller, id, req.Quantity, req.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, NewPharmacistView(m))
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.GetInventoryStats(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

func (h *Handler) ListMovements(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMovements(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchForDoctor(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := SearchFilter{
		Keyword:  c.QueryParam("keyword"),
		Category: c.QueryParam("category"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	items, total, err := h.svc.SearchForDoctor(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchForPharmacist(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := SearchFilter{
		Keyword:      c.QueryParam("keyword"),
		Category:     c.QueryParam("category"),
		Manufacturer: c.QueryParam("manufacturer"),
		StockStatus:  StockStatus(c.QueryParam("stock_status")),
		Limit:        pg.Limit,
		Offset:       pg.Offset,
	}
	if v := c.QueryParam("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return response.BadRequest("invalid include_inactive")
		}
		f.IncludeInactive = b
	}
	for name, dst := range map[string]**decimal.Decimal{"min_price": &f.MinPrice, "max_price": &f.MaxPrice} {
		if v := c.QueryParam(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return response.BadRequest("invalid %s", name)
			}
			*dst = &d
		}
	}
	items, total, err := h.svc.SearchForPharmacist(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
