package prescription

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
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RoleCashier))
	read.GET("/prescriptions", h.List)
	read.GET("/prescriptions/:id", h.Get)

	doc := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doc.POST("/prescriptions", h.Create)
	doc.POST("/prescriptions/:id/cancel", h.Cancel)

	ph := api.Group("", auth.RequireRole(auth.RolePharmacist))
	ph.POST("/prescriptions/:id/review", h.Review)
	ph.POST("/prescriptions/:id/dispense", h.Dispense)
	ph.POST("/prescriptions/:id/return", h.Return)
	ph.GET("/pharmacy/pending-dispense", h.PendingDispense)
	ph.GET("/pharmacy/statistics", h.Statistics)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type reviewRequest struct {
	Remark string `json:"remark"`
}

func parseCaller(c echo.Context) (uuid.UUID, auth.Caller, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, auth.Caller{}, response.BadRequest("invalid id")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return uuid.Nil, auth.Caller{}, response.BadRequest(err.Error())
	}
	return id, caller, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest("invalid request body")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	p, err := h.svc.Create(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return response.Created(c, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

// List filters by record_id or registration_id; one of them is required.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	if s := c.QueryParam("record_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.BadRequest("invalid record_id")
		}
		items, err := h.svc.ListByRecord(ctx, id)
		if err != nil {
			return err
		}
		return response.OK(c, items)
	}
	id, err := uuid.Parse(c.QueryParam("registration_id"))
	if err != nil {
		return response.BadRequest("record_id or registration_id is required")
	}
	items, err := h.svc.ListByRegistration(ctx, id)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, caller, err := parseCaller(c)
	if err != nil {
		return err
	}
	var body reasonRequest
	if err := c.Bind(&body); err != nil {
		return response.BadRequest("invalid request body")
	}
	p, err := h.svc.Cancel(c.Request().Context(), caller, id, body.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) Review(c echo.Context) error {
	id, caller, err := parseCaller(c)
	if err != nil {
		return err
	}
	var body reviewRequest
	if err := c.Bind(&body); err != nil {
		return response.BadRequest("invalid request body")
	}
	p, err := h.svc.Review(c.Request().Context(), caller, id, body.Remark)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) Dispense(c echo.Context) error {
	id, caller, err := parseCaller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Dispense(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) Return(c echo.Context) error {
	id, caller, err := parseCaller(c)
	if err != nil {
		return err
	}
	var body reasonRequest
	if err := c.Bind(&body); err != nil {
		return response.BadRequest("invalid request body")
	}
	p, err := h.svc.ReturnMedicine(c.Request().Context(), caller, id, body.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) PendingDispense(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.PendingDispense(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Statistics reports the calling pharmacist's day unless pharmacist_id is
// given.
func (h *Handler) Statistics(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return response.BadRequest(err.Error())
	}
	pharmacistID := caller.UserID
	if s := c.QueryParam("pharmacist_id"); s != "" {
		if pharmacistID, err = uuid.Parse(s); err != nil {
			return response.BadRequest("invalid pharmacist_id")
		}
	}
	st, err := h.svc.PharmacistStatistics(c.Request().Context(), pharmacistID, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return response.OK(c, st)
}
