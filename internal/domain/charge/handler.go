package charge

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
	g := api.Group("/charges", auth.RequireRole(auth.RoleCashier))
	g.POST("", h.Create)
	g.POST("/registration", h.CreateRegistration)
	g.POST("/prescription", h.CreatePrescription)
	g.GET("", h.ListByRegistration)
	g.GET("/unpaid", h.ListUnpaid)
	g.GET("/by-type", h.ByType)
	g.GET("/registration-fee-paid", h.RegistrationFeePaid)
	g.GET("/settlement", h.Settlement)
	g.GET("/:id", h.Get)
	g.POST("/:id/pay", h.Pay)
	g.POST("/:id/refund", h.Refund)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func callerAndBody(c echo.Context, body interface{}) (auth.Caller, error) {
	if err := c.Bind(body); err != nil {
		return auth.Caller{}, response.BadRequest("invalid request body")
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return auth.Caller{}, response.BadRequest(err.Error())
	}
	return caller, nil
}

func registrationParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.QueryParam("registration_id"))
	if err != nil {
		return uuid.Nil, response.BadRequest("registration_id is required")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	caller, err := callerAndBody(c, &req)
	if err != nil {
		return err
	}
	ch, err := h.svc.CreateCharge(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return response.Created(c, ch)
}

func (h *Handler) CreateRegistration(c echo.Context) error {
	var req CreateRequest
	caller, err := callerAndBody(c, &req)
	if err != nil {
		return err
	}
	ch, err := h.svc.CreateRegistrationCharge(c.Request().Context(), caller, req.RegistrationID)
	if err != nil {
		return err
	}
	return response.Created(c, ch)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req CreateRequest
	caller, err := callerAndBody(c, &req)
	if err != nil {
		return err
	}
	ch, err := h.svc.CreatePrescriptionCharge(c.Request().Context(), caller, req.RegistrationID, req.PrescriptionIDs)
	if err != nil {
		return err
	}
	return response.Created(c, ch)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	ch, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, ch)
}

func (h *Handler) Pay(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	var req PaymentRequest
	caller, err := callerAndBody(c, &req)
	if err != nil {
		return err
	}
	ch, err := h.svc.ProcessPayment(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return response.OK(c, ch)
}

func (h *Handler) Refund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest("invalid id")
	}
	var req refundRequest
	caller, err := callerAndBody(c, &req)
	if err != nil {
		return err
	}
	ch, err := h.svc.ProcessRefund(c.Request().Context(), caller, id, req.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, ch)
}

func (h *Handler) ListByRegistration(c echo.Context) error {
	regID, err := registrationParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListByRegistration(c.Request().Context(), regID)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) ListUnpaid(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUnpaid(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ByType(c echo.Context) error {
	regID, err := registrationParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetChargesByType(c.Request().Context(), regID)
	if err != nil {
		return err
	}
	return response.OK(c, out)
}

func (h *Handler) RegistrationFeePaid(c echo.Context) error {
	regID, err := registrationParam(c)
	if err != nil {
		return err
	}
	paid, err := h.svc.IsRegistrationFeePaid(c.Request().Context(), regID)
	if err != nil {
		return err
	}
	return response.OK(c, map[string]bool{"paid": paid})
}

func (h *Handler) Settlement(c echo.Context) error {
	st, err := h.svc.GetDailySettlement(c.Request().Context(), c.QueryParam("date"))
	if err != nil {
		return err
	}
	return response.OK(c, st)
}
