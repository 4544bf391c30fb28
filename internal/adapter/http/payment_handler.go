package http

import (
	"net/http"
	"strconv"

	"loanpay-backend/internal/usecase/payment"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	orch *payment.Orchestrator
	log  *zap.Logger
}

func NewPaymentHandler(orch *payment.Orchestrator, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{orch: orch, log: log}
}

type initiatePaymentReq struct {
	Amount      decimal.Decimal `json:"amount"       validate:"required,gt=0,dec2"`
	PhoneNumber string          `json:"phone_number" validate:"required,zwphone"`
	Method      string          `json:"method"       validate:"required"`
}

type submitOTPReq struct {
	OTP string `json:"otp" validate:"required,otp6"`
}

// InitiateLoanPayment handles POST /loans/:loan_id/payments.
func (h *PaymentHandler) InitiateLoanPayment(c echo.Context) error {
	code := c.Param("loan_id")
	if code == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing loan_id path param"})
	}
	return h.initiate(c, code)
}

// InitiateGeneralPayment handles POST /payments.
func (h *PaymentHandler) InitiateGeneralPayment(c echo.Context) error {
	return h.initiate(c, "")
}

func (h *PaymentHandler) initiate(c echo.Context, loanCode string) error {
	var req initiatePaymentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}

	dto, err := h.orch.Initiate(c.Request().Context(), payment.InitiateInput{
		LoanCode:   loanCode,
		CustomerID: callerID(c),
		Amount:     req.Amount,
		Phone:      req.PhoneNumber,
		Method:     req.Method,
	})
	if err != nil {
		if dto != nil {
			// recorded but not yet accepted by the gateway; polling retries it
			return c.JSON(http.StatusAccepted, dto)
		}
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	dto, err := h.orch.Get(c.Request().Context(), c.Param("reference"), callerID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *PaymentHandler) PollStatus(c echo.Context) error {
	dto, err := h.orch.PollStatus(c.Request().Context(), c.Param("reference"), callerID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *PaymentHandler) SubmitOTP(c echo.Context) error {
	var req submitOTPReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	dto, err := h.orch.SubmitOTP(c.Request().Context(), c.Param("reference"), req.OTP, callerID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// ListTransactions handles GET /transactions?loan_id=&state=&customer_id=&limit=.
func (h *PaymentHandler) ListTransactions(c echo.Context) error {
	in := payment.ListInput{
		LoanCode:   c.QueryParam("loan_id"),
		CustomerID: c.QueryParam("customer_id"),
		State:      c.QueryParam("state"),
	}
	if caller := callerID(c); caller != "" {
		in.CustomerID = caller
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "validation failed",
				Details: []FieldError{{Field: "limit", Message: "must be a positive integer"}},
			})
		}
		in.Limit = n
	}
	list, err := h.orch.List(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, list)
}
