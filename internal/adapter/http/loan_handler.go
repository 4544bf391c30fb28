package http

import (
	"net/http"
	"time"

	"loanpay-backend/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LoanHandler struct {
	uc  *loan.Usecase
	log *zap.Logger
}

func NewLoanHandler(uc *loan.Usecase, log *zap.Logger) *LoanHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoanHandler{uc: uc, log: log}
}

type createLoanReq struct {
	CustomerID   string          `json:"customer_id"   validate:"required,hex32"`
	Principal    decimal.Decimal `json:"principal"     validate:"required,gt=0,dec2"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"gte=0,lte=100,dec2"`
	TermMonths   int             `json:"term_months"   validate:"required,gte=1,lte=360"`
	// Accept canonical date `YYYY-MM-DD`
	DisbursementDate string `json:"disbursement_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}

	in := loan.CreateLoanInput{
		CustomerID:   req.CustomerID,
		Principal:    req.Principal,
		InterestRate: req.InterestRate,
		TermMonths:   req.TermMonths,
	}
	if req.DisbursementDate != "" {
		d, _ := time.Parse("2006-01-02", req.DisbursementDate)
		in.DisbursementDate = &d
	}
	dto, err := h.uc.Create(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	code := c.Param("loan_id")
	if code == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing loan_id path param"})
	}
	dto, err := h.uc.Get(c.Request().Context(), code, callerID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) ListCustomerLoans(c echo.Context) error {
	customer := c.Param("customer_id")
	if !reHex32.MatchString(customer) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid customer_id path param"})
	}
	// customers only see their own loans
	if caller := callerID(c); caller != "" && caller != customer {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "customer not found"})
	}
	list, err := h.uc.ListByCustomer(c.Request().Context(), customer)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, list)
}
