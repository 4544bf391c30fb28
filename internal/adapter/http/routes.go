package http

import "github.com/labstack/echo/v4"

type Handlers struct {
	Health    *Handler
	Loans     *LoanHandler
	Payments  *PaymentHandler
	Callbacks *CallbackHandler
}

// Register mounts the API on e. The mutating middlewares (idempotency) wrap
// the customer routes only; the gateway callback never carries those headers.
func (hs Handlers) Register(e *echo.Echo, mutating ...echo.MiddlewareFunc) {
	e.GET("/health", hs.Health.Health)

	api := e.Group("", mutating...)
	api.POST("/loans", hs.Loans.CreateLoan)
	api.GET("/loans/:loan_id", hs.Loans.GetLoan)
	api.GET("/customers/:customer_id/loans", hs.Loans.ListCustomerLoans)

	api.POST("/loans/:loan_id/payments", hs.Payments.InitiateLoanPayment)
	api.POST("/payments", hs.Payments.InitiateGeneralPayment)
	api.GET("/payments/:reference", hs.Payments.GetPayment)
	api.GET("/payments/:reference/status", hs.Payments.PollStatus)
	api.POST("/payments/:reference/otp", hs.Payments.SubmitOTP)
	api.GET("/transactions", hs.Payments.ListTransactions)

	e.POST("/paynow/result", hs.Callbacks.Result)
}
