package http

import (
	"errors"
	"net/http"
	"sort"

	"loanpay-backend/internal/domain/gateway"
	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/usecase/payment"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Map domain errors → HTTP codes
func statusFor(err error) (int, ErrorResponse) {
	var (
		ve *payment.ValidationError
		ab *payment.AmountExceedsBalanceError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Details: fieldDetails(ve.Fields)}
	case errors.Is(err, loan.ErrInvalidInput):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Details: []FieldError{{Field: "_", Message: err.Error()}}}
	case errors.As(err, &ab):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "amount exceeds outstanding balance",
			Details: []FieldError{{Field: "amount", Message: "must not exceed " + ab.Available().StringFixed(2)}},
		}
	case errors.Is(err, loan.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "loan not found"}
	case errors.Is(err, transaction.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "transaction not found"}
	case errors.Is(err, loan.ErrAlreadySettled):
		return http.StatusConflict, ErrorResponse{Error: "loan already settled"}
	case errors.Is(err, loan.ErrNotActive):
		return http.StatusConflict, ErrorResponse{Error: "loan is not active"}
	case errors.Is(err, transaction.ErrInvalidState):
		return http.StatusConflict, ErrorResponse{Error: "transaction not in a state that allows this"}
	case errors.Is(err, transaction.ErrAlreadySettled):
		return http.StatusConflict, ErrorResponse{Error: "transaction already settled"}
	case errors.Is(err, gateway.ErrOtpExpired):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "otp window expired"}
	case errors.Is(err, gateway.ErrOtpRejected):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "otp rejected"}
	case errors.Is(err, gateway.ErrRejected):
		resp := ErrorResponse{Error: "payment rejected by gateway"}
		for _, r := range gateway.Reasons(err) {
			resp.Details = append(resp.Details, FieldError{Field: "gateway", Message: r})
		}
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, gateway.ErrTimeout):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "payment gateway timed out"}
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "payment gateway unavailable"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
}

func respondError(c echo.Context, log *zap.Logger, err error) error {
	code, body := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
	}
	return c.JSON(code, body)
}

func fieldDetails(fields map[string]string) []FieldError {
	out := make([]FieldError, 0, len(fields))
	for k, v := range fields {
		out = append(out, FieldError{Field: k, Message: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// callerID is the pre-authenticated customer identity, empty for admin calls.
func callerID(c echo.Context) string {
	return c.Request().Header.Get(HeaderCallerID)
}

const HeaderCallerID = "Ax-Caller-Id"
