package http

import (
	"io"
	"net/http"

	"loanpay-backend/internal/usecase/payment"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxCallbackBody = 64 << 10

type CallbackHandler struct {
	orch *payment.Orchestrator
	log  *zap.Logger
}

func NewCallbackHandler(orch *payment.Orchestrator, log *zap.Logger) *CallbackHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallbackHandler{orch: orch, log: log}
}

// Result receives the gateway's status push. It always acknowledges with 200
// "OK"; the gateway retries on its own schedule and the caller has nothing to
// act on.
func (h *CallbackHandler) Result(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxCallbackBody))
	if err != nil {
		h.log.Warn("reading callback body", zap.Error(err))
		return c.String(http.StatusOK, "OK")
	}
	if err := h.orch.HandleCallback(req.Context(), req.Header.Get(echo.HeaderContentType), body); err != nil {
		h.log.Warn("callback not applied", zap.Error(err))
	}
	return c.String(http.StatusOK, "OK")
}
