package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/trading"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps the engine's error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is a plain 500.
func Fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, trading.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, trading.ErrInvalidParameters), errors.Is(err, trading.ErrBanditUpdate):
		status = http.StatusBadRequest
	case errors.Is(err, trading.ErrGuardrailRejected), errors.Is(err, trading.ErrDegenerateRisk):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, trading.ErrDataUnavailable), errors.Is(err, trading.ErrBrokerUnavailable):
		status = http.StatusBadGateway
	}
	Error(c, status, err.Error(), nil)
}
