package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradesignal/internal/repository"
	"tradesignal/internal/service"
)

type OrderHandler struct {
	Repo   repository.Repository
	Router *service.OrderRouter
}

func (h *OrderHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/orders")
	group.POST("", h.submit)
	group.GET("", h.list)
	group.GET("/:id", h.get)
}

type submitOrderRequest struct {
	UserID           uint64          `json:"user_id" binding:"required"`
	SignalID         *uint64         `json:"signal_id"`
	Symbol           string          `json:"symbol" binding:"required"`
	Side             string          `json:"side" binding:"required"`
	Qty              int64           `json:"qty" binding:"required"`
	Price            decimal.Decimal `json:"price" binding:"required"`
	IdempotencyToken string          `json:"idempotency_token"`
	Confidence       float64         `json:"confidence"`
}

func (h *OrderHandler) submit(c *gin.Context) {
	if h.Router == nil {
		Error(c, http.StatusInternalServerError, "router unavailable", nil)
		return
	}
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	// Callers that want replay protection across retries supply their own
	// token; one is minted otherwise.
	token := strings.TrimSpace(req.IdempotencyToken)
	if token == "" {
		token = uuid.NewString()
	}
	order, err := h.Router.Submit(c.Request.Context(), service.SubmitOrderInput{
		UserID:           req.UserID,
		SignalID:         req.SignalID,
		Symbol:           req.Symbol,
		Side:             req.Side,
		Qty:              req.Qty,
		Price:            req.Price,
		IdempotencyToken: token,
		Confidence:       req.Confidence,
	})
	if err != nil {
		// The order row, when present, carries the audit detail.
		if order != nil {
			Error(c, http.StatusUnprocessableEntity, err.Error(), map[string]any{"order_id": order.ID})
			return
		}
		Fail(c, err)
		return
	}
	Ok(c, order, nil)
}

func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListOrdersParams{
		Limit:   queryInt(c, "limit", 0),
		Offset:  queryInt(c, "offset", 0),
		OrderBy: c.Query("order_by"),
	}
	if v := paramQueryUint(c, "user_id"); v != 0 {
		params.UserID = &v
	}
	if v := c.Query("status"); v != "" {
		params.Status = &v
	}
	if v := c.Query("symbol"); v != "" {
		params.Symbol = &v
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": total})
}

func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	item, err := h.Repo.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}
