package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/repository"
	"tradesignal/internal/service"
)

type BacktestHandler struct {
	Repo repository.Repository
	Svc  *service.BacktestService
}

func (h *BacktestHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/backtests")
	group.POST("", h.create)
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.GET("/:id/artifact", h.artifact)
	group.POST("/:id/cancel", h.cancel)
}

type createBacktestRequest struct {
	StrategyVersionID uint64          `json:"strategy_version_id" binding:"required"`
	Symbol            string          `json:"symbol" binding:"required"`
	Timeframe         string          `json:"timeframe" binding:"required"`
	Start             time.Time       `json:"start" binding:"required"`
	End               time.Time       `json:"end" binding:"required"`
	Params            json.RawMessage `json:"params"`
	StartingCapital   float64         `json:"starting_capital"`
}

func (h *BacktestHandler) create(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req createBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	run, err := h.Svc.Create(c.Request.Context(), service.CreateBacktestInput{
		StrategyVersionID: req.StrategyVersionID,
		Symbol:            req.Symbol,
		Timeframe:         req.Timeframe,
		Start:             req.Start,
		End:               req.End,
		Params:            req.Params,
		StartingCapital:   req.StartingCapital,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, run, nil)
}

func (h *BacktestHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListBacktestRunsParams{
		Limit:   queryInt(c, "limit", 0),
		Offset:  queryInt(c, "offset", 0),
		OrderBy: c.Query("order_by"),
	}
	if v := c.Query("status"); v != "" {
		params.Status = &v
	}
	if v := c.Query("symbol"); v != "" {
		params.Symbol = &v
	}
	items, err := h.Repo.ListBacktestRuns(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	total, err := h.Repo.CountBacktestRuns(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": total})
}

func (h *BacktestHandler) get(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	run, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, run, nil)
}

func (h *BacktestHandler) artifact(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	artifact, err := h.Svc.Artifact(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, artifact, nil)
}

func (h *BacktestHandler) cancel(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	if err := h.Svc.Cancel(c.Request.Context(), id); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "cancelled": true}, nil)
}
