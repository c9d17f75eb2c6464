package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/models"
	"tradesignal/internal/repository"
)

type AutoTradeHandler struct {
	Repo repository.Repository
}

func (h *AutoTradeHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/users/:userID/auto-trading", h.get)
	r.PUT("/api/v1/users/:userID/auto-trading", h.upsert)
}

func (h *AutoTradeHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := paramUint(c, "userID")
	if userID == 0 {
		Error(c, http.StatusBadRequest, "userID required", nil)
		return
	}
	item, err := h.Repo.GetAutoTradingSettings(c.Request.Context(), userID)
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "auto-trading settings not found", nil)
		return
	}
	Ok(c, item, nil)
}

type autoTradingRequest struct {
	Enabled                bool     `json:"enabled"`
	SizingMethod           string   `json:"sizing_method"`
	RiskPerTradePct        float64  `json:"risk_per_trade_pct"`
	MaxPositionPct         float64  `json:"max_position_pct"`
	MinConfidence          float64  `json:"min_confidence"`
	AllowedSymbols         []string `json:"allowed_symbols"`
	BlockedSymbols         []string `json:"blocked_symbols"`
	MarketHoursOnly        bool     `json:"market_hours_only"`
	MaxConcurrentPositions int      `json:"max_concurrent_positions"`
	DailyLossLimitPct      float64  `json:"daily_loss_limit_pct"`
}

func (h *AutoTradeHandler) upsert(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := paramUint(c, "userID")
	if userID == 0 {
		Error(c, http.StatusBadRequest, "userID required", nil)
		return
	}
	var req autoTradingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	switch req.SizingMethod {
	case models.SizingFixed, models.SizingPercentage, models.SizingRiskBased:
	default:
		Error(c, http.StatusBadRequest, "unknown sizing method", nil)
		return
	}
	allowed, _ := json.Marshal(req.AllowedSymbols)
	blocked, _ := json.Marshal(req.BlockedSymbols)
	item := &models.AutoTradingSettings{
		UserID:                 userID,
		Enabled:                req.Enabled,
		SizingMethod:           req.SizingMethod,
		RiskPerTradePct:        req.RiskPerTradePct,
		MaxPositionPct:         req.MaxPositionPct,
		MinConfidence:          req.MinConfidence,
		AllowedSymbols:         allowed,
		BlockedSymbols:         blocked,
		MarketHoursOnly:        req.MarketHoursOnly,
		MaxConcurrentPositions: req.MaxConcurrentPositions,
		DailyLossLimitPct:      req.DailyLossLimitPct,
	}
	if err := h.Repo.UpsertAutoTradingSettings(c.Request.Context(), item); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}
