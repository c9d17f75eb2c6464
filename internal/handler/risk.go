package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/config"
	"tradesignal/internal/repository"
)

type RiskHandler struct {
	Repo repository.Repository
	Cfg  config.RiskConfig
}

func (h *RiskHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/users/:userID/risk/daily", h.daily)
}

// daily reports today's budget consumption next to the configured caps.
func (h *RiskHandler) daily(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := paramUint(c, "userID")
	if userID == 0 {
		Error(c, http.StatusBadRequest, "userID required", nil)
		return
	}
	usage, err := h.Repo.GetDailyRiskUsage(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		Fail(c, err)
		return
	}
	out := gin.H{
		"user_id":            userID,
		"daily_notional_cap": h.Cfg.DailyNotionalCap,
		"max_trade_notional": h.Cfg.MaxTradeNotional,
		"used_notional":      "0",
		"realized_loss":      "0",
		"circuit_broken":     false,
	}
	if usage != nil {
		out["used_notional"] = usage.UsedNotional.String()
		out["realized_loss"] = usage.RealizedLoss.String()
		out["circuit_broken"] = usage.CircuitBroken
	}
	Ok(c, out, nil)
}
