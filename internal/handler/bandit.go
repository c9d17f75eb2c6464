package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/service"
)

type BanditHandler struct {
	Svc *service.BanditService
}

func (h *BanditHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/bandit/arms")
	group.GET("", h.list)
	group.POST("/:family/reward", h.reward)
	group.POST("/:family/reset", h.reset)
}

func (h *BanditHandler) list(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	items, err := h.Svc.List(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

type rewardRequest struct {
	PnL float64 `json:"pnl"`
}

func (h *BanditHandler) reward(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	family := strings.TrimSpace(c.Param("family"))
	if family == "" {
		Error(c, http.StatusBadRequest, "family required", nil)
		return
	}
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	arm, err := h.Svc.Reward(c.Request.Context(), family, req.PnL)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, arm, nil)
}

func (h *BanditHandler) reset(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	family := strings.TrimSpace(c.Param("family"))
	if family == "" {
		Error(c, http.StatusBadRequest, "family required", nil)
		return
	}
	arm, err := h.Svc.Reset(c.Request.Context(), family)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, arm, nil)
}
