package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/service"
)

type StrategyHandler struct {
	Repo repository.Repository
	Svc  *service.RegistryService
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/strategies")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.POST("/:id/enable", h.enable)
	group.POST("/:id/disable", h.disable)
	group.GET("/:id/versions", h.listVersions)
	group.POST("/:id/versions", h.createVersion)
	group.POST("/:id/versions/:versionID/default", h.setDefault)

	r.PUT("/api/v1/users/:userID/strategy-settings", h.upsertUserSettings)
}

func (h *StrategyHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListStrategiesParams{
		Limit:   queryInt(c, "limit", 0),
		Offset:  queryInt(c, "offset", 0),
		OrderBy: c.Query("order_by"),
	}
	if v := c.Query("enabled"); v != "" {
		enabled := v == "true"
		params.Enabled = &enabled
	}
	if v := c.Query("category"); v != "" {
		params.Category = &v
	}
	items, err := h.Repo.ListStrategies(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	total, err := h.Repo.CountStrategies(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": total})
}

type createStrategyRequest struct {
	Slug        string          `json:"slug" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	MarketType  string          `json:"market_type"`
	UserID      *uint64         `json:"user_id"`
	Timeframes  []string        `json:"timeframes"`
	LogicKey    string          `json:"logic_key" binding:"required"`
	Params      json.RawMessage `json:"params"`
	CustomRules json.RawMessage `json:"custom_rules"`
}

func (h *StrategyHandler) create(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item, version, err := h.Svc.CreateStrategy(c.Request.Context(), service.CreateStrategyInput{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		MarketType:  req.MarketType,
		UserID:      req.UserID,
		Timeframes:  req.Timeframes,
		LogicKey:    req.LogicKey,
		Params:      req.Params,
		CustomRules: req.CustomRules,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"strategy": item, "version": version}, nil)
}

func (h *StrategyHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	item, err := h.Repo.GetStrategyByID(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *StrategyHandler) enable(c *gin.Context)  { h.setEnabled(c, true) }
func (h *StrategyHandler) disable(c *gin.Context) { h.setEnabled(c, false) }

func (h *StrategyHandler) setEnabled(c *gin.Context, enabled bool) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	if err := h.Svc.SetEnabled(c.Request.Context(), id, enabled); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "enabled": enabled}, nil)
}

func (h *StrategyHandler) listVersions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	items, err := h.Repo.ListVersionsByStrategy(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

type createVersionRequest struct {
	LogicKey    string          `json:"logic_key" binding:"required"`
	Params      json.RawMessage `json:"params"`
	CustomRules json.RawMessage `json:"custom_rules"`
	MakeDefault bool            `json:"make_default"`
}

func (h *StrategyHandler) createVersion(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	version, err := h.Svc.CreateVersion(c.Request.Context(), service.CreateVersionInput{
		StrategyID:  id,
		LogicKey:    req.LogicKey,
		Params:      req.Params,
		CustomRules: req.CustomRules,
		MakeDefault: req.MakeDefault,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, version, nil)
}

func (h *StrategyHandler) setDefault(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := paramUint(c, "id")
	versionID := paramUint(c, "versionID")
	if id == 0 || versionID == 0 {
		Error(c, http.StatusBadRequest, "id and versionID required", nil)
		return
	}
	if err := h.Svc.SetDefaultVersion(c.Request.Context(), id, versionID); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"strategy_id": id, "default_version_id": versionID}, nil)
}

type userSettingsRequest struct {
	StrategyVersionID      uint64          `json:"strategy_version_id" binding:"required"`
	Enabled                bool            `json:"enabled"`
	AutoTrade              bool            `json:"auto_trade"`
	MaxConcurrentPositions int             `json:"max_concurrent_positions"`
	MaxDailyLossPct        float64         `json:"max_daily_loss_pct"`
	ParamOverrides         json.RawMessage `json:"param_overrides"`
}

func (h *StrategyHandler) upsertUserSettings(c *gin.Context) {
	if h.Svc == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	userID := paramUint(c, "userID")
	if userID == 0 {
		Error(c, http.StatusBadRequest, "userID required", nil)
		return
	}
	var req userSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item := &models.UserStrategySettings{
		UserID:                 userID,
		StrategyVersionID:      req.StrategyVersionID,
		Enabled:                req.Enabled,
		AutoTrade:              req.AutoTrade,
		MaxConcurrentPositions: req.MaxConcurrentPositions,
		MaxDailyLossPct:        req.MaxDailyLossPct,
		ParamOverrides:         []byte(req.ParamOverrides),
	}
	if err := h.Svc.UpsertUserSettings(c.Request.Context(), item); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func paramUint(c *gin.Context, name string) uint64 {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func paramQueryUint(c *gin.Context, name string) uint64 {
	v, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return v
}
