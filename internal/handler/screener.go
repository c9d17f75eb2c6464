package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradesignal/internal/repository"
	"tradesignal/internal/service"
)

type ScreenerHandler struct {
	Repo repository.Repository
	Scan *service.ScanService
}

func (h *ScreenerHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/screener")
	group.GET("/funnel", h.latest)
	group.GET("/funnel/history", h.history)
	group.POST("/scan", h.trigger)
}

func (h *ScreenerHandler) latest(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.LatestFunnelSnapshot(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "no scan has run yet", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *ScreenerHandler) history(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListFunnelSnapshotsParams{
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v := c.Query("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.Since = &t
		}
	}
	items, err := h.Repo.ListFunnelSnapshots(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// trigger runs a scan inline. Meant for operators; the cron job is the normal
// cadence.
func (h *ScreenerHandler) trigger(c *gin.Context) {
	if h.Scan == nil {
		Error(c, http.StatusInternalServerError, "scanner unavailable", nil)
		return
	}
	result, err := h.Scan.ScanOnce(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}
