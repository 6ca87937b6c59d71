// Package handler exposes the follow-up notification HTTP endpoints.
package handler

import (
	"net/http"
	"time"

	"telecrm_backend/internal/notification/followup"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/httpkit"
	"telecrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Handler serves follow-up notification endpoints.
type Handler struct {
	scheduler *followup.Scheduler
	log       *logger.Logger
}

// New creates a notification handler.
func New(scheduler *followup.Scheduler, log *logger.Logger) *Handler {
	return &Handler{scheduler: scheduler, log: log}
}

// RegisterRoutes mounts the notification routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	followups := rg.Group("/followups")
	{
		followups.GET("/stats", h.GetStats)
		followups.POST("/trigger", h.Trigger)
	}
}

// GetStats returns delivery counts, optionally bounded by ?from= and ?to=
// (RFC 3339 timestamps or plain dates).
func (h *Handler) GetStats(c *gin.Context) {
	from, err := parseTimeParam(c.Query("from"), false)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid 'from' timestamp"))
		return
	}
	to, err := parseTimeParam(c.Query("to"), true)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid 'to' timestamp"))
		return
	}

	stats, err := h.scheduler.Stats(c.Request.Context(), from, to)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusOK, stats)
}

// Trigger runs one follow-up sweep immediately.
func (h *Handler) Trigger(c *gin.Context) {
	if httpkit.HandleError(c, h.scheduler.RunOnce(c.Request.Context())) {
		return
	}
	httpkit.JSON(c, http.StatusOK, gin.H{"success": true, "message": "follow-up sweep completed"})
}

// parseTimeParam accepts RFC 3339 or YYYY-MM-DD. A bare date used as a range
// end is pushed to the end of that day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
