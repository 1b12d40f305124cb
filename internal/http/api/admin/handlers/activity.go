package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tingly-box/relayadmin/internal/activity"
	"github.com/tingly-box/relayadmin/internal/models"
)

// ActivityHandler exposes the audit log.
type ActivityHandler struct {
	recorder *activity.Recorder // Activity store.
}

// NewActivityHandler constructs an activity handler.
func NewActivityHandler(recorder *activity.Recorder) *ActivityHandler {
	return &ActivityHandler{recorder: recorder}
}

// List returns audit entries in chronological order. Query params: search
// (substring over action and message), action (exact), success_only.
func (h *ActivityHandler) List(c *gin.Context) {
	filter := activity.Filter{
		Search: strings.TrimSpace(c.Query("search")),
		Action: strings.TrimSpace(c.Query("action")),
	}
	if successOnly := strings.TrimSpace(c.Query("success_only")); successOnly != "" {
		filter.SuccessOnly = strings.EqualFold(successOnly, "true") || successOnly == "1"
	}

	entries, errQuery := h.recorder.Query(c.Request.Context(), filter)
	if errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query activity failed"})
		return
	}
	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, formatActivityEntry(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// Stats returns aggregate counts over the audit log.
func (h *ActivityHandler) Stats(c *gin.Context) {
	stats, errStats := h.recorder.Stats(c.Request.Context(), time.Now())
	if errStats != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "activity stats failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   stats.Total,
		"success": stats.SuccessCount,
		"error":   stats.ErrorCount,
		"today":   stats.TodayCount,
	})
}

// Clear removes all audit entries.
func (h *ActivityHandler) Clear(c *gin.Context) {
	if errClear := h.recorder.Clear(c.Request.Context()); errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear activity failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// formatActivityEntry converts an audit record into response JSON.
func formatActivityEntry(entry *models.ActivityEntry) gin.H {
	out := gin.H{
		"id":        entry.ID,
		"timestamp": entry.Timestamp.Format(time.RFC3339),
		"action":    entry.Action,
		"success":   entry.Success,
		"message":   entry.Message,
	}
	if len(entry.Details) > 0 {
		var details map[string]any
		if errDecode := json.Unmarshal(entry.Details, &details); errDecode == nil {
			out["details"] = details
		}
	}
	return out
}
