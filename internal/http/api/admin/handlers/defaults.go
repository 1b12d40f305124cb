package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tingly-box/relayadmin/internal/activity"
	"github.com/tingly-box/relayadmin/internal/models"
	"github.com/tingly-box/relayadmin/internal/store"
)

// DefaultsHandler manages the process-wide routing defaults.
type DefaultsHandler struct {
	store    *store.Store       // Persistence.
	recorder *activity.Recorder // Activity log.
}

// NewDefaultsHandler constructs a defaults handler.
func NewDefaultsHandler(st *store.Store, recorder *activity.Recorder) *DefaultsHandler {
	return &DefaultsHandler{store: st, recorder: recorder}
}

// updateDefaultsRequest captures optional routing default fields. Omitted
// fields keep their current value.
type updateDefaultsRequest struct {
	DefaultProvider *string `json:"default_provider"` // Fallback provider name.
	DefaultModel    *string `json:"default_model"`    // Fallback model.
	RequestModel    *string `json:"request_model"`    // Inbound model rewrite.
	ResponseModel   *string `json:"response_model"`   // Outbound model rewrite.
}

// Get returns the current routing defaults.
func (h *DefaultsHandler) Get(c *gin.Context) {
	defaults, errGet := h.store.GetDefaults(c.Request.Context())
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load defaults failed"})
		return
	}
	c.JSON(http.StatusOK, defaults)
}

// Update applies a partial update to the routing defaults. Setting
// default_provider requires the provider to exist.
func (h *DefaultsHandler) Update(c *gin.Context) {
	var body updateDefaultsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	defaults, errGet := h.store.GetDefaults(c.Request.Context())
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load defaults failed"})
		return
	}

	if body.DefaultProvider != nil {
		name := strings.TrimSpace(*body.DefaultProvider)
		if name != "" {
			if _, errFind := h.store.GetProviderByName(c.Request.Context(), name); errFind != nil {
				c.JSON(statusForError(errFind), gin.H{"error": "default provider not found"})
				return
			}
		}
		defaults.DefaultProvider = name
	}
	if body.DefaultModel != nil {
		defaults.DefaultModel = strings.TrimSpace(*body.DefaultModel)
	}
	if body.RequestModel != nil {
		defaults.RequestModel = strings.TrimSpace(*body.RequestModel)
	}
	if body.ResponseModel != nil {
		defaults.ResponseModel = strings.TrimSpace(*body.ResponseModel)
	}

	if errSave := h.store.SetDefaults(c.Request.Context(), defaults); errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save defaults failed"})
		return
	}

	h.recorder.Record(c.Request.Context(), models.ActionUpdateDefaults, true, "updated routing defaults", map[string]any{
		"default_provider": defaults.DefaultProvider,
		"default_model":    defaults.DefaultModel,
		"request_model":    defaults.RequestModel,
		"response_model":   defaults.ResponseModel,
	})
	c.JSON(http.StatusOK, defaults)
}
