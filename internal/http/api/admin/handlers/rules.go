package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tingly-box/relayadmin/internal/activity"
	"github.com/tingly-box/relayadmin/internal/models"
	"github.com/tingly-box/relayadmin/internal/store"
)

// RuleHandler manages scenario routing rules.
type RuleHandler struct {
	store    *store.Store       // Persistence.
	recorder *activity.Recorder // Activity log.
}

// NewRuleHandler constructs a rule handler.
func NewRuleHandler(st *store.Store, recorder *activity.Recorder) *RuleHandler {
	return &RuleHandler{store: st, recorder: recorder}
}

// createRuleRequest captures the payload for creating a routing rule.
type createRuleRequest struct {
	Scenario       string `json:"scenario"`        // Scenario key.
	MatchModel     string `json:"match_model"`     // Model to match, * for any.
	TargetProvider string `json:"target_provider"` // Target provider name.
	TargetModel    string `json:"target_model"`    // Model substituted on match.
}

// Create validates and stores a routing rule.
func (h *RuleHandler) Create(c *gin.Context) {
	var body createRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	scenario := strings.TrimSpace(body.Scenario)
	targetProvider := strings.TrimSpace(body.TargetProvider)
	targetModel := strings.TrimSpace(body.TargetModel)
	if scenario == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario is required"})
		return
	}
	if targetProvider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_provider is required"})
		return
	}
	if targetModel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_model is required"})
		return
	}
	if _, errFind := h.store.GetProviderByName(c.Request.Context(), targetProvider); errFind != nil {
		c.JSON(statusForError(errFind), gin.H{"error": "target provider not found"})
		return
	}

	matchModel := strings.TrimSpace(body.MatchModel)
	if matchModel == "" {
		matchModel = models.RuleMatchAny
	}

	rule := &models.Rule{
		UUID:           uuid.NewString(),
		Scenario:       scenario,
		MatchModel:     matchModel,
		TargetProvider: targetProvider,
		TargetModel:    targetModel,
	}
	if errCreate := h.store.AddRule(c.Request.Context(), rule); errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create rule failed"})
		return
	}

	h.recorder.Record(c.Request.Context(), models.ActionAddRule, true, "added rule for "+scenario, map[string]any{
		"uuid":            rule.UUID,
		"scenario":        rule.Scenario,
		"match_model":     rule.MatchModel,
		"target_provider": rule.TargetProvider,
		"target_model":    rule.TargetModel,
	})
	c.JSON(http.StatusCreated, formatRule(rule))
}

// List returns all rules, oldest first. An optional scenario query filters.
func (h *RuleHandler) List(c *gin.Context) {
	rules, errList := h.store.ListRules(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	scenario := strings.TrimSpace(c.Query("scenario"))
	out := make([]gin.H, 0, len(rules))
	for i := range rules {
		if scenario != "" && rules[i].Scenario != scenario {
			continue
		}
		out = append(out, formatRule(&rules[i]))
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// Delete removes a rule by uuid.
func (h *RuleHandler) Delete(c *gin.Context) {
	ruleUUID := c.Param("uuid")
	if errDelete := h.store.DeleteRule(c.Request.Context(), ruleUUID); errDelete != nil {
		c.JSON(statusForError(errDelete), gin.H{"error": errDelete.Error()})
		return
	}
	h.recorder.Record(c.Request.Context(), models.ActionDeleteRule, true, "deleted rule", map[string]any{
		"uuid": ruleUUID,
	})
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// formatRule converts a rule record into response JSON.
func formatRule(rule *models.Rule) gin.H {
	return gin.H{
		"uuid":            rule.UUID,
		"scenario":        rule.Scenario,
		"match_model":     rule.MatchModel,
		"target_provider": rule.TargetProvider,
		"target_model":    rule.TargetModel,
		"created_at":      rule.CreatedAt,
	}
}
