package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tingly-box/relayadmin/internal/routing"
)

// ResolveHandler answers routing queries.
type ResolveHandler struct {
	resolver *routing.Resolver // Routing resolver.
}

// NewResolveHandler constructs a resolve handler.
func NewResolveHandler(resolver *routing.Resolver) *ResolveHandler {
	return &ResolveHandler{resolver: resolver}
}

// Resolve maps a scenario and requested model to a provider and model.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	scenario := strings.TrimSpace(c.Query("scenario"))
	if scenario == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario is required"})
		return
	}
	model := strings.TrimSpace(c.Query("model"))

	route, errResolve := h.resolver.Resolve(c.Request.Context(), scenario, model)
	if errResolve != nil {
		c.JSON(statusForError(errResolve), gin.H{"error": errResolve.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": route.Provider,
		"model":    route.Model,
	})
}
