package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tingly-box/relayadmin/internal/models"
	"github.com/tingly-box/relayadmin/internal/oauthflow"
	"github.com/tingly-box/relayadmin/internal/registry"
	"github.com/tingly-box/relayadmin/internal/routing"
	"github.com/tingly-box/relayadmin/internal/store"
)

// ProviderHandler manages admin CRUD for providers.
type ProviderHandler struct {
	registry *registry.Registry // Provider registry.
	oauth    *oauthflow.Manager // OAuth lifecycle manager.
}

// NewProviderHandler constructs a provider handler.
func NewProviderHandler(reg *registry.Registry, oauth *oauthflow.Manager) *ProviderHandler {
	return &ProviderHandler{registry: reg, oauth: oauth}
}

// createProviderRequest captures the payload for creating a provider.
type createProviderRequest struct {
	Name          string   `json:"name"`            // Provider name.
	AuthType      string   `json:"auth_type"`       // api_key (default) or oauth.
	APIBase       string   `json:"api_base"`        // Upstream base URL.
	APIStyle      string   `json:"api_style"`       // openai (default) or anthropic.
	Token         string   `json:"token"`           // API key.
	NoKeyRequired bool     `json:"no_key_required"` // Permit empty token.
	Enabled       *bool    `json:"enabled"`         // Defaults to true.
	ProxyURL      string   `json:"proxy_url"`       // Optional probe proxy.
	AccessToken   string   `json:"access_token"`    // OAuth access token.
	RefreshToken  string   `json:"refresh_token"`   // OAuth refresh token.
	ExpiresAt     string   `json:"expires_at"`      // OAuth expiry (RFC3339).
	Scopes        []string `json:"scopes"`          // OAuth scopes.
}

// updateProviderRequest captures optional fields for updates. Omitted token
// fields keep the existing secret.
type updateProviderRequest struct {
	Name          *string `json:"name"`            // Optional name.
	APIBase       *string `json:"api_base"`        // Optional base URL.
	APIStyle      *string `json:"api_style"`       // Optional style.
	Token         *string `json:"token"`           // Optional API key.
	NoKeyRequired *bool   `json:"no_key_required"` // Optional flag.
	Enabled       *bool   `json:"enabled"`         // Optional flag.
	ProxyURL      *string `json:"proxy_url"`       // Optional proxy.
}

// Create validates and inserts a provider. The force query flag commits
// despite a failed connectivity probe.
func (h *ProviderHandler) Create(c *gin.Context) {
	force := strings.EqualFold(strings.TrimSpace(c.Query("force")), "true") || c.Query("force") == "1"

	var body createProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	spec := registry.ProviderSpec{
		Name:          body.Name,
		AuthType:      body.AuthType,
		APIBase:       body.APIBase,
		APIStyle:      body.APIStyle,
		Token:         body.Token,
		NoKeyRequired: body.NoKeyRequired,
		Enabled:       true,
		ProxyURL:      body.ProxyURL,
	}
	if body.Enabled != nil {
		spec.Enabled = *body.Enabled
	}
	if strings.EqualFold(strings.TrimSpace(body.AuthType), models.AuthTypeOAuth) {
		oauthSpec := &registry.OAuthSpec{
			AccessToken:  body.AccessToken,
			RefreshToken: body.RefreshToken,
			Scopes:       body.Scopes,
		}
		if expiresAt := strings.TrimSpace(body.ExpiresAt); expiresAt != "" {
			if parsed, errParse := time.Parse(time.RFC3339, expiresAt); errParse == nil {
				parsedUTC := parsed.UTC()
				oauthSpec.ExpiresAt = &parsedUTC
			}
		}
		spec.OAuth = oauthSpec
	}

	provider, errAdd := h.registry.Add(c.Request.Context(), spec, force)
	if errAdd != nil {
		c.JSON(statusForError(errAdd), gin.H{"error": errAdd.Error()})
		return
	}
	c.JSON(http.StatusCreated, formatProvider(provider))
}

// List returns all providers in creation order.
func (h *ProviderHandler) List(c *gin.Context) {
	providers, errList := h.registry.List(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list providers failed"})
		return
	}
	out := make([]gin.H, 0, len(providers))
	for i := range providers {
		out = append(out, formatProvider(&providers[i]))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Get returns a single provider by uuid.
func (h *ProviderHandler) Get(c *gin.Context) {
	provider, errGet := h.registry.Get(c.Request.Context(), c.Param("uuid"))
	if errGet != nil {
		c.JSON(statusForError(errGet), gin.H{"error": errGet.Error()})
		return
	}
	c.JSON(http.StatusOK, formatProvider(provider))
}

// Update applies a partial update to a provider.
func (h *ProviderHandler) Update(c *gin.Context) {
	var body updateProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	provider, errUpdate := h.registry.Update(c.Request.Context(), c.Param("uuid"), registry.ProviderPatch{
		Name:          body.Name,
		APIBase:       body.APIBase,
		APIStyle:      body.APIStyle,
		Token:         body.Token,
		NoKeyRequired: body.NoKeyRequired,
		Enabled:       body.Enabled,
		ProxyURL:      body.ProxyURL,
	})
	if errUpdate != nil {
		c.JSON(statusForError(errUpdate), gin.H{"error": errUpdate.Error()})
		return
	}
	c.JSON(http.StatusOK, formatProvider(provider))
}

// Delete removes a provider and its dependent rules.
func (h *ProviderHandler) Delete(c *gin.Context) {
	if errDelete := h.registry.Delete(c.Request.Context(), c.Param("uuid")); errDelete != nil {
		c.JSON(statusForError(errDelete), gin.H{"error": errDelete.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Toggle flips a provider's enabled flag.
func (h *ProviderHandler) Toggle(c *gin.Context) {
	provider, errToggle := h.registry.Toggle(c.Request.Context(), c.Param("uuid"))
	if errToggle != nil {
		c.JSON(statusForError(errToggle), gin.H{"error": errToggle.Error()})
		return
	}
	c.JSON(http.StatusOK, formatProvider(provider))
}

// Refresh exchanges the provider's refresh token for fresh credentials.
func (h *ProviderHandler) Refresh(c *gin.Context) {
	provider, errRefresh := h.oauth.Refresh(c.Request.Context(), c.Param("uuid"))
	if errRefresh != nil {
		c.JSON(statusForError(errRefresh), gin.H{"error": errRefresh.Error()})
		return
	}
	c.JSON(http.StatusOK, formatProvider(provider))
}

// authorizeProviderRequest captures the payload for OAuth authorization.
type authorizeProviderRequest struct {
	Name     string `json:"name"`      // Provider name.
	APIBase  string `json:"api_base"`  // Upstream base URL.
	APIStyle string `json:"api_style"` // openai or anthropic.
	ProxyURL string `json:"proxy_url"` // Optional proxy.
	Enabled  *bool  `json:"enabled"`   // Defaults to true.
	Code     string `json:"code"`      // Authorization code.
}

// Authorize exchanges an authorization code and stores the provider.
func (h *ProviderHandler) Authorize(c *gin.Context) {
	var body authorizeProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	draft := oauthflow.ProviderDraft{
		Name:     body.Name,
		APIBase:  body.APIBase,
		APIStyle: body.APIStyle,
		ProxyURL: body.ProxyURL,
		Enabled:  true,
	}
	if body.Enabled != nil {
		draft.Enabled = *body.Enabled
	}

	provider, errAuthorize := h.oauth.Authorize(c.Request.Context(), draft, body.Code)
	if errAuthorize != nil {
		c.JSON(statusForError(errAuthorize), gin.H{"error": errAuthorize.Error()})
		return
	}
	c.JSON(http.StatusOK, formatProvider(provider))
}

// formatProvider converts a provider record into response JSON.
func formatProvider(provider *models.Provider) gin.H {
	if provider == nil {
		return gin.H{}
	}
	out := gin.H{
		"uuid":            provider.UUID,
		"name":            provider.Name,
		"auth_type":       provider.AuthType,
		"api_base":        provider.APIBase,
		"api_style":       provider.APIStyle,
		"no_key_required": provider.NoKeyRequired,
		"enabled":         provider.Enabled,
		"proxy_url":       provider.ProxyURL,
		"created_at":      provider.CreatedAt,
		"updated_at":      provider.UpdatedAt,
	}
	switch provider.AuthType {
	case models.AuthTypeOAuth:
		oauthState := gin.H{
			"access_token":  provider.OAuthAccessToken,
			"refresh_token": provider.OAuthRefreshToken,
			"scopes":        provider.Scopes(),
			"state":         provider.OAuthState(time.Now()),
		}
		if provider.OAuthExpiresAt != nil {
			oauthState["expires_at"] = provider.OAuthExpiresAt.Format(time.RFC3339)
		}
		out["oauth_state"] = oauthState
	default:
		out["token"] = provider.Token
	}
	return out
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, registry.ErrConflictDuringProbe):
		return http.StatusConflict
	case registry.IsValidation(err):
		return http.StatusBadRequest
	case registry.IsProbeFailed(err):
		return http.StatusBadRequest
	case errors.Is(err, oauthflow.ErrRefreshDenied),
		errors.Is(err, oauthflow.ErrNotOAuth),
		errors.Is(err, oauthflow.ErrNoRefreshToken):
		return http.StatusBadRequest
	case errors.Is(err, routing.ErrNoRouteAvailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
