package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tingly-box/relayadmin/internal/config"
	"github.com/tingly-box/relayadmin/internal/security"
)

// AuthHandler issues admin session tokens.
type AuthHandler struct {
	cfg *config.Config // Admin credentials and JWT settings.
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// loginRequest captures the login payload.
type loginRequest struct {
	Username string `json:"username"` // Admin username.
	Password string `json:"password"` // Admin password.
}

// Login validates admin credentials and returns a signed JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	if username != h.cfg.Admin.Username || !h.cfg.Admin.CheckPassword(body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errSign := security.SignAdminToken(h.cfg.JWT.Secret, username, h.cfg.JWT.Expiry.Std())
	if errSign != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": time.Now().Add(h.cfg.JWT.Expiry.Std()).UTC().Format(time.RFC3339),
	})
}
