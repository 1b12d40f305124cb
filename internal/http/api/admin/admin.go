// Package admin wires the management HTTP API.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tingly-box/relayadmin/internal/activity"
	"github.com/tingly-box/relayadmin/internal/config"
	"github.com/tingly-box/relayadmin/internal/http/api/admin/handlers"
	"github.com/tingly-box/relayadmin/internal/oauthflow"
	"github.com/tingly-box/relayadmin/internal/registry"
	"github.com/tingly-box/relayadmin/internal/routing"
	"github.com/tingly-box/relayadmin/internal/security"
	"github.com/tingly-box/relayadmin/internal/store"
	"gorm.io/gorm"
)

// Deps carries the components the admin API operates on.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Store    *store.Store
	Registry *registry.Registry
	Resolver *routing.Resolver
	OAuth    *oauthflow.Manager
	Recorder *activity.Recorder
}

// Register mounts the management API under /v0.
func Register(router *gin.Engine, deps Deps) {
	providerHandler := handlers.NewProviderHandler(deps.Registry, deps.OAuth)
	ruleHandler := handlers.NewRuleHandler(deps.Store, deps.Recorder)
	defaultsHandler := handlers.NewDefaultsHandler(deps.Store, deps.Recorder)
	activityHandler := handlers.NewActivityHandler(deps.Recorder)
	resolveHandler := handlers.NewResolveHandler(deps.Resolver)
	authHandler := handlers.NewAuthHandler(deps.Config)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	router.GET("/healthz", healthHandler.Health)

	v0 := router.Group("/v0")
	v0.POST("/auth/login", authHandler.Login)

	adminGroup := v0.Group("/admin", authMiddleware(deps.Config.JWT.Secret))
	{
		adminGroup.GET("/providers", providerHandler.List)
		adminGroup.POST("/providers", providerHandler.Create)
		adminGroup.GET("/providers/:uuid", providerHandler.Get)
		adminGroup.PUT("/providers/:uuid", providerHandler.Update)
		adminGroup.DELETE("/providers/:uuid", providerHandler.Delete)
		adminGroup.POST("/providers/:uuid/toggle", providerHandler.Toggle)
		adminGroup.POST("/providers/:uuid/refresh", providerHandler.Refresh)
		adminGroup.POST("/providers/authorize", providerHandler.Authorize)

		adminGroup.GET("/rules", ruleHandler.List)
		adminGroup.POST("/rules", ruleHandler.Create)
		adminGroup.DELETE("/rules/:uuid", ruleHandler.Delete)

		adminGroup.GET("/defaults", defaultsHandler.Get)
		adminGroup.PUT("/defaults", defaultsHandler.Update)

		adminGroup.GET("/resolve", resolveHandler.Resolve)

		adminGroup.GET("/activity", activityHandler.List)
		adminGroup.GET("/activity/stats", activityHandler.Stats)
		adminGroup.DELETE("/activity", activityHandler.Clear)
	}
}

// authMiddleware rejects requests without a valid bearer token.
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, errParse := security.ParseAdminToken(secret, token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("admin_user", claims.Username)
		c.Next()
	}
}
