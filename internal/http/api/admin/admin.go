// Package admin wires the admin HTTP API: authentication, configuration
// management, and mapping run control.
package admin

import (
	"net/http"
	"strings"

	"github.com/docmapper/docmapper/internal/config"
	handlers "github.com/docmapper/docmapper/internal/http/api/admin/handlers"
	"github.com/docmapper/docmapper/internal/mapping"
	"github.com/docmapper/docmapper/internal/models"
	"github.com/docmapper/docmapper/internal/security"
	"github.com/docmapper/docmapper/internal/storage"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, store storage.Store, runner *mapping.Runner) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	templateHandler := handlers.NewMappingTemplateHandler(db)
	authed.POST("/mapping-templates", templateHandler.Create)
	authed.GET("/mapping-templates", templateHandler.List)
	authed.GET("/mapping-templates/:id", templateHandler.Get)
	authed.PUT("/mapping-templates/:id", templateHandler.Update)
	authed.DELETE("/mapping-templates/:id", templateHandler.Delete)

	defaultHandler := handlers.NewMappingDefaultHandler(db)
	authed.PUT("/mapping-defaults", defaultHandler.Upsert)
	authed.GET("/mapping-defaults", defaultHandler.List)
	authed.DELETE("/mapping-defaults/:id", defaultHandler.Delete)

	documentHandler := handlers.NewTemplateDocumentHandler(db)
	authed.POST("/template-documents", documentHandler.Create)
	authed.GET("/template-documents", documentHandler.List)
	authed.GET("/template-documents/:id", documentHandler.Get)
	authed.DELETE("/template-documents/:id", documentHandler.Delete)

	masterHandler := handlers.NewMasterCSVHandler(store)
	authed.GET("/master-csv/preview", masterHandler.Preview)

	orderHandler := handlers.NewOrderHandler(db, runner)
	authed.GET("/orders", orderHandler.List)
	authed.GET("/orders/:id", orderHandler.Get)
	authed.POST("/orders/:id/run", orderHandler.Run)

	settingHandler := handlers.NewSettingHandler(db)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
