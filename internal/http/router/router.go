// Package router builds the gin engine from an initialized App.
package router

import (
	"net/http"
	"time"

	apphttp "telecrm_backend/internal/http"
	"telecrm_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// New constructs the HTTP engine: shared middleware, health probes, the
// authenticated /api/v1 surface, and the internal service-to-service surface.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(app))

	limiter := httpkit.NewIPRateLimiter(10, 30, app.Logger)
	engine.Use(limiter.RateLimit())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if len(app.Modules) > 0 {
		v1 := engine.Group("/api/v1")
		v1.Use(httpkit.AuthRequired(app.Config))
		for _, m := range app.Modules {
			m.RegisterRoutes(v1)
			app.Logger.Info("registered module routes", "module", m.Name(), "surface", "api")
		}
	}

	if len(app.InternalModules) > 0 {
		internal := engine.Group("/internal/v1")
		for _, m := range app.InternalModules {
			m.RegisterRoutes(internal)
			app.Logger.Info("registered module routes", "module", m.Name(), "surface", "internal")
		}
	}

	return engine
}

func corsMiddleware(app *apphttp.App) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: app.Config.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if app.Config.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = app.Config.GetCORSOrigins()
	}
	return cors.New(corsCfg)
}
