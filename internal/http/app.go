// Package http provides HTTP server infrastructure including the Module
// interface that domain modules implement for route registration.
package http

import (
	"context"

	"telecrm_backend/internal/events"
	"telecrm_backend/platform/config"
	"telecrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// MultiChecker reports ready only when every dependency does.
type MultiChecker []HealthChecker

// Ping probes each dependency in order and returns the first failure.
func (m MultiChecker) Ping(ctx context.Context) error {
	for _, c := range m {
		if err := c.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// App holds the fully initialized application dependencies. It is populated
// by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP and JWT settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (e.g., DB ping).
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Modules mount under the authenticated /api/v1 group.
	Modules []Module
	// InternalModules mount under /internal/v1, the unauthenticated
	// service-to-service surface. Keep it off the public network.
	InternalModules []Module
}
