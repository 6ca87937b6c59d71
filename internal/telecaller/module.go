// Package telecaller provides the telecaller capacity bounded context:
// the capacity store, the assignment engine, and the internal RPC surface
// consumed by the lead service.
package telecaller

import (
	"telecrm_backend/internal/telecaller/handler"
	"telecrm_backend/internal/telecaller/repository"
	"telecrm_backend/internal/telecaller/service"
	"telecrm_backend/platform/logger"
	"telecrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the telecaller context together.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the telecaller module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "telecaller"
}

// Service returns the telecaller service for in-process callers.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the capacity store for health probes.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts the internal RPC routes.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	m.handler.RegisterRoutes(rg)
}
