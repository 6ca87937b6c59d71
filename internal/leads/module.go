// Package leads provides the lead bounded context module: the lead store,
// intake, and the distribution coordinator's HTTP surface.
package leads

import (
	"telecrm_backend/internal/distribution"
	"telecrm_backend/internal/events"
	"telecrm_backend/internal/leads/handler"
	"telecrm_backend/internal/leads/repository"
	"telecrm_backend/internal/leads/service"
	"telecrm_backend/platform/config"
	"telecrm_backend/platform/logger"
	"telecrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the leads context together.
type Module struct {
	handler      *handler.Handler
	service      *service.Service
	distribution *distribution.Service
	repo         *repository.Repository
	client       *distribution.HTTPClient
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, reconcile distribution.ReconcileQueue,
	cfg config.TelecallerServiceConfig, val *validator.Validator, log *logger.Logger) *Module {

	repo := repository.New(pool)
	svc := service.New(repo)
	client := distribution.NewHTTPClient(cfg, log)
	dist := distribution.New(repo, client, reconcile, eventBus, log)

	return &Module{
		handler:      handler.New(svc, dist, val),
		service:      svc,
		distribution: dist,
		repo:         repo,
		client:       client,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// DistributionService returns the coordinator for the reconcile worker.
func (m *Module) DistributionService() *distribution.Service {
	return m.distribution
}

// TelecallerProbe returns the remote dependency's liveness checker.
func (m *Module) TelecallerProbe() *distribution.HTTPClient {
	return m.client
}

// Repository returns the lead store for the follow-up scheduler and probes.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts leads routes on the provided group.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	m.handler.RegisterRoutes(rg)
}
