// Package notification provides the follow-up notification bounded context:
// the delivery ledger, the periodic scheduler, and its HTTP surface.
package notification

import (
	"context"

	"telecrm_backend/internal/email"
	"telecrm_backend/internal/events"
	"telecrm_backend/internal/notification/followup"
	"telecrm_backend/internal/notification/handler"
	"telecrm_backend/internal/notification/ledger"
	"telecrm_backend/platform/config"
	"telecrm_backend/platform/logger"
	"telecrm_backend/platform/redislock"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the notification context together.
type Module struct {
	handler   *handler.Handler
	scheduler *followup.Scheduler
	ledger    *ledger.Repository
}

// NewModule creates and initializes the notification module. The lock may be
// nil when running a single scheduler instance.
func NewModule(pool *pgxpool.Pool, leadSource followup.LeadSource,
	directory followup.TelecallerDirectory, sender email.Sender,
	lock *redislock.Lock, eventBus events.Bus,
	cfg config.SchedulerConfig, log *logger.Logger) *Module {

	ldg := ledger.New(pool)
	scheduler := followup.New(leadSource, ldg, directory, sender, eventBus, log,
		followup.Options{
			Tick:   cfg.GetFollowUpTick(),
			Fanout: cfg.GetFollowUpFanout(),
			Lock:   lock,
		})

	return &Module{
		handler:   handler.New(scheduler, log),
		scheduler: scheduler,
		ledger:    ldg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Run drives the periodic sweep until ctx is cancelled.
func (m *Module) Run(ctx context.Context) {
	m.scheduler.Run(ctx)
}

// Scheduler returns the sweep engine for in-process callers.
func (m *Module) Scheduler() *followup.Scheduler {
	return m.scheduler
}

// RegisterRoutes mounts the notification routes on the provided group.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	m.handler.RegisterRoutes(rg)
}
