// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"telecrm_backend/platform/events"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Distribution Domain Events
// =============================================================================

// LeadAssigned is published when a single lead is assigned to a telecaller.
type LeadAssigned struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	TelecallerID uuid.UUID `json:"telecallerId"`
}

func (e LeadAssigned) EventName() string { return "distribution.lead.assigned" }

// LeadsDistributed is published after a bulk smart-assign completes.
type LeadsDistributed struct {
	BaseEvent
	RequestedLeads  int `json:"requestedLeads"`
	UpdatedLeads    int `json:"updatedLeads"`
	UnassignedLeads int `json:"unassignedLeads"`
}

func (e LeadsDistributed) EventName() string { return "distribution.leads.distributed" }

// =============================================================================
// Follow-Up Domain Events
// =============================================================================

// FollowUpSent is published when a follow-up reminder is delivered.
type FollowUpSent struct {
	BaseEvent
	LeadID           uuid.UUID `json:"leadId"`
	TelecallerID     uuid.UUID `json:"telecallerId"`
	NotificationType string    `json:"notificationType"`
	FollowUpTime     time.Time `json:"followUpTime"`
}

func (e FollowUpSent) EventName() string { return "followup.reminder.sent" }

// FollowUpFailed is published when a follow-up reminder delivery attempt fails.
type FollowUpFailed struct {
	BaseEvent
	LeadID           uuid.UUID `json:"leadId"`
	NotificationType string    `json:"notificationType"`
	Reason           string    `json:"reason"`
	RetryCount       int       `json:"retryCount"`
}

func (e FollowUpFailed) EventName() string { return "followup.reminder.failed" }
