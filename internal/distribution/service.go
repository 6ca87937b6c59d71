// Package distribution implements the lead-service side of lead assignment:
// validating local state, calling the telecaller service, and reconciling the
// returned allocation into the lead store. The remote allocation is the source
// of truth for who owns what; the local write-back is best-effort propagation
// backed by queued reconciliation.
package distribution

import (
	"context"
	"errors"
	"fmt"

	"telecrm_backend/internal/events"
	"telecrm_backend/internal/leads/repository"
	leadtransport "telecrm_backend/internal/leads/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadStore is the consumer-driven lead-store interface for this service.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	FilterExisting(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	SetAssignedTo(ctx context.Context, leadID, telecallerID uuid.UUID) (bool, error)
	BulkSetAssignedTo(ctx context.Context, leadIDs []uuid.UUID, telecallerID uuid.UUID) (int, error)
}

// ReconcileQueue accepts write-back groups that failed locally after the
// remote allocation succeeded; the scheduler worker replays them.
type ReconcileQueue interface {
	EnqueueReconcile(ctx context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) error
}

// Service is the distribution coordinator.
type Service struct {
	leads     LeadStore
	client    TelecallerClient
	reconcile ReconcileQueue
	eventBus  events.Bus
	log       *logger.Logger
}

// New creates a new distribution coordinator.
func New(leads LeadStore, client TelecallerClient, reconcile ReconcileQueue, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		leads:     leads,
		client:    client,
		reconcile: reconcile,
		eventBus:  eventBus,
		log:       log,
	}
}

// Assign assigns one lead to one telecaller. The remote append happens first;
// a local write-back failure afterwards leaves the stores inconsistent, which
// is logged and queued for reconciliation rather than masked - the operation
// still reports success because the telecaller-side state is authoritative.
func (s *Service) Assign(ctx context.Context, leadID, telecallerID uuid.UUID) (leadtransport.AssignLeadResponse, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return leadtransport.AssignLeadResponse{}, apperr.NotFound(fmt.Sprintf("lead %s not found", leadID))
	}
	if err != nil {
		return leadtransport.AssignLeadResponse{}, err
	}

	validation, err := s.client.Validate(ctx, telecallerID)
	if err != nil {
		return leadtransport.AssignLeadResponse{}, err
	}
	if !validation.IsValid {
		return leadtransport.AssignLeadResponse{}, apperr.NotFound(fmt.Sprintf("telecaller %s not found", telecallerID))
	}

	if lead.AssignedTo != nil && *lead.AssignedTo == telecallerID {
		return leadtransport.AssignLeadResponse{}, apperr.Conflict(
			fmt.Sprintf("lead %s is already assigned to telecaller %s", leadID, telecallerID))
	}

	if _, err := s.client.AssignLead(ctx, telecallerID, leadID); err != nil {
		return leadtransport.AssignLeadResponse{}, err
	}

	reconciled := true
	if _, err := s.leads.SetAssignedTo(ctx, leadID, telecallerID); err != nil {
		// Remote says assigned, local store does not. Surface the gap and
		// queue a convergent retry; do not fail the operation.
		reconciled = false
		s.log.Inconsistency("lead assigned remotely but local write-back failed",
			"leadId", leadID.String(), "telecallerId", telecallerID.String(), "error", err.Error())
		s.enqueueReconcile(ctx, telecallerID, []uuid.UUID{leadID})
	}

	s.eventBus.Publish(ctx, events.LeadAssigned{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		TelecallerID: telecallerID,
	})

	return leadtransport.AssignLeadResponse{
		Success:      true,
		LeadID:       leadID,
		TelecallerID: telecallerID,
		Reconciled:   reconciled,
	}, nil
}

// SmartAssign distributes a batch of leads. Every requested id must exist
// locally before anything is sent across the service boundary; a remote
// failure before allocation aborts the whole operation. After the allocation
// comes back, each telecaller group is written back independently - one
// group's failure never stops the others, it only reduces updatedLeads and
// queues reconciliation for that group.
func (s *Service) SmartAssign(ctx context.Context, leadIDs []uuid.UUID) (leadtransport.SmartAssignResponse, error) {
	if len(leadIDs) == 0 {
		return leadtransport.SmartAssignResponse{}, apperr.Validation("leadIds must not be empty")
	}

	existing, err := s.leads.FilterExisting(ctx, leadIDs)
	if err != nil {
		return leadtransport.SmartAssignResponse{}, err
	}
	if missing := missingIDs(leadIDs, existing); len(missing) > 0 {
		return leadtransport.SmartAssignResponse{}, apperr.NotFound("some leads do not exist").
			WithDetails(missing)
	}

	allocation, err := s.client.SmartAssign(ctx, leadIDs)
	if err != nil {
		// No partial allocation exists yet; abort the whole operation.
		return leadtransport.SmartAssignResponse{}, err
	}

	updated := 0
	for _, group := range allocation.Assignments {
		modified, err := s.leads.BulkSetAssignedTo(ctx, group.AssignedLeads, group.TelecallerID)
		if err != nil {
			s.log.Inconsistency("bulk write-back failed for telecaller group",
				"telecallerId", group.TelecallerID.String(),
				"leads", len(group.AssignedLeads), "error", err.Error())
			s.enqueueReconcile(ctx, group.TelecallerID, group.AssignedLeads)
			continue
		}
		updated += modified
	}

	s.eventBus.Publish(ctx, events.LeadsDistributed{
		BaseEvent:       events.NewBaseEvent(),
		RequestedLeads:  len(leadIDs),
		UpdatedLeads:    updated,
		UnassignedLeads: len(allocation.UnassignedLeadIDs),
	})

	return leadtransport.SmartAssignResponse{
		Success:           true,
		Message:           fmt.Sprintf("distributed %d of %d leads", len(leadIDs)-len(allocation.UnassignedLeadIDs), len(leadIDs)),
		Assignments:       allocation.Assignments,
		UnassignedLeadIDs: allocation.UnassignedLeadIDs,
		UpdatedLeads:      updated,
	}, nil
}

// Reconcile replays one telecaller group's local write-back. It is the
// scheduler worker's entry point and is safe to run any number of times.
func (s *Service) Reconcile(ctx context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	return s.leads.BulkSetAssignedTo(ctx, leadIDs, telecallerID)
}

func (s *Service) enqueueReconcile(ctx context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) {
	if s.reconcile == nil {
		return
	}
	if err := s.reconcile.EnqueueReconcile(ctx, telecallerID, leadIDs); err != nil {
		s.log.Error("failed to enqueue reconcile task",
			"telecallerId", telecallerID.String(), "error", err)
	}
}

func missingIDs(requested, existing []uuid.UUID) []uuid.UUID {
	present := make(map[uuid.UUID]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
	}

	var missing []uuid.UUID
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
