// Package service implements the telecaller-side operations of lead
// distribution: validation, single appends, and bulk allocation via the
// assignment engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"telecrm_backend/internal/telecaller/engine"
	"telecrm_backend/internal/telecaller/repository"
	"telecrm_backend/internal/telecaller/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the consumer-driven data access interface for this service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Telecaller, error)
	List(ctx context.Context) ([]repository.Telecaller, error)
	AppendAssignment(ctx context.Context, telecallerID, leadID uuid.UUID) (bool, error)
	AppendAssignments(ctx context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) (int, error)
	HasLead(ctx context.Context, telecallerID, leadID uuid.UUID) (bool, error)
	AssignedLeadIDs(ctx context.Context, telecallerID uuid.UUID) ([]uuid.UUID, error)
}

// Service handles telecaller capacity operations.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// New creates a new telecaller service.
func New(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Validate checks whether the telecaller exists and returns its record.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (transport.ValidateResponse, error) {
	tc, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.ValidateResponse{IsValid: false}, nil
	}
	if err != nil {
		return transport.ValidateResponse{}, err
	}

	resp := toTelecallerResponse(tc)
	return transport.ValidateResponse{IsValid: true, Telecaller: &resp}, nil
}

// Get returns the contact/capacity record for a telecaller.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (transport.TelecallerResponse, error) {
	tc, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.TelecallerResponse{}, apperr.NotFound("telecaller not found")
	}
	if err != nil {
		return transport.TelecallerResponse{}, err
	}
	return toTelecallerResponse(tc), nil
}

// AssignLead appends one lead to a telecaller's assigned set. A lead already
// present is a Conflict, surfaced to the caller without retry.
func (s *Service) AssignLead(ctx context.Context, telecallerID, leadID uuid.UUID) (transport.AssignLeadResponse, error) {
	tc, err := s.repo.GetByID(ctx, telecallerID)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.AssignLeadResponse{}, apperr.NotFound("telecaller not found")
	}
	if err != nil {
		return transport.AssignLeadResponse{}, err
	}

	changed, err := s.repo.AppendAssignment(ctx, telecallerID, leadID)
	if err != nil {
		return transport.AssignLeadResponse{}, err
	}
	if !changed {
		return transport.AssignLeadResponse{}, apperr.Conflict(
			fmt.Sprintf("lead %s is already assigned to telecaller %s", leadID, telecallerID))
	}

	tc.AssignedLeads = append(tc.AssignedLeads, leadID)
	resp := toTelecallerResponse(tc)
	return transport.AssignLeadResponse{Success: true, Telecaller: &resp}, nil
}

// SmartAssign allocates a batch of leads across all telecallers using the
// greedy least-loaded engine, then persists each telecaller's share. A
// persistence failure for one telecaller does not abort the others; its share
// is reported back as unassigned so the caller sees the true allocation.
func (s *Service) SmartAssign(ctx context.Context, leadIDs []uuid.UUID) (transport.SmartAssignResponse, error) {
	telecallers, err := s.repo.List(ctx)
	if err != nil {
		return transport.SmartAssignResponse{}, err
	}

	candidates := make([]engine.Candidate, 0, len(telecallers))
	for _, tc := range telecallers {
		candidates = append(candidates, engine.Candidate{
			ID:              tc.ID,
			AssignedCount:   len(tc.AssignedLeads),
			DailyCallTarget: tc.DailyCallTarget,
		})
	}

	alloc, err := engine.Distribute(leadIDs, candidates)
	if err != nil {
		return transport.SmartAssignResponse{}, err
	}

	resp := transport.SmartAssignResponse{
		Success:           true,
		Assignments:       make([]transport.TelecallerAssignment, 0, len(alloc.Assignments)),
		UnassignedLeadIDs: alloc.UnassignedLeadIDs,
	}

	for _, telecallerID := range sortedKeys(alloc.Assignments) {
		assigned := alloc.Assignments[telecallerID]
		if _, err := s.repo.AppendAssignments(ctx, telecallerID, assigned); err != nil {
			s.log.DatabaseError("telecallers.append_assignments", err)
			resp.UnassignedLeadIDs = append(resp.UnassignedLeadIDs, assigned...)
			continue
		}
		resp.Assignments = append(resp.Assignments, transport.TelecallerAssignment{
			TelecallerID:  telecallerID,
			AssignedLeads: assigned,
		})
	}

	return resp, nil
}

// GetLeads returns the lead ids currently assigned to a telecaller.
func (s *Service) GetLeads(ctx context.Context, telecallerID uuid.UUID) (transport.TelecallerLeadsResponse, error) {
	leads, err := s.repo.AssignedLeadIDs(ctx, telecallerID)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.TelecallerLeadsResponse{}, apperr.NotFound("telecaller not found")
	}
	if err != nil {
		return transport.TelecallerLeadsResponse{}, err
	}
	if leads == nil {
		leads = []uuid.UUID{}
	}
	return transport.TelecallerLeadsResponse{Success: true, Leads: leads}, nil
}

func toTelecallerResponse(tc repository.Telecaller) transport.TelecallerResponse {
	leads := tc.AssignedLeads
	if leads == nil {
		leads = []uuid.UUID{}
	}
	return transport.TelecallerResponse{
		ID:              tc.ID,
		Name:            tc.Name,
		Email:           tc.Email,
		Phone:           tc.Phone,
		AssignedLeads:   leads,
		DailyCallTarget: tc.DailyCallTarget,
		OrganizationID:  tc.OrganizationID,
	}
}

func sortedKeys(m map[uuid.UUID][]uuid.UUID) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.Compare(keys[i].String(), keys[j].String()) < 0
	})
	return keys
}
