// Package service provides lead intake and lookup. Full lead CRUD lives in
// the surrounding CRM; this service carries just enough for the distribution
// and follow-up pipelines to be exercised end to end.
package service

import (
	"context"
	"errors"

	"telecrm_backend/internal/leads/repository"
	"telecrm_backend/internal/leads/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/phone"

	"github.com/google/uuid"
)

// Repository is the consumer-driven data access interface for this service.
type Repository interface {
	Create(ctx context.Context, lead repository.Lead) (repository.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
}

// Service handles lead intake operations.
type Service struct {
	repo Repository
}

// New creates a new lead service.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create inserts a new lead with a normalized phone number.
func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	lead, err := s.repo.Create(ctx, repository.Lead{
		Name:           req.Name,
		Phone:          phone.NormalizeE164(req.Phone),
		Status:         repository.StatusNew,
		NextFollowUp:   req.NextFollowUp,
		OrganizationID: req.OrganizationID,
		Tags:           req.Tags,
		Notes:          req.Notes,
	})
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return ToLeadResponse(lead), nil
}

// GetByID fetches a single lead.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.LeadResponse{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return ToLeadResponse(lead), nil
}

// ToLeadResponse maps a repository lead to its API view.
func ToLeadResponse(lead repository.Lead) transport.LeadResponse {
	tags := lead.Tags
	if tags == nil {
		tags = []string{}
	}
	return transport.LeadResponse{
		ID:             lead.ID,
		Name:           lead.Name,
		Phone:          lead.Phone,
		Status:         string(lead.Status),
		AssignedTo:     lead.AssignedTo,
		NextFollowUp:   lead.NextFollowUp,
		OrganizationID: lead.OrganizationID,
		Tags:           tags,
		Notes:          lead.Notes,
		CreatedAt:      lead.CreatedAt,
	}
}
