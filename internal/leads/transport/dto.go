// Package transport defines request and response shapes for the lead API.
package transport

import (
	"time"

	"telecrm_backend/internal/telecaller/transport"

	"github.com/google/uuid"
)

// CreateLeadRequest is the intake payload for a new lead.
type CreateLeadRequest struct {
	Name           string     `json:"name" validate:"required"`
	Phone          string     `json:"phone" validate:"required"`
	OrganizationID uuid.UUID  `json:"organizationId" validate:"required"`
	NextFollowUp   *time.Time `json:"nextFollowUp,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// LeadResponse is the API view of a lead.
type LeadResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Status         string     `json:"status"`
	AssignedTo     *uuid.UUID `json:"assignedTo,omitempty"`
	NextFollowUp   *time.Time `json:"nextFollowUp,omitempty"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	Tags           []string   `json:"tags"`
	Notes          string     `json:"notes"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// AssignLeadRequest asks for a single lead to be assigned to a telecaller.
type AssignLeadRequest struct {
	TelecallerID uuid.UUID `json:"telecallerId" validate:"required"`
}

// AssignLeadResponse reports a completed single assignment.
type AssignLeadResponse struct {
	Success      bool      `json:"success"`
	LeadID       uuid.UUID `json:"leadId"`
	TelecallerID uuid.UUID `json:"telecallerId"`
	// Reconciled is false when the remote append succeeded but the local
	// write-back did not; a reconcile task has been queued in that case.
	Reconciled bool `json:"reconciled"`
}

// SmartAssignRequest asks for a batch of leads to be distributed.
type SmartAssignRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1"`
}

// SmartAssignResponse summarizes a bulk distribution. UpdatedLeads counts
// local lead-store rows actually modified; when it is lower than the total
// allocated, reconciliation is pending for the difference.
type SmartAssignResponse struct {
	Success           bool                             `json:"success"`
	Message           string                           `json:"message"`
	Assignments       []transport.TelecallerAssignment `json:"assignments"`
	UnassignedLeadIDs []uuid.UUID                      `json:"unassignedLeadIds,omitempty"`
	UpdatedLeads      int                              `json:"updatedLeads"`
}
