// Package transport defines the wire contract of the telecaller service's
// internal RPC surface. The lead service's distribution client decodes the
// same shapes, so field names here are load-bearing.
package transport

import "github.com/google/uuid"

// TelecallerResponse is the contact/capacity record returned to callers.
type TelecallerResponse struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	AssignedLeads   []uuid.UUID `json:"assignedLeads"`
	DailyCallTarget int         `json:"dailyCallTarget"`
	OrganizationID  uuid.UUID   `json:"organizationId"`
}

// ValidateResponse answers a validate_telecaller call.
type ValidateResponse struct {
	IsValid    bool                `json:"isValid"`
	Telecaller *TelecallerResponse `json:"telecaller,omitempty"`
}

// AssignLeadRequest is the body of an assign_lead call.
type AssignLeadRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
}

// AssignLeadResponse reports the outcome of an assign_lead call.
type AssignLeadResponse struct {
	Success    bool                `json:"success"`
	Telecaller *TelecallerResponse `json:"telecaller,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// SmartAssignRequest is the body of a smart_assign_leads call.
type SmartAssignRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1"`
}

// TelecallerAssignment is one telecaller's share of a bulk allocation.
type TelecallerAssignment struct {
	TelecallerID  uuid.UUID   `json:"telecallerId"`
	AssignedLeads []uuid.UUID `json:"assignedLeads"`
}

// SmartAssignResponse reports the outcome of a smart_assign_leads call.
// UnassignedLeadIDs lists leads that did not fit anyone's remaining capacity;
// they are a policy outcome, not an error.
type SmartAssignResponse struct {
	Success           bool                   `json:"success"`
	Assignments       []TelecallerAssignment `json:"assignments"`
	UnassignedLeadIDs []uuid.UUID            `json:"unassignedLeadIds,omitempty"`
	Error             string                 `json:"error,omitempty"`
}

// TelecallerLeadsResponse answers a get_telecaller_leads call.
type TelecallerLeadsResponse struct {
	Success bool        `json:"success"`
	Leads   []uuid.UUID `json:"leads"`
}
