package distribution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"telecrm_backend/internal/events"
	"telecrm_backend/internal/leads/repository"
	"telecrm_backend/internal/telecaller/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	leads       map[uuid.UUID]repository.Lead
	failSetFor  map[uuid.UUID]error // keyed by telecaller id, fails BulkSetAssignedTo
	failSet     error               // fails SetAssignedTo
	bulkCalls   [][]uuid.UUID
	singleCalls []uuid.UUID
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{
		leads:      make(map[uuid.UUID]repository.Lead),
		failSetFor: make(map[uuid.UUID]error),
	}
}

func (f *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	return l, nil
}

func (f *fakeLeadStore) FilterExisting(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var existing []uuid.UUID
	for _, id := range ids {
		if _, ok := f.leads[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (f *fakeLeadStore) SetAssignedTo(_ context.Context, leadID, telecallerID uuid.UUID) (bool, error) {
	if f.failSet != nil {
		return false, f.failSet
	}
	f.singleCalls = append(f.singleCalls, leadID)
	l := f.leads[leadID]
	l.AssignedTo = &telecallerID
	f.leads[leadID] = l
	return true, nil
}

func (f *fakeLeadStore) BulkSetAssignedTo(_ context.Context, leadIDs []uuid.UUID, telecallerID uuid.UUID) (int, error) {
	if err, ok := f.failSetFor[telecallerID]; ok {
		return 0, err
	}
	f.bulkCalls = append(f.bulkCalls, leadIDs)
	for _, id := range leadIDs {
		l := f.leads[id]
		l.AssignedTo = &telecallerID
		f.leads[id] = l
	}
	return len(leadIDs), nil
}

type fakeTelecallerClient struct {
	valid       map[uuid.UUID]bool
	assignErr   error
	smartResult transport.SmartAssignResponse
	smartErr    error
}

func (f *fakeTelecallerClient) Validate(_ context.Context, id uuid.UUID) (transport.ValidateResponse, error) {
	return transport.ValidateResponse{IsValid: f.valid[id]}, nil
}

func (f *fakeTelecallerClient) AssignLead(_ context.Context, telecallerID, leadID uuid.UUID) (transport.AssignLeadResponse, error) {
	if f.assignErr != nil {
		return transport.AssignLeadResponse{}, f.assignErr
	}
	return transport.AssignLeadResponse{Success: true}, nil
}

func (f *fakeTelecallerClient) SmartAssign(_ context.Context, leadIDs []uuid.UUID) (transport.SmartAssignResponse, error) {
	if f.smartErr != nil {
		return transport.SmartAssignResponse{}, f.smartErr
	}
	return f.smartResult, nil
}

func (f *fakeTelecallerClient) GetLeads(context.Context, uuid.UUID) (transport.TelecallerLeadsResponse, error) {
	return transport.TelecallerLeadsResponse{}, nil
}

func (f *fakeTelecallerClient) GetTelecaller(context.Context, uuid.UUID) (transport.TelecallerResponse, error) {
	return transport.TelecallerResponse{}, nil
}

func (f *fakeTelecallerClient) Ping(context.Context) error { return nil }

type fakeReconcileQueue struct {
	enqueued map[uuid.UUID][]uuid.UUID
}

func newFakeReconcileQueue() *fakeReconcileQueue {
	return &fakeReconcileQueue{enqueued: make(map[uuid.UUID][]uuid.UUID)}
}

func (f *fakeReconcileQueue) EnqueueReconcile(_ context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) error {
	f.enqueued[telecallerID] = append(f.enqueued[telecallerID], leadIDs...)
	return nil
}

type harness struct {
	svc    *Service
	store  *fakeLeadStore
	client *fakeTelecallerClient
	queue  *fakeReconcileQueue
}

func newHarness() *harness {
	store := newFakeLeadStore()
	client := &fakeTelecallerClient{valid: make(map[uuid.UUID]bool)}
	queue := newFakeReconcileQueue()
	svc := New(store, client, queue, events.NewInMemoryBus(logger.NewNop()), logger.NewNop())
	return &harness{svc: svc, store: store, client: client, queue: queue}
}

func (h *harness) addLead() uuid.UUID {
	id := uuid.New()
	h.store.leads[id] = repository.Lead{ID: id, Name: "Lead", Phone: "+919812345678"}
	return id
}

func TestAssignUnknownLeadIsNotFound(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Assign(context.Background(), uuid.New(), uuid.New())
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("error kind = %v, want not found", apperr.GetKind(err))
	}
}

func TestAssignInvalidTelecallerIsNotFound(t *testing.T) {
	h := newHarness()
	leadID := h.addLead()

	_, err := h.svc.Assign(context.Background(), leadID, uuid.New())
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("error kind = %v, want not found", apperr.GetKind(err))
	}
}

func TestAssignDuplicateIsConflict(t *testing.T) {
	h := newHarness()
	leadID := h.addLead()
	tcID := uuid.New()
	h.client.valid[tcID] = true

	l := h.store.leads[leadID]
	l.AssignedTo = &tcID
	h.store.leads[leadID] = l

	_, err := h.svc.Assign(context.Background(), leadID, tcID)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("error kind = %v, want conflict", apperr.GetKind(err))
	}
}

func TestAssignWritesBackLocally(t *testing.T) {
	h := newHarness()
	leadID := h.addLead()
	tcID := uuid.New()
	h.client.valid[tcID] = true

	resp, err := h.svc.Assign(context.Background(), leadID, tcID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !resp.Success || !resp.Reconciled {
		t.Fatalf("response = %+v, want success and reconciled", resp)
	}
	if got := h.store.leads[leadID].AssignedTo; got == nil || *got != tcID {
		t.Fatalf("local assigned_to = %v, want %s", got, tcID)
	}
}

func TestAssignRemoteFailurePropagates(t *testing.T) {
	h := newHarness()
	leadID := h.addLead()
	tcID := uuid.New()
	h.client.valid[tcID] = true
	h.client.assignErr = apperr.Unavailable("telecaller service unreachable")

	_, err := h.svc.Assign(context.Background(), leadID, tcID)
	if apperr.GetKind(err) != apperr.KindUnavailable {
		t.Fatalf("error kind = %v, want unavailable", apperr.GetKind(err))
	}
	if got := h.store.leads[leadID].AssignedTo; got != nil {
		t.Fatalf("local assigned_to = %v, want nil after remote failure", got)
	}
}

func TestAssignLocalFailureStillSucceedsAndQueuesReconcile(t *testing.T) {
	h := newHarness()
	leadID := h.addLead()
	tcID := uuid.New()
	h.client.valid[tcID] = true
	h.store.failSet = fmt.Errorf("connection reset")

	resp, err := h.svc.Assign(context.Background(), leadID, tcID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !resp.Success || resp.Reconciled {
		t.Fatalf("response = %+v, want success with reconciled=false", resp)
	}
	if got := h.queue.enqueued[tcID]; len(got) != 1 || got[0] != leadID {
		t.Fatalf("reconcile queue = %v, want [%s]", got, leadID)
	}
}

func TestSmartAssignRejectsMissingLeads(t *testing.T) {
	h := newHarness()
	known := h.addLead()
	unknown := uuid.New()

	_, err := h.svc.SmartAssign(context.Background(), []uuid.UUID{known, unknown})
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("error kind = %v, want not found", apperr.GetKind(err))
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *apperr.Error", err)
	}
	missing, ok := appErr.Details.([]uuid.UUID)
	if !ok || len(missing) != 1 || missing[0] != unknown {
		t.Fatalf("details = %v, want the missing id %s", appErr.Details, unknown)
	}

	// Nothing may be sent remotely or mutated locally before validation passes.
	if got := h.store.leads[known].AssignedTo; got != nil {
		t.Fatalf("known lead mutated despite aborted batch: %v", got)
	}
}

func TestSmartAssignRemoteFailureAborts(t *testing.T) {
	h := newHarness()
	leadID := h.addLead()
	h.client.smartErr = apperr.Unavailable("telecaller service unreachable")

	_, err := h.svc.SmartAssign(context.Background(), []uuid.UUID{leadID})
	if apperr.GetKind(err) != apperr.KindUnavailable {
		t.Fatalf("error kind = %v, want unavailable", apperr.GetKind(err))
	}
}

func TestSmartAssignWritesBackEachGroup(t *testing.T) {
	h := newHarness()
	l1, l2, l3 := h.addLead(), h.addLead(), h.addLead()
	tcA, tcB := uuid.New(), uuid.New()

	h.client.smartResult = transport.SmartAssignResponse{
		Success: true,
		Assignments: []transport.TelecallerAssignment{
			{TelecallerID: tcA, AssignedLeads: []uuid.UUID{l1, l3}},
			{TelecallerID: tcB, AssignedLeads: []uuid.UUID{l2}},
		},
	}

	resp, err := h.svc.SmartAssign(context.Background(), []uuid.UUID{l1, l2, l3})
	if err != nil {
		t.Fatalf("SmartAssign: %v", err)
	}
	if resp.UpdatedLeads != 3 {
		t.Fatalf("updatedLeads = %d, want 3", resp.UpdatedLeads)
	}
	if got := *h.store.leads[l2].AssignedTo; got != tcB {
		t.Fatalf("lead2 assigned_to = %s, want %s", got, tcB)
	}
}

func TestSmartAssignIsolatesGroupWriteBackFailures(t *testing.T) {
	h := newHarness()
	l1, l2 := h.addLead(), h.addLead()
	tcA, tcB := uuid.New(), uuid.New()
	h.store.failSetFor[tcA] = fmt.Errorf("deadlock detected")

	h.client.smartResult = transport.SmartAssignResponse{
		Success: true,
		Assignments: []transport.TelecallerAssignment{
			{TelecallerID: tcA, AssignedLeads: []uuid.UUID{l1}},
			{TelecallerID: tcB, AssignedLeads: []uuid.UUID{l2}},
		},
	}

	resp, err := h.svc.SmartAssign(context.Background(), []uuid.UUID{l1, l2})
	if err != nil {
		t.Fatalf("SmartAssign: %v", err)
	}
	if resp.UpdatedLeads != 1 {
		t.Fatalf("updatedLeads = %d, want only the healthy group", resp.UpdatedLeads)
	}
	if got := h.queue.enqueued[tcA]; len(got) != 1 || got[0] != l1 {
		t.Fatalf("reconcile queue for failed group = %v, want [%s]", got, l1)
	}
	if got := *h.store.leads[l2].AssignedTo; got != tcB {
		t.Fatalf("healthy group not written back, lead2 = %v", got)
	}
}

func TestSmartAssignSurfacesUnassignedLeads(t *testing.T) {
	h := newHarness()
	l1, l2 := h.addLead(), h.addLead()
	tcA := uuid.New()

	h.client.smartResult = transport.SmartAssignResponse{
		Success: true,
		Assignments: []transport.TelecallerAssignment{
			{TelecallerID: tcA, AssignedLeads: []uuid.UUID{l1}},
		},
		UnassignedLeadIDs: []uuid.UUID{l2},
	}

	resp, err := h.svc.SmartAssign(context.Background(), []uuid.UUID{l1, l2})
	if err != nil {
		t.Fatalf("SmartAssign: %v", err)
	}
	if len(resp.UnassignedLeadIDs) != 1 || resp.UnassignedLeadIDs[0] != l2 {
		t.Fatalf("unassigned = %v, want [%s]", resp.UnassignedLeadIDs, l2)
	}
	if resp.Message != "distributed 1 of 2 leads" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestReconcileReplaysGroup(t *testing.T) {
	h := newHarness()
	l1, l2 := h.addLead(), h.addLead()
	tcID := uuid.New()

	updated, err := h.svc.Reconcile(context.Background(), tcID, []uuid.UUID{l1, l2})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}
	if got := *h.store.leads[l1].AssignedTo; got != tcID {
		t.Fatalf("lead1 assigned_to = %s, want %s", got, tcID)
	}
}
