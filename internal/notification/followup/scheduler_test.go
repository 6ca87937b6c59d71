package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"telecrm_backend/internal/email"
	"telecrm_backend/internal/events"
	leadrepo "telecrm_backend/internal/leads/repository"
	"telecrm_backend/internal/notification/ledger"
	tctransport "telecrm_backend/internal/telecaller/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadSource struct {
	mu    sync.Mutex
	leads []leadrepo.Lead
}

func (f *fakeLeadSource) DueForFollowUp(_ context.Context, start, end time.Time) ([]leadrepo.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []leadrepo.Lead
	for _, l := range f.leads {
		if l.NextFollowUp == nil {
			continue
		}
		if !l.NextFollowUp.Before(start) && !l.NextFollowUp.After(end) {
			due = append(due, l)
		}
	}
	return due, nil
}

type ledgerKey struct {
	leadID uuid.UUID
	nType  ledger.NotificationType
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[ledgerKey]ledger.Entry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[ledgerKey]ledger.Entry)}
}

func (f *fakeLedger) Get(_ context.Context, leadID uuid.UUID, nType ledger.NotificationType) (ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ledgerKey{leadID, nType}]
	if !ok {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return e, nil
}

func (f *fakeLedger) MarkSent(_ context.Context, p ledger.SentParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := ledgerKey{p.LeadID, p.Type}
	e := f.entries[k]
	e.LeadID = p.LeadID
	e.NotificationType = p.Type
	e.Status = ledger.StatusSent
	e.TelecallerEmail = p.TelecallerEmail
	e.SentAt = &p.SentAt
	e.ErrorMessage = nil
	f.entries[k] = e
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, p ledger.FailedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := ledgerKey{p.LeadID, p.Type}
	e := f.entries[k]
	if e.Status == ledger.StatusSent {
		return nil
	}
	e.LeadID = p.LeadID
	e.NotificationType = p.Type
	e.Status = ledger.StatusFailed
	e.ErrorMessage = &p.Reason
	e.RetryCount++
	f.entries[k] = e
	return nil
}

func (f *fakeLedger) GetStats(context.Context, time.Time, time.Time) (ledger.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s ledger.Stats
	for _, e := range f.entries {
		s.Total++
		switch e.Status {
		case ledger.StatusSent:
			s.Sent++
		case ledger.StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s, nil
}

type fakeDirectory struct {
	telecallers map[uuid.UUID]tctransport.TelecallerResponse
}

func (f *fakeDirectory) GetTelecaller(_ context.Context, id uuid.UUID) (tctransport.TelecallerResponse, error) {
	tc, ok := f.telecallers[id]
	if !ok {
		return tctransport.TelecallerResponse{}, apperr.NotFound("telecaller not found")
	}
	return tc, nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []email.Reminder
	failFor map[string]error // keyed by lead name
	block   chan struct{}    // when set, SendReminder waits on it
}

func (f *fakeSender) SendReminder(_ context.Context, r email.Reminder) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[r.LeadName]; ok {
		return err
	}
	f.sent = append(f.sent, r)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	scheduler *Scheduler
	leads     *fakeLeadSource
	ledger    *fakeLedger
	directory *fakeDirectory
	sender    *fakeSender
	now       time.Time
}

func newFixture(t *testing.T, tick time.Duration) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		leads:     &fakeLeadSource{},
		ledger:    newFakeLedger(),
		directory: &fakeDirectory{telecallers: make(map[uuid.UUID]tctransport.TelecallerResponse)},
		sender:    &fakeSender{failFor: make(map[string]error)},
		now:       now,
	}
	f.scheduler = New(f.leads, f.ledger, f.directory, f.sender,
		events.NewInMemoryBus(logger.NewNop()), logger.NewNop(),
		Options{Tick: tick, Fanout: 4, Now: func() time.Time { return f.now }})
	return f
}

func (f *fixture) addTelecaller(name, mail string) uuid.UUID {
	id := uuid.New()
	f.directory.telecallers[id] = tctransport.TelecallerResponse{ID: id, Name: name, Email: mail}
	return id
}

func (f *fixture) addLead(name string, telecallerID uuid.UUID, followUpIn time.Duration) leadrepo.Lead {
	at := f.now.Add(followUpIn)
	l := leadrepo.Lead{
		ID:           uuid.New(),
		Name:         name,
		Phone:        "+919812345678",
		AssignedTo:   &telecallerID,
		NextFollowUp: &at,
	}
	f.leads.leads = append(f.leads.leads, l)
	return l
}

func TestSweepSendsOneHourReminder(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	lead := f.addLead("Ravi", tcID, 61*time.Minute)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d reminders, want 1", got)
	}
	r := f.sender.sent[0]
	if r.TelecallerEmail != "asha@example.com" || r.MinutesAhead != 60 {
		t.Fatalf("unexpected reminder %+v", r)
	}

	entry, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.Status != ledger.StatusSent {
		t.Fatalf("entry status = %s, want SENT", entry.Status)
	}
}

func TestSweepIsIdempotentAcrossOverlappingWindows(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	f.addLead("Ravi", tcID, 60*time.Minute)

	for i := 0; i < 3; i++ {
		if err := f.scheduler.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
	}

	if got := f.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d reminders across repeated sweeps, want 1", got)
	}
}

func TestThirtyMinuteWindowIsIndependent(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	lead := f.addLead("Ravi", tcID, 30*time.Minute)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d reminders, want 1", got)
	}
	if f.sender.sent[0].MinutesAhead != 30 {
		t.Fatalf("MinutesAhead = %d, want 30", f.sender.sent[0].MinutesAhead)
	}
	if _, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("one-hour entry should not exist, got err=%v", err)
	}
}

func TestWindowMatchesOnExactlyOneTick(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	f.addLead("Ravi", tcID, 61*time.Minute)

	// The first delivery attempt fails, so a second tick whose window still
	// covered the lead would bump the retry count.
	f.sender.failFor["Ravi"] = fmt.Errorf("smtp: connection reset")
	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f.now = f.now.Add(5 * time.Minute)
	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	lead := f.leads.leads[0]
	entry, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.RetryCount != 1 {
		t.Fatalf("retry count = %d after the lead left the window, want 1", entry.RetryCount)
	}
}

func TestLeadOutsideBothWindowsIsIgnored(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	f.addLead("Ravi", tcID, 45*time.Minute)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := f.sender.sentCount(); got != 0 {
		t.Fatalf("sent %d reminders, want 0", got)
	}
}

func TestSendFailureIncrementsRetryThenSucceeds(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	lead := f.addLead("Ravi", tcID, 60*time.Minute)

	f.sender.failFor["Ravi"] = fmt.Errorf("smtp: connection reset")
	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	entry, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.Status != ledger.StatusFailed || entry.RetryCount != 1 {
		t.Fatalf("entry = {%s, retries=%d}, want {FAILED, 1}", entry.Status, entry.RetryCount)
	}

	// The outage clears; the next sweep retries and succeeds.
	delete(f.sender.failFor, "Ravi")
	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	entry, _ = f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if entry.Status != ledger.StatusSent {
		t.Fatalf("entry status after retry = %s, want SENT", entry.Status)
	}
	if got := f.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d reminders, want 1", got)
	}
}

func TestRetryBudgetIsTerminal(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	lead := f.addLead("Ravi", tcID, 60*time.Minute)

	f.sender.failFor["Ravi"] = fmt.Errorf("smtp: permanent failure")
	for i := 0; i < 5; i++ {
		if err := f.scheduler.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
	}

	entry, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.RetryCount != maxRetries {
		t.Fatalf("retry count = %d, want capped at %d", entry.RetryCount, maxRetries)
	}
}

func TestMissingTelecallerEmailRecordsFailure(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "")
	lead := f.addLead("Ravi", tcID, 60*time.Minute)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.sender.sentCount(); got != 0 {
		t.Fatalf("sent %d reminders, want 0", got)
	}
	entry, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.Status != ledger.StatusFailed || entry.ErrorMessage == nil {
		t.Fatalf("entry = %+v, want FAILED with reason", entry)
	}
}

func TestUnknownTelecallerRecordsFailure(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	lead := f.addLead("Ravi", uuid.New(), 60*time.Minute)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	entry, err := f.ledger.Get(context.Background(), lead.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.Status != ledger.StatusFailed {
		t.Fatalf("entry status = %s, want FAILED", entry.Status)
	}
}

func TestOneLeadFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	f.addLead("Ravi", tcID, 60*time.Minute)
	healthy := f.addLead("Meena", tcID, 60*time.Minute)

	f.sender.failFor["Ravi"] = fmt.Errorf("smtp: mailbox full")
	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	entry, err := f.ledger.Get(context.Background(), healthy.ID, ledger.TypeOneHour)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if entry.Status != ledger.StatusSent {
		t.Fatalf("healthy lead status = %s, want SENT", entry.Status)
	}
}

func TestConcurrentSweepIsRejected(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	tcID := f.addTelecaller("Asha", "asha@example.com")
	f.addLead("Ravi", tcID, 60*time.Minute)

	gate := make(chan struct{})
	f.sender.block = gate

	done := make(chan error, 1)
	go func() { done <- f.scheduler.RunOnce(context.Background()) }()

	// Wait for the first sweep to reach the sender, then try to overlap it.
	deadline := time.After(2 * time.Second)
	for !f.scheduler.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first sweep never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	err := f.scheduler.RunOnce(context.Background())
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("overlapping RunOnce error kind = %v, want conflict", apperr.GetKind(err))
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
}

func TestStatsAggregatesLedger(t *testing.T) {
	f := newFixture(t, 5*time.Minute)
	okTC := f.addTelecaller("Asha", "asha@example.com")
	badTC := f.addTelecaller("NoMail", "")
	f.addLead("Ravi", okTC, 60*time.Minute)
	f.addLead("Meena", badTC, 30*time.Minute)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	stats, err := f.scheduler.Stats(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Sent != 1 || stats.Failed != 1 || stats.Total != 2 {
		t.Fatalf("stats = %+v, want 1 sent, 1 failed of 2", stats)
	}
}
