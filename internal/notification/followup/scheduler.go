// Package followup implements the periodic follow-up reminder engine. Each
// tick scans two look-ahead windows (one hour and thirty minutes), consults
// the notification ledger so a (lead, window) pair is delivered at most once,
// and drives the reminder sender with a bounded retry budget per pair.
package followup

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"telecrm_backend/internal/email"
	"telecrm_backend/internal/events"
	leadrepo "telecrm_backend/internal/leads/repository"
	"telecrm_backend/internal/notification/ledger"
	tctransport "telecrm_backend/internal/telecaller/transport"
	"telecrm_backend/platform/apperr"
	"telecrm_backend/platform/logger"
	"telecrm_backend/platform/redislock"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxRetries caps delivery attempts per (lead, notification type). Exhausting
// the budget is terminal and silent; the stats endpoint is how operators
// discover it.
const maxRetries = 3

// window pairs a notification type with its look-ahead offset.
type window struct {
	Type    ledger.NotificationType
	Offset  time.Duration
	Minutes int
}

var windows = []window{
	{Type: ledger.TypeOneHour, Offset: 60 * time.Minute, Minutes: 60},
	{Type: ledger.TypeThirtyMinutes, Offset: 30 * time.Minute, Minutes: 30},
}

// LeadSource provides the due-lead query.
type LeadSource interface {
	DueForFollowUp(ctx context.Context, start, end time.Time) ([]leadrepo.Lead, error)
}

// Ledger is the delivery-record store.
type Ledger interface {
	Get(ctx context.Context, leadID uuid.UUID, nType ledger.NotificationType) (ledger.Entry, error)
	MarkSent(ctx context.Context, p ledger.SentParams) error
	MarkFailed(ctx context.Context, p ledger.FailedParams) error
	GetStats(ctx context.Context, from, to time.Time) (ledger.Stats, error)
}

// TelecallerDirectory resolves a telecaller's contact record.
type TelecallerDirectory interface {
	GetTelecaller(ctx context.Context, id uuid.UUID) (tctransport.TelecallerResponse, error)
}

// Scheduler runs the follow-up sweep on a fixed period.
type Scheduler struct {
	leads     LeadSource
	ledger    Ledger
	directory TelecallerDirectory
	sender    email.Sender
	lock      *redislock.Lock
	eventBus  events.Bus
	log       *logger.Logger

	tick   time.Duration
	fanout int
	now    func() time.Time

	// running is the in-process non-reentrant guard. It protects a single
	// instance; the redis lease covers multiple instances.
	running atomic.Bool
}

// Options configures a Scheduler.
type Options struct {
	Tick   time.Duration
	Fanout int
	// Lock is the cross-instance lease; nil disables it (single instance).
	Lock *redislock.Lock
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a follow-up scheduler.
func New(leads LeadSource, ldg Ledger, directory TelecallerDirectory, sender email.Sender,
	eventBus events.Bus, log *logger.Logger, opts Options) *Scheduler {

	if opts.Tick <= 0 {
		opts.Tick = 5 * time.Minute
	}
	if opts.Fanout < 1 {
		opts.Fanout = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		leads:     leads,
		ledger:    ldg,
		directory: directory,
		sender:    sender,
		lock:      opts.Lock,
		eventBus:  eventBus,
		log:       log,
		tick:      opts.Tick,
		fanout:    opts.Fanout,
		now:       opts.Now,
	}
}

// Run drives ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info("follow-up scheduler started", "tick", s.tick.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("follow-up scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick executes one sweep. A tick that finds the previous one still running
// skips entirely rather than overlap; a tick that loses the cross-instance
// lease does the same.
func (s *Scheduler) Tick(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.log.Warn("follow-up tick skipped", "reason", err.Error())
	}
}

// RunOnce executes one sweep immediately. It returns a conflict error when a
// sweep is already in flight on this instance or the cross-instance lease is
// held elsewhere.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return apperr.Conflict("a follow-up sweep is already running")
	}
	defer s.running.Store(false)

	if s.lock != nil {
		lease, ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "acquire follow-up lease", err)
		}
		if !ok {
			return apperr.Conflict("follow-up sweep lease held by another instance")
		}
		defer func() {
			if err := lease.Release(ctx); err != nil {
				s.log.Warn("follow-up lease release failed", "error", err)
			}
		}()
	}

	// One window's failure must not stop the other.
	for _, w := range windows {
		if err := s.processWindow(ctx, w); err != nil {
			s.log.Error("follow-up window sweep failed",
				"type", string(w.Type), "error", err)
		}
	}
	return nil
}

// processWindow fetches leads whose follow-up instant falls inside
// [target-eps, target+eps] where eps is half the tick period, so that the
// follow-up instant, sampled at the tick cadence, lands in exactly one sweep.
func (s *Scheduler) processWindow(ctx context.Context, w window) error {
	now := s.now()
	target := now.Add(w.Offset)
	eps := s.tick / 2

	due, err := s.leads.DueForFollowUp(ctx, target.Add(-eps), target.Add(eps))
	if err != nil {
		return fmt.Errorf("fetch due leads: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.log.Info("processing follow-up window",
		"type", string(w.Type), "leads", len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for _, lead := range due {
		g.Go(func() error {
			// Per-lead failures are recorded in the ledger, never
			// propagated, so one lead cannot sink the window.
			s.processLead(gctx, lead, w)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) processLead(ctx context.Context, lead leadrepo.Lead, w window) {
	if lead.AssignedTo == nil || lead.NextFollowUp == nil {
		return
	}

	entry, err := s.ledger.Get(ctx, lead.ID, w.Type)
	switch {
	case err == nil && entry.Status == ledger.StatusSent:
		// Terminal success; rediscovery in a later overlapping scan is a no-op.
		return
	case err == nil && entry.Status == ledger.StatusFailed && entry.RetryCount >= maxRetries:
		// Retry budget exhausted; terminal.
		return
	case err != nil && err != ledger.ErrNotFound:
		s.log.DatabaseError("notification_logs.get", err)
		return
	}

	telecaller, err := s.directory.GetTelecaller(ctx, *lead.AssignedTo)
	if err != nil {
		s.recordFailure(ctx, lead, w, lead.AssignedTo, "",
			fmt.Sprintf("telecaller %s lookup failed: %v", lead.AssignedTo, err))
		return
	}
	if telecaller.Email == "" {
		s.recordFailure(ctx, lead, w, lead.AssignedTo, "",
			fmt.Sprintf("telecaller %s has no email address", telecaller.ID))
		return
	}

	reminder := email.Reminder{
		LeadName:        lead.Name,
		LeadPhone:       lead.Phone,
		TelecallerName:  telecaller.Name,
		TelecallerEmail: telecaller.Email,
		FollowUpTime:    *lead.NextFollowUp,
		MinutesAhead:    w.Minutes,
	}
	if err := s.sender.SendReminder(ctx, reminder); err != nil {
		s.recordFailure(ctx, lead, w, lead.AssignedTo, telecaller.Email,
			fmt.Sprintf("send failed: %v", err))
		return
	}

	if err := s.ledger.MarkSent(ctx, ledger.SentParams{
		LeadID:          lead.ID,
		TelecallerID:    telecaller.ID,
		TelecallerEmail: telecaller.Email,
		FollowUpTime:    *lead.NextFollowUp,
		Type:            w.Type,
		SentAt:          s.now(),
	}); err != nil {
		s.log.DatabaseError("notification_logs.mark_sent", err)
		return
	}

	s.eventBus.Publish(ctx, events.FollowUpSent{
		BaseEvent:        events.NewBaseEvent(),
		LeadID:           lead.ID,
		TelecallerID:     telecaller.ID,
		NotificationType: string(w.Type),
		FollowUpTime:     *lead.NextFollowUp,
	})
}

func (s *Scheduler) recordFailure(ctx context.Context, lead leadrepo.Lead, w window,
	telecallerID *uuid.UUID, telecallerEmail, reason string) {

	if err := s.ledger.MarkFailed(ctx, ledger.FailedParams{
		LeadID:          lead.ID,
		TelecallerID:    telecallerID,
		TelecallerEmail: telecallerEmail,
		FollowUpTime:    *lead.NextFollowUp,
		Type:            w.Type,
		Reason:          reason,
	}); err != nil {
		s.log.DatabaseError("notification_logs.mark_failed", err)
		return
	}

	entry, err := s.ledger.Get(ctx, lead.ID, w.Type)
	retries := 0
	if err == nil {
		retries = entry.RetryCount
	}

	s.log.Warn("follow-up reminder failed",
		"leadId", lead.ID.String(), "type", string(w.Type),
		"reason", reason, "retryCount", retries)

	s.eventBus.Publish(ctx, events.FollowUpFailed{
		BaseEvent:        events.NewBaseEvent(),
		LeadID:           lead.ID,
		NotificationType: string(w.Type),
		Reason:           reason,
		RetryCount:       retries,
	})
}

// Stats returns delivery counts by status, optionally bounded by a
// creation-date range.
func (s *Scheduler) Stats(ctx context.Context, from, to time.Time) (ledger.Stats, error) {
	return s.ledger.GetStats(ctx, from, to)
}
