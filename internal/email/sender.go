// Package email delivers follow-up reminder emails over SMTP.
// Template rendering is deliberately minimal; rich templates belong to the
// surrounding CRM's notification stack.
package email

import (
	"context"
	"fmt"
	"time"

	"telecrm_backend/platform/config"
	"telecrm_backend/platform/logger"
)

// Reminder is the payload of one follow-up notification.
type Reminder struct {
	LeadName        string
	LeadPhone       string
	TelecallerName  string
	TelecallerEmail string
	FollowUpTime    time.Time
	MinutesAhead    int
}

// Sender delivers follow-up reminders.
type Sender interface {
	SendReminder(ctx context.Context, reminder Reminder) error
}

// NewSender returns the configured Sender: SMTP when email is enabled, a
// logging no-op otherwise so development environments run without a mail host.
func NewSender(cfg config.SMTPConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return &logSender{log: log}
	}
	return NewSMTPSender(cfg)
}

// logSender records reminders instead of delivering them.
type logSender struct {
	log *logger.Logger
}

func (s *logSender) SendReminder(_ context.Context, reminder Reminder) error {
	s.log.Info("email disabled, reminder not delivered",
		"to", reminder.TelecallerEmail,
		"lead", reminder.LeadName,
		"minutesAhead", reminder.MinutesAhead,
	)
	return nil
}

func reminderSubject(reminder Reminder) string {
	return fmt.Sprintf("Follow-up in %d minutes: %s", reminder.MinutesAhead, reminder.LeadName)
}

func reminderBody(reminder Reminder) string {
	return fmt.Sprintf(
		"Hi %s,\n\nYour follow-up call with %s (%s) is scheduled for %s.\n\nThis is your %d-minute reminder.\n",
		reminder.TelecallerName,
		reminder.LeadName,
		reminder.LeadPhone,
		reminder.FollowUpTime.Format(time.RFC1123),
		reminder.MinutesAhead,
	)
}
