// Package notify coalesces synchronization failures into at most one message
// per failure class per cycle and delivers them over Graph sendMail. Humans
// get one digest, not one mail per broken event.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Class groups failures that share one notification.
type Class int

const (
	ClassItemFailure Class = iota
	ClassBatchFailure
	ClassConsistency
)

func (c Class) String() string {
	switch c {
	case ClassItemFailure:
		return "event failures"
	case ClassBatchFailure:
		return "batch failures"
	case ClassConsistency:
		return "consistency violation"
	}
	return "unknown failures"
}

// classOrder fixes the flush order so repeated cycles notify deterministically.
var classOrder = []Class{ClassItemFailure, ClassBatchFailure, ClassConsistency}

// Notifier delivers one coalesced message for a failure class.
type Notifier interface {
	Notify(ctx context.Context, class Class, details []string) error
}

// MailSender is the slice of the Graph client the mailer needs.
type MailSender interface {
	SendMail(ctx context.Context, subject, body string, recipients []string) error
}

// Mailer sends failure digests to a fixed recipient list.
type Mailer struct {
	sender     MailSender
	recipients []string
}

func NewMailer(sender MailSender, recipients []string) *Mailer {
	return &Mailer{sender: sender, recipients: recipients}
}

func (m *Mailer) Notify(ctx context.Context, class Class, details []string) error {
	subject := fmt.Sprintf("Calendar sync: %s (%d)", class, len(details))
	body := strings.Join(details, "\n")
	if err := m.sender.SendMail(ctx, subject, body, m.recipients); err != nil {
		return fmt.Errorf("failed to deliver %s notification: %w", class, err)
	}
	return nil
}

// LogNotifier writes digests to the process log. Used when no notification
// recipients are configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, class Class, details []string) error {
	log.Printf("%s (%d):\n%s", class, len(details), strings.Join(details, "\n"))
	return nil
}

// Collector accumulates failures during a cycle and flushes them as one
// notification per class.
type Collector struct {
	notifier Notifier
	pending  map[Class][]string
}

func NewCollector(notifier Notifier) *Collector {
	return &Collector{
		notifier: notifier,
		pending:  make(map[Class][]string),
	}
}

// Add records one failure detail under its class.
func (c *Collector) Add(class Class, detail string) {
	c.pending[class] = append(c.pending[class], detail)
}

// Len returns the number of failures recorded so far.
func (c *Collector) Len() int {
	total := 0
	for _, details := range c.pending {
		total += len(details)
	}
	return total
}

// Flush sends one notification per non-empty class and resets the collector.
// Delivery failures are reported but do not keep sibling classes from being
// sent.
func (c *Collector) Flush(ctx context.Context) error {
	var firstErr error
	for _, class := range classOrder {
		details := c.pending[class]
		if len(details) == 0 {
			continue
		}
		if err := c.notifier.Notify(ctx, class, details); err != nil {
			log.Printf("Failed to notify about %s: %v", class, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.pending = make(map[Class][]string)
	return firstErr
}
