package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordedNotification struct {
	class   Class
	details []string
}

type mockNotifier struct {
	notifications []recordedNotification
	err           error
}

func (m *mockNotifier) Notify(_ context.Context, class Class, details []string) error {
	m.notifications = append(m.notifications, recordedNotification{class, details})
	return m.err
}

func TestCollector_CoalescesPerClass(t *testing.T) {
	n := &mockNotifier{}
	c := NewCollector(n)

	c.Add(ClassItemFailure, "asmith|OUT|2023-07-17: status 400")
	c.Add(ClassItemFailure, "jdoe|OUT AM|2023-07-18: status 400")
	c.Add(ClassItemFailure, "rlee|OUT PM|2023-07-19: status 409")
	c.Add(ClassBatchFailure, "batch of 20: status 503")
	c.Add(ClassBatchFailure, "batch of 7: timeout")

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(n.notifications) != 2 {
		t.Fatalf("Expected 2 notifications (one per class), got %d", len(n.notifications))
	}
	if n.notifications[0].class != ClassItemFailure || len(n.notifications[0].details) != 3 {
		t.Errorf("Unexpected first notification: %+v", n.notifications[0])
	}
	if n.notifications[1].class != ClassBatchFailure || len(n.notifications[1].details) != 2 {
		t.Errorf("Unexpected second notification: %+v", n.notifications[1])
	}
}

func TestCollector_FlushResets(t *testing.T) {
	n := &mockNotifier{}
	c := NewCollector(n)

	c.Add(ClassConsistency, "no remote id for asmith|OUT|2023-07-17")
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Second flush failed: %v", err)
	}

	if len(n.notifications) != 1 {
		t.Errorf("Expected a single notification across both flushes, got %d", len(n.notifications))
	}
	if c.Len() != 0 {
		t.Errorf("Expected an empty collector after flush, got %d pending", c.Len())
	}
}

func TestCollector_EmptyFlushIsSilent(t *testing.T) {
	n := &mockNotifier{}
	c := NewCollector(n)

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(n.notifications) != 0 {
		t.Errorf("Expected no notifications for an empty cycle, got %d", len(n.notifications))
	}
}

func TestCollector_DeliveryErrorDoesNotBlockSiblings(t *testing.T) {
	n := &mockNotifier{err: errors.New("mailbox unavailable")}
	c := NewCollector(n)

	c.Add(ClassItemFailure, "one")
	c.Add(ClassBatchFailure, "two")

	err := c.Flush(context.Background())
	if err == nil {
		t.Error("Expected the delivery error to be reported")
	}
	if len(n.notifications) != 2 {
		t.Errorf("Expected both classes to be attempted, got %d", len(n.notifications))
	}
}

type mockSender struct {
	subject    string
	body       string
	recipients []string
}

func (m *mockSender) SendMail(_ context.Context, subject, body string, recipients []string) error {
	m.subject = subject
	m.body = body
	m.recipients = recipients
	return nil
}

func TestMailer(t *testing.T) {
	sender := &mockSender{}
	m := NewMailer(sender, []string{"ops@example.edu"})

	details := []string{"asmith|OUT|2023-07-17: status 400", "jdoe|OUT AM|2023-07-18: status 409"}
	if err := m.Notify(context.Background(), ClassItemFailure, details); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if !strings.Contains(sender.subject, "event failures") {
		t.Errorf("Subject %q does not name the class", sender.subject)
	}
	if !strings.Contains(sender.subject, "(2)") {
		t.Errorf("Subject %q does not carry the count", sender.subject)
	}
	if sender.body != strings.Join(details, "\n") {
		t.Errorf("Body = %q", sender.body)
	}
	if len(sender.recipients) != 1 || sender.recipients[0] != "ops@example.edu" {
		t.Errorf("Recipients = %v", sender.recipients)
	}
}
