package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
	"github.com/ManuelReschke/PawDesk/internal/pkg/mail"
)

const (
	InvoiceRetryKeyPrefix     = "billing:invoice_retry:"
	DefaultInvoiceRetryWindow = 24 * time.Hour
)

// InvoiceRetryScheduler enqueues invoice_retry jobs. A redis key per invoice
// suppresses repeated scheduling inside the dedup window.
type InvoiceRetryScheduler struct {
	queue  *Queue
	window time.Duration
}

var _ billing.InvoiceRetryScheduler = (*InvoiceRetryScheduler)(nil)

func NewInvoiceRetryScheduler(queue *Queue, window time.Duration) *InvoiceRetryScheduler {
	if window <= 0 {
		window = DefaultInvoiceRetryWindow
	}
	return &InvoiceRetryScheduler{queue: queue, window: window}
}

// ScheduleInvoiceRetry reports false when a retry for the invoice is already pending.
func (s *InvoiceRetryScheduler) ScheduleInvoiceRetry(ctx context.Context, invoiceID, reason string) (bool, error) {
	if invoiceID == "" {
		return false, errors.New("invoice id is required")
	}
	key := InvoiceRetryKeyPrefix + invoiceID
	ok, err := s.queue.client.SetNX(ctx, key, reason, s.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve invoice retry: %w", err)
	}
	if !ok {
		return false, nil
	}

	payload := InvoiceRetryJobPayload{InvoiceID: invoiceID, Reason: reason}
	if _, err := s.queue.EnqueueJob(ctx, JobTypeInvoiceRetry, payload.ToMap()); err != nil {
		s.queue.client.Del(ctx, key)
		return false, err
	}
	return true, nil
}

// Enqueue schedules an operator-requested retry without the dedup window.
func (s *InvoiceRetryScheduler) Enqueue(ctx context.Context, payload InvoiceRetryJobPayload) (*Job, error) {
	if payload.InvoiceID == "" {
		return nil, errors.New("invoice id is required")
	}
	return s.queue.EnqueueJob(ctx, JobTypeInvoiceRetry, payload.ToMap())
}

// MailNotifier renders cancellation notices and queues them as send_email jobs.
type MailNotifier struct {
	queue *Queue
}

var _ billing.EmailNotifier = (*MailNotifier)(nil)

func NewMailNotifier(queue *Queue) *MailNotifier {
	return &MailNotifier{queue: queue}
}

func (n *MailNotifier) SendCancellationNotice(ctx context.Context, notice billing.CancellationNotice) error {
	if notice.Email == "" {
		return fmt.Errorf("tenant %d has no billing e-mail", notice.TenantID)
	}
	subject, body, err := mail.RenderCancellationNotice(notice)
	if err != nil {
		return err
	}
	payload := SendEmailJobPayload{To: notice.Email, Subject: subject, Body: body, TenantID: notice.TenantID}
	_, err = n.queue.EnqueueJob(ctx, JobTypeSendEmail, payload.ToMap())
	return err
}

// ArchiveScheduler queues raw payloads for the event archive.
type ArchiveScheduler struct {
	queue *Queue
}

var _ billing.PayloadArchiver = (*ArchiveScheduler)(nil)

func NewArchiveScheduler(queue *Queue) *ArchiveScheduler {
	return &ArchiveScheduler{queue: queue}
}

func (a *ArchiveScheduler) ArchivePayload(ctx context.Context, eventID, eventType string, payload []byte) error {
	p := ArchiveEventJobPayload{EventID: eventID, EventType: eventType, Payload: string(payload)}
	_, err := a.queue.EnqueueJob(ctx, JobTypeArchiveEvent, p.ToMap())
	return err
}
