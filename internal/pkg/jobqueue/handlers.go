package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

// InvoiceRetrier settles an open invoice by rotating payment methods.
type InvoiceRetrier interface {
	RetryInvoiceWithRotation(ctx context.Context, invoiceID, preferredMethod string) (*billing.RotationResult, error)
}

// Mailer delivers a rendered e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EventArchive stores raw provider payloads.
type EventArchive interface {
	PutEvent(ctx context.Context, eventID, eventType string, payload []byte) (string, error)
}

// InvoiceRetryHandler runs the rotation engine for an invoice_retry job.
// Exhausted rotations and unknown invoices are final; other errors are retried.
func InvoiceRetryHandler(retrier InvoiceRetrier) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := InvoiceRetryJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid invoice retry payload: %w", err)
		}
		if payload.InvoiceID == "" {
			log.Warnf("[JobQueue] Job %s has no invoice id, dropping", job.ID)
			return nil
		}

		res, err := retrier.RetryInvoiceWithRotation(ctx, payload.InvoiceID, payload.PreferredMethod)
		var rotErr *billing.RotationError
		switch {
		case errors.As(err, &rotErr):
			log.Warnf("[JobQueue] Invoice %s: %v", payload.InvoiceID, err)
			return nil
		case errors.Is(err, billing.ErrNotFound):
			log.Warnf("[JobQueue] Invoice %s not found upstream, dropping retry", payload.InvoiceID)
			return nil
		case err != nil:
			return err
		}

		if res.AlreadySettled {
			log.Infof("[JobQueue] Invoice %s already settled", payload.InvoiceID)
		} else {
			log.Infof("[JobQueue] Invoice %s paid with %s after %d attempts", payload.InvoiceID, res.MethodUsed, len(res.Attempts))
		}
		return nil
	}
}

// SendEmailHandler delivers a queued e-mail.
func SendEmailHandler(mailer Mailer) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := SendEmailJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid send email payload: %w", err)
		}
		if payload.To == "" {
			log.Warnf("[JobQueue] Job %s has no recipient, dropping", job.ID)
			return nil
		}
		return mailer.Send(ctx, payload.To, payload.Subject, payload.Body)
	}
}

// ArchiveEventHandler uploads a queued provider payload.
func ArchiveEventHandler(archive EventArchive) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := ArchiveEventJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid archive payload: %w", err)
		}
		_, err = archive.PutEvent(ctx, payload.EventID, payload.EventType, []byte(payload.Payload))
		return err
	}
}
