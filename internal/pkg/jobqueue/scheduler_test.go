package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

func TestInvoiceRetryScheduler_Dedup(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, 1)
	s := NewInvoiceRetryScheduler(q, 0)
	assert.Equal(t, DefaultInvoiceRetryWindow, s.window)

	scheduled, err := s.ScheduleInvoiceRetry(ctx, "in_1", "invoice.payment_failed")
	require.NoError(t, err)
	assert.True(t, scheduled)

	scheduled, err = s.ScheduleInvoiceRetry(ctx, "in_1", "charge.failed")
	require.NoError(t, err)
	assert.False(t, scheduled, "second failure inside the window is suppressed")

	scheduled, err = s.ScheduleInvoiceRetry(ctx, "in_2", "invoice.payment_failed")
	require.NoError(t, err)
	assert.True(t, scheduled)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
	assert.Equal(t, DefaultInvoiceRetryWindow, mr.TTL(InvoiceRetryKeyPrefix+"in_1"))

	mr.FastForward(DefaultInvoiceRetryWindow + time.Minute)
	scheduled, err = s.ScheduleInvoiceRetry(ctx, "in_1", "invoice.payment_failed")
	require.NoError(t, err)
	assert.True(t, scheduled)

	_, err = s.ScheduleInvoiceRetry(ctx, "", "x")
	assert.Error(t, err)
}

func TestInvoiceRetryScheduler_EnqueueBypassesWindow(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, 1)
	s := NewInvoiceRetryScheduler(q, time.Hour)

	_, err := s.ScheduleInvoiceRetry(ctx, "in_1", "invoice.payment_failed")
	require.NoError(t, err)
	job, err := s.Enqueue(ctx, InvoiceRetryJobPayload{InvoiceID: "in_1", PreferredMethod: "boleto"})
	require.NoError(t, err)
	assert.Equal(t, JobTypeInvoiceRetry, job.Type)
	assert.Equal(t, "boleto", job.Payload["preferred_method"])

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestMailNotifier(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, 1)
	n := NewMailNotifier(q)

	err := n.SendCancellationNotice(ctx, billing.CancellationNotice{TenantID: 3})
	assert.Error(t, err)

	require.NoError(t, n.SendCancellationNotice(ctx, billing.CancellationNotice{
		TenantID:               3,
		Email:                  "owner@clinic.test",
		UpstreamSubscriptionID: "sub_1",
	}))

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobTypeSendEmail, job.Type)
	payload, err := SendEmailJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "owner@clinic.test", payload.To)
	assert.Equal(t, uint(3), payload.TenantID)
	assert.Contains(t, payload.Body, "sub_1")
}

func TestArchiveScheduler(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, 1)

	require.NoError(t, NewArchiveScheduler(q).ArchivePayload(ctx, "evt_1", "invoice.paid", []byte(`{"id":"evt_1"}`)))

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	payload, err := ArchiveEventJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", payload.EventID)
	assert.Equal(t, `{"id":"evt_1"}`, payload.Payload)
}
