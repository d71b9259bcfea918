package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAreLabelled(t *testing.T) {
	before := testutil.ToFloat64(EventsTotal.WithLabelValues("invoice.paid", "processed"))
	EventsTotal.WithLabelValues("invoice.paid", "processed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EventsTotal.WithLabelValues("invoice.paid", "processed")))

	before = testutil.ToFloat64(RotationAttemptsTotal.WithLabelValues("pix", "succeeded"))
	RotationAttemptsTotal.WithLabelValues("pix", "succeeded").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(RotationAttemptsTotal.WithLabelValues("pix", "succeeded")))
}

func TestCollectorsAreRegistered(t *testing.T) {
	WebhookRequestsTotal.WithLabelValues("200").Inc()
	CustomerRecreationsTotal.WithLabelValues("placeholder").Inc()
	JobsTotal.WithLabelValues("send_email", "completed").Inc()

	assert.GreaterOrEqual(t, testutil.CollectAndCount(WebhookRequestsTotal), 1)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(CustomerRecreationsTotal), 1)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(JobsTotal), 1)
}
