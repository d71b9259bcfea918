package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

func TestSMTPMailerSend(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "smtp.test", Port: "2525", Sender: "billing@pawdesk.test"})
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "owner@clinic.test", "Hi", "<p>body</p>"))
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, "billing@pawdesk.test", gotFrom)
	assert.Equal(t, []string{"owner@clinic.test"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Hi\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>body</p>")
}

func TestSMTPMailerSendErrors(t *testing.T) {
	m := NewSMTPMailer(Config{})
	assert.Error(t, m.Send(context.Background(), "a@b.test", "s", "b"))

	m = NewSMTPMailer(Config{Host: "smtp.test", Port: "25"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
	assert.EqualError(t, m.Send(context.Background(), "a@b.test", "s", "b"), "421 try later")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "a@b.test", "s", "b"), context.Canceled)
}

func TestRenderCancellationNotice(t *testing.T) {
	end := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	subject, body, err := RenderCancellationNotice(billing.CancellationNotice{
		Name:                   "Happy <Paws>",
		PlanID:                 "price_clinic",
		UpstreamSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &end,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
	assert.Contains(t, body, "Happy &lt;Paws&gt;")
	assert.Contains(t, body, "May 31, 2026")
	assert.Contains(t, body, "sub_1")

	_, body, err = RenderCancellationNotice(billing.CancellationNotice{UpstreamSubscriptionID: "sub_2"})
	require.NoError(t, err)
	assert.NotContains(t, body, "keep access")
}
