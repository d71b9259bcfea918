package stripeprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestToSnapshot(t *testing.T) {
	sub := &stripe.Subscription{
		ID:                "sub_1",
		Customer:          &stripe.Customer{ID: "cus_1"},
		Status:            stripe.SubscriptionStatusPastDue,
		CancelAtPeriodEnd: true,
		Metadata:          map[string]string{"tenant_id": "17"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{Quantity: 2, CurrentPeriodEnd: 1767225600, Price: &stripe.Price{ID: "price_seat", UnitAmount: 1500, Currency: stripe.CurrencyEUR}},
			{Quantity: 0, CurrentPeriodEnd: 1769904000, Price: &stripe.Price{ID: "price_base", UnitAmount: 900, Currency: stripe.CurrencyEUR}},
		}},
	}

	snap := toSnapshot(sub)
	assert.Equal(t, "sub_1", snap.UpstreamSubscriptionID)
	assert.Equal(t, "cus_1", snap.UpstreamCustomerID)
	assert.Equal(t, uint(17), snap.TenantID)
	assert.Equal(t, "past_due", snap.Status)
	assert.Equal(t, "price_seat", snap.PlanID)
	assert.Equal(t, int64(2*1500+900), snap.Amount)
	assert.Equal(t, "eur", snap.Currency)
	assert.True(t, snap.CancelAtPeriodEnd)
	require.NotNil(t, snap.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1769904000, 0).UTC(), *snap.CurrentPeriodEnd)
}

func TestToUpstreamCustomer(t *testing.T) {
	c := toUpstreamCustomer(&stripe.Customer{
		ID:      "cus_2",
		Email:   "desk@clinic.test",
		Address: &stripe.Address{Country: "br"},
		InvoiceSettings: &stripe.CustomerInvoiceSettings{
			DefaultPaymentMethod: &stripe.PaymentMethod{ID: "pm_1", Type: stripe.PaymentMethodTypePix},
		},
	})
	assert.Equal(t, "BR", c.Country)
	assert.Equal(t, "pix", c.DefaultPaymentMethodType)
	assert.False(t, c.Deleted)
}

func TestToInvoice(t *testing.T) {
	inv := toInvoice(&stripe.Invoice{
		ID:        "in_1",
		Customer:  &stripe.Customer{ID: "cus_3"},
		AmountDue: 4200,
		Currency:  stripe.CurrencyUSD,
		Status:    stripe.InvoiceStatusPaid,
	})
	assert.Equal(t, "cus_3", inv.CustomerID)
	assert.True(t, inv.Paid)
	assert.True(t, inv.IsSettled())
}
