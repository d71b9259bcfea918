package stripeprovider

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

func toUpstreamCustomer(c *stripe.Customer) *billing.UpstreamCustomer {
	out := &billing.UpstreamCustomer{
		ID:      c.ID,
		Email:   c.Email,
		Name:    c.Name,
		Deleted: c.Deleted,
	}
	if c.Address != nil {
		out.Country = strings.ToUpper(c.Address.Country)
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethodType = string(c.InvoiceSettings.DefaultPaymentMethod.Type)
	}
	return out
}

// toSnapshot sums unit_amount * quantity over all items; the plan is the
// first item's price.
func toSnapshot(sub *stripe.Subscription) billing.SubscriptionSnapshot {
	snap := billing.SubscriptionSnapshot{
		UpstreamSubscriptionID: sub.ID,
		TenantID:               billing.TenantIDFromMetadata(sub.Metadata),
		Status:                 string(sub.Status),
		Currency:               strings.ToLower(string(sub.Currency)),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		Metadata:               sub.Metadata,
	}
	if sub.Customer != nil {
		snap.UpstreamCustomerID = sub.Customer.ID
	}

	var periodEnd int64
	if sub.Items != nil {
		for i, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			qty := item.Quantity
			if qty <= 0 {
				qty = 1
			}
			if item.Price != nil {
				snap.Amount += item.Price.UnitAmount * qty
				if i == 0 {
					snap.PlanID = item.Price.ID
				}
				if snap.Currency == "" {
					snap.Currency = strings.ToLower(string(item.Price.Currency))
				}
			}
			if item.CurrentPeriodEnd > periodEnd {
				periodEnd = item.CurrentPeriodEnd
			}
		}
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &t
	}
	return snap
}

func toInvoice(inv *stripe.Invoice) *billing.Invoice {
	out := &billing.Invoice{
		ID:        inv.ID,
		AmountDue: inv.AmountDue,
		Currency:  strings.ToLower(string(inv.Currency)),
		Status:    string(inv.Status),
		Paid:      inv.Status == stripe.InvoiceStatusPaid,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return out
}
