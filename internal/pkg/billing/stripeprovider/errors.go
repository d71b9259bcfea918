package stripeprovider

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

var declineCodes = map[string]struct{}{
	"card_declined":          {},
	"expired_card":           {},
	"insufficient_funds":     {},
	"incorrect_cvc":          {},
	"incorrect_number":       {},
	"card_velocity_exceeded": {},
}

var invalidMethodCodes = map[string]struct{}{
	"payment_method_not_available":     {},
	"payment_method_unactivated":       {},
	"payment_method_invalid_parameter": {},
	"payment_intent_invalid_parameter": {},
	"payment_method_unexpected_state":  {},
	"payment_method_provider_decline":  {},
	"invalid_parameter":                {},
}

// mapError converts a Stripe error into a classified *billing.ProviderError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		kind := billing.ErrorKindUnknown
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = billing.ErrorKindTransient
		}
		return &billing.ProviderError{Kind: kind, Err: err}
	}

	code := string(se.Code)
	pe := &billing.ProviderError{Kind: billing.ErrorKindUnknown, Code: code, Message: se.Msg, Err: err}
	_, declined := declineCodes[code]
	_, invalid := invalidMethodCodes[code]
	switch {
	case se.Type == stripe.ErrorTypeCard || declined:
		pe.Kind = billing.ErrorKindDeclined
		if code == "" {
			pe.Code = string(se.DeclineCode)
		}
	case invalid:
		pe.Kind = billing.ErrorKindInvalidMethod
	case code == "resource_missing" || se.HTTPStatusCode == http.StatusNotFound:
		pe.Kind = billing.ErrorKindNotFound
	case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError:
		pe.Kind = billing.ErrorKindTransient
	}
	return pe
}

// intentStatusError reports a confirmed intent that still needs a new
// payment method as a decline.
func intentStatusError(pi *stripe.PaymentIntent) error {
	if pi.Status != stripe.PaymentIntentStatusRequiresPaymentMethod {
		return nil
	}
	code := "card_declined"
	msg := "payment method was declined"
	if pi.LastPaymentError != nil {
		if pi.LastPaymentError.Code != "" {
			code = string(pi.LastPaymentError.Code)
		}
		if pi.LastPaymentError.Msg != "" {
			msg = pi.LastPaymentError.Msg
		}
	}
	return &billing.ProviderError{Kind: billing.ErrorKindDeclined, Code: code, Message: msg}
}
