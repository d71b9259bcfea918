package billing

import (
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

func (c Config) isCardClass(method string) bool {
	for _, m := range c.CardClassMethods {
		if m == method {
			return true
		}
	}
	return false
}

// countryFor returns the explicit country or the one implied by currency.
func (c Config) countryFor(country, currency string) string {
	if cc := strings.ToUpper(strings.TrimSpace(country)); cc != "" {
		return cc
	}
	return c.CurrencyCountries[strings.ToLower(strings.TrimSpace(currency))]
}

func (c Config) methodsFor(country string) []string {
	return c.CountryMethods[country]
}

// candidates lists the methods to try: preferred first, then the country's
// methods in table order, each at most once.
func (c Config) candidates(preferred, country string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(m string) {
		m = normalizeMethod(m)
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	add(preferred)
	for _, m := range c.methodsFor(country) {
		add(m)
	}
	if len(out) == 0 {
		add(c.DefaultPaymentMethod)
	}
	return out
}

// pruneCardClass drops card-class methods after position from.
func (c Config) pruneCardClass(candidates []string, from int) []string {
	out := append([]string(nil), candidates[:from]...)
	for _, m := range candidates[from:] {
		if !c.isCardClass(m) {
			out = append(out, m)
		}
	}
	return out
}

// isPlaceholderCustomerID matches ids written before a real provider
// customer existed.
func (c Config) isPlaceholderCustomerID(id string) bool {
	for _, pattern := range c.PlaceholderCustomerPatterns {
		if wildcard.Match(pattern, id) {
			return true
		}
	}
	return false
}

// majorityMethodType returns the most common type; ties go to the type seen first.
func majorityMethodType(methods []PaymentMethod) string {
	counts := make(map[string]int)
	var order []string
	for _, pm := range methods {
		t := normalizeMethod(pm.Type)
		if t == "" {
			continue
		}
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	best := ""
	for _, t := range order {
		if best == "" || counts[t] > counts[best] {
			best = t
		}
	}
	return best
}
