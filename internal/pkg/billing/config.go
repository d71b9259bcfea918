package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
)

const (
	defaultEventClaimTTL  = 5 * time.Minute
	defaultPaymentMethod  = "card"
	defaultReplayBatch    = 50
	defaultReplayMinAge   = 15 * time.Minute
	placeholderPatternEnv = "BILLING_PLACEHOLDER_CUSTOMER_PATTERNS"
)

// Config holds the tunables of the billing engine.
type Config struct {
	// Provider is stored on every ProviderEvent row.
	Provider string
	// PlaceholderCustomerPatterns are wildcard patterns for upstream customer
	// ids that were written as stand-ins and never existed at the provider.
	PlaceholderCustomerPatterns []string
	DefaultPaymentMethod        string
	// CardClassMethods share a decline outcome: once one declines, the
	// others are skipped for the rest of the rotation.
	CardClassMethods []string
	// CountryMethods lists local payment methods in preference order.
	CountryMethods map[string][]string
	// CurrencyCountries infers a country when the caller gives none.
	CurrencyCountries map[string]string
	// EventClaimTTL is how long an in-flight claim blocks other deliveries.
	EventClaimTTL        time.Duration
	RejectStaleSnapshots bool
	ReplayBatchSize      int
	ReplayMinAge         time.Duration
}

// DefaultConfig returns the built-in engine configuration.
func DefaultConfig() Config {
	return Config{
		Provider: models.ProviderStripe,
		PlaceholderCustomerPatterns: []string{
			"cus_placeholder*",
			"cus_pending*",
			"placeholder*",
			"pending_*",
			"temp_*",
		},
		DefaultPaymentMethod: defaultPaymentMethod,
		CardClassMethods:     []string{"card", "card_present"},
		CountryMethods: map[string][]string{
			"BR": {"pix", "boleto", "card"},
			"MX": {"oxxo", "card"},
			"NL": {"ideal", "card", "sepa_debit"},
			"DE": {"sepa_debit", "card"},
			"AT": {"eps", "sepa_debit", "card"},
			"BE": {"bancontact", "sepa_debit", "card"},
			"PL": {"blik", "p24", "card"},
			"US": {"card", "us_bank_account"},
			"GB": {"card", "bacs_debit"},
			"CA": {"card", "acss_debit"},
			"AU": {"card", "au_becs_debit"},
			"JP": {"card", "konbini"},
			"IN": {"card", "upi"},
			"EU": {"sepa_debit", "card"},
		},
		CurrencyCountries: map[string]string{
			"eur": "EU",
			"brl": "BR",
			"mxn": "MX",
			"pln": "PL",
			"usd": "US",
			"gbp": "GB",
			"cad": "CA",
			"aud": "AU",
			"jpy": "JP",
			"inr": "IN",
		},
		EventClaimTTL:        defaultEventClaimTTL,
		RejectStaleSnapshots: true,
		ReplayBatchSize:      defaultReplayBatch,
		ReplayMinAge:         defaultReplayMinAge,
	}
}

// ConfigFromEnv overlays BILLING_* environment settings on DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Provider = strings.ToLower(strings.TrimSpace(env.GetEnv("BILLING_PROVIDER", cfg.Provider)))
	cfg.PlaceholderCustomerPatterns = env.GetEnvList(placeholderPatternEnv, cfg.PlaceholderCustomerPatterns)
	cfg.DefaultPaymentMethod = normalizeMethod(env.GetEnv("BILLING_DEFAULT_PAYMENT_METHOD", cfg.DefaultPaymentMethod))
	cfg.CardClassMethods = env.GetEnvList("BILLING_CARD_CLASS_METHODS", cfg.CardClassMethods)
	cfg.EventClaimTTL = env.GetEnvDuration("BILLING_EVENT_CLAIM_TTL", cfg.EventClaimTTL)
	cfg.RejectStaleSnapshots = env.GetEnvBool("BILLING_REJECT_STALE_SNAPSHOTS", cfg.RejectStaleSnapshots)
	cfg.ReplayBatchSize = env.GetEnvInt("BILLING_REPLAY_BATCH_SIZE", cfg.ReplayBatchSize)
	cfg.ReplayMinAge = env.GetEnvDuration("BILLING_REPLAY_MIN_AGE", cfg.ReplayMinAge)
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.DefaultPaymentMethod == "" {
		c.DefaultPaymentMethod = d.DefaultPaymentMethod
	}
	if len(c.CardClassMethods) == 0 {
		c.CardClassMethods = d.CardClassMethods
	}
	if c.CountryMethods == nil {
		c.CountryMethods = d.CountryMethods
	}
	if c.CurrencyCountries == nil {
		c.CurrencyCountries = d.CurrencyCountries
	}
	if c.EventClaimTTL <= 0 {
		c.EventClaimTTL = d.EventClaimTTL
	}
	if c.ReplayBatchSize <= 0 {
		c.ReplayBatchSize = d.ReplayBatchSize
	}
	if c.ReplayMinAge <= 0 {
		c.ReplayMinAge = d.ReplayMinAge
	}
	return c
}
