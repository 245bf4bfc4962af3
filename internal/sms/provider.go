package sms

import (
	"context"
	"log"
	"strings"

	"github.com/dernekpro/backend/internal/config"
)

// SendResult is the per-destination outcome of one provider call.
type SendResult struct {
	Success           bool   `json:"success"`
	Provider          string `json:"provider"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Provider is the transport capability used by the dispatch pipeline.
// SendBulk sends the same message to every destination and returns one
// result per destination, best effort; it is only used on the
// non-personalized path.
type Provider interface {
	Name() string
	SendSingle(ctx context.Context, to, message string) SendResult
	SendBulk(ctx context.Context, to []string, message string) []SendResult
}

// Provider identifiers accepted in SMS_PROVIDER.
const (
	ProviderDummy  = "dummy"
	ProviderTwilio = "twilio"
)

// NewProvider resolves the configured transport once at startup. Unknown
// names fall back to the dummy transport so the service stays usable.
func NewProvider(cfg *config.SMSConfig) Provider {
	switch strings.ToLower(cfg.Provider) {
	case ProviderTwilio:
		p, err := NewTwilioProvider(cfg)
		if err != nil {
			log.Printf("[SMS] Twilio provider unavailable, falling back to dummy: %v", err)
			return NewDummyProvider()
		}
		return p
	case ProviderDummy:
		return NewDummyProvider()
	default:
		log.Printf("[SMS] Unknown provider %q, using dummy", cfg.Provider)
		return NewDummyProvider()
	}
}
