package sms

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DummyProvider is the no-network transport for local development and
// tests. It simulates a small latency and always succeeds unless the
// destination is empty.
type DummyProvider struct {
	latency time.Duration
}

func NewDummyProvider() *DummyProvider {
	return &DummyProvider{latency: 10 * time.Millisecond}
}

func (p *DummyProvider) Name() string {
	return ProviderDummy
}

func (p *DummyProvider) SendSingle(ctx context.Context, to, message string) SendResult {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return SendResult{Success: false, Provider: p.Name(), Error: ctx.Err().Error()}
	}

	if to == "" {
		return SendResult{Success: false, Provider: p.Name(), Error: "missing destination"}
	}

	return SendResult{
		Success:           true,
		Provider:          p.Name(),
		ProviderMessageID: "dum-" + randomID(),
	}
}

func (p *DummyProvider) SendBulk(ctx context.Context, to []string, message string) []SendResult {
	results := make([]SendResult, 0, len(to))
	for _, phone := range to {
		results = append(results, p.SendSingle(ctx, phone, message))
	}
	return results
}

func randomID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
