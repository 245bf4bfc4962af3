package email

import (
	"context"
	"errors"
	"log"
	"time"
)

// DummyMailer logs instead of delivering. Development default and the
// fallback when SMTP is not configured.
type DummyMailer struct{}

func NewDummyMailer() *DummyMailer {
	return &DummyMailer{}
}

func (m *DummyMailer) Name() string {
	return MailerDummy
}

func (m *DummyMailer) Send(ctx context.Context, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	if to == "" {
		return errors.New("missing destination address")
	}

	log.Printf("[EMAIL:DUMMY] to=%s subject=%q bytes=%d", to, subject, len(body))
	return nil
}
