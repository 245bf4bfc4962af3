package email

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/dernekpro/backend/internal/config"
	gomail "gopkg.in/gomail.v2"
)

// Mailer is the transport capability used by bulk email sends. Unlike the
// SMS provider it returns a plain error; there is no provider message id
// to carry back from SMTP.
type Mailer interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) error
}

// Mailer identifiers accepted in EMAIL_PROVIDER.
const (
	MailerDummy = "dummy"
	MailerSMTP  = "smtp"
)

// NewMailer resolves the configured transport once at startup. Unknown
// names fall back to the dummy transport so the service stays usable.
func NewMailer(cfg *config.EmailConfig) Mailer {
	switch strings.ToLower(cfg.Provider) {
	case MailerSMTP:
		m, err := NewSMTPMailer(cfg)
		if err != nil {
			log.Printf("[EMAIL] SMTP mailer unavailable, falling back to dummy: %v", err)
			return NewDummyMailer()
		}
		return m
	case MailerDummy:
		return NewDummyMailer()
	default:
		log.Printf("[EMAIL] Unknown mailer %q, using dummy", cfg.Provider)
		return NewDummyMailer()
	}
}

// SMTPMailer delivers through a configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg *config.EmailConfig) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("SMTP host not configured")
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.From,
	}, nil
}

func (m *SMTPMailer) Name() string {
	return MailerSMTP
}

// Send delivers one message with a plain-text body and an HTML
// alternative (newlines become <br>).
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.AddAlternative("text/html", strings.ReplaceAll(body, "\n", "<br>"))

	return m.dialer.DialAndSend(msg)
}
