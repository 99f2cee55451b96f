// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// TLS policies accepted in SMTPConfig.TLS.
const (
	TLSOpportunistic = "opportunistic"
	TLSMandatory     = "mandatory"
	TLSNone          = "none"
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of the TLS* policies; empty means TLSOpportunistic.
	TLS     string
	Timeout time.Duration
}

// smtpSender is the subset of *gomail.Client used by SMTPMailer.
type smtpSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPMailer delivers messages through an SMTP relay. Each Send dials the
// relay; sends are serialized over the one client.
type SMTPMailer struct {
	mu     sync.Mutex
	client smtpSender
	host   string
	now    func() time.Time
}

// NewSMTPMailer creates an SMTPMailer. PLAIN auth is used when a username
// is set.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("field", "smtp.host").Errorf("smtp host is required")
	}

	opts, err := smtpOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("operation", "create smtp client").Wrap(err)
	}
	return &SMTPMailer{client: client, host: cfg.Host, now: time.Now}, nil
}

func smtpOptions(cfg SMTPConfig) ([]gomail.Option, error) {
	port := cfg.Port
	if port == 0 {
		port = 25
	}

	var policy gomail.TLSPolicy
	switch cfg.TLS {
	case "", TLSOpportunistic:
		policy = gomail.TLSOpportunistic
	case TLSMandatory:
		policy = gomail.TLSMandatory
	case TLSNone:
		policy = gomail.NoTLS
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("field", "smtp.tls").
			Errorf("smtp tls must be %q, %q or %q", TLSOpportunistic, TLSMandatory, TLSNone)
	}

	opts := []gomail.Option{gomail.WithPort(port), gomail.WithTLSPolicy(policy)}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return opts, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := newMsg(msg, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("transport", TransportSMTP).
			With("host", m.host).
			With("to", msg.To).
			Wrap(err)
	}
	return nil
}
