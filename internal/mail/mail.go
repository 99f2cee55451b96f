// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail delivers account emails over pluggable transports.
package mail

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// Message is a single outbound HTML email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Validate reports whether the message has the fields every transport needs.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return oops.Code("MAIL_INVALID").With("field", "to").Errorf("recipient is required")
	case strings.TrimSpace(m.From) == "":
		return oops.Code("MAIL_INVALID").With("field", "from").Errorf("sender is required")
	case strings.ContainsAny(m.To+m.From+m.Subject, "\r\n"):
		return oops.Code("MAIL_INVALID").With("field", "header").Errorf("header values must not contain line breaks")
	}
	return nil
}

// Mailer sends a message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Transport names accepted by New.
const (
	TransportSMTP = "smtp"
	TransportLog  = "log"
	TransportS3   = "s3"
)

// newMsg builds the MIME message for msg. The body is sent as the single
// text/html part.
func newMsg(msg Message, now time.Time) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, oops.Code("MAIL_INVALID").With("field", "from").Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_INVALID").With("field", "to").Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(now.UTC())
	m.SetMessageIDWithValue(uuid.NewString() + "@accountd")
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

// encode renders msg as an RFC 5322 message, as written to an .eml file.
func encode(msg Message, now time.Time) ([]byte, error) {
	m, err := newMsg(msg, now)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if _, err := m.WriteTo(&b); err != nil {
		return nil, oops.Code("MAIL_ENCODE_FAILED").Wrap(err)
	}
	return b.Bytes(), nil
}
