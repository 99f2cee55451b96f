// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// Subjects of the account emails.
const (
	SubjectVerify = "Please verify your email"
	SubjectReset  = "Reset your password"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type verifyData struct {
	Username string
	Token    string
	Link     string
}

type resetData struct {
	Username string
	Link     string
	Expiry   string
}

// Notifier renders account emails and hands them to a Mailer.
type Notifier struct {
	mailer  Mailer
	from    string
	baseURL *url.URL
	expiry  time.Duration
}

// NewNotifier creates a Notifier. baseURL is the public origin used to
// build links, e.g. "https://accounts.example.com".
func NewNotifier(mailer Mailer, from, baseURL string) (*Notifier, error) {
	if mailer == nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("field", "mailer").Errorf("mailer is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("field", "base_url").
			With("base_url", baseURL).
			Errorf("base url must be absolute")
	}
	return &Notifier{mailer: mailer, from: from, baseURL: u, expiry: account.ResetTokenExpiry}, nil
}

// WithResetExpiry sets the expiry shown in reset emails.
func (n *Notifier) WithResetExpiry(d time.Duration) *Notifier {
	if d > 0 {
		n.expiry = d
	}
	return n
}

// VerifyLink returns the verification page URL prefilled with token.
func (n *Notifier) VerifyLink(token string) string {
	u := n.baseURL.JoinPath("users", "verify")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

// ResetLink returns the reset page URL for token.
func (n *Notifier) ResetLink(token string) string {
	return n.baseURL.JoinPath("users", "reset", token).String()
}

// SendVerification implements account.Notifier.
func (n *Notifier) SendVerification(ctx context.Context, acct *account.Account, token string) error {
	body, err := render("verify.html", verifyData{
		Username: acct.Username,
		Token:    token,
		Link:     n.VerifyLink(token),
	})
	if err != nil {
		return err
	}
	return n.deliver(ctx, acct, SubjectVerify, body)
}

// SendPasswordReset implements account.Notifier.
func (n *Notifier) SendPasswordReset(ctx context.Context, acct *account.Account, token string) error {
	body, err := render("reset.html", resetData{
		Username: acct.Username,
		Link:     n.ResetLink(token),
		Expiry:   fmt.Sprintf("%d minutes", int(n.expiry.Minutes())),
	})
	if err != nil {
		return err
	}
	return n.deliver(ctx, acct, SubjectReset, body)
}

func (n *Notifier) deliver(ctx context.Context, acct *account.Account, subject, body string) error {
	err := n.mailer.Send(ctx, Message{
		From:    n.from,
		To:      acct.Email,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		return oops.Code("MAIL_DELIVERY_FAILED").
			With("subject", subject).
			With("account_id", acct.ID.String()).
			Wrap(errors.Join(account.ErrMailDelivery, err))
	}
	return nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}

var _ account.Notifier = (*Notifier)(nil)
