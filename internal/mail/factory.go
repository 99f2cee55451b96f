// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Config selects and configures a transport.
type Config struct {
	Transport string
	SMTP      SMTPConfig
	S3        S3Config
}

// New builds the Mailer named by cfg.Transport.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Mailer, error) {
	switch cfg.Transport {
	case TransportSMTP:
		m, err := NewSMTPMailer(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		return m, nil
	case TransportLog, "":
		return NewLogMailer(logger), nil
	case TransportS3:
		m, err := NewS3Mailer(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("transport", cfg.Transport).
			Errorf("unknown mail transport %q", cfg.Transport)
	}
}
