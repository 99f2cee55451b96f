// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accountd settings from defaults, an optional YAML
// file, the environment and command flags, in increasing precedence.
//
// Environment variables use the ACCOUNTD_ prefix with a double underscore
// between nesting levels, e.g. ACCOUNTD_DATABASE__URL or
// ACCOUNTD_SESSION__REDIS__ADDR.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/logging"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/session"
)

// Session backends.
const (
	SessionBackendJWT   = "jwt"
	SessionBackendRedis = "redis"
)

// Config is the full accountd configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Hash     HashConfig     `koanf:"hash"`
	Session  SessionConfig  `koanf:"session"`
	Mail     MailConfig     `koanf:"mail"`
	Reset    ResetConfig    `koanf:"reset"`
}

// HTTPConfig configures the web and observability listeners.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	MetricsAddr    string        `koanf:"metrics_addr"`
	BaseURL        string        `koanf:"base_url"`
	SecureCookies  bool          `koanf:"secure_cookies"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	MaxConns        int32  `koanf:"max_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HashConfig selects the password hasher.
type HashConfig struct {
	Algorithm  string `koanf:"algorithm"`
	BcryptCost int    `koanf:"bcrypt_cost"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	Backend    string        `koanf:"backend"`
	Secret     string        `koanf:"secret"`
	TTL        time.Duration `koanf:"ttl"`
	CookieName string        `koanf:"cookie_name"`
	Redis      RedisConfig   `koanf:"redis"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// MailConfig configures the mail transport.
type MailConfig struct {
	Transport string     `koanf:"transport"`
	From      string     `koanf:"from"`
	SMTP      SMTPConfig `koanf:"smtp"`
	S3        S3Config   `koanf:"s3"`
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	TLS      string        `koanf:"tls"`
	Timeout  time.Duration `koanf:"timeout"`
}

// S3Config configures the S3 outbox transport.
type S3Config struct {
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	Expiry        time.Duration `koanf:"expiry"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:5000",
			MetricsAddr:    "127.0.0.1:9100",
			BaseURL:        "http://localhost:5000",
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Hash: HashConfig{
			Algorithm:  account.AlgorithmArgon2id,
			BcryptCost: account.DefaultBcryptCost,
		},
		Session: SessionConfig{
			Backend:    SessionBackendJWT,
			TTL:        session.DefaultTTL,
			CookieName: "accountd_session",
		},
		Mail: MailConfig{
			Transport: mail.TransportLog,
			From:      "noreply@localhost",
			SMTP:      SMTPConfig{Port: 25, TLS: mail.TLSOpportunistic, Timeout: 15 * time.Second},
			S3:        S3Config{Region: "us-east-1", Prefix: "outbox"},
		},
		Reset: ResetConfig{
			Expiry:        account.ResetTokenExpiry,
			PurgeInterval: 15 * time.Minute,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "listen address is required")
	}
	if u, err := url.Parse(c.HTTP.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("http.base_url", "base url must be absolute")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level")
	}
	if _, err := account.NewHasher(c.Hash.Algorithm, c.Hash.BcryptCost); err != nil {
		return invalid("hash.algorithm", "unknown hash algorithm")
	}

	switch c.Session.Backend {
	case SessionBackendJWT:
		if len(c.Session.Secret) < session.MinSecretLength {
			return invalid("session.secret", "session secret must be at least 32 bytes")
		}
	case SessionBackendRedis:
		if c.Session.Redis.Addr == "" {
			return invalid("session.redis.addr", "redis address is required")
		}
	default:
		return invalid("session.backend", "session backend must be 'jwt' or 'redis'")
	}

	if strings.TrimSpace(c.Mail.From) == "" {
		return invalid("mail.from", "sender address is required")
	}
	switch c.Mail.Transport {
	case mail.TransportLog:
	case mail.TransportSMTP:
		if c.Mail.SMTP.Host == "" {
			return invalid("mail.smtp.host", "smtp host is required")
		}
		switch c.Mail.SMTP.TLS {
		case mail.TLSOpportunistic, mail.TLSMandatory, mail.TLSNone:
		default:
			return invalid("mail.smtp.tls", "smtp tls must be 'opportunistic', 'mandatory' or 'none'")
		}
	case mail.TransportS3:
		if c.Mail.S3.Bucket == "" {
			return invalid("mail.s3.bucket", "s3 bucket is required")
		}
	default:
		return invalid("mail.transport", "mail transport must be 'smtp', 'log' or 's3'")
	}

	if c.Reset.Expiry <= 0 {
		return invalid("reset.expiry", "reset expiry must be positive")
	}
	return nil
}

// MailerConfig converts the mail settings for mail.New.
func (c *Config) MailerConfig() mail.Config {
	return mail.Config{
		Transport: c.Mail.Transport,
		SMTP: mail.SMTPConfig{
			Host:     c.Mail.SMTP.Host,
			Port:     c.Mail.SMTP.Port,
			Username: c.Mail.SMTP.Username,
			Password: c.Mail.SMTP.Password,
			TLS:      c.Mail.SMTP.TLS,
			Timeout:  c.Mail.SMTP.Timeout,
		},
		S3: mail.S3Config{
			Bucket:    c.Mail.S3.Bucket,
			Prefix:    c.Mail.S3.Prefix,
			Region:    c.Mail.S3.Region,
			Endpoint:  c.Mail.S3.Endpoint,
			AccessKey: c.Mail.S3.AccessKey,
			SecretKey: c.Mail.S3.SecretKey,
		},
	}
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s", msg)
}
