// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ACCOUNTD_"

// flagKeys maps command flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "http.metrics_addr",
	"base-url":     "http.base_url",
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// LoadOptions names the optional sources for Load.
type LoadOptions struct {
	// File is a YAML config file. Empty skips it.
	File string
	// EnvFile is a dotenv file loaded into the process environment before
	// ACCOUNTD_ variables are read. Variables already set win.
	EnvFile string
	// Flags contributes explicitly set flags listed in flagKeys.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, opts.File, the environment and
// opts.Flags, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg, err := load(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("env_file", opts.EnvFile).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns ACCOUNTD_SESSION__REDIS__ADDR into session.redis.addr.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "web listen address")
	fs.String("metrics-addr", d.HTTP.MetricsAddr, "metrics/health listen address (empty = disabled)")
	fs.String("base-url", d.HTTP.BaseURL, "public base URL used in email links")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// LoadDatabaseURL resolves only database.url from the same sources as Load.
// Maintenance commands use it so they run without web or mail settings.
func LoadDatabaseURL(opts LoadOptions) (string, error) {
	cfg, err := load(opts)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", invalid("database.url", "database url is required")
	}
	return cfg.Database.URL, nil
}
