// Package config provides functionality for managing configuration options
// of the server using command-line flags, environment variables and an
// optional config file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Options holds the configuration values for the server.
type Options struct {
	// Address defines the server's listening address (ip:port).
	Address string `json:"address" yaml:"address" env:"SERVER_ADDRESS" env-default:"localhost:8080"`

	// DatabaseDSN holds the Postgres connection string.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn" env:"DATABASE_DSN"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// RateLimitRPS and RateLimitBurst bound requests per client address.
	// A non-positive RPS disables limiting.
	RateLimitRPS   float64 `json:"rate_limit_rps" yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"50"`
	RateLimitBurst int     `json:"rate_limit_burst" yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"100"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" yaml:"tls_cert" env:"TLS_CERT"`
	TLSKey  string `json:"tls_key" yaml:"tls_key" env:"TLS_KEY"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
}

// TLSEnabled reports whether the server should serve HTTPS.
func (o *Options) TLSEnabled() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}

// Parse reads the configuration from args (without the program name), the
// environment and the config file. Priority: explicitly set flags, then
// environment, then the file, then defaults. A missing file is ignored unless
// its path was given explicitly.
func Parse(args []string) (*Options, error) {
	var flags Options
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&flags.Address, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&flags.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&flags.Config, "config", "config.json", "path to config file")
	fs.StringVar(&flags.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&flags.LogLevel, "l", "info", "log level")
	fs.Float64Var(&flags.RateLimitRPS, "rps", 50, "requests per second per client, 0 disables")
	fs.IntVar(&flags.RateLimitBurst, "burst", 100, "rate limit burst")
	fs.StringVar(&flags.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&flags.TLSKey, "tls-key", "", "TLS key file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	path, explicit := flags.Config, set["c"] || set["config"]
	if env := os.Getenv("CONFIG"); env != "" && !explicit {
		path, explicit = env, true
	}

	opts := &Options{Config: path}
	if err := load(path, explicit, opts); err != nil {
		return nil, err
	}

	if set["a"] {
		opts.Address = flags.Address
	}
	if set["d"] {
		opts.DatabaseDSN = flags.DatabaseDSN
	}
	if set["l"] {
		opts.LogLevel = flags.LogLevel
	}
	if set["rps"] {
		opts.RateLimitRPS = flags.RateLimitRPS
	}
	if set["burst"] {
		opts.RateLimitBurst = flags.RateLimitBurst
	}
	if set["tls-cert"] {
		opts.TLSCert = flags.TLSCert
	}
	if set["tls-key"] {
		opts.TLSKey = flags.TLSKey
	}

	if opts.DatabaseDSN == "" {
		return nil, errors.New("config: database DSN is required (-d or DATABASE_DSN)")
	}
	if (opts.TLSCert == "") != (opts.TLSKey == "") {
		return nil, errors.New("config: -tls-cert and -tls-key must be set together")
	}
	return opts, nil
}

func load(path string, explicit bool, opts *Options) error {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, opts); err != nil {
				return fmt.Errorf("config: read %s: %w", path, err)
			}
			return nil
		} else if explicit {
			return fmt.Errorf("config: file %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(opts); err != nil {
		return fmt.Errorf("config: read env: %w", err)
	}
	return nil
}
