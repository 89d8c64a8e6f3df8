// Package config holds the configuration of the device client.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Options holds the configuration values for the device client.
type Options struct {
	// ServerURL is the base URL of the remote application service.
	ServerURL string `json:"server_url" yaml:"server_url" env:"FARMCREDIT_URL" env-default:"http://localhost:8080"`

	// DBPath is the SQLite file of the local durable store.
	DBPath string `json:"db_path" yaml:"db_path" env:"FARMCREDIT_DB" env-default:"farmcredit.db"`

	// AgentID identifies the field agent operating the device.
	AgentID string `json:"agent_id" yaml:"agent_id" env:"FARMCREDIT_AGENT" env-default:"agent-1"`

	// SyncInterval is the period of automatic sync passes.
	SyncInterval time.Duration `json:"sync_interval" yaml:"sync_interval" env:"FARMCREDIT_SYNC_INTERVAL" env-default:"30s"`

	// ProbeInterval is the period of the connectivity probe.
	ProbeInterval time.Duration `json:"probe_interval" yaml:"probe_interval" env:"FARMCREDIT_PROBE_INTERVAL" env-default:"5s"`

	// RequestTimeout bounds every remote call.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" env:"FARMCREDIT_REQUEST_TIMEOUT" env-default:"10s"`

	// CAFile is an optional PEM bundle trusted for an https ServerURL.
	CAFile string `json:"ca_file" yaml:"ca_file" env:"FARMCREDIT_CA"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" yaml:"log_level" env:"FARMCREDIT_LOG_LEVEL" env-default:"warn"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
}

// Parse reads the configuration from args (without the program name), the
// FARMCREDIT_* environment and an optional config file given with -c or
// FARMCREDIT_CONFIG. Explicitly set flags win over the environment, which
// wins over the file.
func Parse(args []string) (*Options, error) {
	var flags Options
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&flags.ServerURL, "url", "http://localhost:8080", "remote service base URL")
	fs.StringVar(&flags.DBPath, "db", "farmcredit.db", "local store path")
	fs.StringVar(&flags.AgentID, "agent", "agent-1", "field agent id")
	fs.DurationVar(&flags.SyncInterval, "sync-interval", 30*time.Second, "automatic sync period")
	fs.DurationVar(&flags.ProbeInterval, "probe-interval", 5*time.Second, "connectivity probe period")
	fs.DurationVar(&flags.RequestTimeout, "request-timeout", 10*time.Second, "remote call timeout")
	fs.StringVar(&flags.CAFile, "ca", "", "CA certificate for https")
	fs.StringVar(&flags.LogLevel, "l", "warn", "log level")
	fs.StringVar(&flags.Config, "c", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	opts := &Options{Config: flags.Config}
	if opts.Config == "" {
		opts.Config = os.Getenv("FARMCREDIT_CONFIG")
	}
	if opts.Config != "" {
		if err := cleanenv.ReadConfig(opts.Config, opts); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.Config, err)
		}
	} else if err := cleanenv.ReadEnv(opts); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	overrides := map[string]func(){
		"url":             func() { opts.ServerURL = flags.ServerURL },
		"db":              func() { opts.DBPath = flags.DBPath },
		"agent":           func() { opts.AgentID = flags.AgentID },
		"sync-interval":   func() { opts.SyncInterval = flags.SyncInterval },
		"probe-interval":  func() { opts.ProbeInterval = flags.ProbeInterval },
		"request-timeout": func() { opts.RequestTimeout = flags.RequestTimeout },
		"ca":              func() { opts.CAFile = flags.CAFile },
		"l":               func() { opts.LogLevel = flags.LogLevel },
	}
	for name, apply := range overrides {
		if set[name] {
			apply()
		}
	}

	if opts.SyncInterval <= 0 || opts.ProbeInterval <= 0 || opts.RequestTimeout <= 0 {
		return nil, errors.New("config: intervals and timeouts must be positive")
	}
	if opts.AgentID == "" {
		return nil, errors.New("config: agent id is required")
	}
	return opts, nil
}
