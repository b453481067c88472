// Package config loads the relay configuration.
//
// Values come from three layers applied in order: built-in defaults, an
// optional YAML file (unknown keys are rejected), and USB_* environment
// variables. The result is validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bitsong/usb/internal/adapter"
	"github.com/bitsong/usb/internal/envelope"
)

var validate = validator.New()

// Config is the relay configuration.
type Config struct {
	DBPath         string            `yaml:"db_path" env:"USB_DB_PATH" validate:"required"`
	LogLevel       string            `yaml:"log_level" env:"USB_LOG_LEVEL" validate:"oneof=debug info warn error"`
	HostChain      string            `yaml:"host_chain" env:"USB_HOST_CHAIN" validate:"required,max=64"`
	AccountProxy   string            `yaml:"account_proxy" env:"USB_ACCOUNT_PROXY" validate:"required"`
	IBCClient      string            `yaml:"ibc_client" env:"USB_IBC_CLIENT" validate:"required"`
	ProxyModuleID  string            `yaml:"proxy_module_id" env:"USB_PROXY_MODULE_ID" validate:"required"`
	NATSURL        string            `yaml:"nats_url" env:"USB_NATS_URL" validate:"omitempty,url"`
	Admin          string            `yaml:"admin" env:"USB_ADMIN"`
	NamespaceOwner string            `yaml:"namespace_owner" env:"USB_NAMESPACE_OWNER"`
	Accounts       map[string]string `yaml:"accounts"` // address -> account ID
}

// Default returns the built-in defaults. The account proxy and IBC client
// addresses have no sensible default and must be configured.
func Default() Config {
	return Config{
		DBPath:        "usb.db",
		LogLevel:      "info",
		HostChain:     envelope.DefaultHostChain,
		ProxyModuleID: envelope.DefaultProxyModuleID,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Envelope returns the envelope builder settings.
func (c Config) Envelope() envelope.Config {
	return envelope.Config{
		AccountProxy:  c.AccountProxy,
		IBCClient:     c.IBCClient,
		ProxyModuleID: c.ProxyModuleID,
		HostChain:     c.HostChain,
	}
}

// Resolver returns a static ownership resolver built from the account table
// and the namespace owner.
func (c Config) Resolver() adapter.StaticResolver {
	r := adapter.StaticResolver{
		Accounts: c.Accounts,
		Owners:   map[string]string{},
	}
	if c.NamespaceOwner != "" {
		r.Owners[adapter.Namespace] = c.NamespaceOwner
	}
	return r
}
