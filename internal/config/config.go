// Package config loads the vrfjack configuration.
//
// Settings come from an HCL file, then secrets are overlaid from the
// environment (optionally seeded from a .env file). Command-line flags are
// applied by the caller last.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"

	"github.com/lox/vrfjack/internal/oracle"
)

// Coordinator kinds
const (
	CoordinatorMock  = "mock"
	CoordinatorLocal = "local"
	CoordinatorNATS  = "nats"
)

// History sink kinds
const (
	SinkNone     = "none"
	SinkFile     = "file"
	SinkPostgres = "postgres"
)

// Config is the complete configuration
type Config struct {
	Server  ServerSettings
	House   HouseSettings
	Oracle  OracleSettings
	History HistorySettings
	Secrets Secrets
}

// fileConfig is the HCL document; every block is optional
type fileConfig struct {
	Server  *ServerSettings  `hcl:"server,block"`
	House   *HouseSettings   `hcl:"house,block"`
	Oracle  *OracleSettings  `hcl:"oracle,block"`
	History *HistorySettings `hcl:"history,block"`
}

// ServerSettings configures the HTTP surface
type ServerSettings struct {
	Address        string   `hcl:"address,optional"`
	Port           int      `hcl:"port,optional"`
	LogLevel       string   `hcl:"log_level,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`
	RateLimit      int      `hcl:"rate_limit,optional"`
}

// HouseSettings configures the pool owner
type HouseSettings struct {
	Owner      string `hcl:"owner,optional"`
	Collateral uint64 `hcl:"collateral,optional"`
}

// OracleSettings selects and configures the randomness coordinator
type OracleSettings struct {
	Coordinator    string `hcl:"coordinator,optional"`
	Delay          string `hcl:"delay,optional"`
	Seed           int64  `hcl:"seed,optional"`
	RequestSubject string `hcl:"request_subject,optional"`
	FulfilSubject  string `hcl:"fulfil_subject,optional"`
}

// HistorySettings configures round recording
type HistorySettings struct {
	Sink          string `hcl:"sink,optional"`
	Dir           string `hcl:"dir,optional"`
	FlushInterval string `hcl:"flush_interval,optional"`
	FlushRounds   int    `hcl:"flush_rounds,optional"`
}

// Secrets are read from the environment only
type Secrets struct {
	JWTSecret   string `env:"VRFJACK_JWT_SECRET"`
	NATSURL     string `env:"VRFJACK_NATS_URL"`
	NATSToken   string `env:"VRFJACK_NATS_TOKEN"`
	PostgresURL string `env:"VRFJACK_POSTGRES_URL"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads filename, falling back to defaults when it does not exist
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	var cfg Config
	if fc.Server != nil {
		cfg.Server = *fc.Server
	}
	if fc.House != nil {
		cfg.House = *fc.House
	}
	if fc.Oracle != nil {
		cfg.Oracle = *fc.Oracle
	}
	if fc.History != nil {
		cfg.History = *fc.History
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadEnv loads a .env file into the process environment, if present, and
// overlays the secrets
func (c *Config) LoadEnv(dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	if err := env.Parse(&c.Secrets); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.House.Owner == "" {
		c.House.Owner = "house"
	}
	if c.Oracle.Coordinator == "" {
		c.Oracle.Coordinator = CoordinatorLocal
	}
	if c.Oracle.Delay == "" {
		c.Oracle.Delay = "0s"
	}
	if c.Oracle.RequestSubject == "" {
		c.Oracle.RequestSubject = oracle.DefaultRequestSubject
	}
	if c.Oracle.FulfilSubject == "" {
		c.Oracle.FulfilSubject = oracle.DefaultFulfilSubject
	}
	if c.History.Sink == "" {
		c.History.Sink = SinkNone
	}
	if c.History.Dir == "" {
		c.History.Dir = "rounds"
	}
	if c.History.FlushInterval == "" {
		c.History.FlushInterval = "10s"
	}
	if c.History.FlushRounds == 0 {
		c.History.FlushRounds = 100
	}
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	switch c.Oracle.Coordinator {
	case CoordinatorMock, CoordinatorLocal:
	case CoordinatorNATS:
		if c.Oracle.RequestSubject == c.Oracle.FulfilSubject {
			return fmt.Errorf("oracle: request and fulfil subjects must differ")
		}
	default:
		return fmt.Errorf("oracle: unknown coordinator %q", c.Oracle.Coordinator)
	}
	if d, err := c.OracleDelay(); err != nil {
		return err
	} else if d < 0 {
		return fmt.Errorf("oracle: delay must not be negative")
	}

	switch c.History.Sink {
	case SinkNone, SinkFile:
	case SinkPostgres:
		if c.Secrets.PostgresURL == "" {
			return fmt.Errorf("history: postgres sink needs VRFJACK_POSTGRES_URL")
		}
	default:
		return fmt.Errorf("history: unknown sink %q", c.History.Sink)
	}
	if d, err := c.FlushInterval(); err != nil {
		return err
	} else if d <= 0 {
		return fmt.Errorf("history: flush interval must be positive")
	}
	if c.History.FlushRounds < 1 {
		return fmt.Errorf("history: flush rounds must be positive")
	}

	return nil
}

// ServerAddress returns the listen address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// OracleDelay returns the local coordinator's fulfilment delay
func (c *Config) OracleDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Oracle.Delay)
	if err != nil {
		return 0, fmt.Errorf("oracle: invalid delay %q: %w", c.Oracle.Delay, err)
	}
	return d, nil
}

// FlushInterval returns how often recorded rounds are flushed
func (c *Config) FlushInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.History.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("history: invalid flush interval %q: %w", c.History.FlushInterval, err)
	}
	return d, nil
}

// NATS returns the connection settings for the NATS coordinator
func (c *Config) NATS() oracle.NATSConfig {
	return oracle.NATSConfig{
		URL:            c.Secrets.NATSURL,
		Token:          c.Secrets.NATSToken,
		RequestSubject: c.Oracle.RequestSubject,
		FulfilSubject:  c.Oracle.FulfilSubject,
	}
}
