// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"acp-gateway/internal/negotiation"
)

// Config holds all service configuration.
// Environment determines whether PMS credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	GatewayID  string

	// SQLite database path for transactions, identities, and audit records
	DBPath string

	// Redis address for the shared availability cache. Empty selects the
	// in-process cache, fine for a single instance.
	RedisAddr string

	// MinClientVersion rejects agents with older ACP client libraries
	// (semver, e.g. "v1.0.0"). Empty disables the gate.
	MinClientVersion string

	// Negotiation policy; zero values fall back to the defaults.
	Negotiation NegotiationConfig

	// PMS credentials (loaded from secrets in production)
	PMS PMSConfig

	// Seed records applied to the store on startup. Lets a fresh gateway
	// come up with its properties and known agents registered.
	Properties []SeedProperty `json:"properties,omitempty"`
	Agents     []SeedAgent    `json:"agents,omitempty"`
}

// PMSConfig contains credentials for the upstream property management system.
// In production, this is loaded from Secret Manager as JSON.
type PMSConfig struct {
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// NegotiationConfig overrides the default negotiation policy.
type NegotiationConfig struct {
	RoundDiscountPct int64 `json:"round_discount_pct,omitempty"`
	MaxDiscountPct   int64 `json:"max_discount_pct,omitempty"`
	MaxRounds        int   `json:"max_rounds,omitempty"`
}

// SeedProperty registers a bookable property at startup.
type SeedProperty struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}

// SeedAgent registers an agent identity at startup.
type SeedAgent struct {
	AgentID     string  `json:"agent_id"`
	KeyType     string  `json:"key_type"` // "ed25519" or "hmac"
	KeyMaterial string  `json:"key_material"`
	Reputation  float64 `json:"reputation"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set), then env vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", "8080"),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		GatewayID:        os.Getenv("GATEWAY_ID"),
		DBPath:           envOrDefault("DB_PATH", "acp-gateway.db"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.GatewayID == "" {
			return nil, fmt.Errorf("GATEWAY_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading PMS config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port             string            `json:"port"`
		Environment      string            `json:"environment"`
		LogLevel         string            `json:"log_level"`
		DBPath           string            `json:"db_path"`
		RedisAddr        string            `json:"redis_addr"`
		MinClientVersion string            `json:"min_client_version"`
		Negotiation      NegotiationConfig `json:"negotiation"`
		PMS              PMSConfig         `json:"pms"`
		Properties       []SeedProperty    `json:"properties"`
		Agents           []SeedAgent       `json:"agents"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, "8080"),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		DBPath:           withDefault(fileConfig.DBPath, "acp-gateway.db"),
		RedisAddr:        fileConfig.RedisAddr,
		MinClientVersion: fileConfig.MinClientVersion,
		Negotiation:      fileConfig.Negotiation,
		PMS:              fileConfig.PMS,
		Properties:       fileConfig.Properties,
		Agents:           fileConfig.Agents,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches PMS credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{gateway_id}-pms/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s-pms/versions/latest",
		c.GCPProject, c.GatewayID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.PMS); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads PMS credentials from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.PMS = PMSConfig{
		BaseURL:      os.Getenv("PMS_BASE_URL"),
		ClientID:     os.Getenv("PMS_CLIENT_ID"),
		ClientSecret: os.Getenv("PMS_CLIENT_SECRET"),
	}

	// Seed records as JSON arrays, optional
	if propsJSON := os.Getenv("SEED_PROPERTIES"); propsJSON != "" {
		if err := json.Unmarshal([]byte(propsJSON), &c.Properties); err != nil {
			return fmt.Errorf("parsing SEED_PROPERTIES JSON: %w", err)
		}
	}
	if agentsJSON := os.Getenv("SEED_AGENTS"); agentsJSON != "" {
		if err := json.Unmarshal([]byte(agentsJSON), &c.Agents); err != nil {
			return fmt.Errorf("parsing SEED_AGENTS JSON: %w", err)
		}
	}

	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.PMS.BaseURL == "" {
		return fmt.Errorf("pms.base_url is required")
	}
	if _, err := url.Parse(c.PMS.BaseURL); err != nil {
		return fmt.Errorf("invalid pms.base_url: %w", err)
	}
	if c.PMS.ClientID == "" {
		return fmt.Errorf("pms.client_id is required")
	}
	if c.PMS.ClientSecret == "" {
		return fmt.Errorf("pms.client_secret is required")
	}

	n := c.Negotiation
	if n.RoundDiscountPct < 0 || n.MaxDiscountPct < 0 || n.MaxRounds < 0 {
		return fmt.Errorf("negotiation settings must not be negative")
	}
	if n.RoundDiscountPct > n.MaxDiscountPct && n.MaxDiscountPct != 0 {
		return fmt.Errorf("negotiation round_discount_pct exceeds max_discount_pct")
	}

	for i, a := range c.Agents {
		if a.KeyType != "ed25519" && a.KeyType != "hmac" {
			return fmt.Errorf("agents[%d]: key_type must be ed25519 or hmac", i)
		}
		if a.AgentID == "" || a.KeyMaterial == "" {
			return fmt.Errorf("agents[%d]: agent_id and key_material are required", i)
		}
	}

	return nil
}

// Policy returns the negotiation policy with defaults filled in for any
// unset field.
func (c *Config) Policy() negotiation.Policy {
	policy := negotiation.DefaultPolicy()
	if c.Negotiation.RoundDiscountPct > 0 {
		policy.RoundDiscountPct = c.Negotiation.RoundDiscountPct
	}
	if c.Negotiation.MaxDiscountPct > 0 {
		policy.MaxDiscountPct = c.Negotiation.MaxDiscountPct
	}
	if c.Negotiation.MaxRounds > 0 {
		policy.MaxRounds = c.Negotiation.MaxRounds
	}
	return policy
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
