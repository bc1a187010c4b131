package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root of the server configuration file.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

// AuthConfig satisfies the auth package Config interface.
type AuthConfig struct {
	SigningKey      string   `yaml:"signing_key"`
	SigningMethod   string   `yaml:"signing_method"`
	ContextKey      string   `yaml:"context_key"`
	TokenExpiration int      `yaml:"token_expiration"`
	TokenLookup     string   `yaml:"token_lookup"`
	AuthScheme      string   `yaml:"auth_scheme"`
	Issuer          string   `yaml:"issuer"`
	Audience        []string `yaml:"audience"`
}

func (c *AuthConfig) GetSigningKey() string    { return c.SigningKey }
func (c *AuthConfig) GetSigningMethod() string { return c.SigningMethod }
func (c *AuthConfig) GetContextKey() string    { return c.ContextKey }

// GetTokenExpiration is the access token lifetime in minutes.
func (c *AuthConfig) GetTokenExpiration() int { return c.TokenExpiration }
func (c *AuthConfig) GetTokenLookup() string  { return c.TokenLookup }
func (c *AuthConfig) GetAuthScheme() string   { return c.AuthScheme }
func (c *AuthConfig) GetIssuer() string       { return c.Issuer }
func (c *AuthConfig) GetAudience() []string   { return c.Audience }

// LoadConfig reads the yaml file at path, applies environment overrides, and
// validates the result. A missing file is not an error; the environment can
// carry everything required.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Address: ":8080",
		},
		Database: DatabaseConfig{
			DSN: "file:auth.db?cache=shared&_pragma=foreign_keys(1)",
		},
		Auth: AuthConfig{
			SigningMethod:   "HS256",
			ContextKey:      "user",
			TokenExpiration: 60,
			TokenLookup:     "header:Authorization",
			AuthScheme:      "Bearer",
			Issuer:          "auth-app",
		},
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("AUTH_SIGNING_KEY"); v != "" {
		cfg.Auth.SigningKey = v
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

func (c *AppConfig) Validate() error {
	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required; set it in the config file or AUTH_SIGNING_KEY")
	}

	if c.Auth.SigningMethod != "HS256" {
		return fmt.Errorf("unsupported signing method %q", c.Auth.SigningMethod)
	}

	if c.Auth.TokenExpiration <= 0 {
		return fmt.Errorf("auth.token_expiration must be a positive number of minutes")
	}

	return nil
}
