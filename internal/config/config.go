package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	JWTSigningKey string   `mapstructure:"JWT_SIGNING_KEY"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	// CircleSalt is the environment-provided server salt for patient
	// content-key derivation. A database-stored salt is equally valid;
	// both sources stay live so old ciphertext remains decryptable.
	CircleSalt    string `mapstructure:"CIRCLE_SALT"`
	SaltMinLength int    `mapstructure:"SALT_MIN_LENGTH"`

	// StrictCatalog makes policy mutations reject feature keys that are
	// not in the capability catalogue. Resolution is unaffected: unknown
	// keys always resolve to deny.
	StrictCatalog bool `mapstructure:"STRICT_CATALOG"`

	// scrypt cost parameters for device private-key wrapping.
	VaultScryptN int `mapstructure:"VAULT_SCRYPT_N"`
	VaultScryptR int `mapstructure:"VAULT_SCRYPT_R"`
	VaultScryptP int `mapstructure:"VAULT_SCRYPT_P"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SALT_MIN_LENGTH", 8)
	v.SetDefault("STRICT_CATALOG", false)
	v.SetDefault("VAULT_SCRYPT_N", 1<<15)
	v.SetDefault("VAULT_SCRYPT_R", 8)
	v.SetDefault("VAULT_SCRYPT_P", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("JWT_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("CIRCLE_SALT")
	v.BindEnv("SALT_MIN_LENGTH")
	v.BindEnv("STRICT_CATALOG")
	v.BindEnv("VAULT_SCRYPT_N")
	v.BindEnv("VAULT_SCRYPT_R")
	v.BindEnv("VAULT_SCRYPT_P")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a JWT
// verification source must be configured, and if an environment salt is set
// it must meet the minimum length floor. A short salt is refused outright
// rather than letting key derivation proceed with weak input.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" && c.JWTSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or JWT_SIGNING_KEY must be set in production. " +
			"Refusing to start without authentication configuration")
	}

	if c.SaltMinLength < 8 {
		return fmt.Errorf("SALT_MIN_LENGTH must be at least 8, got %d", c.SaltMinLength)
	}
	if c.CircleSalt != "" && len(c.CircleSalt) < c.SaltMinLength {
		return fmt.Errorf("CIRCLE_SALT must be at least %d characters, got %d",
			c.SaltMinLength, len(c.CircleSalt))
	}

	if c.VaultScryptN < 1<<14 {
		return fmt.Errorf("VAULT_SCRYPT_N must be at least %d, got %d", 1<<14, c.VaultScryptN)
	}
	if c.VaultScryptR <= 0 || c.VaultScryptP <= 0 {
		return fmt.Errorf("VAULT_SCRYPT_R and VAULT_SCRYPT_P must be positive")
	}

	return nil
}
