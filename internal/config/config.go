package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string
	Port int

	// Storage
	DBPath     string
	EmailsPath string

	// Listing page sizes
	DefaultPageSize int
	MaxPageSize     int

	// Principals. Passwords hold either a bcrypt hash or plaintext;
	// a principal with an empty password is disabled.
	AdminUsername string
	AdminPassword string
	UserUsername  string
	UserPassword  string

	// Token signing
	JWTSecret   string
	TokenExpiry time.Duration

	// Relay domain management
	RelayDomainsFile string

	// Logging
	LogLevel    string
	LogFile     string
	Development bool
}

// Load reads configuration from the environment under the MSGVIEW_ prefix.
// A .env file in the working directory is applied first when present; real
// environment variables win over it. Defaults cover everything except the
// JWT secret and the admin password.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("msgview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".msgview")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("db.path", filepath.Join(dataDir, "index.db"))
	v.SetDefault("emails.path", "./emails")
	v.SetDefault("page.default_size", 20)
	v.SetDefault("page.max_size", 100)
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.user_username", "user")
	v.SetDefault("auth.user_password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiry", "24h")
	v.SetDefault("relay.domains_file", filepath.Join(dataDir, "relay-domains.conf"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.development", false)

	tokenExpiry, err := time.ParseDuration(v.GetString("auth.token_expiry"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.token_expiry: %w", err)
	}

	cfg := &Config{
		Host:             v.GetString("server.host"),
		Port:             v.GetInt("server.port"),
		DBPath:           v.GetString("db.path"),
		EmailsPath:       v.GetString("emails.path"),
		DefaultPageSize:  v.GetInt("page.default_size"),
		MaxPageSize:      v.GetInt("page.max_size"),
		AdminUsername:    v.GetString("auth.admin_username"),
		AdminPassword:    v.GetString("auth.admin_password"),
		UserUsername:     v.GetString("auth.user_username"),
		UserPassword:     v.GetString("auth.user_password"),
		JWTSecret:        v.GetString("auth.jwt_secret"),
		TokenExpiry:      tokenExpiry,
		RelayDomainsFile: v.GetString("relay.domains_file"),
		LogLevel:         v.GetString("log.level"),
		LogFile:          v.GetString("log.file"),
		Development:      v.GetBool("log.development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for unusable values
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Port)
	}

	if c.EmailsPath == "" {
		return fmt.Errorf("emails.path must not be empty")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required, set MSGVIEW_AUTH_JWT_SECRET")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters long")
	}

	if c.AdminPassword == "" {
		return fmt.Errorf("auth.admin_password is required, set MSGVIEW_AUTH_ADMIN_PASSWORD")
	}

	if c.DefaultPageSize < 1 {
		return fmt.Errorf("page.default_size must be positive: %d", c.DefaultPageSize)
	}

	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("page.max_size (%d) must not be below page.default_size (%d)",
			c.MaxPageSize, c.DefaultPageSize)
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("auth.token_expiry must be positive: %s", c.TokenExpiry)
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// loadEnvFile applies an optional .env file. Missing files are fine;
// existing environment variables are never overwritten.
func loadEnvFile() {
	_ = godotenv.Load(".env")
}
