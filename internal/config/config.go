package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	ServiceName    string

	// IssuerURL is the externally visible base URL of this server. It is
	// used as the "iss" claim and must not carry a trailing slash.
	IssuerURL string
	// SignInURL is the front-end resource the authorize endpoint redirects
	// to; the pending request id is appended as a query parameter.
	SignInURL string

	// AdminClientID is the client id of the server's own administrative
	// client. It cannot be deleted and anchors the admin role.
	AdminClientID string
	// DefaultRoles is a comma-separated list of role tokens added to every
	// issued token's groups claim. Entries are either bare role names or
	// fully qualified "{clientID}_{role}" values.
	DefaultRoles string

	BcryptCost       int
	LockoutThreshold int
	LockoutDuration  time.Duration

	AccessTokenTTL time.Duration
	AuthRequestTTL time.Duration
	AuthCodeTTL    time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		HTTPListenAddr:     getEnv("HTTP_LISTEN_ADDR", ":8070"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServiceName:        getEnv("SERVICE_NAME", "idp-api"),
		IssuerURL:          getEnv("ISSUER_URL", "http://localhost:8070"),
		SignInURL:          getEnv("SIGN_IN_URL", "http://localhost:8070/sign-in"),
		AdminClientID:      getEnv("ADMIN_CLIENT_ID", "idp-admin"),
		DefaultRoles:       getEnv("DEFAULT_ROLES", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
	}

	var err error
	if cfg.BcryptCost, err = getEnvInt("BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.LockoutThreshold, err = getEnvInt("LOCKOUT_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.LockoutDuration, err = getEnvDuration("LOCKOUT_DURATION", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = getEnvDuration("ACCESS_TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.AuthRequestTTL, err = getEnvDuration("AUTH_REQUEST_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AuthCodeTTL, err = getEnvDuration("AUTH_CODE_TTL", 60*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields required by the given binary are set.
func (c *Config) Validate(binary string) error {
	switch binary {
	case "idp-api":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.IssuerURL == "" {
			return fmt.Errorf("ISSUER_URL is required")
		}
		if c.AdminClientID == "" {
			return fmt.Errorf("ADMIN_CLIENT_ID is required")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
