// Package config loads the server configuration from environment variables.
//
// Every key has a sensible default except JWT_SECRET, so a local run needs
// nothing more than:
//
//	JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/server
//
// Optional integrations switch on when their keys are present: SMTP delivery
// with SMTP_HOST, Google login with GOOGLE_CLIENT_ID, GitHub login with
// GITHUB_CLIENT_ID.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config is the full server configuration.
type Config struct {
	Port     int        `env:"PORT" envDefault:"8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	JWTSecret            string        `env:"JWT_SECRET,required"`
	TokenTTL             time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	OTPTTL               time.Duration `env:"OTP_TTL" envDefault:"10m"`
	BcryptCost           int           `env:"BCRYPT_COST" envDefault:"12"`
	RequireVerifiedLogin bool          `env:"REQUIRE_VERIFIED_LOGIN" envDefault:"false"`
	CookieSecure         bool          `env:"COOKIE_SECURE" envDefault:"false"`

	ClientURL   string   `env:"CLIENT_URL" envDefault:"http://localhost:4000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH" envDefault:"data/auth.db"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"auth"`

	SMTP     SMTP          `envPrefix:"SMTP_"`
	MailFrom string        `env:"MAIL_FROM"`
	Google   OAuthProvider `envPrefix:"GOOGLE_"`
	GitHub   OAuthProvider `envPrefix:"GITHUB_"`
}

// SMTP configures outbound mail. Delivery falls back to the log when Host
// is empty.
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// OAuthProvider holds the credentials of one federated login provider.
type OAuthProvider struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Enabled reports whether the provider has been configured.
func (p OAuthProvider) Enabled() bool {
	return p.ClientID != ""
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given map instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.ClientURL = strings.TrimRight(c.ClientURL, "/")

	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{c.ClientURL}
	}
	if c.Google.Enabled() && c.Google.CallbackURL == "" {
		c.Google.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", c.Port)
	}
	if c.GitHub.Enabled() && c.GitHub.CallbackURL == "" {
		c.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Port)
	}
}

// Validate checks combinations the struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of %s", c.StoreDriver,
			strings.Join([]string{StoreSQLite, StorePostgres, StoreMongo}, ", ")))
	}

	if c.SMTP.Host != "" && c.MailFrom == "" {
		errs = append(errs, errors.New("MAIL_FROM is required when SMTP_HOST is set"))
	}
	if c.Google.Enabled() && c.Google.ClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set"))
	}
	if c.GitHub.Enabled() && c.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("GITHUB_CLIENT_SECRET is required when GITHUB_CLIENT_ID is set"))
	}
	if slices.Contains(c.CORSOrigins, "*") {
		errs = append(errs, errors.New("CORS_ORIGINS cannot contain * because cookies are sent with credentials"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
