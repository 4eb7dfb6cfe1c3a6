// Package config loads the service configuration from ACCOUNTS_* environment
// variables.
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "ACCOUNTS_"

const (
	ProviderMemory = "memory"
	ProviderKratos = "kratos"
)

// Config is the service configuration
type Config struct {
	Address        string        `env:"ADDRESS" envDefault:":8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool          `env:"LOG_DEVELOPMENT" envDefault:"false"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"file:accounts.db?cache=shared"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	IdentityProvider string        `env:"IDENTITY_PROVIDER" envDefault:"memory"`
	KratosPublicURL  string        `env:"KRATOS_PUBLIC_URL"`
	KratosTimeout    time.Duration `env:"KRATOS_TIMEOUT" envDefault:"10s"`
	// DevCode makes the memory provider issue a fixed verification code.
	DevCode string `env:"DEV_CODE"`

	JWTSigningKey string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"go-accounts"`
	JWTAudience   string        `env:"JWT_AUDIENCE" envDefault:"go-accounts"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"24h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"true"`
	SignInRoute   string        `env:"SIGN_IN_ROUTE" envDefault:"/auth/sign-in"`

	FlowTTL         time.Duration `env:"FLOW_TTL" envDefault:"30m"`
	MaxCodeAttempts int           `env:"MAX_CODE_ATTEMPTS" envDefault:"5"`
	MessagesPerRoom int           `env:"MESSAGES_PER_ROOM" envDefault:"10"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses environ instead of the process environment when it is
// not nil.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.Required),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In("postgres", "sqlite")),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.IdentityProvider, validation.Required, validation.In(ProviderMemory, ProviderKratos)),
		validation.Field(&c.KratosPublicURL,
			validation.When(c.IdentityProvider == ProviderKratos, validation.Required),
			is.URL,
		),
		validation.Field(&c.DevCode, validation.Match(sixDigits).Error("must be six digits")),
		validation.Field(&c.JWTSigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.JWTTTL, validation.Min(time.Minute)),
		validation.Field(&c.FlowTTL, validation.Min(time.Minute)),
		validation.Field(&c.MaxCodeAttempts, validation.Min(1)),
		validation.Field(&c.MessagesPerRoom, validation.Min(1)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

var sixDigits = regexp.MustCompile(`^\d{6}$`)
