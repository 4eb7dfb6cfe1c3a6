package kratos

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every call to the Kratos public API
const DefaultTimeout = 10 * time.Second

const defaultBreakerTimeout = 30 * time.Second

// TraitsFunc builds the identity traits sent on registration
type TraitsFunc func(email, firstName, lastName string) map[string]any

// Config holds the Kratos connection settings.
type Config struct {
	// PublicURL is the Kratos public API base URL.
	PublicURL string

	// Timeout of the HTTP client.
	// Default: DefaultTimeout.
	Timeout time.Duration

	// HTTPClient replaces the default client, Timeout is ignored when set.
	HTTPClient *http.Client

	// Traits builds the identity traits (optional).
	// Default: email plus name.first and name.last.
	Traits TraitsFunc

	// BreakerName names the circuit breaker.
	// Default: "kratos".
	BreakerName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(publicURL string) Config {
	return Config{
		PublicURL:   publicURL,
		Timeout:     DefaultTimeout,
		Traits:      DefaultTraits,
		BreakerName: "kratos",
	}
}

// DefaultTraits matches the Kratos identity schema with email and
// a first/last name object.
func DefaultTraits(email, firstName, lastName string) map[string]any {
	return map[string]any{
		"email": email,
		"name": map[string]any{
			"first": firstName,
			"last":  lastName,
		},
	}
}

// Validate checks the public URL.
func (c Config) Validate() error {
	raw := strings.TrimSpace(c.PublicURL)
	if raw == "" {
		return fmt.Errorf("kratos: public url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("kratos: invalid public url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("kratos: invalid public url %q", raw)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Traits == nil {
		c.Traits = DefaultTraits
	}
	if c.BreakerName == "" {
		c.BreakerName = "kratos"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}
