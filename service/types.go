package service

import (
	"fmt"
	"time"
)

// Status is the outcome of a service health check.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusUnhealthy   Status = "unhealthy"
	StatusCircuitOpen Status = "circuit_open"
	StatusUnknown     Status = "unknown"
	StatusNotFound    Status = "not_found"
)

// Config describes one backing service.
type Config struct {
	Name string
	// Host overrides mode-based host resolution when set.
	Host string
	// Hosts sets the host per deployment mode.
	Hosts          map[Mode]string
	Port           int
	Scheme         string
	HealthEndpoint string
	Timeout        time.Duration
	// RetryAttempts is the number of probe attempts within one check.
	RetryAttempts           int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = 60 * time.Second
	}
	if c.HealthEndpoint == "" && isHTTPScheme(c.Scheme) {
		c.HealthEndpoint = "/health"
	}
	return c
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("service %s: invalid port %d", c.Name, c.Port)
	}
	return nil
}

// Endpoint is a resolved service address handed to probers.
type Endpoint struct {
	Name           string
	Scheme         string
	Host           string
	Port           int
	HealthEndpoint string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// URL returns scheme://host:port.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// Health is the cached result of the last health check of a service.
type Health struct {
	Name             string    `json:"name"`
	Status           Status    `json:"status"`
	URL              string    `json:"url,omitempty"`
	FailureCount     int       `json:"failure_count"`
	CircuitOpenUntil time.Time `json:"circuit_open_until,omitempty"`
	LastCheck        time.Time `json:"last_check,omitempty"`
	ResponseTimeMs   float64   `json:"response_time_ms"`
	Error            string    `json:"error,omitempty"`
}

// IsHealthy reports whether the check succeeded.
func (h Health) IsHealthy() bool {
	return h.Status == StatusHealthy
}

func isHTTPScheme(s string) bool {
	return s == "http" || s == "https"
}
