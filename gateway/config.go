package gateway

import (
	"time"

	"github.com/c360/semwidgets/errors"
)

// Config holds configuration for the gateway.
type Config struct {
	// Port is the listen port (default: 8080)
	Port int `json:"port" yaml:"port"`

	// EnableCORS enables CORS headers (default: false, requires explicit cors_origins)
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (required when EnableCORS is true)
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`

	// ExecuteTimeout bounds a POST execute request (default: 30s)
	ExecuteTimeout time.Duration `json:"execute_timeout,omitempty" yaml:"execute_timeout,omitempty"`

	// ExecuteRate caps POST execute requests per second across all
	// components; zero disables the limit
	ExecuteRate float64 `json:"execute_rate,omitempty" yaml:"execute_rate,omitempty"`

	// ExecuteBurst is the burst allowed above ExecuteRate (default: 10)
	ExecuteBurst int `json:"execute_burst,omitempty" yaml:"execute_burst,omitempty"`

	// ClientBuffer is the number of queued pushes per websocket client before
	// the client is dropped (default: 64)
	ClientBuffer int `json:"client_buffer,omitempty" yaml:"client_buffer,omitempty"`
}

// Validate ensures the gateway configuration is valid and fills defaults.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "port out of range")
	}
	if c.Port == 0 {
		c.Port = 8080
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = 30 * time.Second
	}
	if c.ExecuteRate < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"execute_rate cannot be negative")
	}
	if c.ExecuteBurst <= 0 {
		c.ExecuteBurst = 10
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = 64
	}
	return nil
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		CORSOrigins:    []string{},
		MaxRequestSize: 1024 * 1024,
		ExecuteTimeout: 30 * time.Second,
		ExecuteBurst:   10,
		ClientBuffer:   64,
	}
}
