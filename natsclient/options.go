package natsclient

import (
	"fmt"
	"log/slog"
	"time"
)

// ClientOption configures a Client. Options are applied in order by
// NewClient and the first error aborts construction.
type ClientOption func(*Client) error

// Auth holds connection credentials. A user/password pair and a token may
// both be set; the server decides which it accepts.
type Auth struct {
	Username string
	Password string
	Token    string
}

// WithReconnect sets the number of reconnect attempts (-1 retries forever) and the pause
// between attempts.
func WithReconnect(maxAttempts int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		if maxAttempts < -1 {
			return fmt.Errorf("max reconnects %d: use -1 for unlimited", maxAttempts)
		}
		if wait < 0 {
			return fmt.Errorf("reconnect wait %v is negative", wait)
		}
		c.maxReconnects, c.reconnectWait = maxAttempts, wait
		return nil
	}
}

// WithTimeout bounds the initial dial.
func WithTimeout(d time.Duration) ClientOption {
	return positive("timeout", d, func(c *Client) { c.timeout = d })
}

// WithPingInterval sets how often the server is pinged.
func WithPingInterval(d time.Duration) ClientOption {
	return positive("ping interval", d, func(c *Client) { c.pingInterval = d })
}

// WithDrainTimeout bounds how long Close waits for pending messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return positive("drain timeout", d, func(c *Client) { c.drainTimeout = d })
}

func positive(name string, d time.Duration, set func(*Client)) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
		set(c)
		return nil
	}
}

// WithName sets the connection name shown in server monitoring.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithAuth sets the credentials used on connect. Empty fields are ignored.
func WithAuth(auth Auth) ClientOption {
	return func(c *Client) error {
		c.username, c.password, c.token = auth.Username, auth.Password, auth.Token
		return nil
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// OnHealthChange registers fn to run whenever the connection becomes
// healthy or unhealthy.
func OnHealthChange(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}
