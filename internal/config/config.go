package config

import (
	"fmt"
	"net/url"
)

type Config struct {
	ServerURL            string
	SocketURL            string
	Token                string
	MaxReconnectAttempts int
}

// NewConfig validates the raw inputs. A maxReconnectAttempts of zero
// means retry forever.
func NewConfig(serverURL, socketURL, token string, maxReconnectAttempts int) (*Config, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if socketURL == "" {
		return nil, fmt.Errorf("socket URL cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("auth token cannot be empty")
	}
	if maxReconnectAttempts < 0 {
		return nil, fmt.Errorf("max reconnect attempts cannot be negative")
	}

	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}

	u, err := url.Parse(socketURL)
	if err != nil {
		return nil, fmt.Errorf("parse socket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("socket URL scheme must be ws or wss, got %q", u.Scheme)
	}

	return &Config{
		ServerURL:            serverURL,
		SocketURL:            socketURL,
		Token:                token,
		MaxReconnectAttempts: maxReconnectAttempts,
	}, nil
}
