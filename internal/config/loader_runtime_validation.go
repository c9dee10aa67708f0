package config

import (
	"fmt"
	"net/url"
	"strings"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	endpoint, err := normalizeEndpoint(cfg.Transport.Endpoint)
	if err != nil {
		return err
	}
	cfg.Transport.Endpoint = endpoint

	// Encoding names are matched case-insensitively
	cfg.Relay.Encoding = strings.ToLower(cfg.Relay.Encoding)
	return nil
}

// normalizeEndpoint rewrites http(s) endpoints to ws(s) and rejects other schemes
func normalizeEndpoint(raw string) (string, error) {
	// Left to Validate, which reports the missing endpoint
	if raw == "" {
		return "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("endpoint %q must use ws, wss, http or https", raw)
	}

	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}

	return u.String(), nil
}
