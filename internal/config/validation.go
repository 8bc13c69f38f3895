package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks the configuration for problems that would make every flow
// fail. It is called after loading, so error messages speak in YAML terms.
func (c *Config) Validate() error {
	if c.Provider.ClientID == "" {
		return errors.New("provider.client_id is required")
	}

	if !c.Provider.Endpoints.Set() && c.Provider.Issuer == "" {
		return errors.New("either provider.issuer or provider.endpoints must be set")
	}

	urls := map[string]string{
		"provider.issuer":                  c.Provider.Issuer,
		"provider.endpoints.authorization": c.Provider.Endpoints.Authorization,
		"provider.endpoints.token":         c.Provider.Endpoints.Token,
		"provider.endpoints.userinfo":      c.Provider.Endpoints.Userinfo,
		"provider.exchange_endpoint":       c.Provider.ExchangeEndpoint,
		"callback.success_url":             c.Callback.SuccessURL,
		"callback.fail_url":                c.Callback.FailURL,
	}
	for field, value := range urls {
		if value == "" {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s is not a valid URL: %q", field, value)
		}
	}

	if c.Callback.Port < 0 || c.Callback.Port > 65535 {
		return fmt.Errorf("callback.port %d is out of range", c.Callback.Port)
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// ParseLogLevel maps the configured level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
}
