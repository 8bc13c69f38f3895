package config

import "path/filepath"

const (
	// DefaultCallbackPort is the loopback port registered with providers
	// that require an exact redirect URI.
	DefaultCallbackPort = 8765

	// DefaultSessionFileName is the session file created inside the config
	// directory when no storage path is configured.
	DefaultSessionFileName = "sessions.json"

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"openid", "email", "profile"}

// GetDefaultConfig returns the configuration used when no config.yaml
// exists, anchored at configPath.
func GetDefaultConfig(configPath string) Config {
	return Config{
		Provider: ProviderConfig{
			Scopes: append([]string{}, DefaultScopes...),
		},
		Callback: CallbackConfig{
			Port: DefaultCallbackPort,
		},
		Storage: StorageConfig{
			Path: filepath.Join(configPath, DefaultSessionFileName),
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}
