package config

// Config is the top-level configuration structure for signet.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Callback CallbackConfig `yaml:"callback"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig identifies the authorization server and this client.
// Either issuer (for discovery) or the endpoints block must be set. There is
// no client_secret field: native clients cannot keep one, and deployments
// that need one route the exchange through exchange_endpoint instead.
type ProviderConfig struct {
	// ClientID is the OAuth client identifier. Required.
	ClientID string `yaml:"client_id"`

	// Scopes requested on sign-in.
	Scopes []string `yaml:"scopes,omitempty"`

	// Issuer enables endpoint discovery via the provider's well-known
	// document. Ignored when endpoints are set explicitly.
	Issuer string `yaml:"issuer,omitempty"`

	// Endpoints set the provider URLs explicitly.
	Endpoints EndpointsConfig `yaml:"endpoints,omitempty"`

	// ExchangeEndpoint routes the code exchange and refresh through a
	// trusted intermediary that holds the client secret server-side.
	ExchangeEndpoint string `yaml:"exchange_endpoint,omitempty"`

	// HostedDomain restricts sign-in to one hosted domain.
	HostedDomain string `yaml:"hosted_domain,omitempty"`
}

// EndpointsConfig are explicitly configured provider URLs.
type EndpointsConfig struct {
	Authorization string `yaml:"authorization,omitempty"`
	Token         string `yaml:"token,omitempty"`
	Userinfo      string `yaml:"userinfo,omitempty"`
}

// Set reports whether the endpoints needed for an interactive flow are
// configured.
func (e EndpointsConfig) Set() bool {
	return e.Authorization != "" && e.Token != ""
}

// CallbackConfig tunes the loopback redirect receiver.
type CallbackConfig struct {
	// Port for the loopback callback server (default: 8765).
	Port int `yaml:"port,omitempty"`

	// SuccessURL and FailURL optionally redirect the browser after the
	// callback instead of showing the inline result pages.
	SuccessURL string `yaml:"success_url,omitempty"`
	FailURL    string `yaml:"fail_url,omitempty"`
}

// StorageConfig locates the persisted session file.
type StorageConfig struct {
	// Path of the session file (default: <config dir>/sessions.json).
	Path string `yaml:"path,omitempty"`

	// Namespace prefixes persisted keys so several tools can share one
	// file (default: "signet").
	Namespace string `yaml:"namespace,omitempty"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level,omitempty"`
}
