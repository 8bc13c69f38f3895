package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"signet/internal/config"
	"signet/internal/flow"
	"signet/internal/store"
	"signet/pkg/oauth"
)

// buildController assembles a flow controller from the configuration
// directory. The returned cleanup function closes the controller and its
// backend resources.
func buildController(noBrowser bool) (*flow.Controller, func(), error) {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	level, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if quiet {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	backend, err := store.NewFileBackend(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	var launcher flow.Launcher
	if noBrowser {
		launcher = &flow.ManualLauncher{
			RedirectURI: fmt.Sprintf("http://localhost:%d/callback", cfg.Callback.Port),
			Out:         os.Stderr,
			In:          os.Stdin,
		}
	} else {
		launcher = &flow.LoopbackLauncher{
			Port:       cfg.Callback.Port,
			SuccessURL: cfg.Callback.SuccessURL,
			FailURL:    cfg.Callback.FailURL,
		}
	}

	controller, err := flow.New(flow.Config{
		ClientID:         cfg.Provider.ClientID,
		Scopes:           cfg.Provider.Scopes,
		Issuer:           cfg.Provider.Issuer,
		Endpoints:        endpointsFromConfig(cfg.Provider.Endpoints),
		ExchangeEndpoint: cfg.Provider.ExchangeEndpoint,
		HostedDomain:     cfg.Provider.HostedDomain,
		Namespace:        cfg.Storage.Namespace,
		Launcher:         launcher,
		Backend:          backend,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = controller.Close()
	}
	return controller, cleanup, nil
}

// endpointsFromConfig converts the YAML endpoint block; nil when unset so
// the flow falls back to issuer discovery.
func endpointsFromConfig(e config.EndpointsConfig) *oauth.Endpoints {
	if !e.Set() {
		return nil
	}
	return &oauth.Endpoints{
		AuthorizationEndpoint: e.Authorization,
		TokenEndpoint:         e.Token,
		UserinfoEndpoint:      e.Userinfo,
	}
}

// infoPrint writes informational output unless --quiet is set.
func infoPrint(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format, args...)
	}
}
