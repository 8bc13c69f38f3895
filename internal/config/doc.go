// Package config loads signet's configuration from a single directory.
//
// The default configuration directory is ~/.config/signet, overridable with
// the --config-path flag. It contains:
//   - config.yaml (provider, callback, storage, and log settings)
//   - sessions.json (persisted session state, managed by internal/store)
//
// A missing config.yaml yields usable defaults for everything except the
// provider block, which has no sensible default: provider.client_id plus
// either provider.issuer or provider.endpoints must be configured before any
// flow can run.
//
// Example config.yaml:
//
//	provider:
//	  client_id: "my-client-id"
//	  issuer: "https://accounts.example.com"
//	  scopes: [openid, email, profile]
//	callback:
//	  port: 8765
//	log:
//	  level: info
package config
