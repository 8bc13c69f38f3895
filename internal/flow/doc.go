// Package flow orchestrates the OAuth 2.0 Authorization Code flow with
// PKCE for a native client: interactive sign-in through a pluggable
// launcher, silent sign-in from persisted tokens, lazy refresh, incremental
// scope requests, and sign-out.
//
// The Controller is the package's entry point. It owns a protocol client
// (pkg/oauth), a typed session store (internal/store), and a Launcher that
// presents authorization URLs to the user. The bundled launchers cover the
// two common shapes: LoopbackLauncher opens the system browser and receives
// the redirect on a loopback HTTP server, and ManualLauncher prints the URL
// and reads the pasted redirect for headless environments.
package flow
