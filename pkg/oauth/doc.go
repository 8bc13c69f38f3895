// Package oauth implements the protocol layer of the OAuth 2.0 Authorization
// Code flow with PKCE (RFC 7636).
//
// This package is session-free: it generates PKCE material, builds
// authorization URLs, and talks to the token, exchange, and userinfo
// endpoints. Session state, persistence, and flow orchestration live in
// internal/flow and internal/store, which are built on top of it.
//
// # Core Components
//
//   - PKCEChallenge: code verifier/challenge generation (RFC 7636, S256 only)
//   - TokenResponse / TokenSet: token endpoint documents and persisted sessions
//   - UserProfile: displayable identity from userinfo or ID-token claims
//   - Endpoints: provider URLs, set explicitly or discovered via well-known
//   - Client: code exchange, refresh, userinfo, endpoint discovery
//   - RedactedToken: token wrapper that cannot leak through logs
//
// # Errors
//
// Failures are typed so callers can tell normal outcomes from real errors:
// ErrUserCancelled is a normal flow exit, NetworkError and ProviderError are
// surfaced without retries, and a ProviderError with code "invalid_grant"
// matches errors.Is(err, ErrInvalidGrant).
//
// # Usage
//
//	client := oauth.NewClient()
//
//	pkce, err := oauth.GeneratePKCE()
//	authURL, err := oauth.BuildAuthorizationURL(endpoints.AuthorizationEndpoint, oauth.AuthorizationParams{
//	    ClientID:    clientID,
//	    RedirectURI: redirectURI,
//	    Scopes:      []string{"openid", "email"},
//	    State:       state,
//	    PKCE:        pkce,
//	})
//
//	resp, err := client.ExchangeCode(ctx, endpoints.TokenEndpoint, code, redirectURI, clientID, pkce.CodeVerifier)
package oauth
