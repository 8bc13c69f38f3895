package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultEndpointsCacheTTL is the default TTL for cached endpoint
	// discovery documents.
	DefaultEndpointsCacheTTL = 30 * time.Minute
)

// endpointsCacheEntry holds discovered endpoints with their fetch timestamp.
type endpointsCacheEntry struct {
	endpoints *Endpoints
	fetchedAt time.Time
}

// Client performs the OAuth protocol operations: endpoint discovery,
// authorization code exchange, token refresh, and userinfo lookup.
// It holds no session state; persistence belongs to the caller.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	endpointsMu    sync.RWMutex
	endpointsCache map[string]*endpointsCacheEntry
	endpointsTTL   time.Duration

	// singleflight deduplicates concurrent discovery fetches per issuer.
	endpointsGroup singleflight.Group
}

// ClientOption configures the protocol client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithEndpointsCacheTTL sets the discovery cache TTL.
func WithEndpointsCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.endpointsTTL = ttl
	}
}

// NewClient creates a new protocol client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: DefaultHTTPTimeout},
		logger:         slog.Default(),
		endpointsCache: make(map[string]*endpointsCacheEntry),
		endpointsTTL:   DefaultEndpointsCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// HTTPClient returns the underlying HTTP client for reuse by components
// that want shared connection pooling and timeout behavior.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// DiscoverEndpoints fetches the provider endpoints from the issuer's
// well-known document. OpenID Connect discovery is tried first, then the
// RFC 8414 authorization-server document. Results are cached with a TTL and
// concurrent fetches for the same issuer are collapsed into one request.
func (c *Client) DiscoverEndpoints(ctx context.Context, issuer string) (*Endpoints, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	c.endpointsMu.RLock()
	if entry, ok := c.endpointsCache[issuer]; ok {
		if time.Since(entry.fetchedAt) < c.endpointsTTL {
			c.endpointsMu.RUnlock()
			return entry.endpoints, nil
		}
	}
	c.endpointsMu.RUnlock()

	result, err, _ := c.endpointsGroup.Do(issuer, func() (interface{}, error) {
		// Double-check after winning the singleflight slot.
		c.endpointsMu.RLock()
		if entry, ok := c.endpointsCache[issuer]; ok {
			if time.Since(entry.fetchedAt) < c.endpointsTTL {
				c.endpointsMu.RUnlock()
				return entry.endpoints, nil
			}
		}
		c.endpointsMu.RUnlock()

		return c.doDiscoverEndpoints(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Endpoints), nil
}

// doDiscoverEndpoints performs the actual well-known fetches.
func (c *Client) doDiscoverEndpoints(ctx context.Context, issuer string) (*Endpoints, error) {
	endpoints, err := c.fetchEndpoints(ctx, issuer+"/.well-known/openid-configuration")
	if err == nil {
		c.cacheEndpoints(issuer, endpoints)
		return endpoints, nil
	}

	c.logger.Debug("OIDC discovery failed, trying RFC 8414",
		"issuer", issuer,
		"error", err)

	endpoints, err = c.fetchEndpoints(ctx, issuer+"/.well-known/oauth-authorization-server")
	if err == nil {
		c.cacheEndpoints(issuer, endpoints)
		return endpoints, nil
	}

	return nil, fmt.Errorf("failed to discover endpoints for %s: %w", issuer, err)
}

// fetchEndpoints fetches a discovery document from a specific URL.
func (c *Client) fetchEndpoints(ctx context.Context, discoveryURL string) (*Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "discovery", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "discovery", Err: err}
	}

	var endpoints Endpoints
	if err := json.Unmarshal(body, &endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}
	if !endpoints.Complete() {
		return nil, fmt.Errorf("discovery document at %s is missing required endpoints", discoveryURL)
	}

	return &endpoints, nil
}

// cacheEndpoints stores discovered endpoints in the cache.
func (c *Client) cacheEndpoints(issuer string, endpoints *Endpoints) {
	c.endpointsMu.Lock()
	c.endpointsCache[issuer] = &endpointsCacheEntry{
		endpoints: endpoints,
		fetchedAt: time.Now(),
	}
	c.endpointsMu.Unlock()

	c.logger.Debug("cached provider endpoints",
		"issuer", issuer,
		"authorization_endpoint", endpoints.AuthorizationEndpoint,
		"token_endpoint", endpoints.TokenEndpoint)
}

// ClearEndpointsCache drops all cached discovery documents.
func (c *Client) ClearEndpointsCache() {
	c.endpointsMu.Lock()
	c.endpointsCache = make(map[string]*endpointsCacheEntry)
	c.endpointsMu.Unlock()
}

// AuthorizationParams are the query parameters of an authorization request.
type AuthorizationParams struct {
	// ClientID identifies the client configuration at the provider.
	ClientID string

	// RedirectURI is where the provider sends the authorization response.
	RedirectURI string

	// Scopes are joined with single spaces into the scope parameter.
	Scopes []string

	// State binds the response back to this request.
	State string

	// PKCE carries the code challenge for this attempt.
	PKCE *PKCEChallenge

	// LoginHint, when set, pre-selects the account at the provider.
	LoginHint string

	// HostedDomain, when set, restricts sign-in to one hosted domain.
	HostedDomain string
}

// BuildAuthorizationURL constructs the authorization request URL.
func BuildAuthorizationURL(authEndpoint string, params AuthorizationParams) (string, error) {
	authURL, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", params.ClientID)
	query.Set("redirect_uri", params.RedirectURI)
	if len(params.Scopes) > 0 {
		query.Set("scope", strings.Join(params.Scopes, " "))
	}
	if params.State != "" {
		query.Set("state", params.State)
	}
	if params.PKCE != nil {
		query.Set("code_challenge", params.PKCE.CodeChallenge)
		query.Set("code_challenge_method", params.PKCE.CodeChallengeMethod)
	}
	if params.LoginHint != "" {
		query.Set("login_hint", params.LoginHint)
	}
	if params.HostedDomain != "" {
		query.Set("hd", params.HostedDomain)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// ExchangeCode exchanges an authorization code for tokens. The endpoint is
// either the provider's token endpoint or a trusted exchange endpoint that
// holds the client secret server-side; either way this client never sends a
// secret.
func (c *Client) ExchangeCode(ctx context.Context, endpoint, code, redirectURI, clientID, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"code_verifier": {codeVerifier},
	}

	return c.doTokenRequest(ctx, "exchange", endpoint, data)
}

// Refresh obtains a new access token using a refresh token.
func (c *Client) Refresh(ctx context.Context, tokenEndpoint, refreshToken, clientID string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}

	return c.doTokenRequest(ctx, "refresh", tokenEndpoint, data)
}

// doTokenRequest posts a form to a token-style endpoint and decodes the
// response. Non-2xx responses become ProviderError with the provider's own
// error code and description when the body carries them.
func (c *Client) doTokenRequest(ctx context.Context, op, endpoint string, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		provErr := &ProviderError{StatusCode: resp.StatusCode}
		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &oauthErr) == nil {
			provErr.Code = oauthErr.Error
			provErr.Description = oauthErr.ErrorDescription
		}
		c.logger.Debug("token request rejected",
			"op", op,
			"status", resp.StatusCode,
			"code", provErr.Code)
		return nil, provErr
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", op, err)
	}

	return &token, nil
}

// Userinfo fetches the user's profile from the userinfo endpoint using the
// access token.
func (c *Client) Userinfo(ctx context.Context, userinfoEndpoint string, accessToken RedactedToken) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken.Value())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "userinfo", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "userinfo", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode}
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}

	return &profile, nil
}
