package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"signet/internal/store"
	"signet/pkg/oauth"
)

// ErrAuthRequired is returned when an operation needs a signed-in session
// and none exists (or the session can no longer be refreshed).
var ErrAuthRequired = errors.New("authentication required")

// State is the controller's position in the sign-in lifecycle.
type State int

const (
	// StateSignedOut means no session exists.
	StateSignedOut State = iota

	// StateAuthorizing means an authorization request has been handed to
	// the launcher and the flow is waiting for the redirect.
	StateAuthorizing

	// StateExchangingCode means the authorization code is being exchanged
	// for tokens.
	StateExchangingCode

	// StateSignedIn means a session exists and tokens are persisted.
	StateSignedIn

	// StateRefreshing means an expired access token is being replaced
	// via the refresh grant.
	StateRefreshing
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateAuthorizing:
		return "authorizing"
	case StateExchangingCode:
		return "exchanging_code"
	case StateSignedIn:
		return "signed_in"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Config wires a Controller. Only ClientID plus either Endpoints or Issuer
// are required; everything else has a default. The configuration never
// carries a client secret: deployments that need one route the exchange
// through a trusted intermediary via ExchangeEndpoint.
type Config struct {
	// ClientID identifies this client at the provider. Required.
	ClientID string

	// Scopes requested on sign-in.
	Scopes []string

	// Endpoints are the provider URLs, set explicitly. Alternative to
	// Issuer.
	Endpoints *oauth.Endpoints

	// Issuer enables endpoint discovery via the well-known documents.
	// Ignored when Endpoints is complete.
	Issuer string

	// ExchangeEndpoint, when set, receives the code exchange and refresh
	// requests instead of the provider's token endpoint. The intermediary
	// holds the client secret server-side.
	ExchangeEndpoint string

	// HostedDomain optionally restricts sign-in to one hosted domain.
	HostedDomain string

	// Namespace prefixes persisted keys. Defaults to store.DefaultNamespace.
	Namespace string

	// Launcher presents authorization URLs. Defaults to a LoopbackLauncher.
	Launcher Launcher

	// Backend persists session state. Defaults to an in-memory backend.
	Backend store.Backend

	// HTTPClient overrides the transport for protocol requests.
	HTTPClient *http.Client

	// Logger for flow events. Token values are never logged.
	Logger *slog.Logger
}

// Controller orchestrates the Authorization Code flow with PKCE for one
// client configuration: it builds authorization requests, delegates
// presentation to the launcher, exchanges codes, persists results, and
// exposes silent sign-in, lazy refresh, and sign-out.
//
// A controller owns no global state; hosts needing multiple accounts simply
// construct multiple controllers over distinct backends or namespaces.
type Controller struct {
	cfg      Config
	client   *oauth.Client
	store    *store.ClientStore
	launcher Launcher
	logger   *slog.Logger
	hub      *hub

	mu      sync.Mutex
	state   State
	profile *oauth.UserProfile
	// sessionActive tracks which side of the SignedOut/SignedIn divide we
	// are on, so exactly one notification fires per crossing.
	sessionActive bool

	// authorizeGroup coalesces concurrent interactive flows: a second
	// SignIn (or RequestScopes) while one is pending joins the pending
	// attempt instead of racing a second code verifier.
	authorizeGroup singleflight.Group
}

// New validates cfg and constructs a Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("flow: ClientID is required")
	}
	if !cfg.Endpoints.Complete() && cfg.Issuer == "" {
		return nil, errors.New("flow: either Endpoints or Issuer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == nil {
		backend = store.NewMemoryBackend()
	}

	launcher := cfg.Launcher
	if launcher == nil {
		launcher = &LoopbackLauncher{}
	}

	clientOpts := []oauth.ClientOption{oauth.WithLogger(logger)}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, oauth.WithHTTPClient(cfg.HTTPClient))
	}

	return &Controller{
		cfg:      cfg,
		client:   oauth.NewClient(clientOpts...),
		store:    store.NewClientStore(backend, cfg.Namespace, cfg.ClientID),
		launcher: launcher,
		logger:   logger,
		hub:      newHub(),
		state:    StateSignedOut,
	}, nil
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentUser returns the signed-in user's profile, or nil.
func (c *Controller) CurrentUser() *oauth.UserProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return nil
	}
	profile := *c.profile
	return &profile
}

// Store exposes the controller's typed session store.
func (c *Controller) Store() *store.ClientStore {
	return c.store
}

// Subscribe registers an observer of current-user changes. Every transition
// between SignedOut and SignedIn produces exactly one Notification, in
// order; observers never block the flow. The channel closes on Unsubscribe
// or Close.
func (c *Controller) Subscribe() (string, <-chan Notification) {
	return c.hub.subscribe()
}

// Unsubscribe removes an observer.
func (c *Controller) Unsubscribe(id string) {
	c.hub.unsubscribe(id)
}

// SignInOption adjusts one sign-in attempt.
type SignInOption func(*signInOptions)

type signInOptions struct {
	loginHint string
}

// WithLoginHint pre-selects an account at the provider. An explicit hint
// overrides the stored user id from a previous session.
func WithLoginHint(hint string) SignInOption {
	return func(o *signInOptions) {
		o.loginHint = hint
	}
}

// SignIn runs the interactive authorization flow and returns the signed-in
// user's profile.
//
// Concurrent calls are coalesced: while an attempt is pending, further
// SignIn calls join it and receive its result rather than starting a second
// flow with a second code verifier. The options of the call that started
// the attempt win.
//
// A launcher-reported cancellation returns an error matching
// oauth.ErrUserCancelled; that is a normal outcome, not a failure.
func (c *Controller) SignIn(ctx context.Context, opts ...SignInOption) (*oauth.UserProfile, error) {
	options := &signInOptions{}
	for _, opt := range opts {
		opt(options)
	}

	result, err, shared := c.authorizeGroup.Do("authorize", func() (interface{}, error) {
		return c.runAuthorization(ctx, c.cfg.Scopes, options.loginHint, nil)
	})
	if shared {
		c.logger.Debug("sign-in call coalesced into pending attempt")
	}
	if err != nil {
		return nil, err
	}
	return result.(*oauth.UserProfile), nil
}

// SignInSilently restores a session from the store without any UI: a valid
// persisted token set signs in directly, an expired one with a refresh token
// goes through a refresh first. The launcher is never invoked. Returns an
// error matching oauth.ErrNoSession when nothing usable is stored.
func (c *Controller) SignInSilently(ctx context.Context) (*oauth.UserProfile, error) {
	set, err := c.store.TokenSet()
	if err != nil {
		return nil, err
	}

	switch {
	case set.AccessTokenValid(oauth.DefaultExpiryMargin):
		// Session still good, nothing to do but load it.

	case set.RefreshToken != "":
		if err := c.refresh(ctx, set.RefreshToken); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("silent sign-in failed: %w", oauth.ErrNoSession)
	}

	profile, err := c.store.Profile()
	if err != nil {
		return nil, err
	}

	c.enterSession(profile)
	c.logger.Info("silent sign-in succeeded", "client_id", c.cfg.ClientID)
	return profile, nil
}

// RequestScopes runs an incremental authorization for additional scopes on
// top of an existing session. Denial returns *oauth.ScopeDeniedError and
// leaves the current session untouched.
//
// The interactive flow shares the sign-in coalescing group, so a call that
// arrives while another flow is pending first waits for that flow. It does
// not inherit the pending flow's result: if the scopes are still missing
// afterwards, it runs its own incremental flow.
func (c *Controller) RequestScopes(ctx context.Context, scopes ...string) error {
	c.mu.Lock()
	active := c.sessionActive
	c.mu.Unlock()
	if !active {
		return ErrAuthRequired
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		set, err := c.store.TokenSet()
		if err != nil {
			return err
		}

		var missing []string
		for _, scope := range scopes {
			if !set.HasScope(scope) {
				missing = append(missing, scope)
			}
		}
		if len(missing) == 0 {
			return nil
		}

		union := append(append([]string{}, set.Scopes...), missing...)

		_, err, shared := c.authorizeGroup.Do("authorize", func() (interface{}, error) {
			return c.runAuthorization(ctx, union, "", missing)
		})
		if err != nil {
			return err
		}
		if !shared {
			// Our own flow ran with the union; a granted response was
			// persisted, a denial returned above.
			return nil
		}
		// Joined somebody else's flow, which never asked for our scopes.
		// Loop: re-check the store and run our own flow if still needed.
	}
}

// Token returns the current access token, lazily refreshing it when expired
// and a refresh token is available. A revoked refresh token clears the
// session and signs out; the caller must re-authorize.
func (c *Controller) Token(ctx context.Context) (oauth.RedactedToken, error) {
	set, err := c.store.TokenSet()
	if err != nil {
		return oauth.RedactedToken{}, err
	}

	if set.AccessTokenValid(oauth.DefaultExpiryMargin) {
		return oauth.NewRedactedToken(set.AccessToken), nil
	}

	if set.RefreshToken == "" {
		return oauth.RedactedToken{}, ErrAuthRequired
	}

	if err := c.refresh(ctx, set.RefreshToken); err != nil {
		return oauth.RedactedToken{}, err
	}

	set, err = c.store.TokenSet()
	if err != nil {
		return oauth.RedactedToken{}, err
	}
	return oauth.NewRedactedToken(set.AccessToken), nil
}

// Refresh exchanges the stored refresh token for a new access token
// regardless of how much lifetime the current one has left.
func (c *Controller) Refresh(ctx context.Context) error {
	set, err := c.store.TokenSet()
	if err != nil {
		return err
	}
	if set.RefreshToken == "" {
		return ErrAuthRequired
	}
	return c.refresh(ctx, set.RefreshToken)
}

// AuthenticatedClient returns an HTTP client that attaches the current
// access token to every request, refreshing it first when expired.
func (c *Controller) AuthenticatedClient(ctx context.Context) *http.Client {
	// Reuse the protocol client's transport for pooling and timeouts.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client.HTTPClient())
	return oauth2.NewClient(ctx, &controllerTokenSource{ctx: ctx, controller: c})
}

// SignOut clears the session fields but keeps the stored user id as the
// login hint for the next sign-in.
func (c *Controller) SignOut(ctx context.Context) error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.leaveSession()
	c.logger.Info("signed out", "client_id", c.cfg.ClientID)
	return nil
}

// Disconnect wipes the entire backend, including the user id and any state
// belonging to other clients sharing it. Strictly more destructive than
// SignOut.
func (c *Controller) Disconnect(ctx context.Context) error {
	if err := c.store.ClearAll(); err != nil {
		return err
	}
	c.leaveSession()
	c.logger.Info("disconnected, storage wiped", "client_id", c.cfg.ClientID)
	return nil
}

// Close releases the launcher and notification resources.
func (c *Controller) Close() error {
	c.hub.close()
	return c.launcher.Close()
}

// runAuthorization executes one interactive flow attempt. incremental is
// non-nil for RequestScopes sub-flows, carrying the newly requested scopes
// for error reporting; in that mode denial does not sign the user out.
func (c *Controller) runAuthorization(ctx context.Context, scopes []string, loginHint string, incremental []string) (*oauth.UserProfile, error) {
	endpoints, err := c.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := oauth.GenerateState()
	if err != nil {
		return nil, err
	}

	c.setState(StateAuthorizing)

	redirectURI, err := c.launcher.Start(ctx)
	if err != nil {
		c.settleState()
		return nil, fmt.Errorf("failed to start launcher: %w", err)
	}

	// The stored user id is the fallback hint; an explicit hint wins.
	if loginHint == "" {
		if id, err := c.store.UserID(); err == nil {
			loginHint = id
		}
	}

	authURL, err := oauth.BuildAuthorizationURL(endpoints.AuthorizationEndpoint, oauth.AuthorizationParams{
		ClientID:     c.cfg.ClientID,
		RedirectURI:  redirectURI,
		Scopes:       scopes,
		State:        state,
		PKCE:         pkce,
		LoginHint:    loginHint,
		HostedDomain: c.cfg.HostedDomain,
	})
	if err != nil {
		c.settleState()
		return nil, err
	}

	c.logger.Debug("authorization flow started",
		"client_id", c.cfg.ClientID,
		"redirect_uri", redirectURI,
		"scopes", scopes,
	)

	callback, err := c.launcher.Present(ctx, authURL)
	if err != nil {
		c.settleState()
		if errors.Is(err, oauth.ErrUserCancelled) {
			c.logger.Info("sign-in cancelled by user", "client_id", c.cfg.ClientID)
			return nil, err
		}
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	if callback.IsError() {
		c.settleState()
		if callback.Error == "access_denied" {
			if incremental != nil {
				return nil, &oauth.ScopeDeniedError{Scopes: incremental}
			}
			c.logger.Info("sign-in declined at provider", "client_id", c.cfg.ClientID)
			return nil, fmt.Errorf("%w: access denied", oauth.ErrUserCancelled)
		}
		return nil, &oauth.ProviderError{Code: callback.Error, Description: callback.ErrorDescription}
	}

	// CSRF check: the redirect must echo the state of this attempt.
	if callback.State != state {
		c.settleState()
		c.logger.Warn("authorization state mismatch",
			"client_id", c.cfg.ClientID,
			"expected_len", len(state),
			"received_len", len(callback.State),
		)
		return nil, errors.New("state mismatch in authorization response")
	}

	c.setState(StateExchangingCode)

	exchangeEndpoint := c.cfg.ExchangeEndpoint
	if exchangeEndpoint == "" {
		exchangeEndpoint = endpoints.TokenEndpoint
	}

	resp, err := c.client.ExchangeCode(ctx, exchangeEndpoint, callback.Code, redirectURI, c.cfg.ClientID, pkce.CodeVerifier)
	if err != nil {
		c.settleState()
		c.logger.Warn("code exchange failed",
			"client_id", c.cfg.ClientID,
			"error", err.Error(),
		)
		return nil, err
	}

	if err := c.store.SaveResult(resp); err != nil {
		c.settleState()
		return nil, err
	}

	profile := c.fetchProfile(ctx, endpoints, resp)
	if profile != nil {
		if err := c.store.SaveProfile(profile); err != nil {
			c.settleState()
			return nil, err
		}
	}

	c.enterSession(profile)
	c.logger.Info("sign-in succeeded",
		"client_id", c.cfg.ClientID,
		"has_refresh_token", resp.RefreshToken != "",
	)
	return profile, nil
}

// refresh exchanges the refresh token for a new access token. A rejected
// grant clears the session and signs out; transport failures leave the
// session as it was.
func (c *Controller) refresh(ctx context.Context, refreshToken string) error {
	endpoints, err := c.endpoints(ctx)
	if err != nil {
		return err
	}

	tokenEndpoint := c.cfg.ExchangeEndpoint
	if tokenEndpoint == "" {
		tokenEndpoint = endpoints.TokenEndpoint
	}

	c.setState(StateRefreshing)

	resp, err := c.client.Refresh(ctx, tokenEndpoint, refreshToken, c.cfg.ClientID)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidGrant) {
			c.logger.Warn("refresh token rejected, clearing session", "client_id", c.cfg.ClientID)
			if clearErr := c.store.Clear(); clearErr != nil {
				return clearErr
			}
			c.leaveSession()
			return err
		}
		c.settleState()
		return err
	}

	// SaveResult keeps the stored refresh token when the response omits
	// one, which refresh-grant responses routinely do.
	if err := c.store.SaveResult(resp); err != nil {
		c.settleState()
		return err
	}

	c.settleState()
	c.logger.Debug("access token refreshed", "client_id", c.cfg.ClientID)
	return nil
}

// fetchProfile resolves the user's identity: the userinfo endpoint when one
// is known, otherwise the ID token's claims. Profile failures do not undo a
// successful exchange.
func (c *Controller) fetchProfile(ctx context.Context, endpoints *oauth.Endpoints, resp *oauth.TokenResponse) *oauth.UserProfile {
	if endpoints.UserinfoEndpoint != "" && resp.AccessToken != "" {
		profile, err := c.client.Userinfo(ctx, endpoints.UserinfoEndpoint, oauth.NewRedactedToken(resp.AccessToken))
		if err == nil {
			return profile
		}
		c.logger.Warn("userinfo lookup failed, falling back to id token claims", "error", err.Error())
	}

	if resp.IDToken != "" {
		profile, err := oauth.ProfileFromIDToken(resp.IDToken)
		if err == nil {
			return profile
		}
		c.logger.Warn("failed to extract profile from id token", "error", err.Error())
	}

	return nil
}

// endpoints returns the configured provider endpoints, discovering them
// from the issuer when not set explicitly.
func (c *Controller) endpoints(ctx context.Context) (*oauth.Endpoints, error) {
	if c.cfg.Endpoints.Complete() {
		return c.cfg.Endpoints, nil
	}
	return c.client.DiscoverEndpoints(ctx, c.cfg.Issuer)
}

// setState records an intermediate state transition.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("flow state changed", "from", from.String(), "to", s.String())
}

// settleState returns to the resting state after a failed or abandoned
// step: SignedIn when a session is still active, SignedOut otherwise. No
// notification fires; the SignedOut/SignedIn divide was not crossed.
func (c *Controller) settleState() {
	c.mu.Lock()
	if c.sessionActive {
		c.state = StateSignedIn
	} else {
		c.state = StateSignedOut
	}
	c.mu.Unlock()
}

// enterSession moves to SignedIn, updating the cached profile. Crossing
// from the signed-out side emits exactly one notification. The publish
// happens under c.mu so racing transitions notify in transition order;
// hub.publish only enqueues and never blocks.
func (c *Controller) enterSession(profile *oauth.UserProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateSignedIn
	c.profile = profile
	if !c.sessionActive {
		c.sessionActive = true
		c.hub.publish(Notification{Profile: profile})
	}
}

// leaveSession moves to SignedOut. Crossing from the signed-in side emits
// exactly one notification, under c.mu like enterSession.
func (c *Controller) leaveSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateSignedOut
	c.profile = nil
	if c.sessionActive {
		c.sessionActive = false
		c.hub.publish(Notification{})
	}
}

// controllerTokenSource adapts the controller to oauth2.TokenSource so
// oauth2.NewClient handles header injection.
type controllerTokenSource struct {
	ctx        context.Context
	controller *Controller
}

// Token implements oauth2.TokenSource, refreshing through the controller
// when needed.
func (s *controllerTokenSource) Token() (*oauth2.Token, error) {
	if _, err := s.controller.Token(s.ctx); err != nil {
		return nil, err
	}

	set, err := s.controller.store.TokenSet()
	if err != nil {
		return nil, err
	}
	return set.ToOAuth2Token(), nil
}
