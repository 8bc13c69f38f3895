package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_ExchangeCode(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "new-access",
			"token_type": "Bearer",
			"id_token": "new-id",
			"refresh_token": "new-refresh",
			"scope": "openid email",
			"expires_in": "3600"
		}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.ExchangeCode(context.Background(), server.URL, "auth-code", "http://localhost:7777/callback", "client-1", "the-verifier")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	wantForm := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "auth-code",
		"redirect_uri":  "http://localhost:7777/callback",
		"client_id":     "client-1",
		"code_verifier": "the-verifier",
	}
	for key, want := range wantForm {
		if got := gotForm.Get(key); got != want {
			t.Errorf("form[%s] = %q, want %q", key, got, want)
		}
	}

	if resp.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q", resp.AccessToken)
	}
	if resp.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q", resp.RefreshToken)
	}
	if resp.IDToken != "new-id" {
		t.Errorf("IDToken = %q", resp.IDToken)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", resp.ExpiresIn)
	}
	if scopes := resp.Scopes(); len(scopes) != 2 || scopes[0] != "openid" || scopes[1] != "email" {
		t.Errorf("Scopes() = %v", scopes)
	}
}

func TestClient_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "client-1" {
			t.Errorf("client_id = %q", got)
		}

		// Refresh responses commonly omit refresh_token.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "fresh-access", "token_type": "Bearer", "expires_in": 1800}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Refresh(context.Background(), server.URL, "old-refresh", "client-1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if resp.AccessToken != "fresh-access" {
		t.Errorf("AccessToken = %q", resp.AccessToken)
	}
	if resp.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty", resp.RefreshToken)
	}
}

func TestClient_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token has been revoked."}`))
	}))
	defer server.Close()

	client := NewClient()
	_, err := client.Refresh(context.Background(), server.URL, "revoked", "client-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %T, want *ProviderError", err)
	}
	if provErr.Code != "invalid_grant" {
		t.Errorf("Code = %q, want invalid_grant", provErr.Code)
	}
	if provErr.Description != "Token has been revoked." {
		t.Errorf("Description = %q", provErr.Description)
	}
	if provErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", provErr.StatusCode)
	}

	if !errors.Is(err, ErrInvalidGrant) {
		t.Error("expected errors.Is(err, ErrInvalidGrant) to hold")
	}
}

func TestClient_NetworkError(t *testing.T) {
	// A server that is immediately closed gives us a connection refusal.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := NewClient()
	_, err := client.ExchangeCode(context.Background(), endpoint, "code", "uri", "client", "verifier")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %T, want *NetworkError", err)
	}
	if errors.Is(err, ErrInvalidGrant) {
		t.Error("network error must not match ErrInvalidGrant")
	}
}

func TestClient_Userinfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer the-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub": "user-42", "name": "Jo Doe", "email": "jo@example.com", "picture": "https://example.com/jo.png"}`))
	}))
	defer server.Close()

	client := NewClient()
	profile, err := client.Userinfo(context.Background(), server.URL, NewRedactedToken("the-token"))
	if err != nil {
		t.Fatalf("Userinfo() error = %v", err)
	}

	if profile.ID != "user-42" {
		t.Errorf("ID = %q", profile.ID)
	}
	if profile.DisplayName != "Jo Doe" {
		t.Errorf("DisplayName = %q", profile.DisplayName)
	}
	if profile.Email != "jo@example.com" {
		t.Errorf("Email = %q", profile.Email)
	}
	if profile.PhotoURL != "https://example.com/jo.png" {
		t.Errorf("PhotoURL = %q", profile.PhotoURL)
	}
}

func TestClient_DiscoverEndpoints(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"issuer": "` + server.URL + `",
			"authorization_endpoint": "` + server.URL + `/authorize",
			"token_endpoint": "` + server.URL + `/token",
			"userinfo_endpoint": "` + server.URL + `/userinfo"
		}`))
	})

	client := NewClient(WithEndpointsCacheTTL(time.Minute))

	endpoints, err := client.DiscoverEndpoints(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("DiscoverEndpoints() error = %v", err)
	}
	if endpoints.AuthorizationEndpoint != server.URL+"/authorize" {
		t.Errorf("AuthorizationEndpoint = %q", endpoints.AuthorizationEndpoint)
	}
	if endpoints.TokenEndpoint != server.URL+"/token" {
		t.Errorf("TokenEndpoint = %q", endpoints.TokenEndpoint)
	}

	// Second lookup must come from the cache.
	if _, err := client.DiscoverEndpoints(context.Background(), server.URL); err != nil {
		t.Fatalf("DiscoverEndpoints() second call error = %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("discovery endpoint hit %d times, want 1", got)
	}
}

func TestClient_DiscoverEndpoints_RFC8414Fallback(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"issuer": "` + server.URL + `",
			"authorization_endpoint": "` + server.URL + `/auth",
			"token_endpoint": "` + server.URL + `/token"
		}`))
	})

	client := NewClient()
	endpoints, err := client.DiscoverEndpoints(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("DiscoverEndpoints() error = %v", err)
	}
	if endpoints.AuthorizationEndpoint != server.URL+"/auth" {
		t.Errorf("AuthorizationEndpoint = %q", endpoints.AuthorizationEndpoint)
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	raw, err := BuildAuthorizationURL("https://idp.example.com/authorize", AuthorizationParams{
		ClientID:     "client-1",
		RedirectURI:  "http://localhost:7777/callback",
		Scopes:       []string{"openid", "email"},
		State:        "the-state",
		PKCE:         pkce,
		LoginHint:    "jo@example.com",
		HostedDomain: "example.com",
	})
	if err != nil {
		t.Fatalf("BuildAuthorizationURL() error = %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	query := parsed.Query()

	want := map[string]string{
		"response_type":         "code",
		"client_id":             "client-1",
		"redirect_uri":          "http://localhost:7777/callback",
		"scope":                 "openid email",
		"state":                 "the-state",
		"code_challenge":        pkce.CodeChallenge,
		"code_challenge_method": "S256",
		"login_hint":            "jo@example.com",
		"hd":                    "example.com",
	}
	for key, value := range want {
		if got := query.Get(key); got != value {
			t.Errorf("query[%s] = %q, want %q", key, got, value)
		}
	}
}

func TestBuildAuthorizationURL_OptionalParamsOmitted(t *testing.T) {
	raw, err := BuildAuthorizationURL("https://idp.example.com/authorize", AuthorizationParams{
		ClientID:    "client-1",
		RedirectURI: "http://localhost:7777/callback",
	})
	if err != nil {
		t.Fatalf("BuildAuthorizationURL() error = %v", err)
	}

	query, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, key := range []string{"scope", "state", "login_hint", "hd", "code_challenge"} {
		if query.Query().Has(key) {
			t.Errorf("query unexpectedly contains %s", key)
		}
	}
}
