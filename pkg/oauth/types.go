package oauth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the margin applied when checking access token
// expiry. It absorbs clock skew and the latency of the request the token is
// about to be attached to.
const DefaultExpiryMargin = 30 * time.Second

// ExpiresIn is a token lifetime in seconds. Providers disagree on the JSON
// type: most send an integer, some send a quoted string. Both decode.
type ExpiresIn int

// UnmarshalJSON accepts both `3600` and `"3600"`.
func (e *ExpiresIn) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expires_in is neither a number nor a numeric string: %w", err)
	}
	*e = ExpiresIn(n)
	return nil
}

// TokenResponse is the JSON document returned by the token and exchange
// endpoints for both authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    ExpiresIn `json:"expires_in,omitempty"`
}

// Scopes returns the granted scopes split on single spaces.
func (r *TokenResponse) Scopes() []string {
	if r.Scope == "" {
		return nil
	}
	return strings.Split(r.Scope, " ")
}

// ExpiresAt converts the relative expires_in lifetime into an absolute
// timestamp anchored at now. Zero lifetime yields the zero time.
func (r *TokenResponse) ExpiresAt(now time.Time) time.Time {
	if r.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// TokenSet is the persisted session material for one client: the identity,
// access, and refresh tokens with their granted scopes and expiry.
type TokenSet struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    time.Time
}

// HasSession reports whether the set represents a session at all. A set
// with neither an ID token nor an access token is "no session".
func (t *TokenSet) HasSession() bool {
	if t == nil {
		return false
	}
	return t.IDToken != "" || t.AccessToken != ""
}

// AccessTokenValid reports whether the access token can still be used.
// A zero ExpiresAt means the expiry was never recorded, and the token must
// be treated as expired rather than trusted indefinitely.
func (t *TokenSet) AccessTokenValid(margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).Before(t.ExpiresAt)
}

// HasScope reports whether the granted scopes include scope.
func (t *TokenSet) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ToOAuth2Token converts the set to an oauth2.Token for use with
// golang.org/x/oauth2 transports. The ID token rides in Extra("id_token").
func (t *TokenSet) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// UserProfile is the displayable identity of the signed-in user, kept
// separate from the token material. ID survives sign-out as a login hint;
// all other fields are cleared.
type UserProfile struct {
	ID          string `json:"sub"`
	DisplayName string `json:"name,omitempty"`
	Email       string `json:"email"`
	PhotoURL    string `json:"picture,omitempty"`
}

// Endpoints are the provider URLs the flow talks to. They can be set
// explicitly or discovered from the issuer's well-known document.
type Endpoints struct {
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
}

// Complete reports whether the endpoints needed for an interactive flow are
// all present.
func (e *Endpoints) Complete() bool {
	return e != nil && e.AuthorizationEndpoint != "" && e.TokenEndpoint != ""
}

// RedactedToken wraps a sensitive token string so it cannot leak through
// logging, %v/%#v formatting, or serialization. Use Value only at the point
// the token is attached to a request.
type RedactedToken struct {
	value string
}

// NewRedactedToken wraps value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the wrapped token. Never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

// IsEmpty reports whether the wrapped value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// String implements fmt.Stringer.
func (t RedactedToken) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{[REDACTED]}"
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return json.Marshal("[REDACTED]")
}
