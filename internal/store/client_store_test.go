package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signet/pkg/oauth"
)

func TestClientStore_SaveResultRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewClientStore(backend, "", "client-1")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	err := s.SaveResult(&oauth.TokenResponse{
		AccessToken:  "A",
		RefreshToken: "R",
		IDToken:      "I",
		Scope:        "s1 s2",
		ExpiresIn:    3600,
	})
	require.NoError(t, err)

	set, err := s.TokenSet()
	require.NoError(t, err)

	assert.Equal(t, "A", set.AccessToken)
	assert.Equal(t, "R", set.RefreshToken)
	assert.Equal(t, "I", set.IDToken)
	assert.Equal(t, []string{"s1", "s2"}, set.Scopes)
	assert.True(t, set.ExpiresAt.Equal(now.Add(time.Hour)), "expiresAt = %v", set.ExpiresAt)
	assert.True(t, set.HasSession())
}

func TestClientStore_RefreshKeepsRefreshToken(t *testing.T) {
	s := NewClientStore(NewMemoryBackend(), "", "client-1")

	require.NoError(t, s.SaveResult(&oauth.TokenResponse{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresIn:    3600,
	}))

	// Refresh-grant responses routinely omit refresh_token.
	require.NoError(t, s.SaveResult(&oauth.TokenResponse{
		AccessToken: "A2",
		ExpiresIn:   3600,
	}))

	set, err := s.TokenSet()
	require.NoError(t, err)
	assert.Equal(t, "A2", set.AccessToken)
	assert.Equal(t, "R1", set.RefreshToken, "stored refresh token must survive responses without one")
}

func TestClientStore_ClearKeepsUserID(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewClientStore(backend, "", "client-1")

	require.NoError(t, s.SaveResult(&oauth.TokenResponse{
		AccessToken:  "A",
		RefreshToken: "R",
		IDToken:      "I",
		Scope:        "s1",
		ExpiresIn:    3600,
	}))
	require.NoError(t, s.SaveProfile(&oauth.UserProfile{
		ID:          "user-42",
		DisplayName: "Jo Doe",
		Email:       "jo@example.com",
		PhotoURL:    "https://example.com/jo.png",
	}))

	require.NoError(t, s.Clear())

	set, err := s.TokenSet()
	require.NoError(t, err)
	assert.False(t, set.HasSession())
	assert.Empty(t, set.RefreshToken)
	assert.Empty(t, set.Scopes)
	assert.True(t, set.ExpiresAt.IsZero())

	profile, err := s.Profile()
	require.NoError(t, err)
	require.NotNil(t, profile, "user id must survive Clear")
	assert.Equal(t, "user-42", profile.ID)
	assert.Empty(t, profile.DisplayName)
	assert.Empty(t, profile.Email)
	assert.Empty(t, profile.PhotoURL)

	hint, err := s.UserID()
	require.NoError(t, err)
	assert.Equal(t, "user-42", hint)
}

func TestClientStore_ClearAllRemovesEverything(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewClientStore(backend, "", "client-1")
	other := NewClientStore(backend, "", "client-2")

	require.NoError(t, s.SaveProfile(&oauth.UserProfile{ID: "user-42", Email: "jo@example.com"}))
	require.NoError(t, other.SaveProfile(&oauth.UserProfile{ID: "user-99", Email: "mx@example.com"}))

	require.NoError(t, s.ClearAll())

	id, err := s.UserID()
	require.NoError(t, err)
	assert.Empty(t, id, "ClearAll must remove the user id too")

	otherID, err := other.UserID()
	require.NoError(t, err)
	assert.Empty(t, otherID, "ClearAll wipes the whole backend, not one namespace")
}

func TestClientStore_KeyNamespacing(t *testing.T) {
	backend := NewMemoryBackend()
	a := NewClientStore(backend, "", "client-a")
	b := NewClientStore(backend, "", "client-b")

	require.NoError(t, a.SaveResult(&oauth.TokenResponse{AccessToken: "token-a", ExpiresIn: 60}))
	require.NoError(t, b.SaveResult(&oauth.TokenResponse{AccessToken: "token-b", ExpiresIn: 60}))

	setA, err := a.TokenSet()
	require.NoError(t, err)
	setB, err := b.TokenSet()
	require.NoError(t, err)

	assert.Equal(t, "token-a", setA.AccessToken)
	assert.Equal(t, "token-b", setB.AccessToken)

	// The raw key layout is part of the persisted contract.
	value, ok, err := backend.Get("signet___client-a__accessToken")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "token-a", value)
}

func TestClientStore_EmptyBackend(t *testing.T) {
	s := NewClientStore(NewMemoryBackend(), "", "client-1")

	set, err := s.TokenSet()
	require.NoError(t, err)
	assert.False(t, set.HasSession())

	profile, err := s.Profile()
	require.NoError(t, err)
	assert.Nil(t, profile)
}
