package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"signet/pkg/oauth"
)

// DefaultNamespace is the key prefix used when the host does not pick one.
const DefaultNamespace = "signet"

// Persisted field names. Together with the namespace and client ID they form
// the full backend key, so several client configurations can share one
// backend without collision.
const (
	fieldIDToken      = "idToken"
	fieldAccessToken  = "accessToken"
	fieldRefreshToken = "refreshToken"
	fieldScope        = "scope"
	fieldExpiresAt    = "expiresAt"
	fieldUserID       = "id"
	fieldName         = "name"
	fieldEmail        = "email"
	fieldPicture      = "picture"
)

// sessionFields are the fields removed by Clear. The user id is deliberately
// absent: it survives sign-out as the login hint for the next attempt.
var sessionFields = []string{
	fieldIDToken,
	fieldAccessToken,
	fieldRefreshToken,
	fieldScope,
	fieldExpiresAt,
	fieldName,
	fieldEmail,
	fieldPicture,
}

// ClientStore maps structured token and profile fields onto namespaced
// backend keys of the form "<namespace>___<clientID>__<field>". It is the
// sole owner of persisted session state; flow code holds only transient
// in-memory material.
type ClientStore struct {
	// mu makes compound updates (SaveResult, SaveProfile, Clear) atomic
	// from the caller's perspective.
	mu        sync.Mutex
	backend   Backend
	namespace string
	clientID  string
	now       func() time.Time
}

// NewClientStore creates a store scoped to one client configuration.
// An empty namespace falls back to DefaultNamespace.
func NewClientStore(backend Backend, namespace, clientID string) *ClientStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &ClientStore{
		backend:   backend,
		namespace: namespace,
		clientID:  clientID,
		now:       time.Now,
	}
}

// key builds the namespaced backend key for a field.
func (s *ClientStore) key(field string) string {
	return s.namespace + "___" + s.clientID + "__" + field
}

// SaveResult persists a token endpoint response. The refresh token is only
// written when the response carries one: refresh-grant responses routinely
// omit it, and the previous value must survive. Everything else (idToken,
// accessToken, scope, expiresAt) is taken from the response as-is.
func (s *ClientStore) SaveResult(resp *oauth.TokenResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp.RefreshToken != "" {
		if err := s.backend.Set(s.key(fieldRefreshToken), resp.RefreshToken); err != nil {
			return fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}

	if err := s.backend.Set(s.key(fieldIDToken), resp.IDToken); err != nil {
		return fmt.Errorf("failed to persist id token: %w", err)
	}
	if err := s.backend.Set(s.key(fieldAccessToken), resp.AccessToken); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	if err := s.backend.Set(s.key(fieldScope), resp.Scope); err != nil {
		return fmt.Errorf("failed to persist scope: %w", err)
	}

	expiresAt := resp.ExpiresAt(s.now())
	var encoded string
	if !expiresAt.IsZero() {
		encoded = expiresAt.Format(time.RFC3339)
	}
	if err := s.backend.Set(s.key(fieldExpiresAt), encoded); err != nil {
		return fmt.Errorf("failed to persist expiry: %w", err)
	}

	return nil
}

// TokenSet reads the persisted session. The result never carries partial
// decode state: an unparseable expiry is an error, not a silently-valid
// token.
func (s *ClientStore) TokenSet() (*oauth.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := &oauth.TokenSet{}
	var err error

	if set.IDToken, err = s.get(fieldIDToken); err != nil {
		return nil, err
	}
	if set.AccessToken, err = s.get(fieldAccessToken); err != nil {
		return nil, err
	}
	if set.RefreshToken, err = s.get(fieldRefreshToken); err != nil {
		return nil, err
	}

	scope, err := s.get(fieldScope)
	if err != nil {
		return nil, err
	}
	if scope != "" {
		set.Scopes = strings.Split(scope, " ")
	}

	encoded, err := s.get(fieldExpiresAt)
	if err != nil {
		return nil, err
	}
	if encoded != "" {
		expiresAt, err := time.Parse(time.RFC3339, encoded)
		if err != nil {
			return nil, fmt.Errorf("stored expiry is malformed: %w", err)
		}
		set.ExpiresAt = expiresAt
	}

	return set, nil
}

// SaveProfile persists the user's displayable identity.
func (s *ClientStore) SaveProfile(profile *oauth.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]string{
		fieldUserID:  profile.ID,
		fieldName:    profile.DisplayName,
		fieldEmail:   profile.Email,
		fieldPicture: profile.PhotoURL,
	}
	for field, value := range fields {
		if err := s.backend.Set(s.key(field), value); err != nil {
			return fmt.Errorf("failed to persist profile field %s: %w", field, err)
		}
	}
	return nil
}

// Profile reads the persisted identity. Returns nil when no user id is
// stored.
func (s *ClientStore) Profile() (*oauth.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.get(fieldUserID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	profile := &oauth.UserProfile{ID: id}
	if profile.DisplayName, err = s.get(fieldName); err != nil {
		return nil, err
	}
	if profile.Email, err = s.get(fieldEmail); err != nil {
		return nil, err
	}
	if profile.PhotoURL, err = s.get(fieldPicture); err != nil {
		return nil, err
	}
	return profile, nil
}

// UserID returns the stored user id, which survives Clear and serves as the
// default login hint on the next authorization attempt.
func (s *ClientStore) UserID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(fieldUserID)
}

// Clear removes every session field for this client but keeps the user id.
func (s *ClientStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, field := range sessionFields {
		if err := s.backend.Remove(s.key(field)); err != nil {
			return fmt.Errorf("failed to clear field %s: %w", field, err)
		}
	}
	return nil
}

// ClearAll wipes the entire backend, including the user id and any state
// belonging to other namespaces or clients. Strictly more destructive than
// Clear.
func (s *ClientStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ClearAll()
}

// get reads one field, mapping absence to the empty string. Caller must
// hold s.mu.
func (s *ClientStore) get(field string) (string, error) {
	value, ok, err := s.backend.Get(s.key(field))
	if err != nil {
		return "", fmt.Errorf("failed to read field %s: %w", field, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}
