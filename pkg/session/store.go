// Package session holds the Azure service-principal credentials supplied by
// operators. Each successful authentication creates a session keyed by a
// random id; the id travels in the bearer token, the credentials stay here.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
)

// Principal is a service-principal credential set. SubscriptionID may be empty,
// in which case every subscription visible to the principal is used.
type Principal struct {
	ClientID       string
	ClientSecret   string
	TenantID       string
	SubscriptionID string
}

// Missing returns the names of required fields that are empty.
func (p Principal) Missing() []string {
	var missing []string
	if strings.TrimSpace(p.ClientID) == "" {
		missing = append(missing, "clientId")
	}
	if strings.TrimSpace(p.ClientSecret) == "" {
		missing = append(missing, "clientSecret")
	}
	if strings.TrimSpace(p.TenantID) == "" {
		missing = append(missing, "tenantId")
	}
	return missing
}

// Session is one authenticated operator.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	clientID       string
	tenantID       string
	subscriptionID string
	secret         *sealedSecret
	key            []byte
}

// ClientID returns the service principal's application id.
func (s *Session) ClientID() string { return s.clientID }

// SubscriptionID returns the subscription the session is scoped to, if any.
func (s *Session) SubscriptionID() string { return s.subscriptionID }

// Principal returns a copy of the credentials with the secret unsealed.
func (s *Session) Principal() (Principal, error) {
	secret, err := open(s.key, s.secret, s.ID[:])
	if err != nil {
		return Principal{}, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to open session secret", err)
	}
	return Principal{
		ClientID:       s.clientID,
		ClientSecret:   string(secret),
		TenantID:       s.tenantID,
		SubscriptionID: s.subscriptionID,
	}, nil
}

// Store is an in-memory session registry. Sessions live until logout or
// process exit; there is no expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	key      []byte
	now      func() time.Time
}

// NewStore creates an empty store with a fresh sealing key.
func NewStore() (*Store, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		key:      key,
		now:      time.Now,
	}, nil
}

func (st *Store) build(id uuid.UUID, p Principal) (*Session, error) {
	secret, err := seal(st.key, []byte(p.ClientSecret), id[:])
	if err != nil {
		return nil, fmt.Errorf("seal client secret: %w", err)
	}
	return &Session{
		ID:             id,
		CreatedAt:      st.now(),
		clientID:       p.ClientID,
		tenantID:       p.TenantID,
		subscriptionID: p.SubscriptionID,
		secret:         secret,
		key:            st.key,
	}, nil
}

// Create registers a new session for p.
func (st *Store) Create(p Principal) (*Session, error) {
	s, err := st.build(uuid.New(), p)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s, nil
}

// Replace swaps the credentials of an existing session wholesale, keeping its
// id. Requests already holding the old *Session keep using it.
func (st *Store) Replace(id uuid.UUID, p Principal) (*Session, error) {
	s, err := st.build(id, p)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return nil, apperrors.New(apperrors.ErrCodeAuthentication, "not authenticated")
	}
	st.sessions[id] = s
	return s, nil
}

// Get returns the session for id.
func (st *Store) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeAuthentication, "not authenticated")
	}
	return s, nil
}

// Clear removes the session. Clearing an unknown id is a no-op.
func (st *Store) Clear(id uuid.UUID) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
