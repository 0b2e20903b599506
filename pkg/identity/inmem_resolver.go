package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-deviceid/pkg/errors"
)

// InMemResolver implements Resolver over an in-memory set of identities
type InMemResolver struct {
	mu         sync.RWMutex
	identities map[string]Identity // Key: "realm:username"
}

// NewInMemResolver creates an empty in-memory resolver
func NewInMemResolver() *InMemResolver {
	return &InMemResolver{
		identities: make(map[string]Identity),
	}
}

// Add registers an identity, generating an ID when none is set
func (r *InMemResolver) Add(identity Identity) Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	r.identities[makeKey(identity.Realm, identity.Username)] = identity
	return identity
}

// SetActive flips the active flag of an existing identity
func (r *InMemResolver) SetActive(username, realm string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(realm, username)
	identity, ok := r.identities[key]
	if !ok {
		return false
	}
	identity.Active = active
	r.identities[key] = identity
	return true
}

func (r *InMemResolver) ResolveActiveIdentity(ctx context.Context, username, realm string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[makeKey(realm, username)]
	if !ok {
		return Identity{}, errors.IdentityNotFound(username, realm)
	}
	return identity, nil
}

func makeKey(realm, username string) string {
	return realm + ":" + username
}
