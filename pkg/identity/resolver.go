package identity

import (
	"context"
	"fmt"
)

// Identity is the account a username resolves to within a realm
type Identity struct {
	ID       string
	Username string
	Realm    string
	Active   bool
}

// Resolver looks up the identity behind a username. Implementations return an error coded
// errors.ErrCodeIdentityNotFound when the username does not exist in the realm; an inactive
// account is returned with Active set to false.
type Resolver interface {
	ResolveActiveIdentity(ctx context.Context, username, realm string) (Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, username, realm string) (Identity, error)

func (f ResolverFunc) ResolveActiveIdentity(ctx context.Context, username, realm string) (Identity, error) {
	return f(ctx, username, realm)
}

// NewResolver creates a resolver based on the persistence type
func NewResolver(persistenceType string, db DBTX) (Resolver, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if db == nil {
			return nil, fmt.Errorf("db required for postgres resolver")
		}
		return NewPostgresResolver(db), nil
	case "memory", "inmem", "file":
		return NewInMemResolver(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
