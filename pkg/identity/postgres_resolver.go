package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	idmerrors "github.com/tendant/simple-deviceid/pkg/errors"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Schema creates the identity table read by PostgresResolver
const Schema = `
CREATE TABLE IF NOT EXISTS login (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	realm      TEXT NOT NULL DEFAULT '/',
	username   TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ,
	UNIQUE (realm, username)
);
`

// PostgresResolver implements Resolver against the login table
type PostgresResolver struct {
	db DBTX
}

// NewPostgresResolver creates a new PostgreSQL identity resolver
func NewPostgresResolver(db DBTX) *PostgresResolver {
	return &PostgresResolver{db: db}
}

// EnsureSchema creates the login table if it does not exist
func (r *PostgresResolver) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

func (r *PostgresResolver) ResolveActiveIdentity(ctx context.Context, username, realm string) (Identity, error) {
	query := `
		SELECT id::text, is_active
		FROM login
		WHERE realm = $1 AND username = $2 AND deleted_at IS NULL
	`

	identity := Identity{Username: username, Realm: realm}
	err := r.db.QueryRow(ctx, query, realm, username).Scan(&identity.ID, &identity.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Debug("Identity not found", "realm", realm, "username", username)
			return Identity{}, idmerrors.IdentityNotFound(username, realm)
		}
		slog.Error("Failed to resolve identity", "realm", realm, "username", username, "err", err)
		return Identity{}, idmerrors.Wrap(err, idmerrors.ErrCodeIdentityNotFound, "failed to resolve identity").
			WithDetail("realm", realm).
			WithDetail("username", username)
	}
	return identity, nil
}
