package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Schema creates the table used by PostgresProfileRepository.
// The profiles column is json rather than jsonb so attribute key order survives storage.
const Schema = `
CREATE TABLE IF NOT EXISTS device_profile (
	realm      TEXT NOT NULL,
	username   TEXT NOT NULL,
	profiles   JSON NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (realm, username)
);
`

// PostgresProfileRepository implements ProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	db DBTX
}

// NewPostgresProfileRepository creates a new PostgreSQL profile repository
func NewPostgresProfileRepository(db DBTX) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

// EnsureSchema creates the device_profile table if it does not exist
func (r *PostgresProfileRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

// GetProfiles retrieves the collection stored for key
func (r *PostgresProfileRepository) GetProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	return getProfiles(ctx, r.db, key, false)
}

// PutProfiles replaces the collection stored for key
func (r *PostgresProfileRepository) PutProfiles(ctx context.Context, key UserKey, profiles []Profile) error {
	return putProfiles(ctx, r.db, key, profiles)
}

// UpdateProfiles runs fn inside a transaction holding an advisory lock on key, so two
// service instances updating the same user are serialized by the database.
func (r *PostgresProfileRepository) UpdateProfiles(ctx context.Context, key UserKey, fn UpdateFunc) ([]Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		slog.Error("Failed to begin transaction", "err", err, "realm", key.Realm, "username", key.Username)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op once committed
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(key)); err != nil {
		return nil, fmt.Errorf("failed to lock profiles: %w", err)
	}

	current, err := getProfiles(ctx, tx, key, true)
	if err != nil {
		return nil, err
	}

	updated, err := fn(current)
	if err != nil {
		return nil, err
	}

	if err := putProfiles(ctx, tx, key, updated); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("Failed to commit profiles", "err", err, "realm", key.Realm, "username", key.Username)
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return updated, nil
}

type queryRower interface {
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

func getProfiles(ctx context.Context, db queryRower, key UserKey, forUpdate bool) ([]Profile, error) {
	query := `
		SELECT profiles
		FROM device_profile
		WHERE realm = $1 AND username = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var raw []byte
	err := db.QueryRow(ctx, query, key.Realm, key.Username).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []Profile{}, nil
		}
		slog.Error("Failed to get profiles", "err", err, "realm", key.Realm, "username", key.Username)
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}

	var profiles []Profile
	if err := json.Unmarshal(raw, &profiles); err != nil {
		slog.Error("Failed to decode stored profiles", "err", err, "realm", key.Realm, "username", key.Username)
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

func putProfiles(ctx context.Context, db queryRower, key UserKey, profiles []Profile) error {
	if len(profiles) == 0 {
		_, err := db.Exec(ctx, `DELETE FROM device_profile WHERE realm = $1 AND username = $2`, key.Realm, key.Username)
		if err != nil {
			slog.Error("Failed to delete profiles", "err", err, "realm", key.Realm, "username", key.Username)
			return fmt.Errorf("failed to delete profiles: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	query := `
		INSERT INTO device_profile (realm, username, profiles, updated_at)
		VALUES ($1, $2, $3::json, now())
		ON CONFLICT (realm, username)
		DO UPDATE SET profiles = EXCLUDED.profiles, updated_at = EXCLUDED.updated_at
	`
	if _, err := db.Exec(ctx, query, key.Realm, key.Username, string(raw)); err != nil {
		slog.Error("Failed to store profiles", "err", err, "realm", key.Realm, "username", key.Username, "count", len(profiles))
		return fmt.Errorf("failed to store profiles: %w", err)
	}

	slog.Debug("Profiles stored", "realm", key.Realm, "username", key.Username, "count", len(profiles))
	return nil
}

func lockKey(key UserKey) string {
	return key.Realm + "\x1f" + key.Username
}
