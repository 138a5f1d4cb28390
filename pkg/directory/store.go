package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventostec/eventostec/pkg/authz"
)

// ErrUserNotFound is returned by lookups that match no user.
var ErrUserNotFound = errors.New("user not found")

// UserStore persists users in PostgreSQL keyed by provider identity.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates the store and ensures its schema exists.
func NewUserStore(db *sql.DB) (*UserStore, error) {
	store := &UserStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run user store migrations: %w", err)
	}
	return store, nil
}

func (s *UserStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		provider_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		picture_url TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		client_platform TEXT NOT NULL,
		organization_id TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_organization ON users(organization_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const upsertQuery = `
	INSERT INTO users (id, provider_id, email, display_name, picture_url, role, client_platform)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (provider_id) DO UPDATE SET
		email = EXCLUDED.email,
		display_name = EXCLUDED.display_name,
		picture_url = EXCLUDED.picture_url,
		last_login_at = NOW()
	RETURNING id, provider_id, email, display_name, picture_url, role, client_platform,
		organization_id, is_active, notifications_enabled, created_at, last_login_at,
		(xmax = 0) AS is_new`

// Upsert inserts the user on first login and refreshes mutable profile
// attributes on every subsequent login. The stored role wins over the
// incoming one: role is resolved exactly once, at creation.
func (s *UserStore) Upsert(ctx context.Context, params UpsertParams) (*UserRecord, bool, error) {
	if params.ProviderID == "" {
		return nil, false, errors.New("provider id is required")
	}
	if !params.Role.Valid() {
		return nil, false, fmt.Errorf("invalid role: %s", params.Role)
	}

	row := s.db.QueryRowContext(ctx, upsertQuery,
		uuid.New().String(),
		params.ProviderID,
		params.Email,
		params.DisplayName,
		params.PictureURL,
		string(params.Role),
		params.ClientPlatform,
	)

	user, isNew, err := scanUserWithFlag(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, isNew, nil
}

const selectColumns = `id, provider_id, email, display_name, picture_url, role, client_platform,
	organization_id, is_active, notifications_enabled, created_at, last_login_at`

// GetByProviderID returns the user with the given provider identity.
func (s *UserStore) GetByProviderID(ctx context.Context, providerID string) (*UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM users WHERE provider_id = $1`, providerID)
	return scanUser(row)
}

// GetByID returns the user with the given internal id.
func (s *UserStore) GetByID(ctx context.Context, id string) (*UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*UserRecord, error) {
	var user UserRecord
	var role string
	var orgID sql.NullString

	err := row.Scan(
		&user.ID, &user.ProviderID, &user.Email, &user.DisplayName, &user.PictureURL,
		&role, &user.ClientPlatform, &orgID, &user.IsActive, &user.NotificationsEnabled,
		&user.CreatedAt, &user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.Role = authz.Role(role)
	if orgID.Valid {
		user.OrganizationID = &orgID.String
	}
	return &user, nil
}

func scanUserWithFlag(row rowScanner) (*UserRecord, bool, error) {
	var user UserRecord
	var role string
	var orgID sql.NullString
	var isNew bool

	err := row.Scan(
		&user.ID, &user.ProviderID, &user.Email, &user.DisplayName, &user.PictureURL,
		&role, &user.ClientPlatform, &orgID, &user.IsActive, &user.NotificationsEnabled,
		&user.CreatedAt, &user.LastLoginAt, &isNew,
	)
	if err != nil {
		return nil, false, err
	}

	user.Role = authz.Role(role)
	if orgID.Valid {
		user.OrganizationID = &orgID.String
	}
	return &user, isNew, nil
}
