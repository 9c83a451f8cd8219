package core

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// CredentialStore is the persistence surface the command handlers depend on.
// Tenant-scoped methods take the caller's TenantID; SetPassword and
// RecordLogin match by player name only and therefore act on every tenant.
type CredentialStore interface {
	GetAuth(ctx context.Context, tenant TenantID, name string) (AuthRow, error)
	CreateAuth(ctx context.Context, tenant TenantID, name, password, privileges string) error
	SetPassword(ctx context.Context, name, password string) (int64, error)
	SetPrivileges(ctx context.Context, tenant TenantID, name, privileges string) (int64, error)
	RecordLogin(ctx context.Context, name, lastLogin string) (int64, error)
}

const (
	qTenantByAPIKey = `SELECT id FROM tenants WHERE api_key = $1`

	qGetAuth = `
SELECT players.password, memberships.password_override, players.last_login, memberships.privileges
FROM players
JOIN memberships ON players.id = memberships.player_id
WHERE players.name = $1
  AND memberships.tenant_id = $2`

	qCreatePlayer = `
INSERT INTO players (name, password, last_login)
VALUES ($1, $2, $3)
RETURNING id`

	qCreateMembership = `
INSERT INTO memberships (tenant_id, player_id, privileges, password_override)
VALUES ($1, $2, $3, $4)`

	qSetPassword = `UPDATE players SET password = $1 WHERE name = $2`

	qSetPrivileges = `
UPDATE memberships
SET privileges = $1
WHERE tenant_id = $2
  AND player_id = (SELECT id FROM players WHERE name = $3)`

	qRecordLogin = `UPDATE players SET last_login = $1 WHERE name = $2`

	qProvisionTenant = `
INSERT INTO tenants (name, api_key)
VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING`
)

// PgCredentialStore implements CredentialStore and TenantResolver on Postgres.
// Every operation holds mu, so statements from concurrent requests never interleave.
type PgCredentialStore struct {
	mu sync.Mutex
	db DB
}

func NewPgCredentialStore(db DB) *PgCredentialStore {
	return &PgCredentialStore{db: db}
}

// ResolveTenant looks up the tenant owning apiKey.
func (s *PgCredentialStore) ResolveTenant(ctx context.Context, apiKey string) (TenantID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	if err := s.db.QueryRow(ctx, qTenantByAPIKey, apiKey).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, oops.In("store").With("operation", "resolve tenant").Wrap(err)
	}
	return TenantID(id), true, nil
}

func (s *PgCredentialStore) GetAuth(ctx context.Context, tenant TenantID, name string) (AuthRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row AuthRow
	err := s.db.QueryRow(ctx, qGetAuth, name, int64(tenant)).
		Scan(&row.Password, &row.PasswordOverride, &row.LastLogin, &row.Privileges)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthRow{}, ErrNoMembership
		}
		return AuthRow{}, oops.In("store").
			With("operation", "get auth").
			With("tenant_id", tenant).
			Wrap(err)
	}
	return row, nil
}

// CreateAuth registers a new player and its membership under tenant in one
// transaction. A name that already exists fails with a unique violation.
func (s *PgCredentialStore) CreateAuth(ctx context.Context, tenant TenantID, name, password, privileges string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		var playerID int64
		if err := tx.QueryRow(ctx, qCreatePlayer, name, password, "").Scan(&playerID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, qCreateMembership, int64(tenant), playerID, privileges, nil)
		return err
	})
	return oops.In("store").
		With("operation", "create auth").
		With("tenant_id", tenant).
		Wrap(err)
}

func (s *PgCredentialStore) SetPassword(ctx context.Context, name, password string) (int64, error) {
	return s.exec(ctx, "set password", qSetPassword, password, name)
}

func (s *PgCredentialStore) SetPrivileges(ctx context.Context, tenant TenantID, name, privileges string) (int64, error) {
	return s.exec(ctx, "set privileges", qSetPrivileges, privileges, int64(tenant), name)
}

func (s *PgCredentialStore) RecordLogin(ctx context.Context, name, lastLogin string) (int64, error) {
	return s.exec(ctx, "record login", qRecordLogin, lastLogin, name)
}

// ProvisionTenant inserts a tenant unless one with the same name exists.
// It reports whether a row was created.
func (s *PgCredentialStore) ProvisionTenant(ctx context.Context, name, apiKey string) (bool, error) {
	n, err := s.exec(ctx, "provision tenant", qProvisionTenant, name, apiKey)
	return n > 0, err
}

// Ping checks that the store answers queries.
func (s *PgCredentialStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return oops.In("store").With("operation", "ping").Wrap(err)
	}
	return nil
}

func (s *PgCredentialStore) exec(ctx context.Context, op, sql string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, oops.In("store").With("operation", op).Wrap(err)
	}
	return tag.RowsAffected(), nil
}
