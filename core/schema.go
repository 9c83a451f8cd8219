package core

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// SchemaVersion is the only persisted schema this build knows how to serve.
const SchemaVersion = 1

const (
	qReadSchemaVersion  = `SELECT version FROM schema_version WHERE id`
	qWriteSchemaVersion = `INSERT INTO schema_version (version) VALUES ($1)
ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version`
)

var schemaDDL = []string{
	`CREATE TABLE tenants (
	id      BIGSERIAL PRIMARY KEY,
	name    TEXT UNIQUE NOT NULL,
	api_key TEXT UNIQUE NOT NULL
)`,
	`CREATE TABLE players (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT UNIQUE NOT NULL,
	password   TEXT NOT NULL,
	last_login TEXT NOT NULL
)`,
	`CREATE TABLE memberships (
	tenant_id         BIGINT NOT NULL REFERENCES tenants(id),
	player_id         BIGINT NOT NULL REFERENCES players(id),
	privileges        TEXT NOT NULL,
	password_override TEXT,
	PRIMARY KEY (tenant_id, player_id)
)`,
	`CREATE INDEX tenants_api_key_idx ON tenants (api_key)`,
	`CREATE INDEX players_name_idx ON players (name)`,
	// At most one row: id can only ever be TRUE.
	`CREATE TABLE IF NOT EXISTS schema_version (
	id      BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
	version INTEGER NOT NULL
)`,
}

// EnsureSchema creates the tables on an uninitialized store and refuses to
// continue on any version other than SchemaVersion. There is no migration path.
func EnsureSchema(ctx context.Context, db DB) error {
	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	switch version {
	case 0:
		log.Printf("[schema] store is uninitialized; creating schema version %d", SchemaVersion)
		return createSchema(ctx, db)
	case SchemaVersion:
		return nil
	default:
		return oops.In("schema").
			Code("SCHEMA_UNSUPPORTED").
			With("version", version).
			With("supported", SchemaVersion).
			Wrap(ErrUnsupportedSchemaVersion)
	}
}

// readSchemaVersion returns 0 when the version table is missing or empty.
func readSchemaVersion(ctx context.Context, db DB) (int, error) {
	var version int
	err := db.QueryRow(ctx, qReadSchemaVersion).Scan(&version)
	switch {
	case err == nil:
		return version, nil
	case errors.Is(err, pgx.ErrNoRows), hasPgCode(err, pgerrcode.UndefinedTable):
		return 0, nil
	default:
		return 0, oops.In("schema").With("operation", "read schema version").Wrap(err)
	}
}

func createSchema(ctx context.Context, db DB) error {
	err := inTx(ctx, db, func(tx pgx.Tx) error {
		for _, stmt := range schemaDDL {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, qWriteSchemaVersion, SchemaVersion)
		return err
	})
	return oops.In("schema").With("operation", "create schema").Wrap(err)
}
