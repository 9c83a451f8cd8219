//go:build integration

package core

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sharelogin_test"),
		postgres.WithUsername("sharelogin"),
		postgres.WithPassword("sharelogin"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	pool, err := Connect(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to connect: " + err.Error())
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// integrationRouter prepares the schema, two tenants, and a router over the real store.
func integrationRouter(t *testing.T) (*gin.Engine, *PgCredentialStore, TenantID, TenantID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, testPool))

	_, err := testPool.Exec(ctx, `TRUNCATE memberships, players, tenants RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	store := NewPgCredentialStore(testPool)
	for name, key := range map[string]string{"a": keyA, "b": keyB} {
		created, err := store.ProvisionTenant(ctx, name, key)
		require.NoError(t, err)
		require.True(t, created)
	}
	a, found, err := store.ResolveTenant(ctx, keyA)
	require.NoError(t, err)
	require.True(t, found)
	b, found, err := store.ResolveTenant(ctx, keyB)
	require.NoError(t, err)
	require.True(t, found)

	gin.SetMode(gin.TestMode)
	return NewRouter(Config{MaxBodyBytes: 1024}, store, store, nil), store, a, b
}

func joinTenant(t *testing.T, tenant TenantID, name, privileges string, override *string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
INSERT INTO memberships (tenant_id, player_id, privileges, password_override)
VALUES ($1, (SELECT id FROM players WHERE name = $2), $3, $4)`, int64(tenant), name, privileges, override)
	require.NoError(t, err)
}

func TestIntegration_EnsureSchemaIsStable(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, testPool))
	require.NoError(t, EnsureSchema(ctx, testPool))

	var version int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	_, err := testPool.Exec(ctx, `UPDATE schema_version SET version = 2`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `UPDATE schema_version SET version = 1`)
	})
	assert.ErrorIs(t, EnsureSchema(ctx, testPool), ErrUnsupportedSchemaVersion)
}

func TestIntegration_SchemaVersionHoldsOneRow(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, testPool))

	_, err := testPool.Exec(ctx, `INSERT INTO schema_version (version) VALUES (7)`)
	assert.True(t, hasPgCode(err, pgerrcode.UniqueViolation), "second row accepted: %v", err)
	_, err = testPool.Exec(ctx, `INSERT INTO schema_version (id, version) VALUES (FALSE, 7)`)
	assert.True(t, hasPgCode(err, pgerrcode.CheckViolation), "row with id FALSE accepted: %v", err)

	var rows int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM schema_version`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestIntegration_CredentialLifecycle(t *testing.T) {
	r, _, _, b := integrationRouter(t)

	mustOK(t, call(r, "/v1/create_auth", keyA, `{"name":"alice","password":"p1","privileges":"interact"}`))
	rec, code := getAuth(t, r, keyA, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, AuthRecord{Password: "p1", Privileges: "interact"}, rec)

	_, code = getAuth(t, r, keyB, "alice")
	assert.Equal(t, http.StatusNotFound, code)

	joinTenant(t, b, "alice", "build", nil)

	mustOK(t, call(r, "/v1/set_password", keyB, `{"name":"alice","password":"p2"}`))
	mustOK(t, call(r, "/v1/set_privileges", keyA, `{"name":"alice","privileges":"shout"}`))
	mustOK(t, call(r, "/v1/record_login", keyA, `{"name":"alice","last_login":12345.0}`))

	rec, _ = getAuth(t, r, keyA, "alice")
	assert.Equal(t, AuthRecord{Password: "p2", Privileges: "shout", LastLogin: "12345.0"}, rec)
	rec, _ = getAuth(t, r, keyB, "alice")
	assert.Equal(t, AuthRecord{Password: "p2", Privileges: "build", LastLogin: "12345.0"}, rec)
}

func TestIntegration_OverrideResolution(t *testing.T) {
	r, _, _, b := integrationRouter(t)
	mustOK(t, call(r, "/v1/create_auth", keyA, `{"name":"bob","password":"G","privileges":"interact"}`))

	joinTenant(t, b, "bob", "interact", strPtr(""))
	rec, _ := getAuth(t, r, keyB, "bob")
	assert.Equal(t, "G", rec.Password)

	_, err := testPool.Exec(context.Background(),
		`UPDATE memberships SET password_override = 'O' WHERE tenant_id = $1`, int64(b))
	require.NoError(t, err)
	rec, _ = getAuth(t, r, keyB, "bob")
	assert.Equal(t, "O", rec.Password)
	rec, _ = getAuth(t, r, keyA, "bob")
	assert.Equal(t, "G", rec.Password)
}

func TestIntegration_DuplicateCreateLeavesNoOrphan(t *testing.T) {
	r, _, _, _ := integrationRouter(t)
	mustOK(t, call(r, "/v1/create_auth", keyA, `{"name":"carol","password":"p1","privileges":"interact"}`))

	w := call(r, "/v1/create_auth", keyB, `{"name":"carol","password":"x","privileges":"all"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var memberships int
	require.NoError(t, testPool.QueryRow(context.Background(), `SELECT COUNT(*) FROM memberships`).Scan(&memberships))
	assert.Equal(t, 1, memberships)
}

func TestIntegration_UnknownKeyMutatesNothing(t *testing.T) {
	r, _, _, _ := integrationRouter(t)
	for path, body := range validBodies {
		w := call(r, path, "wrong-key", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	var players int
	require.NoError(t, testPool.QueryRow(context.Background(), `SELECT COUNT(*) FROM players`).Scan(&players))
	assert.Zero(t, players)
}
