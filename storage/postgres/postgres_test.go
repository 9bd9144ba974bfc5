package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/storagetest"
)

const truncateAll = `TRUNCATE users, blog_posts, contact_messages, newsletter_signups, social_links RESTART IDENTITY`

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("FOXVALLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FOXVALLEY_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "could not connect to postgres")
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	pool := newTestPool(t)
	ctx := context.Background()

	// Clean tables for test isolation.
	pool.Exec(ctx, truncateAll) //nolint:errcheck
	t.Cleanup(func() {
		pool.Exec(ctx, truncateAll) //nolint:errcheck
		pool.Close()
	})
	return NewRepository(pool)
}

func TestPostgresStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return newTestStore(t)
	})
}

func TestPostgresSchemaVersion(t *testing.T) {
	pool := newTestPool(t)
	defer pool.Close()

	version, err := SchemaVersion(context.Background(), pool)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(2))
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	defer pool.Close()

	assert.NoError(t, Migrate(context.Background(), pool))
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

func TestScanAccountRejectsUnknownRole(t *testing.T) {
	_, err := scanAccount(rowFunc(func(dest ...any) error {
		*dest[7].(*string) = "owner"
		return nil
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "owner"`)
}
