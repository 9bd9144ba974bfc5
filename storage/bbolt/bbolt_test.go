package bbolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.db")
	s, err := NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return newTestStore(t)
	})
}

func TestBBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "site.db")

	s, err := NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	created, err := s.CreateAccount(ctx, &storage.Account{
		OpenID: "o1", Username: "alice", PasswordHash: "h", Name: "Alice",
	}, func(first bool) storage.Role {
		if first {
			return storage.RoleAdmin
		}
		return storage.RoleUser
	})
	require.NoError(t, err)
	_, err = s.UpdatePassword(ctx, created.ID, "h2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	reopened, err := NewRepository(db)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.AccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash, "hidden fields survive the round trip")
	assert.Equal(t, int64(1), got.SessionVersion)
	assert.Equal(t, storage.RoleAdmin, got.Role)
}

func TestBBoltRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreateAccount(ctx, &storage.Account{
		OpenID: "o1", Username: "alice", PasswordHash: "h", Name: "Alice",
	}, func(bool) storage.Role { return storage.RoleUser })
	require.NoError(t, err)

	rec := toAccountRecord(created)
	rec.Role = "owner"
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketAccounts), itob(created.ID), rec)
	}))

	_, err = s.AccountByOpenID(ctx, "o1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "owner"`)
	assert.NotErrorIs(t, err, storage.ErrNotFound)

	_, err = s.ListAccounts(ctx)
	assert.Error(t, err)
}
