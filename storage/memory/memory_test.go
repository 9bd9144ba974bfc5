package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return NewRepository()
	})
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	created, err := repo.CreateAccount(ctx, &storage.Account{OpenID: "o1", Username: "alice", Name: "Alice"},
		func(bool) storage.Role { return storage.RoleUser })
	require.NoError(t, err)

	created.Role = storage.RoleAdmin
	got, err := repo.AccountByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RoleUser, got.Role, "mutating a returned account must not touch the store")
}

func TestMemoryRepositoryClock(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := NewRepository(WithClock(func() time.Time { return fixed }))

	msg, err := repo.CreateMessage(context.Background(), &storage.ContactMessage{Name: "n", Email: "e@example.com", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, fixed, msg.CreatedAt)
}
