package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/memory"
)

func TestDecideRole(t *testing.T) {
	assert.Equal(t, storage.RoleAdmin, DecideRole(true))
	assert.Equal(t, storage.RoleUser, DecideRole(false))
}

func TestFirstRegistrationBecomesAdmin(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	first, err := repo.CreateAccount(ctx, &storage.Account{OpenID: "a", Username: "alice", Name: "Alice"}, DecideRole)
	require.NoError(t, err)
	second, err := repo.CreateAccount(ctx, &storage.Account{OpenID: "b", Username: "bob", Name: "Bob"}, DecideRole)
	require.NoError(t, err)

	assert.Equal(t, storage.RoleAdmin, first.Role)
	assert.Equal(t, storage.RoleUser, second.Role)
}

func TestRequireAdmin(t *testing.T) {
	assert.NoError(t, RequireAdmin(&storage.Account{Role: storage.RoleAdmin}))
	assert.ErrorIs(t, RequireAdmin(&storage.Account{Role: storage.RoleUser}), ErrAdminRequired)
	assert.ErrorIs(t, RequireAdmin(nil), ErrForbidden)
}
