package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *Hasher {
	return NewHasher(WithCost(bcrypt.MinCost))
}

func TestHashVerify(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()

	hash, err := h.Hash(ctx, "correct-password")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-password", hash)

	ok, err := h.Verify(ctx, "correct-password", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()

	a, err := h.Hash(ctx, "same")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDefaultCost(t *testing.T) {
	h := NewHasher()
	assert.Equal(t, DefaultCost, h.cost)
}

func TestVerifyMalformedHash(t *testing.T) {
	ok, err := newTestHasher().Verify(context.Background(), "anything", "not-a-bcrypt-hash")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashTooLong(t *testing.T) {
	_, err := newTestHasher().Hash(context.Background(), strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestVerifyRejectsTooLong(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()
	prefix := strings.Repeat("a", MaxPasswordBytes)

	hash, err := h.Hash(ctx, prefix)
	require.NoError(t, err)

	ok, err := h.Verify(ctx, prefix, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, prefix+"-anything-else", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasherHonoursCancellation(t *testing.T) {
	h := NewHasher(WithCost(bcrypt.MinCost), WithConcurrency(1))
	// Hold the only slot.
	require.NoError(t, h.sem.Acquire(context.Background(), 1))
	defer h.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "password")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = h.Verify(ctx, "password", "hash")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyMissing(t *testing.T) {
	h := newTestHasher()
	h.VerifyMissing(context.Background(), "password")
	assert.NotEmpty(t, h.dummyHash)
}
