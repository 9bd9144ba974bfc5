package auth

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor for stored password hashes.
const DefaultCost = 12

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt. Each call takes a slot
// from a weighted semaphore first, so a burst of logins occupies at most a
// bounded number of CPUs.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

// HasherOption configures a Hasher.
type HasherOption func(*hasherConfig)

type hasherConfig struct {
	cost        int
	concurrency int
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) HasherOption {
	return func(c *hasherConfig) {
		c.cost = cost
	}
}

// WithConcurrency sets how many hash operations may run at once.
func WithConcurrency(n int) HasherOption {
	return func(c *hasherConfig) {
		c.concurrency = n
	}
}

// NewHasher returns a Hasher using DefaultCost and GOMAXPROCS workers
// unless overridden.
func NewHasher(opts ...HasherOption) *Hasher {
	cfg := hasherConfig{cost: DefaultCost, concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}
	return &Hasher{
		cost: cfg.cost,
		sem:  semaphore.NewWeighted(int64(cfg.concurrency)),
	}
}

// Hash returns the bcrypt hash of plaintext. It fails only if ctx is done
// before a worker slot frees up, or plaintext is longer than MaxPasswordBytes.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A mismatch or a malformed
// hash yields false with a nil error; the error is non-nil only when ctx
// ends before a worker slot is available.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	// bcrypt only looks at the first MaxPasswordBytes bytes, and Hash never
	// accepts more, so a longer plaintext cannot be the stored password.
	if len(plaintext) > MaxPasswordBytes {
		return false, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	// Malformed hashes are treated like a mismatch.
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil, nil
}

// VerifyMissing spends the same work as Verify against a fixed hash, for
// logins naming an account that does not exist or has no password.
func (h *Hasher) VerifyMissing(ctx context.Context, plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fox-valley-placeholder"), h.cost)
	})
	_, _ = h.Verify(ctx, plaintext, string(h.dummyHash))
}
