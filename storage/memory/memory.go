// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foxvalleyai/website/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu sync.RWMutex

	accounts map[int64]*storage.Account
	posts    map[int64]*storage.BlogPost
	messages map[int64]*storage.ContactMessage
	signups  map[int64]*storage.NewsletterSignup
	links    map[string]*storage.SocialLink
	lastID   int64
	now      func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a new empty in-memory Repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		accounts: make(map[int64]*storage.Account),
		posts:    make(map[int64]*storage.BlogPost),
		messages: make(map[int64]*storage.ContactMessage),
		signups:  make(map[int64]*storage.NewsletterSignup),
		links:    make(map[string]*storage.SocialLink),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close is a no-op.
func (r *Repository) Close() error { return nil }

func (r *Repository) nextID() int64 {
	r.lastID++
	return r.lastID
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC()
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

func (r *Repository) CreateAccount(_ context.Context, acct *storage.Account, decide storage.RoleFunc) (*storage.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acct.Username != "" && r.findByUsernameLocked(acct.Username) != nil {
		return nil, fmt.Errorf("%s: %w", acct.Username, storage.ErrUsernameTaken)
	}

	created := *acct
	created.ID = r.nextID()
	created.Role = decide(len(r.accounts) == 0)
	now := r.timestamp()
	created.CreatedAt, created.UpdatedAt, created.LastSignedIn = now, now, now
	r.accounts[created.ID] = &created

	out := created
	return &out, nil
}

func (r *Repository) findByUsernameLocked(username string) *storage.Account {
	for _, a := range r.accounts {
		if a.Username != "" && a.Username == username {
			return a
		}
	}
	return nil
}

func (r *Repository) AccountByID(_ context.Context, id int64) (*storage.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (r *Repository) AccountByOpenID(_ context.Context, openID string) (*storage.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.OpenID == openID {
			out := *a
			return &out, nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", openID, storage.ErrNotFound)
}

func (r *Repository) AccountByUsername(_ context.Context, username string) (*storage.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if username == "" {
		return nil, fmt.Errorf("empty username: %w", storage.ErrNotFound)
	}
	a := r.findByUsernameLocked(username)
	if a == nil {
		return nil, fmt.Errorf("account %s: %w", username, storage.ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (r *Repository) ListAccounts(_ context.Context) ([]storage.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) CountAccounts(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts), nil
}

func (r *Repository) TouchLastSignedIn(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	a.LastSignedIn = at.UTC()
	a.UpdatedAt = r.timestamp()
	return nil
}

func (r *Repository) UpdatePassword(_ context.Context, id int64, passwordHash string) (*storage.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	a.PasswordHash = passwordHash
	a.SessionVersion++
	a.UpdatedAt = r.timestamp()
	out := *a
	return &out, nil
}

func (r *Repository) PromoteToAdmin(_ context.Context, id int64) (*storage.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	a.Role = storage.RoleAdmin
	a.UpdatedAt = r.timestamp()
	out := *a
	return &out, nil
}

func (r *Repository) UpsertAdmin(_ context.Context, acct *storage.Account) (*storage.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timestamp()
	if existing := r.findByUsernameLocked(acct.Username); existing != nil {
		existing.PasswordHash = acct.PasswordHash
		existing.Name = acct.Name
		existing.Role = storage.RoleAdmin
		existing.SessionVersion++
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}

	created := *acct
	created.ID = r.nextID()
	created.Role = storage.RoleAdmin
	created.CreatedAt, created.UpdatedAt, created.LastSignedIn = now, now, now
	r.accounts[created.ID] = &created
	out := created
	return &out, nil
}

// ---------------------------------------------------------------------------
// Blog posts
// ---------------------------------------------------------------------------

func (r *Repository) ListPosts(_ context.Context) ([]storage.BlogPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.BlogPost, 0, len(r.posts))
	for _, p := range r.posts {
		out = append(out, *p)
	}
	storage.SortPostsByPublished(out)
	return out, nil
}

func (r *Repository) PostByID(_ context.Context, id int64) (*storage.BlogPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %d: %w", id, storage.ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (r *Repository) PostBySlug(_ context.Context, slug string) (*storage.BlogPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p := r.findBySlugLocked(slug); p != nil {
		out := *p
		return &out, nil
	}
	return nil, fmt.Errorf("post %s: %w", slug, storage.ErrNotFound)
}

func (r *Repository) findBySlugLocked(slug string) *storage.BlogPost {
	for _, p := range r.posts {
		if p.Slug == slug {
			return p
		}
	}
	return nil
}

func (r *Repository) CreatePost(_ context.Context, post *storage.BlogPost) (*storage.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findBySlugLocked(post.Slug) != nil {
		return nil, fmt.Errorf("%s: %w", post.Slug, storage.ErrSlugTaken)
	}
	created := *post
	created.ID = r.nextID()
	now := r.timestamp()
	created.CreatedAt, created.UpdatedAt = now, now
	created.PublishedAt = created.PublishedAt.UTC()
	r.posts[created.ID] = &created
	out := created
	return &out, nil
}

func (r *Repository) UpdatePost(_ context.Context, id int64, patch storage.BlogPostPatch) (*storage.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %d: %w", id, storage.ErrNotFound)
	}
	if patch.Slug != nil && *patch.Slug != p.Slug {
		if other := r.findBySlugLocked(*patch.Slug); other != nil {
			return nil, fmt.Errorf("%s: %w", *patch.Slug, storage.ErrSlugTaken)
		}
	}
	updated := *p
	patch.Apply(&updated)
	updated.PublishedAt = updated.PublishedAt.UTC()
	updated.UpdatedAt = r.timestamp()
	r.posts[id] = &updated
	out := updated
	return &out, nil
}

func (r *Repository) DeletePost(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return fmt.Errorf("post %d: %w", id, storage.ErrNotFound)
	}
	delete(r.posts, id)
	return nil
}

// ---------------------------------------------------------------------------
// Contact messages
// ---------------------------------------------------------------------------

func (r *Repository) CreateMessage(_ context.Context, msg *storage.ContactMessage) (*storage.ContactMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := *msg
	created.ID = r.nextID()
	created.IsRead = false
	created.CreatedAt = r.timestamp()
	r.messages[created.ID] = &created
	out := created
	return &out, nil
}

func (r *Repository) ListMessages(_ context.Context) ([]storage.ContactMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.ContactMessage, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, *m)
	}
	storage.SortMessagesNewestFirst(out)
	return out, nil
}

func (r *Repository) MarkMessageRead(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("message %d: %w", id, storage.ErrNotFound)
	}
	m.IsRead = true
	return nil
}

// ---------------------------------------------------------------------------
// Newsletter
// ---------------------------------------------------------------------------

func (r *Repository) Subscribe(_ context.Context, email string) (*storage.NewsletterSignup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.signups {
		if s.Email == email {
			return nil, fmt.Errorf("%s: %w", email, storage.ErrAlreadySubscribed)
		}
	}
	created := storage.NewsletterSignup{ID: r.nextID(), Email: email, CreatedAt: r.timestamp()}
	r.signups[created.ID] = &created
	out := created
	return &out, nil
}

func (r *Repository) ListSignups(_ context.Context) ([]storage.NewsletterSignup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.NewsletterSignup, 0, len(r.signups))
	for _, s := range r.signups {
		out = append(out, *s)
	}
	storage.SortSignupsNewestFirst(out)
	return out, nil
}

// ---------------------------------------------------------------------------
// Social links
// ---------------------------------------------------------------------------

func (r *Repository) ListSocialLinks(_ context.Context) ([]storage.SocialLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.SocialLink, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) UpsertSocialLink(_ context.Context, link storage.SocialLink) (*storage.SocialLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.timestamp()
	if existing, ok := r.links[link.Platform]; ok {
		existing.URL = link.URL
		existing.IsActive = link.IsActive
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}
	created := link
	created.ID = r.nextID()
	created.UpdatedAt = now
	r.links[created.Platform] = &created
	out := created
	return &out, nil
}
