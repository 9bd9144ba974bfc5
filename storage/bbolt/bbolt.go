// Package bbolt provides a BBolt-backed storage repository.
//
// Each table lives in its own bucket keyed by the big-endian row ID; unique
// columns get an index bucket mapping the column value to the ID. All writes
// run inside a single bbolt update transaction, so multi-step operations such
// as first-account bootstrap are serialized by the database itself.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/foxvalleyai/website/storage"
)

var (
	bucketAccounts         = []byte("accounts")
	bucketAccountsByOpenID = []byte("accounts_by_open_id")
	bucketAccountsByName   = []byte("accounts_by_username")
	bucketPosts            = []byte("blog_posts")
	bucketPostsBySlug      = []byte("blog_posts_by_slug")
	bucketMessages         = []byte("contact_messages")
	bucketSignups          = []byte("newsletter_signups")
	bucketSignupsByEmail   = []byte("newsletter_signups_by_email")
	bucketSocialLinks      = []byte("social_links")
)

var allBuckets = [][]byte{
	bucketAccounts, bucketAccountsByOpenID, bucketAccountsByName,
	bucketPosts, bucketPostsBySlug,
	bucketMessages,
	bucketSignups, bucketSignupsByEmail,
	bucketSocialLinks,
}

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database,
// creating any missing buckets.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func nextID(b *bbolt.Bucket) (int64, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// accountRecord is the persisted form of storage.Account; it keeps the
// fields the API-facing JSON tags hide.
type accountRecord struct {
	ID             int64        `json:"id"`
	OpenID         string       `json:"open_id"`
	Username       string       `json:"username,omitempty"`
	PasswordHash   string       `json:"password_hash,omitempty"`
	Name           string       `json:"name"`
	Email          string       `json:"email,omitempty"`
	LoginMethod    string       `json:"login_method,omitempty"`
	Role           storage.Role `json:"role"`
	SessionVersion int64        `json:"session_version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	LastSignedIn   time.Time    `json:"last_signed_in"`
}

func toAccountRecord(a *storage.Account) accountRecord {
	return accountRecord{
		ID: a.ID, OpenID: a.OpenID, Username: a.Username, PasswordHash: a.PasswordHash,
		Name: a.Name, Email: a.Email, LoginMethod: a.LoginMethod, Role: a.Role,
		SessionVersion: a.SessionVersion, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
		LastSignedIn: a.LastSignedIn,
	}
}

func (r accountRecord) account() *storage.Account {
	return &storage.Account{
		ID: r.ID, OpenID: r.OpenID, Username: r.Username, PasswordHash: r.PasswordHash,
		Name: r.Name, Email: r.Email, LoginMethod: r.LoginMethod, Role: r.Role,
		SessionVersion: r.SessionVersion, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		LastSignedIn: r.LastSignedIn,
	}
}

// decodeAccount parses a stored record. Nothing below the store constrains
// the role, so an unknown one is reported as corruption.
func decodeAccount(data []byte) (*storage.Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if !rec.Role.Valid() {
		return nil, fmt.Errorf("account %d: unknown role %q", rec.ID, rec.Role)
	}
	return rec.account(), nil
}

func getAccount(tx *bbolt.Tx, id int64) (*storage.Account, error) {
	data := tx.Bucket(bucketAccounts).Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	return decodeAccount(data)
}

func getAccountByIndex(tx *bbolt.Tx, index []byte, key string) (*storage.Account, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key: %w", storage.ErrNotFound)
	}
	id := tx.Bucket(index).Get([]byte(key))
	if id == nil {
		return nil, fmt.Errorf("account %s: %w", key, storage.ErrNotFound)
	}
	return getAccount(tx, btoi(id))
}

func putAccount(tx *bbolt.Tx, a *storage.Account) error {
	return putJSON(tx.Bucket(bucketAccounts), itob(a.ID), toAccountRecord(a))
}

func insertAccount(tx *bbolt.Tx, a *storage.Account) error {
	id, err := nextID(tx.Bucket(bucketAccounts))
	if err != nil {
		return err
	}
	a.ID = id
	if err := putAccount(tx, a); err != nil {
		return err
	}
	if err := tx.Bucket(bucketAccountsByOpenID).Put([]byte(a.OpenID), itob(id)); err != nil {
		return err
	}
	if a.Username != "" {
		return tx.Bucket(bucketAccountsByName).Put([]byte(a.Username), itob(id))
	}
	return nil
}

func (s *Store) CreateAccount(_ context.Context, acct *storage.Account, decide storage.RoleFunc) (*storage.Account, error) {
	created := *acct
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if created.Username != "" && tx.Bucket(bucketAccountsByName).Get([]byte(created.Username)) != nil {
			return fmt.Errorf("%s: %w", created.Username, storage.ErrUsernameTaken)
		}
		k, _ := tx.Bucket(bucketAccounts).Cursor().First()
		first := k == nil
		created.Role = decide(first)
		now := s.timestamp()
		created.CreatedAt, created.UpdatedAt, created.LastSignedIn = now, now, now
		return insertAccount(tx, &created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) AccountByID(_ context.Context, id int64) (*storage.Account, error) {
	var out *storage.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = getAccount(tx, id)
		return err
	})
	return out, err
}

func (s *Store) AccountByOpenID(_ context.Context, openID string) (*storage.Account, error) {
	var out *storage.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = getAccountByIndex(tx, bucketAccountsByOpenID, openID)
		return err
	})
	return out, err
}

func (s *Store) AccountByUsername(_ context.Context, username string) (*storage.Account, error) {
	var out *storage.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = getAccountByIndex(tx, bucketAccountsByName, username)
		return err
	})
	return out, err
}

func (s *Store) ListAccounts(_ context.Context) ([]storage.Account, error) {
	var out []storage.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			a, err := decodeAccount(v)
			if err != nil {
				return err
			}
			out = append(out, *a)
			return nil
		})
	})
	return out, err
}

func (s *Store) CountAccounts(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// updateAccount loads the account, applies fn and writes it back in one transaction.
func (s *Store) updateAccount(id int64, fn func(a *storage.Account)) (*storage.Account, error) {
	var out *storage.Account
	err := s.db.Update(func(tx *bbolt.Tx) error {
		a, err := getAccount(tx, id)
		if err != nil {
			return err
		}
		fn(a)
		a.UpdatedAt = s.timestamp()
		out = a
		return putAccount(tx, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) TouchLastSignedIn(_ context.Context, id int64, at time.Time) error {
	_, err := s.updateAccount(id, func(a *storage.Account) {
		a.LastSignedIn = at.UTC()
	})
	return err
}

func (s *Store) UpdatePassword(_ context.Context, id int64, passwordHash string) (*storage.Account, error) {
	return s.updateAccount(id, func(a *storage.Account) {
		a.PasswordHash = passwordHash
		a.SessionVersion++
	})
}

func (s *Store) PromoteToAdmin(_ context.Context, id int64) (*storage.Account, error) {
	return s.updateAccount(id, func(a *storage.Account) {
		a.Role = storage.RoleAdmin
	})
}

func (s *Store) UpsertAdmin(_ context.Context, acct *storage.Account) (*storage.Account, error) {
	var out *storage.Account
	err := s.db.Update(func(tx *bbolt.Tx) error {
		now := s.timestamp()
		existing, err := getAccountByIndex(tx, bucketAccountsByName, acct.Username)
		switch {
		case err == nil:
			existing.PasswordHash = acct.PasswordHash
			existing.Name = acct.Name
			existing.Role = storage.RoleAdmin
			existing.SessionVersion++
			existing.UpdatedAt = now
			out = existing
			return putAccount(tx, existing)
		case errors.Is(err, storage.ErrNotFound):
			created := *acct
			created.Role = storage.RoleAdmin
			created.CreatedAt, created.UpdatedAt, created.LastSignedIn = now, now, now
			out = &created
			return insertAccount(tx, &created)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Blog posts
// ---------------------------------------------------------------------------

func getPost(tx *bbolt.Tx, id int64) (*storage.BlogPost, error) {
	data := tx.Bucket(bucketPosts).Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("post %d: %w", id, storage.ErrNotFound)
	}
	var p storage.BlogPost
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPosts(_ context.Context) ([]storage.BlogPost, error) {
	var out []storage.BlogPost
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).ForEach(func(_, v []byte) error {
			var p storage.BlogPost
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortPostsByPublished(out)
	return out, nil
}

func (s *Store) PostByID(_ context.Context, id int64) (*storage.BlogPost, error) {
	var out *storage.BlogPost
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = getPost(tx, id)
		return err
	})
	return out, err
}

func (s *Store) PostBySlug(_ context.Context, slug string) (*storage.BlogPost, error) {
	var out *storage.BlogPost
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketPostsBySlug).Get([]byte(slug))
		if id == nil {
			return fmt.Errorf("post %s: %w", slug, storage.ErrNotFound)
		}
		var err error
		out, err = getPost(tx, btoi(id))
		return err
	})
	return out, err
}

func (s *Store) CreatePost(_ context.Context, post *storage.BlogPost) (*storage.BlogPost, error) {
	created := *post
	err := s.db.Update(func(tx *bbolt.Tx) error {
		slugs := tx.Bucket(bucketPostsBySlug)
		if slugs.Get([]byte(created.Slug)) != nil {
			return fmt.Errorf("%s: %w", created.Slug, storage.ErrSlugTaken)
		}
		posts := tx.Bucket(bucketPosts)
		id, err := nextID(posts)
		if err != nil {
			return err
		}
		created.ID = id
		now := s.timestamp()
		created.CreatedAt, created.UpdatedAt = now, now
		created.PublishedAt = created.PublishedAt.UTC()
		if err := putJSON(posts, itob(id), created); err != nil {
			return err
		}
		return slugs.Put([]byte(created.Slug), itob(id))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdatePost(_ context.Context, id int64, patch storage.BlogPostPatch) (*storage.BlogPost, error) {
	var out *storage.BlogPost
	err := s.db.Update(func(tx *bbolt.Tx) error {
		p, err := getPost(tx, id)
		if err != nil {
			return err
		}
		slugs := tx.Bucket(bucketPostsBySlug)
		oldSlug := p.Slug
		patch.Apply(p)
		if p.Slug != oldSlug {
			if slugs.Get([]byte(p.Slug)) != nil {
				return fmt.Errorf("%s: %w", p.Slug, storage.ErrSlugTaken)
			}
			if err := slugs.Delete([]byte(oldSlug)); err != nil {
				return err
			}
			if err := slugs.Put([]byte(p.Slug), itob(id)); err != nil {
				return err
			}
		}
		p.PublishedAt = p.PublishedAt.UTC()
		p.UpdatedAt = s.timestamp()
		out = p
		return putJSON(tx.Bucket(bucketPosts), itob(id), p)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeletePost(_ context.Context, id int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		p, err := getPost(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketPostsBySlug).Delete([]byte(p.Slug)); err != nil {
			return err
		}
		return tx.Bucket(bucketPosts).Delete(itob(id))
	})
}

// ---------------------------------------------------------------------------
// Contact messages
// ---------------------------------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, msg *storage.ContactMessage) (*storage.ContactMessage, error) {
	created := *msg
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		created.ID = id
		created.IsRead = false
		created.CreatedAt = s.timestamp()
		return putJSON(b, itob(id), created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListMessages(_ context.Context) ([]storage.ContactMessage, error) {
	var out []storage.ContactMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).ForEach(func(_, v []byte) error {
			var m storage.ContactMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortMessagesNewestFirst(out)
	return out, nil
}

func (s *Store) MarkMessageRead(_ context.Context, id int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		data := b.Get(itob(id))
		if data == nil {
			return fmt.Errorf("message %d: %w", id, storage.ErrNotFound)
		}
		var m storage.ContactMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		m.IsRead = true
		return putJSON(b, itob(id), m)
	})
}

// ---------------------------------------------------------------------------
// Newsletter
// ---------------------------------------------------------------------------

func (s *Store) Subscribe(_ context.Context, email string) (*storage.NewsletterSignup, error) {
	var out storage.NewsletterSignup
	err := s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(bucketSignupsByEmail)
		if byEmail.Get([]byte(email)) != nil {
			return fmt.Errorf("%s: %w", email, storage.ErrAlreadySubscribed)
		}
		b := tx.Bucket(bucketSignups)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		out = storage.NewsletterSignup{ID: id, Email: email, CreatedAt: s.timestamp()}
		if err := putJSON(b, itob(id), out); err != nil {
			return err
		}
		return byEmail.Put([]byte(email), itob(id))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListSignups(_ context.Context) ([]storage.NewsletterSignup, error) {
	var out []storage.NewsletterSignup
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSignups).ForEach(func(_, v []byte) error {
			var signup storage.NewsletterSignup
			if err := json.Unmarshal(v, &signup); err != nil {
				return err
			}
			out = append(out, signup)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortSignupsNewestFirst(out)
	return out, nil
}

// ---------------------------------------------------------------------------
// Social links
// ---------------------------------------------------------------------------

func (s *Store) ListSocialLinks(_ context.Context) ([]storage.SocialLink, error) {
	var out []storage.SocialLink
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSocialLinks).ForEach(func(_, v []byte) error {
			var l storage.SocialLink
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			out = append(out, l)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertSocialLink(_ context.Context, link storage.SocialLink) (*storage.SocialLink, error) {
	out := link
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSocialLinks)
		key := []byte(link.Platform)
		if data := b.Get(key); data != nil {
			var existing storage.SocialLink
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			out.ID = existing.ID
		} else {
			id, err := nextID(b)
			if err != nil {
				return err
			}
			out.ID = id
		}
		out.UpdatedAt = s.timestamp()
		return putJSON(b, key, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
