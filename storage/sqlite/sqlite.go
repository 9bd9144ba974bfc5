// Package sqlite implements storage.Repository on a local SQLite database
// through database/sql and github.com/mattn/go-sqlite3.
//
// Transactions are opened with BEGIN IMMEDIATE (the _txlock DSN option), so a
// read-then-write transaction holds the write lock from its first statement.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/foxvalleyai/website/internal/dbx"
	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/sqlite/migrations"
)

// Store implements storage.Repository backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// DSN builds a go-sqlite3 data source name for the database file at path.
func DSN(path string) string {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (or creates) the database file at path, applies pending
// migrations and returns a Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return New(db), nil
}

// New returns a Store on an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate applies every pending migration to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// SchemaVersion reports the latest applied migration version.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func isUniqueViolation(err error, column string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(se.Error(), column)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

const accountColumns = `id, open_id, COALESCE(username, ''), COALESCE(password_hash, ''), name,
	COALESCE(email, ''), COALESCE(login_method, ''), role, session_version,
	created_at, updated_at, last_signed_in`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*storage.Account, error) {
	var a storage.Account
	var role string
	err := row.Scan(&a.ID, &a.OpenID, &a.Username, &a.PasswordHash, &a.Name,
		&a.Email, &a.LoginMethod, &role, &a.SessionVersion,
		&a.CreatedAt, &a.UpdatedAt, &a.LastSignedIn)
	if err != nil {
		return nil, err
	}
	a.Role = storage.Role(role)
	if !a.Role.Valid() {
		return nil, fmt.Errorf("account %d: unknown role %q", a.ID, role)
	}
	return &a, nil
}

func getAccount(ctx context.Context, q dbx.DBTX, where string, key any) (*storage.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE `+where+` = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %v: %w", key, storage.ErrNotFound)
	}
	return a, err
}

func insertAccount(ctx context.Context, tx dbx.DBTX, a *storage.Account, role storage.Role, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (open_id, username, password_hash, name, email, login_method, role,
		                    created_at, updated_at, last_signed_in)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OpenID, nullIfEmpty(a.Username), nullIfEmpty(a.PasswordHash), a.Name, nullIfEmpty(a.Email),
		nullIfEmpty(a.LoginMethod), string(role), now, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) CreateAccount(ctx context.Context, acct *storage.Account, decide storage.RoleFunc) (*storage.Account, error) {
	var out *storage.Account
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
			return err
		}
		id, err := insertAccount(ctx, tx, acct, decide(!exists), s.timestamp())
		if err != nil {
			return err
		}
		out, err = getAccount(ctx, tx, "id", id)
		return err
	})
	if isUniqueViolation(err, "users.username") {
		return nil, fmt.Errorf("%s: %w", acct.Username, storage.ErrUsernameTaken)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AccountByID(ctx context.Context, id int64) (*storage.Account, error) {
	return getAccount(ctx, s.db, "id", id)
}

func (s *Store) AccountByOpenID(ctx context.Context, openID string) (*storage.Account, error) {
	return getAccount(ctx, s.db, "open_id", openID)
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (*storage.Account, error) {
	return getAccount(ctx, s.db, "username", username)
}

func (s *Store) ListAccounts(ctx context.Context) ([]storage.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) TouchLastSignedIn(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_signed_in = ?, updated_at = ? WHERE id = ?`, at.UTC(), s.timestamp(), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "account", id)
}

// updateAccount runs stmt against the account and returns the updated row.
func (s *Store) updateAccount(ctx context.Context, id int64, stmt string, args ...any) (*storage.Account, error) {
	var out *storage.Account
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, stmt, append(args, id)...)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "account", id); err != nil {
			return err
		}
		out, err = getAccount(ctx, tx, "id", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) (*storage.Account, error) {
	return s.updateAccount(ctx, id,
		`UPDATE users SET password_hash = ?, session_version = session_version + 1, updated_at = ? WHERE id = ?`,
		passwordHash, s.timestamp())
}

func (s *Store) PromoteToAdmin(ctx context.Context, id int64) (*storage.Account, error) {
	return s.updateAccount(ctx, id,
		`UPDATE users SET role = 'admin', updated_at = ? WHERE id = ?`, s.timestamp())
}

func (s *Store) UpsertAdmin(ctx context.Context, acct *storage.Account) (*storage.Account, error) {
	var out *storage.Account
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.timestamp()
		existing, err := getAccount(ctx, tx, "username", acct.Username)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET password_hash = ?, name = ?, role = 'admin',
				     session_version = session_version + 1, updated_at = ?
				 WHERE id = ?`,
				acct.PasswordHash, acct.Name, now, existing.ID)
			if err != nil {
				return err
			}
			out, err = getAccount(ctx, tx, "id", existing.ID)
			return err
		case errors.Is(err, storage.ErrNotFound):
			id, err := insertAccount(ctx, tx, acct, storage.RoleAdmin, now)
			if err != nil {
				return err
			}
			out, err = getAccount(ctx, tx, "id", id)
			return err
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

const postColumns = `id, title, slug, content, excerpt, category, COALESCE(featured_image, ''),
	read_time, published_at, created_at, updated_at, author_id`

func scanPost(row scanner) (*storage.BlogPost, error) {
	var p storage.BlogPost
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.Category, &p.FeaturedImage,
		&p.ReadTime, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt, &p.AuthorID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func getPost(ctx context.Context, q dbx.DBTX, where string, key any) (*storage.BlogPost, error) {
	p, err := scanPost(q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE `+where+` = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %v: %w", key, storage.ErrNotFound)
	}
	return p, err
}

func (s *Store) ListPosts(ctx context.Context) ([]storage.BlogPost, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM blog_posts ORDER BY published_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.BlogPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) PostByID(ctx context.Context, id int64) (*storage.BlogPost, error) {
	return getPost(ctx, s.db, "id", id)
}

func (s *Store) PostBySlug(ctx context.Context, slug string) (*storage.BlogPost, error) {
	return getPost(ctx, s.db, "slug", slug)
}

func (s *Store) CreatePost(ctx context.Context, post *storage.BlogPost) (*storage.BlogPost, error) {
	var out *storage.BlogPost
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO blog_posts (title, slug, content, excerpt, category, featured_image, read_time,
			                         published_at, created_at, updated_at, author_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			post.Title, post.Slug, post.Content, post.Excerpt, post.Category, nullIfEmpty(post.FeaturedImage),
			post.ReadTime, post.PublishedAt.UTC(), now, now, post.AuthorID)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out, err = getPost(ctx, tx, "id", id)
		return err
	})
	if isUniqueViolation(err, "blog_posts.slug") {
		return nil, fmt.Errorf("%s: %w", post.Slug, storage.ErrSlugTaken)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdatePost(ctx context.Context, id int64, patch storage.BlogPostPatch) (*storage.BlogPost, error) {
	var out *storage.BlogPost
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := getPost(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		patch.Apply(p)
		_, err = tx.ExecContext(ctx,
			`UPDATE blog_posts SET title = ?, slug = ?, content = ?, excerpt = ?, category = ?,
			     featured_image = ?, read_time = ?, published_at = ?, updated_at = ?
			 WHERE id = ?`,
			p.Title, p.Slug, p.Content, p.Excerpt, p.Category, nullIfEmpty(p.FeaturedImage),
			p.ReadTime, p.PublishedAt.UTC(), s.timestamp(), id)
		if err != nil {
			return err
		}
		out, err = getPost(ctx, tx, "id", id)
		return err
	})
	if isUniqueViolation(err, "blog_posts.slug") {
		return nil, fmt.Errorf("post %d: %w", id, storage.ErrSlugTaken)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "post", id)
}

// ---------------------------------------------------------------------------
// Contact messages
// ---------------------------------------------------------------------------

const messageColumns = `id, name, email, COALESCE(phone, ''), COALESCE(website, ''), message, is_read, created_at`

func scanMessage(row scanner) (*storage.ContactMessage, error) {
	var m storage.ContactMessage
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Website, &m.Message, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *storage.ContactMessage) (*storage.ContactMessage, error) {
	var out *storage.ContactMessage
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO contact_messages (name, email, phone, website, message, is_read, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?)`,
			msg.Name, msg.Email, nullIfEmpty(msg.Phone), nullIfEmpty(msg.Website), msg.Message, s.timestamp())
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out, err = scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM contact_messages WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context) ([]storage.ContactMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM contact_messages ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ContactMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) MarkMessageRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contact_messages SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "message", id)
}

// ---------------------------------------------------------------------------
// Newsletter
// ---------------------------------------------------------------------------

func (s *Store) Subscribe(ctx context.Context, email string) (*storage.NewsletterSignup, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `INSERT INTO newsletter_signups (email, created_at) VALUES (?, ?)`, email, now)
	if isUniqueViolation(err, "newsletter_signups.email") {
		return nil, fmt.Errorf("%s: %w", email, storage.ErrAlreadySubscribed)
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &storage.NewsletterSignup{ID: id, Email: email, CreatedAt: now}, nil
}

func (s *Store) ListSignups(ctx context.Context) ([]storage.NewsletterSignup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, created_at FROM newsletter_signups ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.NewsletterSignup
	for rows.Next() {
		var n storage.NewsletterSignup
		if err := rows.Scan(&n.ID, &n.Email, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Social links
// ---------------------------------------------------------------------------

const linkColumns = `id, platform, url, is_active, updated_at`

func scanLink(row scanner) (*storage.SocialLink, error) {
	var l storage.SocialLink
	if err := row.Scan(&l.ID, &l.Platform, &l.URL, &l.IsActive, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListSocialLinks(ctx context.Context) ([]storage.SocialLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM social_links ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.SocialLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSocialLink(ctx context.Context, link storage.SocialLink) (*storage.SocialLink, error) {
	var out *storage.SocialLink
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO social_links (platform, url, is_active, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (platform) DO UPDATE SET url = excluded.url, is_active = excluded.is_active,
			     updated_at = excluded.updated_at`,
			link.Platform, link.URL, link.IsActive, s.timestamp())
		if err != nil {
			return err
		}
		out, err = scanLink(tx.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM social_links WHERE platform = ?`, link.Platform))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
