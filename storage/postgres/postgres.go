// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Queries run on a pgx connection pool. The schema is managed by goose from
// the migrations embedded in the migrations package; NewRepositoryFromDSN
// applies any pending ones before returning.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/postgres/migrations"
)

const uniqueViolation = "23505"

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, applies
// pending migrations, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return NewRepository(pool), nil
}

// Migrate applies every pending migration to the database behind pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// SchemaVersion reports the latest applied migration version.
func SchemaVersion(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("pgx"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func isUniqueViolation(err error, column string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return strings.Contains(pgErr.ConstraintName, column)
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

const accountColumns = `id, open_id, COALESCE(username, ''), COALESCE(password_hash, ''), name,
	COALESCE(email, ''), COALESCE(login_method, ''), role, session_version,
	created_at, updated_at, last_signed_in`

func scanAccount(row pgx.Row) (*storage.Account, error) {
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

func accountNotFound(err error, key any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("account %v: %w", key, storage.ErrNotFound)
	}
	return err
}

func (s *Store) CreateAccount(ctx context.Context, acct *storage.Account, decide storage.RoleFunc) (*storage.Account, error) {
	var out *storage.Account
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// SHARE ROW EXCLUSIVE conflicts with itself, serializing concurrent
		// registrations while leaving plain reads unblocked.
		if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
			return err
		}
		role := decide(!exists)
		now := s.timestamp()

		var err error
		out, err = scanAccount(tx.QueryRow(ctx,
			`INSERT INTO users (open_id, username, password_hash, name, email, login_method, role,
			                    created_at, updated_at, last_signed_in)
			 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $8, $8)
			 RETURNING `+accountColumns,
			acct.OpenID, acct.Username, acct.PasswordHash, acct.Name, acct.Email, acct.LoginMethod,
			string(role), now))
		return err
	})
	if isUniqueViolation(err, "username") {
		return nil, fmt.Errorf("%s: %w", acct.Username, storage.ErrUsernameTaken)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AccountByID(ctx context.Context, id int64) (*storage.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, accountNotFound(err, id)
	}
	return a, nil
}

func (s *Store) AccountByOpenID(ctx context.Context, openID string) (*storage.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE open_id = $1`, openID))
	if err != nil {
		return nil, accountNotFound(err, openID)
	}
	return a, nil
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (*storage.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, accountNotFound(err, username)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]storage.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM users ORDER BY id`)
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
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) TouchLastSignedIn(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_signed_in = $2, updated_at = $3 WHERE id = $1`,
		id, at.UTC(), s.timestamp())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) (*storage.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`UPDATE users SET password_hash = $2, session_version = session_version + 1, updated_at = $3
		 WHERE id = $1 RETURNING `+accountColumns,
		id, passwordHash, s.timestamp()))
	if err != nil {
		return nil, accountNotFound(err, id)
	}
	return a, nil
}

func (s *Store) PromoteToAdmin(ctx context.Context, id int64) (*storage.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`UPDATE users SET role = 'admin', updated_at = $2 WHERE id = $1 RETURNING `+accountColumns,
		id, s.timestamp()))
	if err != nil {
		return nil, accountNotFound(err, id)
	}
	return a, nil
}

func (s *Store) UpsertAdmin(ctx context.Context, acct *storage.Account) (*storage.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`INSERT INTO users (open_id, username, password_hash, name, email, login_method, role,
		                    created_at, updated_at, last_signed_in)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), 'admin', $7, $7, $7)
		 ON CONFLICT (username) DO UPDATE SET
		     password_hash   = EXCLUDED.password_hash,
		     name            = EXCLUDED.name,
		     role            = 'admin',
		     session_version = users.session_version + 1,
		     updated_at      = EXCLUDED.updated_at
		 RETURNING `+accountColumns,
		acct.OpenID, acct.Username, acct.PasswordHash, acct.Name, acct.Email, acct.LoginMethod,
		s.timestamp()))
}

// ---------------------------------------------------------------------------
// Blog posts
// ---------------------------------------------------------------------------

const postColumns = `id, title, slug, content, excerpt, category, COALESCE(featured_image, ''),
	read_time, published_at, created_at, updated_at, author_id`

func scanPost(row pgx.Row) (*storage.BlogPost, error) {
	var p storage.BlogPost
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.Category, &p.FeaturedImage,
		&p.ReadTime, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt, &p.AuthorID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func postError(err error, key any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("post %v: %w", key, storage.ErrNotFound)
	}
	if isUniqueViolation(err, "slug") {
		return fmt.Errorf("post %v: %w", key, storage.ErrSlugTaken)
	}
	return err
}

func (s *Store) ListPosts(ctx context.Context) ([]storage.BlogPost, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM blog_posts ORDER BY published_at DESC, id DESC`)
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
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE id = $1`, id))
	if err != nil {
		return nil, postError(err, id)
	}
	return p, nil
}

func (s *Store) PostBySlug(ctx context.Context, slug string) (*storage.BlogPost, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE slug = $1`, slug))
	if err != nil {
		return nil, postError(err, slug)
	}
	return p, nil
}

func (s *Store) CreatePost(ctx context.Context, post *storage.BlogPost) (*storage.BlogPost, error) {
	now := s.timestamp()
	p, err := scanPost(s.pool.QueryRow(ctx,
		`INSERT INTO blog_posts (title, slug, content, excerpt, category, featured_image, read_time,
		                         published_at, created_at, updated_at, author_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $9, $10)
		 RETURNING `+postColumns,
		post.Title, post.Slug, post.Content, post.Excerpt, post.Category, post.FeaturedImage,
		post.ReadTime, post.PublishedAt.UTC(), now, post.AuthorID))
	if err != nil {
		return nil, postError(err, post.Slug)
	}
	return p, nil
}

func (s *Store) UpdatePost(ctx context.Context, id int64, patch storage.BlogPostPatch) (*storage.BlogPost, error) {
	p, err := scanPost(s.pool.QueryRow(ctx,
		`UPDATE blog_posts SET
		     title          = COALESCE($2, title),
		     slug           = COALESCE($3, slug),
		     content        = COALESCE($4, content),
		     excerpt        = COALESCE($5, excerpt),
		     category       = COALESCE($6, category),
		     featured_image = COALESCE($7, featured_image),
		     read_time      = COALESCE($8, read_time),
		     published_at   = COALESCE($9, published_at),
		     updated_at     = $10
		 WHERE id = $1
		 RETURNING `+postColumns,
		id, patch.Title, patch.Slug, patch.Content, patch.Excerpt, patch.Category,
		patch.FeaturedImage, patch.ReadTime, patch.PublishedAt, s.timestamp()))
	if err != nil {
		return nil, postError(err, id)
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Contact messages
// ---------------------------------------------------------------------------

const messageColumns = `id, name, email, COALESCE(phone, ''), COALESCE(website, ''), message, is_read, created_at`

func scanMessage(row pgx.Row) (*storage.ContactMessage, error) {
	var m storage.ContactMessage
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Website, &m.Message, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *storage.ContactMessage) (*storage.ContactMessage, error) {
	return scanMessage(s.pool.QueryRow(ctx,
		`INSERT INTO contact_messages (name, email, phone, website, message, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		 RETURNING `+messageColumns,
		msg.Name, msg.Email, msg.Phone, msg.Website, msg.Message, s.timestamp()))
}

func (s *Store) ListMessages(ctx context.Context) ([]storage.ContactMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM contact_messages ORDER BY created_at DESC, id DESC`)
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
	tag, err := s.pool.Exec(ctx, `UPDATE contact_messages SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Newsletter
// ---------------------------------------------------------------------------

func (s *Store) Subscribe(ctx context.Context, email string) (*storage.NewsletterSignup, error) {
	var out storage.NewsletterSignup
	err := s.pool.QueryRow(ctx,
		`INSERT INTO newsletter_signups (email, created_at) VALUES ($1, $2) RETURNING id, email, created_at`,
		email, s.timestamp()).Scan(&out.ID, &out.Email, &out.CreatedAt)
	if isUniqueViolation(err, "email") {
		return nil, fmt.Errorf("%s: %w", email, storage.ErrAlreadySubscribed)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListSignups(ctx context.Context) ([]storage.NewsletterSignup, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email, created_at FROM newsletter_signups ORDER BY created_at DESC, id DESC`)
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

func (s *Store) ListSocialLinks(ctx context.Context) ([]storage.SocialLink, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, platform, url, is_active, updated_at FROM social_links ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.SocialLink
	for rows.Next() {
		var l storage.SocialLink
		if err := rows.Scan(&l.ID, &l.Platform, &l.URL, &l.IsActive, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSocialLink(ctx context.Context, link storage.SocialLink) (*storage.SocialLink, error) {
	var out storage.SocialLink
	err := s.pool.QueryRow(ctx,
		`INSERT INTO social_links (platform, url, is_active, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (platform) DO UPDATE SET url = EXCLUDED.url, is_active = EXCLUDED.is_active,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, platform, url, is_active, updated_at`,
		link.Platform, link.URL, link.IsActive, s.timestamp()).Scan(
		&out.ID, &out.Platform, &out.URL, &out.IsActive, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
