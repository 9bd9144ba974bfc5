// Package storage defines the rows the website persists and the store
// interfaces every backend (memory, bbolt, postgres, sqlite) implements.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken is returned when an account with the same username exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrSlugTaken is returned when a blog post with the same slug exists.
	ErrSlugTaken = errors.New("slug already taken")
	// ErrAlreadySubscribed is returned when an email is already on the newsletter list.
	ErrAlreadySubscribed = errors.New("email already subscribed")
)

// RoleFunc decides the role of a new account. first reports whether the store
// held no accounts at the moment the insert was processed.
type RoleFunc func(first bool) Role

// AccountStore persists user accounts.
type AccountStore interface {
	// CreateAccount inserts acct, assigning its ID, timestamps and role.
	// Counting existing accounts, checking the username and inserting happen
	// atomically, so at most one account is ever created with first == true.
	CreateAccount(ctx context.Context, acct *Account, decide RoleFunc) (*Account, error)
	AccountByID(ctx context.Context, id int64) (*Account, error)
	AccountByOpenID(ctx context.Context, openID string) (*Account, error)
	AccountByUsername(ctx context.Context, username string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	CountAccounts(ctx context.Context) (int, error)
	TouchLastSignedIn(ctx context.Context, id int64, at time.Time) error
	// UpdatePassword replaces the password hash and increments the session
	// version, invalidating every token issued before the change.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) (*Account, error)
	PromoteToAdmin(ctx context.Context, id int64) (*Account, error)
	// UpsertAdmin creates acct as an admin, or when the username already
	// exists overwrites its password hash and name and sets role admin.
	UpsertAdmin(ctx context.Context, acct *Account) (*Account, error)
}

// BlogStore persists blog posts.
type BlogStore interface {
	// ListPosts returns every post, most recently published first.
	ListPosts(ctx context.Context) ([]BlogPost, error)
	PostByID(ctx context.Context, id int64) (*BlogPost, error)
	PostBySlug(ctx context.Context, slug string) (*BlogPost, error)
	CreatePost(ctx context.Context, post *BlogPost) (*BlogPost, error)
	UpdatePost(ctx context.Context, id int64, patch BlogPostPatch) (*BlogPost, error)
	DeletePost(ctx context.Context, id int64) error
}

// ContactStore persists contact form submissions.
type ContactStore interface {
	CreateMessage(ctx context.Context, msg *ContactMessage) (*ContactMessage, error)
	// ListMessages returns every message, newest first.
	ListMessages(ctx context.Context) ([]ContactMessage, error)
	MarkMessageRead(ctx context.Context, id int64) error
}

// NewsletterStore persists newsletter signups.
type NewsletterStore interface {
	Subscribe(ctx context.Context, email string) (*NewsletterSignup, error)
	// ListSignups returns every signup, newest first.
	ListSignups(ctx context.Context) ([]NewsletterSignup, error)
}

// SocialLinkStore persists the site's social profile links.
type SocialLinkStore interface {
	ListSocialLinks(ctx context.Context) ([]SocialLink, error)
	// UpsertSocialLink creates or replaces the link for link.Platform.
	UpsertSocialLink(ctx context.Context, link SocialLink) (*SocialLink, error)
}

// Repository is the full set of stores the website needs.
type Repository interface {
	AccountStore
	BlogStore
	ContactStore
	NewsletterStore
	SocialLinkStore
	Close() error
}
