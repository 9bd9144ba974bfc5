package storage

import (
	"sort"
	"time"
)

// Role is an account's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// LoginMethodLocal tags accounts that sign in with a username and password.
const LoginMethodLocal = "local"

// Account is a user of the site. Username, PasswordHash and Email are empty
// when absent; an account without a password hash cannot log in with a
// password.
type Account struct {
	ID             int64     `json:"id"`
	OpenID         string    `json:"openId"`
	Username       string    `json:"username,omitempty"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	LoginMethod    string    `json:"loginMethod,omitempty"`
	Role           Role      `json:"role"`
	SessionVersion int64     `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastSignedIn   time.Time `json:"lastSignedIn"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// BlogPost is a published article.
type BlogPost struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Content       string    `json:"content"`
	Excerpt       string    `json:"excerpt"`
	Category      string    `json:"category"`
	FeaturedImage string    `json:"featuredImage,omitempty"`
	ReadTime      int       `json:"readTime"`
	PublishedAt   time.Time `json:"publishedAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	AuthorID      int64     `json:"authorId"`
}

// BlogPostPatch holds the fields of a partial post update. Nil fields are
// left unchanged.
type BlogPostPatch struct {
	Title         *string
	Slug          *string
	Content       *string
	Excerpt       *string
	Category      *string
	FeaturedImage *string
	ReadTime      *int
	PublishedAt   *time.Time
}

// Apply copies the set fields of p onto post.
func (p BlogPostPatch) Apply(post *BlogPost) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Slug != nil {
		post.Slug = *p.Slug
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.Excerpt != nil {
		post.Excerpt = *p.Excerpt
	}
	if p.Category != nil {
		post.Category = *p.Category
	}
	if p.FeaturedImage != nil {
		post.FeaturedImage = *p.FeaturedImage
	}
	if p.ReadTime != nil {
		post.ReadTime = *p.ReadTime
	}
	if p.PublishedAt != nil {
		post.PublishedAt = *p.PublishedAt
	}
}

// ContactMessage is a contact form submission.
type ContactMessage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Website   string    `json:"website,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewsletterSignup is an email address on the newsletter list.
type NewsletterSignup struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// SocialLink is a link to one of the site's social profiles.
type SocialLink struct {
	ID        int64     `json:"id"`
	Platform  string    `json:"platform"`
	URL       string    `json:"url"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SortPostsByPublished orders posts most recently published first, breaking
// ties by descending ID. Backends without an ORDER BY share it.
func SortPostsByPublished(posts []BlogPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].PublishedAt.Equal(posts[j].PublishedAt) {
			return posts[i].PublishedAt.After(posts[j].PublishedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}

// SortMessagesNewestFirst orders messages by descending creation time, then ID.
func SortMessagesNewestFirst(msgs []ContactMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
}

// SortSignupsNewestFirst orders signups by descending creation time, then ID.
func SortSignupsNewestFirst(signups []NewsletterSignup) {
	sort.SliceStable(signups, func(i, j int) bool {
		if !signups[i].CreatedAt.Equal(signups[j].CreatedAt) {
			return signups[i].CreatedAt.After(signups[j].CreatedAt)
		}
		return signups[i].ID > signups[j].ID
	})
}
