package api

import "github.com/foxvalleyai/website/storage"

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
}

// ChangePasswordRequest is the JSON body for POST /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// SessionUser is the public view of the signed-in account.
type SessionUser struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Role storage.Role `json:"role"`
}

func sessionUser(acct *storage.Account) SessionUser {
	return SessionUser{ID: acct.ID, Name: acct.Name, Role: acct.Role}
}

// AuthResponse is returned from login and registration.
type AuthResponse struct {
	Success bool        `json:"success"`
	User    SessionUser `json:"user"`
	Message string      `json:"message,omitempty"`
}

// CreatePostRequest is the JSON body for POST /blog. PublishedAt is an
// RFC 3339 timestamp; an empty Slug is derived from the title.
type CreatePostRequest struct {
	Title         string `json:"title"`
	Slug          string `json:"slug,omitempty"`
	Content       string `json:"content"`
	Excerpt       string `json:"excerpt"`
	Category      string `json:"category"`
	FeaturedImage string `json:"featuredImage,omitempty"`
	ReadTime      int    `json:"readTime"`
	PublishedAt   string `json:"publishedAt"`
}

// UpdatePostRequest is the JSON body for PUT /blog/{id}. Absent fields are
// left unchanged.
type UpdatePostRequest struct {
	Title         *string `json:"title,omitempty"`
	Slug          *string `json:"slug,omitempty"`
	Content       *string `json:"content,omitempty"`
	Excerpt       *string `json:"excerpt,omitempty"`
	Category      *string `json:"category,omitempty"`
	FeaturedImage *string `json:"featuredImage,omitempty"`
	ReadTime      *int    `json:"readTime,omitempty"`
	PublishedAt   *string `json:"publishedAt,omitempty"`
}

// ContactRequest is the JSON body for POST /contact.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Message string `json:"message"`
}

// CreatedResponse acknowledges a public submission.
type CreatedResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

// NewsletterRequest is the JSON body for POST /newsletter.
type NewsletterRequest struct {
	Email string `json:"email"`
}

// SocialLinkRequest is the JSON body for PUT /social-links. IsActive
// defaults to true.
type SocialLinkRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// MessagesResponse is a page of contact messages.
type MessagesResponse struct {
	Messages   []storage.ContactMessage `json:"messages"`
	Pagination PaginationMeta           `json:"pagination"`
}

// SignupsResponse is a page of newsletter signups.
type SignupsResponse struct {
	Signups    []storage.NewsletterSignup `json:"signups"`
	Pagination PaginationMeta             `json:"pagination"`
}

// AccountsResponse is a page of accounts.
type AccountsResponse struct {
	Accounts   []storage.Account `json:"accounts"`
	Pagination PaginationMeta    `json:"pagination"`
}

// PromoteResponse is returned from POST /admin/accounts/{id}/promote.
type PromoteResponse struct {
	Success bool        `json:"success"`
	User    SessionUser `json:"user"`
}
