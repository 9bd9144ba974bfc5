// Package storagetest holds the behaviour every storage.Repository backend
// must share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxvalleyai/website/storage"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) storage.Repository

func decide(first bool) storage.Role {
	if first {
		return storage.RoleAdmin
	}
	return storage.RoleUser
}

func newAccount(username string) *storage.Account {
	return &storage.Account{
		OpenID:       "open-" + username,
		Username:     username,
		PasswordHash: "hash-" + username,
		Name:         "Name " + username,
		LoginMethod:  storage.LoginMethodLocal,
	}
}

// Run executes the conformance suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newRepo) })
	t.Run("Bootstrap", func(t *testing.T) { testBootstrap(t, newRepo) })
	t.Run("BlogPosts", func(t *testing.T) { testBlogPosts(t, newRepo) })
	t.Run("ContactMessages", func(t *testing.T) { testContactMessages(t, newRepo) })
	t.Run("Newsletter", func(t *testing.T) { testNewsletter(t, newRepo) })
	t.Run("SocialLinks", func(t *testing.T) { testSocialLinks(t, newRepo) })
}

func testAccounts(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateAndLookup", func(t *testing.T) {
		repo := newRepo(t)
		acct := newAccount("alice")
		acct.Email = "alice@example.com"

		created, err := repo.CreateAccount(ctx, acct, decide)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, storage.RoleAdmin, created.Role)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Zero(t, created.SessionVersion)

		byID, err := repo.AccountByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
		assert.Equal(t, "alice@example.com", byID.Email)
		assert.Equal(t, "hash-alice", byID.PasswordHash)
		assert.Equal(t, storage.LoginMethodLocal, byID.LoginMethod)

		byOpenID, err := repo.AccountByOpenID(ctx, "open-alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byOpenID.ID)

		byName, err := repo.AccountByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byName.ID)
		assert.Equal(t, storage.RoleAdmin, byName.Role)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.AccountByID(ctx, 999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.AccountByOpenID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.AccountByUsername(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		err = repo.TouchLastSignedIn(ctx, 999, time.Now())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.PromoteToAdmin(ctx, 999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.UpdatePassword(ctx, 999, "x")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateAccount(ctx, newAccount("alice"), decide)
		require.NoError(t, err)

		dup := newAccount("alice")
		dup.OpenID = "another-open-id"
		_, err = repo.CreateAccount(ctx, dup, decide)
		assert.ErrorIs(t, err, storage.ErrUsernameTaken)

		n, err := repo.CountAccounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("AccountsWithoutUsername", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount("")
		a.OpenID = "legacy-1"
		b := newAccount("")
		b.OpenID = "legacy-2"
		_, err := repo.CreateAccount(ctx, a, decide)
		require.NoError(t, err)
		_, err = repo.CreateAccount(ctx, b, decide)
		require.NoError(t, err)

		_, err = repo.AccountByUsername(ctx, "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TouchLastSignedIn", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateAccount(ctx, newAccount("alice"), decide)
		require.NoError(t, err)

		at := time.Now().Add(time.Hour).UTC()
		require.NoError(t, repo.TouchLastSignedIn(ctx, created.ID, at))

		got, err := repo.AccountByID(ctx, created.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, at, got.LastSignedIn, time.Second)
	})

	t.Run("UpdatePasswordBumpsSessionVersion", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateAccount(ctx, newAccount("alice"), decide)
		require.NoError(t, err)

		updated, err := repo.UpdatePassword(ctx, created.ID, "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", updated.PasswordHash)
		assert.Equal(t, created.SessionVersion+1, updated.SessionVersion)

		got, err := repo.AccountByOpenID(ctx, created.OpenID)
		require.NoError(t, err)
		assert.Equal(t, updated.SessionVersion, got.SessionVersion)
	})

	t.Run("PromoteToAdmin", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateAccount(ctx, newAccount("alice"), decide)
		require.NoError(t, err)
		bob, err := repo.CreateAccount(ctx, newAccount("bob"), decide)
		require.NoError(t, err)
		require.Equal(t, storage.RoleUser, bob.Role)

		promoted, err := repo.PromoteToAdmin(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, storage.RoleAdmin, promoted.Role)

		got, err := repo.AccountByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAdmin())
	})

	t.Run("UpsertAdmin", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateAccount(ctx, newAccount("alice"), decide)
		require.NoError(t, err)
		bob, err := repo.CreateAccount(ctx, newAccount("bob"), decide)
		require.NoError(t, err)

		seed := newAccount("bob")
		seed.OpenID = "ignored-for-existing"
		seed.PasswordHash = "seeded-hash"
		seed.Name = "Robert"
		updated, err := repo.UpsertAdmin(ctx, seed)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, updated.ID)
		assert.Equal(t, bob.OpenID, updated.OpenID)
		assert.Equal(t, "seeded-hash", updated.PasswordHash)
		assert.Equal(t, "Robert", updated.Name)
		assert.Equal(t, storage.RoleAdmin, updated.Role)
		assert.Greater(t, updated.SessionVersion, bob.SessionVersion)

		inserted, err := repo.UpsertAdmin(ctx, newAccount("carol"))
		require.NoError(t, err)
		assert.NotZero(t, inserted.ID)
		assert.Equal(t, storage.RoleAdmin, inserted.Role)

		all, err := repo.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "alice", all[0].Username)
		assert.Equal(t, "carol", all[2].Username)
	})
}

func testBootstrap(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("FirstAccountOnly", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.CreateAccount(ctx, newAccount("alice"), decide)
		require.NoError(t, err)
		second, err := repo.CreateAccount(ctx, newAccount("bob"), decide)
		require.NoError(t, err)
		assert.Equal(t, storage.RoleAdmin, first.Role)
		assert.Equal(t, storage.RoleUser, second.Role)
	})

	t.Run("ConcurrentRegistrations", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 8

		var wg sync.WaitGroup
		roles := make(chan storage.Role, workers)
		errs := make(chan error, workers)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				acct, err := repo.CreateAccount(ctx, newAccount(fmt.Sprintf("user%d", i)), decide)
				if err != nil {
					errs <- err
					return
				}
				roles <- acct.Role
			}(i)
		}
		wg.Wait()
		close(roles)
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		admins := 0
		for role := range roles {
			if role == storage.RoleAdmin {
				admins++
			}
		}
		assert.Equal(t, 1, admins)
	})
}

func newPost(slug string, published time.Time) *storage.BlogPost {
	return &storage.BlogPost{
		Title:       "Title " + slug,
		Slug:        slug,
		Content:     "Content of " + slug,
		Excerpt:     "Excerpt of " + slug,
		Category:    "AI Strategy",
		ReadTime:    5,
		PublishedAt: published,
		AuthorID:    1,
	}
}

func testBlogPosts(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CreateListOrder", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreatePost(ctx, newPost("older", base))
		require.NoError(t, err)
		_, err = repo.CreatePost(ctx, newPost("newest", base.Add(48*time.Hour)))
		require.NoError(t, err)
		_, err = repo.CreatePost(ctx, newPost("middle", base.Add(24*time.Hour)))
		require.NoError(t, err)

		posts, err := repo.ListPosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 3)
		assert.Equal(t, "newest", posts[0].Slug)
		assert.Equal(t, "middle", posts[1].Slug)
		assert.Equal(t, "older", posts[2].Slug)
	})

	t.Run("LookupAndSlugConflict", func(t *testing.T) {
		repo := newRepo(t)
		post := newPost("hello-world", base)
		post.FeaturedImage = "https://cdn.example.com/hero.png"
		created, err := repo.CreatePost(ctx, post)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)

		got, err := repo.PostBySlug(ctx, "hello-world")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "https://cdn.example.com/hero.png", got.FeaturedImage)
		assert.Equal(t, 5, got.ReadTime)
		assert.True(t, base.Equal(got.PublishedAt))

		_, err = repo.CreatePost(ctx, newPost("hello-world", base))
		assert.ErrorIs(t, err, storage.ErrSlugTaken)

		_, err = repo.PostBySlug(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.PostByID(ctx, 12345)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreatePost(ctx, newPost("first", base))
		require.NoError(t, err)
		_, err = repo.CreatePost(ctx, newPost("second", base))
		require.NoError(t, err)

		title := "Renamed"
		readTime := 9
		updated, err := repo.UpdatePost(ctx, created.ID, storage.BlogPostPatch{Title: &title, ReadTime: &readTime})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, 9, updated.ReadTime)
		assert.Equal(t, "first", updated.Slug)
		assert.Equal(t, "Content of first", updated.Content)

		taken := "second"
		_, err = repo.UpdatePost(ctx, created.ID, storage.BlogPostPatch{Slug: &taken})
		assert.ErrorIs(t, err, storage.ErrSlugTaken)

		_, err = repo.UpdatePost(ctx, 999, storage.BlogPostPatch{Title: &title})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreatePost(ctx, newPost("doomed", base))
		require.NoError(t, err)

		require.NoError(t, repo.DeletePost(ctx, created.ID))
		_, err = repo.PostByID(ctx, created.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.DeletePost(ctx, created.ID), storage.ErrNotFound)

		_, err = repo.CreatePost(ctx, newPost("doomed", base))
		assert.NoError(t, err, "slug is free again after delete")
	})
}

func testContactMessages(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateListMarkRead", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.CreateMessage(ctx, &storage.ContactMessage{
			Name: "Jane", Email: "jane@example.com", Message: "Hello",
		})
		require.NoError(t, err)
		assert.False(t, first.IsRead)

		second, err := repo.CreateMessage(ctx, &storage.ContactMessage{
			Name: "John", Email: "john@example.com", Phone: "555-0100",
			Website: "https://john.example.com", Message: "Quote please",
		})
		require.NoError(t, err)

		msgs, err := repo.ListMessages(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, second.ID, msgs[0].ID)
		assert.Equal(t, "555-0100", msgs[0].Phone)
		assert.Equal(t, "https://john.example.com", msgs[0].Website)
		assert.Equal(t, first.ID, msgs[1].ID)

		require.NoError(t, repo.MarkMessageRead(ctx, first.ID))
		msgs, err = repo.ListMessages(ctx)
		require.NoError(t, err)
		assert.True(t, msgs[1].IsRead)
		assert.False(t, msgs[0].IsRead)

		assert.ErrorIs(t, repo.MarkMessageRead(ctx, 999), storage.ErrNotFound)
	})
}

func testNewsletter(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("SubscribeOnce", func(t *testing.T) {
		repo := newRepo(t)
		a, err := repo.Subscribe(ctx, "a@example.com")
		require.NoError(t, err)
		assert.NotZero(t, a.ID)

		_, err = repo.Subscribe(ctx, "a@example.com")
		assert.ErrorIs(t, err, storage.ErrAlreadySubscribed)

		b, err := repo.Subscribe(ctx, "b@example.com")
		require.NoError(t, err)

		list, err := repo.ListSignups(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID)
		assert.Equal(t, "a@example.com", list[1].Email)
	})
}

func testSocialLinks(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		repo := newRepo(t)
		links, err := repo.ListSocialLinks(ctx)
		require.NoError(t, err)
		assert.Empty(t, links)

		created, err := repo.UpsertSocialLink(ctx, storage.SocialLink{
			Platform: "linkedin", URL: "https://linkedin.com/company/foxvalleyai", IsActive: true,
		})
		require.NoError(t, err)
		assert.NotZero(t, created.ID)

		_, err = repo.UpsertSocialLink(ctx, storage.SocialLink{
			Platform: "x", URL: "https://x.com/foxvalleyai", IsActive: true,
		})
		require.NoError(t, err)

		updated, err := repo.UpsertSocialLink(ctx, storage.SocialLink{
			Platform: "linkedin", URL: "https://linkedin.com/company/fox-valley-ai", IsActive: false,
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "https://linkedin.com/company/fox-valley-ai", updated.URL)
		assert.False(t, updated.IsActive)

		links, err = repo.ListSocialLinks(ctx)
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "linkedin", links[0].Platform)
		assert.False(t, links[0].IsActive)
		assert.Equal(t, "x", links[1].Platform)
	})
}
