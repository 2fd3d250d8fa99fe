package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

func TestCreatePostValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	author := env.mustRegister(t, "alice")

	_, err := env.posts.Create(ctx, author.ID, "   ", "")
	requireErrorAs[*ValidationError](t, err)

	_, err = env.posts.Create(ctx, author.ID, strings.Repeat("a", maxPostLength+1), "")
	requireErrorAs[*ValidationError](t, err)

	post, err := env.posts.Create(ctx, author.ID, strings.Repeat("é", maxPostLength), "")
	require.NoError(t, err)
	require.Equal(t, maxPostLength, len([]rune(post.Content)))

	post, err = env.posts.Create(ctx, author.ID, " hi <script>x()</script>there ", "/uploads/images/a.png")
	require.NoError(t, err)
	require.Equal(t, "hi there", post.Content)
	require.Equal(t, "/uploads/images/a.png", post.Image)
	require.Equal(t, "alice", post.Author.Name)
	require.Equal(t, []uint{}, post.Likes)
	require.Equal(t, []models.Comment{}, post.Comments)
}

func TestPostTextIsStoredAsPlainText(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	author := env.mustRegister(t, "alice")

	post, err := env.posts.Create(ctx, author.ID, "Tom & Jerry say 1 < 2", "")
	require.NoError(t, err)
	require.Equal(t, "Tom & Jerry say 1 < 2", post.Content)

	post, err = env.posts.AddComment(ctx, post.ID, author.ID, `"fish" & chips`)
	require.NoError(t, err)
	require.Equal(t, `"fish" & chips`, post.Comments[0].Text)

	for _, markup := range []string{"<script>alert(1)</script>", "<b> </b>", "<img src=x onerror=alert(1)>"} {
		_, err = env.posts.Create(ctx, author.ID, markup, "")
		requireErrorAs[*ValidationError](t, err)
		requireErrorAs[*ValidationError](t, CheckPostContent(markup))

		_, err = env.posts.Update(ctx, post.ID, author.ID, markup)
		requireErrorAs[*ValidationError](t, err)

		_, err = env.posts.AddComment(ctx, post.ID, author.ID, markup)
		requireErrorAs[*ValidationError](t, err)
	}

	posts, err := env.posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "Tom & Jerry say 1 < 2", posts[0].Content)
	require.Len(t, posts[0].Comments, 1)
}

func TestListPostsNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")

	first, err := env.posts.Create(ctx, alice.ID, "first", "")
	require.NoError(t, err)
	second, err := env.posts.Create(ctx, bob.ID, "second", "")
	require.NoError(t, err)

	posts, err := env.posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, second.ID, posts[0].ID)
	require.Equal(t, first.ID, posts[1].ID)

	mine, err := env.posts.ListByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, first.ID, mine[0].ID)

	_, err = env.posts.ListByAuthor(ctx, 999)
	require.True(t, IsNotFound(err))
}

func TestToggleLikeParity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	post, err := env.posts.Create(ctx, alice.ID, "like me", "")
	require.NoError(t, err)

	liked, ok, err := env.posts.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uint{bob.ID}, liked.Likes)
	require.Equal(t, 1, liked.LikeCount)

	unliked, ok, err := env.posts.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, unliked.Likes)

	t.Run("concurrent toggles never duplicate", func(t *testing.T) {
		const toggles = 10
		var wg sync.WaitGroup
		for i := 0; i < toggles; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := env.posts.ToggleLike(ctx, post.ID, alice.ID)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var count int64
		require.NoError(t, env.db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&count).Error)
		require.Zero(t, count)
	})

	_, _, err = env.posts.ToggleLike(ctx, 999, bob.ID)
	require.True(t, IsNotFound(err))
}

func TestAddComment(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	post, err := env.posts.Create(ctx, alice.ID, "discuss", "")
	require.NoError(t, err)

	_, err = env.posts.AddComment(ctx, post.ID, bob.ID, "first!")
	require.NoError(t, err)
	updated, err := env.posts.AddComment(ctx, post.ID, alice.ID, "welcome")
	require.NoError(t, err)

	require.Len(t, updated.Comments, 2)
	require.Equal(t, "first!", updated.Comments[0].Text)
	require.Equal(t, "bob", updated.Comments[0].User.Name)
	require.Equal(t, "welcome", updated.Comments[1].Text)
	require.Equal(t, 2, updated.CommentCount)

	_, err = env.posts.AddComment(ctx, post.ID, bob.ID, " ")
	requireErrorAs[*ValidationError](t, err)
	_, err = env.posts.AddComment(ctx, post.ID, bob.ID, strings.Repeat("c", maxCommentLength+1))
	requireErrorAs[*ValidationError](t, err)
	_, err = env.posts.AddComment(ctx, 999, bob.ID, "hello?")
	require.True(t, IsNotFound(err))
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	post, err := env.posts.Create(ctx, alice.ID, "draft", "/uploads/images/draft.png")
	require.NoError(t, err)

	_, err = env.posts.Update(ctx, post.ID, bob.ID, "hijacked")
	requireErrorAs[*AuthorizationError](t, err)
	err = env.posts.Delete(ctx, post.ID, bob.ID)
	requireErrorAs[*AuthorizationError](t, err)

	updated, err := env.posts.Update(ctx, post.ID, alice.ID, "final")
	require.NoError(t, err)
	require.Equal(t, "final", updated.Content)

	_, err = env.posts.Update(ctx, post.ID, alice.ID, "")
	requireErrorAs[*ValidationError](t, err)

	_, _, err = env.posts.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.posts.AddComment(ctx, post.ID, bob.ID, "nice")
	require.NoError(t, err)

	require.NoError(t, env.posts.Delete(ctx, post.ID, alice.ID))
	require.Equal(t, []string{"/uploads/images/draft.png"}, env.images.removed)

	_, err = env.posts.Get(ctx, post.ID, alice.ID)
	require.True(t, IsNotFound(err))
	var comments, likes int64
	require.NoError(t, env.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments).Error)
	require.NoError(t, env.db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&likes).Error)
	require.Zero(t, comments)
	require.Zero(t, likes)

	err = env.posts.Delete(ctx, post.ID, alice.ID)
	require.True(t, IsNotFound(err))
}

func TestRepost(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	original, err := env.posts.Create(ctx, alice.ID, "worth sharing", "")
	require.NoError(t, err)

	repost, err := env.posts.Repost(ctx, original.ID, bob.ID, "")
	require.NoError(t, err)
	require.True(t, repost.IsRepost)
	require.Equal(t, "bob", repost.Author.Name)
	require.NotNil(t, repost.OriginalPost)
	require.Equal(t, original.ID, repost.OriginalPost.ID)
	require.Equal(t, "alice", repost.OriginalPost.Author.Name)

	_, err = env.posts.Repost(ctx, 999, bob.ID, "")
	require.True(t, IsNotFound(err))

	t.Run("deleting the original keeps the repost", func(t *testing.T) {
		require.NoError(t, env.posts.Delete(ctx, original.ID, alice.ID))

		posts, err := env.posts.List(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		require.Equal(t, repost.ID, posts[0].ID)
		require.Nil(t, posts[0].OriginalPost)
		require.True(t, posts[0].OriginalRemoved)
	})
}

func TestGetCountsImpressions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	post, err := env.posts.Create(ctx, alice.ID, "seen", "")
	require.NoError(t, err)

	_, err = env.posts.Get(ctx, post.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.posts.Get(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.posts.Get(ctx, post.ID, bob.ID)
	require.NoError(t, err)

	author, err := env.users.Get(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), author.PostImpressions)
}

func TestPostMutationsPublishEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := env.mustRegister(t, "alice")

	events, err := env.bus.Subscribe(ctx, 8)
	require.NoError(t, err)

	post, err := env.posts.Create(ctx, alice.ID, "hello feed", "")
	require.NoError(t, err)
	_, _, err = env.posts.ToggleLike(ctx, post.ID, alice.ID)
	require.NoError(t, err)
	require.NoError(t, env.posts.Delete(ctx, post.ID, alice.ID))

	var got []FeedEvent
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 3 events", len(got))
		}
	}
	require.Equal(t, EventPostCreated, got[0].Type)
	require.Equal(t, "hello feed", got[0].Post.Content)
	require.Equal(t, EventPostUpdated, got[1].Type)
	require.Equal(t, []uint{alice.ID}, got[1].Post.Likes)
	require.Equal(t, EventPostDeleted, got[2].Type)
	require.Equal(t, post.ID, got[2].PostID)
	require.Nil(t, got[2].Post)
}

func TestMutationsInvalidateFeedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	cache := utils.NewCache(rc)

	env := newTestEnv(t, cache)
	ctx := context.Background()
	alice := env.mustRegister(t, "alice")

	key := cache.VersionedKey(ctx, PostListCacheKey)
	cache.SetBytes(ctx, key, []byte(`{"posts":[]}`), time.Minute)
	_, err := env.posts.Create(ctx, alice.ID, "fresh", "")
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
	require.NotEqual(t, key, cache.VersionedKey(ctx, PostListCacheKey))

	key = cache.VersionedKey(ctx, PostListCacheKey)
	cache.SetBytes(ctx, key, []byte(`{"posts":[]}`), time.Minute)
	bio := "new bio"
	_, err = env.users.UpdateProfile(ctx, alice.ID, ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
	require.NotEqual(t, key, cache.VersionedKey(ctx, PostListCacheKey))
}
