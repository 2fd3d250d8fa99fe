package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/linkup-social/linkup/config"
	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

type testEnv struct {
	db        *gorm.DB
	tokens    *utils.TokenIssuer
	blacklist *utils.TokenBlacklist
	users     *UserService
	auth      *AuthService
	posts     *PostService
	bus       *EventBus
	images    *recordingRemover
}

type recordingRemover struct {
	removed []string
}

func (r *recordingRemover) Remove(_ context.Context, url string) error {
	r.removed = append(r.removed, url)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(config.AppConfig{
		DBDriver:    "sqlite",
		DatabaseURI: "file::memory:",
		LogLevel:    "silent",
	}, models.All()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = config.CloseDatabase(db) })
	return db
}

func newTestEnv(t *testing.T, cache *utils.Cache) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:        db,
		tokens:    utils.NewTokenIssuer("test-secret", time.Hour),
		blacklist: utils.NewTokenBlacklist(nil),
		bus:       NewEventBus(),
		images:    &recordingRemover{},
	}
	t.Cleanup(func() { _ = env.bus.Close() })
	env.users = NewUserService(db, cache)
	env.auth = NewAuthService(db, env.tokens, env.blacklist, env.users)
	env.posts = NewPostService(db, cache, env.bus, env.images, nil)
	return env
}

// mustRegister creates a user named name with a derived email.
func (e *testEnv) mustRegister(t *testing.T, name string) *models.User {
	t.Helper()
	_, user, err := e.auth.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "password1",
	})
	require.NoError(t, err)
	return user
}

func requireErrorAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	require.Error(t, err)
	require.True(t, errors.As(err, &target), "got %T: %v", err, err)
	return target
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token, user, err := env.auth.Register(ctx, RegisterInput{
		Name:     "  Ada Lovelace ",
		Email:    "Ada@Example.com",
		Password: "analytical",
	})
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", user.Name)
	require.Equal(t, "ada@example.com", user.Email)
	require.NotEqual(t, "analytical", user.PasswordHash)
	require.NotNil(t, user.Skills)
	require.Empty(t, user.Skills)

	id, err := env.auth.Verify(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, id)

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		_, _, err := env.auth.Register(ctx, RegisterInput{Name: "Other", Email: "ADA@example.com", Password: "secret1"})
		verr := requireErrorAs[*ValidationError](t, err)
		require.Equal(t, "user already exists with this email", verr.Message)
	})

	t.Run("login", func(t *testing.T) {
		token, logged, err := env.auth.Login(ctx, "ada@EXAMPLE.com", "analytical")
		require.NoError(t, err)
		require.Equal(t, user.ID, logged.ID)
		require.NotEmpty(t, token)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, _, errPassword := env.auth.Login(ctx, "ada@example.com", "wrong-password")
		_, _, errEmail := env.auth.Login(ctx, "nobody@example.com", "analytical")
		a := requireErrorAs[*AuthError](t, errPassword)
		b := requireErrorAs[*AuthError](t, errEmail)
		require.Equal(t, a.Message, b.Message)
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		require.NoError(t, env.auth.Logout(ctx, token))
		_, err := env.auth.Verify(ctx, token)
		requireErrorAs[*AuthError](t, err)
	})
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	long := make([]rune, maxNameLength+1)
	for i := range long {
		long[i] = 'n'
	}
	cases := map[string]RegisterInput{
		"missing name":   {Email: "a@example.com", Password: "secret1"},
		"long name":      {Name: string(long), Email: "a@example.com", Password: "secret1"},
		"missing email":  {Name: "A", Password: "secret1"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "secret1"},
		"short password": {Name: "A", Email: "a@example.com", Password: "12345"},
		"markup name":    {Name: "<script>x()</script>", Email: "a@example.com", Password: "secret1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.auth.Register(ctx, in)
			requireErrorAs[*ValidationError](t, err)
		})
	}

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)

	valid := RegisterInput{Name: "A & B", Email: "ab@example.com", Password: "secret1"}
	require.NoError(t, env.auth.CheckRegistration(ctx, valid))
	_, user, err := env.auth.Register(ctx, valid)
	require.NoError(t, err)
	require.Equal(t, "A & B", user.Name)

	valid.Email = "AB@example.com"
	requireErrorAs[*ValidationError](t, env.auth.CheckRegistration(ctx, valid))
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.auth.Verify(ctx, "")
	requireErrorAs[*AuthError](t, err)

	_, err = env.auth.Verify(ctx, "garbage")
	requireErrorAs[*AuthError](t, err)

	foreign, err := utils.NewTokenIssuer("other-secret", time.Hour).Generate(1)
	require.NoError(t, err)
	_, err = env.auth.Verify(ctx, foreign)
	requireErrorAs[*AuthError](t, err)
}

func TestOAuthLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	existing := env.mustRegister(t, "grace")

	t.Run("new identity creates a password-less account", func(t *testing.T) {
		_, user, err := env.auth.OAuthLogin(ctx, OAuthIdentity{Provider: "github", ProviderID: "100", Name: "Octo"})
		require.NoError(t, err)
		require.Equal(t, "github-100@users.noreply.linkup", user.Email)

		_, again, err := env.auth.OAuthLogin(ctx, OAuthIdentity{Provider: "github", ProviderID: "100", Name: "Octo"})
		require.NoError(t, err)
		require.Equal(t, user.ID, again.ID)

		// No password was set, so password login must fail
		_, _, err = env.auth.Login(ctx, user.Email, "")
		require.Error(t, err)
	})

	t.Run("verified email links the existing account", func(t *testing.T) {
		_, user, err := env.auth.OAuthLogin(ctx, OAuthIdentity{
			Provider: "google", ProviderID: "g-7", Email: "GRACE@example.com", EmailVerified: true,
		})
		require.NoError(t, err)
		require.Equal(t, existing.ID, user.ID)
	})

	t.Run("unverified email does not link", func(t *testing.T) {
		_, user, err := env.auth.OAuthLogin(ctx, OAuthIdentity{
			Provider: "github", ProviderID: "200", Email: "grace@example.com",
		})
		require.NoError(t, err)
		require.NotEqual(t, existing.ID, user.ID)
	})

	t.Run("missing provider id", func(t *testing.T) {
		_, _, err := env.auth.OAuthLogin(ctx, OAuthIdentity{Provider: "github"})
		requireErrorAs[*AuthError](t, err)
	})
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := bus.Subscribe(ctx, 4)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, 4)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(FeedEvent{Type: EventPostDeleted, PostID: 9}))

	for _, ch := range []<-chan FeedEvent{first, second} {
		select {
		case ev := <-ch:
			require.Equal(t, FeedEvent{Type: EventPostDeleted, PostID: 9}, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-first:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	var nilBus *EventBus
	require.NoError(t, nilBus.Publish(FeedEvent{Type: EventPostCreated}))
}
