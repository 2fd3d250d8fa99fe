package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Generate(42)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, uint(42), claims.UserID)
	require.Equal(t, "42", claims.Subject)

	second, err := issuer.Generate(42)
	require.NoError(t, err)
	require.NotEqual(t, token, second)
}

func TestTokenIssuerRejectsExpiredAndForeign(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Generate(7)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer("secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		require.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		_, err := NewTokenIssuer("other", time.Hour).Parse(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not-a-jwt")
		require.Error(t, err)
	})

	t.Run("zero user", func(t *testing.T) {
		zero, err := issuer.Generate(0)
		require.NoError(t, err)
		_, err = issuer.Parse(zero)
		require.Error(t, err)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", hash)
	require.True(t, CheckPassword(hash, "hunter22"))
	require.False(t, CheckPassword(hash, "hunter23"))
	require.False(t, CheckPassword("", ""))
}

func TestCleanText(t *testing.T) {
	clean, n := CleanText("  hello <script>alert(1)</script><b>world</b>  ")
	require.Equal(t, "hello world", clean)
	require.Equal(t, 11, n)

	clean, n = CleanText("Tom & Jerry say 1 < 2 > 0")
	require.Equal(t, "Tom & Jerry say 1 < 2 > 0", clean)
	require.Equal(t, len("Tom & Jerry say 1 < 2 > 0"), n)

	clean, n = CleanText(`"quoted" it's`)
	require.Equal(t, `"quoted" it's`, clean)
	require.Equal(t, 13, n)

	_, n = CleanText("héllo")
	require.Equal(t, 5, n)

	for _, blank := range []string{"   ", "<script>alert(1)</script>", " <b> </b> ", "<img src=x onerror=alert(1)>"} {
		clean, n = CleanText(blank)
		require.Equal(t, "", clean, blank)
		require.Zero(t, n, blank)
	}
}

func TestUniqueUint(t *testing.T) {
	require.Equal(t, []uint{3, 1, 2}, UniqueUint([]uint{3, 1, 3, 2, 1}))
	require.Equal(t, []uint{}, UniqueUint(nil))
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled cache always misses", func(t *testing.T) {
		var c *Cache
		require.False(t, c.Enabled())
		c.SetBytes(ctx, "k", []byte("v"), 0)
		_, ok := c.GetBytes(ctx, "k")
		require.False(t, ok)
		c.InvalidateByPrefix(ctx, "k")
	})

	t.Run("redis", func(t *testing.T) {
		mr, rc := newTestRedis(t)
		c := NewCache(rc)
		require.True(t, c.Enabled())

		c.SetJSON(ctx, "cache:posts:list", map[string]int{"count": 2}, time.Minute)
		c.SetBytes(ctx, "cache:posts:list:page2", []byte("x"), 0)
		c.SetBytes(ctx, "other", []byte("y"), 0)

		b, ok := c.GetBytes(ctx, "cache:posts:list")
		require.True(t, ok)
		require.JSONEq(t, `{"count":2}`, string(b))
		require.Equal(t, time.Hour, mr.TTL("other"))

		c.InvalidateByPrefix(ctx, "cache:posts:list")
		require.False(t, mr.Exists("cache:posts:list"))
		require.False(t, mr.Exists("cache:posts:list:page2"))
		require.True(t, mr.Exists("other"))
	})

	t.Run("fill that raced a bump is never served", func(t *testing.T) {
		mr, rc := newTestRedis(t)
		c := NewCache(rc)

		key := c.VersionedKey(ctx, "cache:posts:list")
		require.Equal(t, "cache:posts:list:0", key)

		// A reader resolved its key, then a writer invalidated before the fill landed
		c.Bump(ctx, "cache:posts:list")
		c.SetBytes(ctx, key, []byte("stale"), 0)

		fresh := c.VersionedKey(ctx, "cache:posts:list")
		require.Equal(t, "cache:posts:list:1", fresh)
		_, ok := c.GetBytes(ctx, fresh)
		require.False(t, ok)

		c.SetBytes(ctx, fresh, []byte("current"), 0)
		c.Bump(ctx, "cache:posts:list")
		require.False(t, mr.Exists(fresh))
		require.False(t, mr.Exists(key))
		require.True(t, mr.Exists("gen:cache:posts:list"))
	})

	t.Run("disabled cache keeps the plain key", func(t *testing.T) {
		var c *Cache
		require.Equal(t, "k", c.VersionedKey(ctx, "k"))
		c.Bump(ctx, "k")
	})
}

func TestTokenBlacklist(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b := NewTokenBlacklist(nil)
		require.False(t, b.IsRevoked(ctx, "tok"))
		require.NoError(t, b.Revoke(ctx, "tok", time.Now().Add(time.Hour)))
		require.True(t, b.IsRevoked(ctx, "tok"))

		require.NoError(t, b.Revoke(ctx, "old", time.Now().Add(-time.Second)))
		require.False(t, b.IsRevoked(ctx, "old"))
	})

	t.Run("redis", func(t *testing.T) {
		mr, rc := newTestRedis(t)
		b := NewTokenBlacklist(rc)
		require.NoError(t, b.Revoke(ctx, "tok", time.Now().Add(time.Hour)))
		require.True(t, b.IsRevoked(ctx, "tok"))
		require.True(t, mr.Exists(blacklistKeyPrefix+"tok"))

		mr.FastForward(2 * time.Hour)
		require.False(t, b.IsRevoked(ctx, "tok"))
	})
}

func TestStateStoreSingleUse(t *testing.T) {
	ctx := context.Background()
	_, rc := newTestRedis(t)

	for name, store := range map[string]*StateStore{
		"memory": NewStateStore(nil),
		"redis":  NewStateStore(rc),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "abc", time.Minute))
			require.True(t, store.Consume(ctx, "abc"))
			require.False(t, store.Consume(ctx, "abc"))
			require.False(t, store.Consume(ctx, "never-saved"))
			require.False(t, store.Consume(ctx, ""))
		})
	}
}

func TestRespondEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	Respond(ctx, http.StatusCreated, "Created", gin.H{"id": 5})

	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"success":true,"message":"Created","id":5}`, w.Body.String())

	w = httptest.NewRecorder()
	ctx, _ = gin.CreateTestContext(w)
	Error(ctx, http.StatusNotFound, 40401, "Post not found")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, ErrorResponse{Success: false, Message: "Post not found", Code: 40401}, body)
}

func TestAccessLogMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(RequestID(), Ginzap(logger, time.RFC3339, true), RecoveryWithZap(logger, false))
	r.GET("/ok", func(ctx *gin.Context) { Success(ctx, nil) })
	r.GET("/boom", func(ctx *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok?token=abc&x=1", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("/ok").All()
	require.Len(t, entries, 1)
	require.Equal(t, "token=REDACTED&x=1", entries[0].ContextMap()["query"])

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	panics := logs.FilterMessage("[Recovery from panic]").All()
	require.Len(t, panics, 1)
	dump, _ := panics[0].ContextMap()["request"].(string)
	require.False(t, strings.Contains(dump, "secret-token"))
}
