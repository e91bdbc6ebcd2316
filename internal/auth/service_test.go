package auth

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"nesturechat/internal/config"
	"nesturechat/internal/redis"
	"nesturechat/internal/storage"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, time.Hour)
	visitorID, token, err := svc.NewVisitor(context.Background())
	if err != nil {
		t.Fatalf("NewVisitor error: %v", err)
	}
	if visitorID == "" || token == "" {
		t.Fatalf("expected visitor id and token")
	}
	got, err := svc.ValidateToken(context.Background(), token)
	if err != nil || got != visitorID {
		t.Fatalf("ValidateToken failed: id=%s err=%v", got, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), ""); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, 10*time.Millisecond)
	token, err := svc.IssueToken(context.Background(), "visitor-2")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiration error, got %v", err)
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM visitor_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func TestAuthPurgeExpired(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		if _, err := svc.IssueToken(context.Background(), "visitor-3"); err != nil {
			t.Fatalf("IssueToken error: %v", err)
		}
	}
	time.Sleep(10 * time.Millisecond)
	n, err := svc.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged tokens, got %d", n)
	}
}

func TestCSRFMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(nil, nil, time.Hour)
	router := gin.New()
	router.Use(svc.CSRFMiddleware())
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name   string
		method string
		header map[string]string
		cookie *http.Cookie
		want   int
	}{
		{name: "safe method", method: http.MethodGet, want: http.StatusNoContent},
		{name: "missing token", method: http.MethodPost, want: http.StatusForbidden},
		{name: "bearer exempt", method: http.MethodPost, header: map[string]string{"Authorization": "Bearer abc"}, want: http.StatusNoContent},
		{
			name:   "matching double submit",
			method: http.MethodPost,
			header: map[string]string{"X-CSRF-Token": "t1"},
			cookie: &http.Cookie{Name: "csrf_token", Value: "t1"},
			want:   http.StatusNoContent,
		},
		{
			name:   "mismatch",
			method: http.MethodPost,
			header: map[string]string{"X-CSRF-Token": "t1"},
			cookie: &http.Cookie{Name: "csrf_token", Value: "t2"},
			want:   http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/x", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("want %d got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestMiddlewareStoresVisitor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)
	visitorID, token, err := svc.NewVisitor(context.Background())
	if err != nil {
		t.Fatalf("NewVisitor: %v", err)
	}

	router := gin.New()
	router.GET("/me", svc.Middleware(), func(c *gin.Context) {
		id, _ := VisitorIDFromContext(c)
		c.String(http.StatusOK, id)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != visitorID {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "visitor-10")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	got, err := cacheClient.Get(ctx, redisTokenPrefix+token)
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != "visitor-10" {
		t.Fatalf("expected visitor-10 in redis, got %s", got)
	}

	_, _ = db.Exec(`DELETE FROM visitor_tokens WHERE token = ?`, token)
	visitorID, err := svc.ValidateToken(ctx, token)
	if err != nil || visitorID != "visitor-10" {
		t.Fatalf("ValidateToken via redis failed: id=%s err=%v", visitorID, err)
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error after revoke and redis delete")
	}
}

func TestAuthValidateRefillsRedisCache(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "visitor-11")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := cacheClient.Del(ctx, redisTokenPrefix+token); err != nil {
		t.Fatalf("evict cached token: %v", err)
	}
	if visitorID, err := svc.ValidateToken(ctx, token); err != nil || visitorID != "visitor-11" {
		t.Fatalf("ValidateToken via sql failed: id=%s err=%v", visitorID, err)
	}
	got, err := cacheClient.Get(ctx, redisTokenPrefix+token)
	if err != nil || got != "visitor-11" {
		t.Fatalf("expected cache refill, got %q err=%v", got, err)
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	return client, func() { client.Close() }
}
