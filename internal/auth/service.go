package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"nesturechat/internal/redis"
)

const redisTokenPrefix = "visitor_token:"

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// Service issues, validates, and revokes anonymous visitor tokens.
type Service struct {
	db             *sql.DB
	cache          *redis.Client
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied token lifetime.
// cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		tokenTTL:       ttl,
		cookieName:     "visitor_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// NewVisitor allocates a visitor id and mints its first token.
func (s *Service) NewVisitor(ctx context.Context) (string, string, error) {
	visitorID := uuid.NewString()
	token, err := s.IssueToken(ctx, visitorID)
	if err != nil {
		return "", "", err
	}
	return visitorID, token, nil
}

// IssueToken mints a new random token for the visitor and persists it.
func (s *Service) IssueToken(ctx context.Context, visitorID string) (string, error) {
	if visitorID == "" {
		return "", errors.New("invalid visitor id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO visitor_tokens (token, visitor_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, visitorID, now, expiresAt,
		)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.Set(ctx, redisTokenPrefix+token, visitorID, s.tokenTTL); err != nil {
					log.Printf("cache visitor token failed: %v", err)
				}
			}
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning the visitor id.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenRequired
	}
	if s.cache != nil {
		if visitorID, err := s.cache.Get(ctx, redisTokenPrefix+token); err == nil && visitorID != "" {
			return visitorID, nil
		}
	}
	var visitorID string
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT visitor_id, expires_at FROM visitor_tokens WHERE token = ?`, token,
	).Scan(&visitorID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	remaining := time.Until(expires)
	if remaining <= 0 {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM visitor_tokens WHERE token = ?`, token)
		return "", ErrTokenExpired
	}
	if s.cache != nil {
		// refill after an eviction or a cache restart; never outlive the row
		if err := s.cache.Set(ctx, redisTokenPrefix+token, visitorID, remaining); err != nil {
			log.Printf("cache visitor token failed: %v", err)
		}
	}
	return visitorID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM visitor_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, redisTokenPrefix+token)
	}
	return nil
}

// PurgeExpired removes expired tokens and reports how many were deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitor_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing visitor tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
