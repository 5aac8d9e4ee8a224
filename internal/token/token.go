package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// Token verification failures.
var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the signed claims carried by both token types.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair bundles a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager issues and verifies session tokens. Access tokens are verified by
// signature and expiry alone; refresh tokens are additionally checked against
// the per-user jti set in Redis so they can be revoked individually. The set
// lives in Redis, not process memory, so every instance behind the dispatcher
// sees the same revocation state.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         *redis.Client
}

// Config carries the knobs for a token Manager.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewManager constructs a token manager backed by the given Redis client.
func NewManager(cfg Config, store *redis.Client) (*Manager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token secrets must be provided")
	}
	if store == nil {
		return nil, fmt.Errorf("refresh token store must be provided")
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		store:         store,
	}, nil
}

func refreshSetKey(userID uint) string {
	return fmt.Sprintf("auth:refresh:%d", userID)
}

// Issue signs a new access/refresh pair for the user and records the refresh
// jti. Multiple refresh tokens may be outstanding per user (multi-device).
func (m *Manager) Issue(ctx context.Context, user models.User) (Pair, error) {
	accessToken, err := m.sign(user, TypeAccess, uuid.NewString(), m.accessTTL, m.accessSecret)
	if err != nil {
		return Pair{}, err
	}

	refreshID := uuid.NewString()
	refreshToken, err := m.sign(user, TypeRefresh, refreshID, m.refreshTTL, m.refreshSecret)
	if err != nil {
		return Pair{}, err
	}

	key := refreshSetKey(user.ID)
	pipe := m.store.TxPipeline()
	pipe.SAdd(ctx, key, refreshID)
	pipe.Expire(ctx, key, m.refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return Pair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

func (m *Manager) sign(user models.User, tokenType, jti string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    user.ID,
		Role:      user.Role,
		Email:     user.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// VerifyAccess validates an access token by signature and expiry.
func (m *Manager) VerifyAccess(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TypeAccess, m.accessSecret)
}

// VerifyRefresh validates a refresh token and checks that its jti is still a
// member of the user's live set. Rotated or revoked tokens never verify again.
func (m *Manager) VerifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString, TypeRefresh, m.refreshSecret)
	if err != nil {
		return nil, err
	}

	member, err := m.store.SIsMember(ctx, refreshSetKey(claims.UserID), claims.ID).Result()
	if err != nil {
		return nil, fmt.Errorf("check refresh token: %w", err)
	}
	if !member {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

func (m *Manager) parse(tokenString, expectedType string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expectedType {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Rotate consumes a valid refresh token and issues a fresh pair. The consumed
// jti is removed before the new pair is stored, so replaying it fails even if
// the caller races the rotation.
func (m *Manager) Rotate(ctx context.Context, refreshToken string, user models.User) (Pair, error) {
	claims, err := m.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return Pair{}, err
	}
	if claims.UserID != user.ID {
		return Pair{}, ErrTokenInvalid
	}

	removed, err := m.store.SRem(ctx, refreshSetKey(claims.UserID), claims.ID).Result()
	if err != nil {
		return Pair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if removed == 0 {
		// Lost the race against a concurrent rotation of the same token.
		return Pair{}, ErrTokenRevoked
	}

	return m.Issue(ctx, user)
}

// Revoke invalidates a single refresh token (logout of one device).
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := m.parse(refreshToken, TypeRefresh, m.refreshSecret)
	if err != nil {
		return err
	}

	if err := m.store.SRem(ctx, refreshSetKey(claims.UserID), claims.ID).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll invalidates every outstanding refresh token for the user.
func (m *Manager) RevokeAll(ctx context.Context, userID uint) error {
	if err := m.store.Del(ctx, refreshSetKey(userID)).Err(); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
