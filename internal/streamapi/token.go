// Package streamapi implements StreamEndpoint: single-use
// subscriber tokens and the per-connection SSE bridge over LogBuffer,
// the Store, and LogBus.
package streamapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidToken covers malformed, unsigned, expired, or job-mismatched
// tokens; callers translate it into a policy-violation rejection.
var ErrInvalidToken = errors.New("streamapi: invalid or expired token")

// ErrTokenConsumed is returned on a second use of an already-consumed
// single-use token.
var ErrTokenConsumed = errors.New("streamapi: token already consumed")

// claims is the JWT payload: job_id plus the standard registered claims,
// with jti as the single-use consumption key.
type claims struct {
	JobID string `json:"job_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and consumes single-use, job-bound stream tokens:
// a signed JWT carrying the job_id claim, expiring after the configured
// TTL.
type TokenIssuer struct {
	rdb        *redis.Client
	signingKey []byte
	ttl        time.Duration
}

// NewTokenIssuer wires a TokenIssuer. ttl defaults to 10 minutes if zero.
func NewTokenIssuer(rdb *redis.Client, signingKey string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenIssuer{rdb: rdb, signingKey: []byte(signingKey), ttl: ttl}
}

// Issue mints a token bound to jobID, returning the signed string and its
// expiry.
func (t *TokenIssuer) Issue(jobID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(t.ttl)

	c := claims{
		JobID: jobID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   jobID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("streamapi: sign token: %w", err)
	}
	return signed, exp, nil
}

// consumedKey is the Redis SETNX guard that makes a structurally-valid JWT
// single-use: the JWT itself stays valid until exp, but a second Consume
// within the TTL fails: single-use semantics layered on top of a
// stateless token.
func consumedKey(jti string) string { return "stream:token:consumed:" + jti }

// Consume validates tokenStr against jobID and atomically marks its jti as
// spent. Returns ErrInvalidToken for anything structurally or temporally
// wrong, ErrTokenConsumed for replay of an already-used token.
func (t *TokenIssuer) Consume(ctx context.Context, tokenStr, jobID string) error {
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.JobID != jobID || c.ID == "" {
		return ErrInvalidToken
	}

	ttl := time.Until(c.ExpiresAt.Time)
	if ttl <= 0 {
		return ErrInvalidToken
	}

	set, err := t.rdb.SetNX(ctx, consumedKey(c.ID), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("streamapi: mark token consumed: %w", err)
	}
	if !set {
		return ErrTokenConsumed
	}
	return nil
}
