package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrNoSession = errors.New("no session")

// Checker resolves a session token to the account that owns it.
type Checker interface {
	OwnerForToken(ctx context.Context, token string) (string, error)
}

var _ Checker = (*SessionChecker)(nil)

type SessionChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
}

func NewSessionChecker(ttl time.Duration, redisClient *redis.Client) *SessionChecker {
	return &SessionChecker{
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// OwnerForToken returns ErrNoSession for unknown, logged out and expired tokens.
func (c *SessionChecker) OwnerForToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNoSession
	}

	cmd := c.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoSession
		}
		return "", err
	}

	session, err := parseSessionValue(cmd.Val())
	if err != nil {
		return "", err
	}
	if time.Since(session.CreatedAt) > c.ttl {
		return "", ErrNoSession
	}
	return session.OwnerID, nil
}
