package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymsheets/pkg"
)

const (
	DefaultTTL       = 24 * 7 * time.Hour
	sessionKeyPrefix = "gymsheets-session||"
	tokensSetKey     = "gymsheets-sessions"
	tokenLength      = 35

	minUsernameLength = 3
	maxUsernameLength = 64
	minPasswordLength = 6
)

var (
	ErrWrongPassword      = errors.New("wrong password")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is a logged-in session of one account.
type Session struct {
	Token     string    `json:"token"`
	OwnerID   string    `json:"ownerId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	// MigratedRecords is the number of unowned records claimed by this login.
	MigratedRecords int `json:"migratedRecords"`
}

type accountsRepo interface {
	Add(ctx context.Context, account Account) error
	GetByUsername(ctx context.Context, username string) (*Account, error)
}

// OwnershipMigrator claims unowned records for an account.
type OwnershipMigrator interface {
	MigrateOwnership(ctx context.Context, owner string) (int, error)
}

type Service struct {
	redisClient *redis.Client
	ttl         time.Duration
	accounts    accountsRepo
	migrator    OwnershipMigrator
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
	// password hashing is slow on purpose, tests may swap it
	HashPasswordFunc func(password string) (string, error)
}

func NewAuthService(
	ttl time.Duration,
	redisClient *redis.Client,
	accounts accountsRepo,
	migrator OwnershipMigrator,
) *Service {
	return &Service{
		ttl:              ttl,
		redisClient:      redisClient,
		accounts:         accounts,
		migrator:         migrator,
		RandStringFunc:   pkg.GenerateRandomString,
		HashPasswordFunc: pkg.HashPassword,
	}
}

func (as *Service) Register(ctx context.Context, creds Credentials) (*Account, error) {
	username := strings.TrimSpace(creds.Username)
	usernameLen := utf8.RuneCountInString(username)
	if usernameLen < minUsernameLength || usernameLen > maxUsernameLength {
		return nil, ErrInvalidCredentials
	}
	if utf8.RuneCountInString(creds.Password) < minPasswordLength {
		return nil, ErrInvalidCredentials
	}

	passwordHash, err := as.HashPasswordFunc(creds.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if err := as.accounts.Add(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Login opens a session and then claims every unowned record for the account.
// A failed migration is logged and does not fail the login.
func (as *Service) Login(ctx context.Context, creds Credentials, createdAt time.Time) (*Session, error) {
	account, err := as.accounts.GetByUsername(ctx, strings.TrimSpace(creds.Username))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if !pkg.CheckPasswordHash(creds.Password, account.PasswordHash) {
		return nil, ErrWrongPassword
	}

	token, err := as.RandStringFunc(tokenLength)
	if err != nil {
		return nil, err
	}

	sessionKey := sessionKeyPrefix + token
	value := sessionValue{OwnerID: account.ID, CreatedAt: createdAt}.String()
	if err := as.redisClient.Set(ctx, sessionKey, value, as.ttl).Err(); err != nil {
		return nil, err
	}

	// add token to list of sessions
	if err := as.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return nil, err
	}

	session := &Session{
		Token:     token,
		OwnerID:   account.ID,
		Username:  account.Username,
		CreatedAt: createdAt,
	}
	if as.migrator != nil {
		migrated, err := as.migrator.MigrateOwnership(ctx, account.ID)
		if err != nil {
			log.Errorf("login [%s]: ownership migration: %s", account.Username, err)
		}
		session.MigratedRecords = migrated
	}

	return session, nil
}

func (as *Service) Logout(ctx context.Context, token string) (bool, error) {
	sessionKey := sessionKeyPrefix + token
	cmd := as.redisClient.Get(ctx, sessionKey)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	if err := as.redisClient.Del(ctx, sessionKey).Err(); err != nil {
		return false, err
	}

	// remove token from the list of sessions
	if err := as.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return false, err
	}

	return true, nil
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (as *Service) ScanAndClean(ctx context.Context) {
	cmd := as.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("auth service, scan and clean, get sessions: %s", err)
		return
	}

	sessionTokens := cmd.Val()
	if len(sessionTokens) == 0 {
		log.Debugln("auth service, scan and clean abort, no sessions")
		return
	}

	log.Debugf("auth service, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		sessionKey := sessionKeyPrefix + token
		cmd := as.redisClient.Get(ctx, sessionKey)
		if err := cmd.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				// expired by redis, only the set member is left
				toRemove = append(toRemove, token)
				continue
			}
			log.Errorf("auth service, scan and clean token %s: %s", token, err)
			continue
		}

		session, err := parseSessionValue(cmd.Val())
		if err != nil {
			log.Errorf("auth service, scan and clean token %s: %s", token, err)
			continue
		}

		if time.Since(session.CreatedAt) > as.ttl {
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		sessionKey := sessionKeyPrefix + token
		if err := as.redisClient.Del(ctx, sessionKey).Err(); err != nil {
			log.Errorf("auth service, clean token %s: %s", token, err)
			continue
		}

		// remove token from the list of sessions
		if err := as.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("auth service, clean token %s: %s", token, err)
			continue
		}
	}
	log.Debugf("auth service, scan and clean done, removed %d sessions", len(toRemove))
}

// sessionValue is stored under the session key as "<created at unix>|<owner id>".
type sessionValue struct {
	OwnerID   string
	CreatedAt time.Time
}

func (v sessionValue) String() string {
	return fmt.Sprintf("%d|%s", v.CreatedAt.Unix(), v.OwnerID)
}

func parseSessionValue(raw string) (sessionValue, error) {
	createdAtStr, ownerID, found := strings.Cut(raw, "|")
	if !found || ownerID == "" {
		return sessionValue{}, fmt.Errorf("malformed session value [%s]", raw)
	}
	createdAtUnix, err := strconv.ParseInt(createdAtStr, 10, 64)
	if err != nil {
		return sessionValue{}, fmt.Errorf("session created at: %w", err)
	}
	return sessionValue{OwnerID: ownerID, CreatedAt: time.Unix(createdAtUnix, 0)}, nil
}
