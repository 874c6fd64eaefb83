package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

var (
	testUsername     = "testuser"
	testPassword     = "testpass"
	testPasswordHash = "$2a$14$6Gmhg85si2etd3K9oB8nYu1cxfbrdmhkg6wI6OXsa88IF4L2r/L9i" // testpass
	testOwnerID      = "owner-1"
	testCredentials  = Credentials{
		Username: testUsername,
		Password: testPassword,
	}
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account
	err      error
}

func newFakeAccounts(accounts ...Account) *fakeAccounts {
	f := &fakeAccounts{accounts: map[string]Account{}}
	for _, a := range accounts {
		f.accounts[a.Username] = a
	}
	return f
}

func (f *fakeAccounts) Add(_ context.Context, account Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.accounts[account.Username]; ok {
		return ErrUsernameTaken
	}
	f.accounts[account.Username] = account
	return nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

type fakeMigrator struct {
	mu       sync.Mutex
	calls    []string
	migrated int
	err      error
}

func (f *fakeMigrator) MigrateOwnership(_ context.Context, owner string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, owner)
	return f.migrated, f.err
}

func fastHash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(b), err
}

func testAccount() Account {
	return Account{
		ID:           testOwnerID,
		Username:     testUsername,
		PasswordHash: testPasswordHash,
		CreatedAt:    time.Now(),
	}
}

func TestAuthService_NewAuthService(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	migrator := &fakeMigrator{migrated: 3}
	authService := NewAuthService(time.Hour, db, newFakeAccounts(testAccount()), migrator)
	require.NotNil(t, authService)
	assert.NotNil(t, authService.redisClient)
	assert.Equal(t, time.Hour, authService.ttl)

	testToken := "test_token"
	authService.RandStringFunc = func(s int) (string, error) {
		return testToken, nil
	}

	now := time.Now()
	sessionKey := sessionKeyPrefix + testToken
	value := fmt.Sprintf("%d|%s", now.Unix(), testOwnerID)
	mock.ExpectSet(sessionKey, value, time.Hour).SetVal("OK")
	mock.ExpectSAdd(tokensSetKey, testToken).SetVal(1)
	session, err := authService.Login(context.Background(), testCredentials, now)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, testToken, session.Token)
	assert.Equal(t, testOwnerID, session.OwnerID)
	assert.Equal(t, 3, session.MigratedRecords)
	assert.Equal(t, []string{testOwnerID}, migrator.calls)
	require.NoError(t, mock.ExpectationsWereMet())

	// test failed login again
	session, err = authService.Login(context.Background(), Credentials{
		Username: testUsername,
		Password: "invalid_pass",
	}, now)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Nil(t, session)
	// no new session, no new migration
	assert.Len(t, migrator.calls, 1)
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	db, _ := redismock.NewClientMock()
	defer db.Close()

	authService := NewAuthService(time.Hour, db, newFakeAccounts(), nil)
	session, err := authService.Login(context.Background(), testCredentials, time.Now())
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Nil(t, session)
}

func TestAuthService_Login_MigrationFailureDoesNotFailLogin(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	migrator := &fakeMigrator{err: errors.New("db down")}
	authService := NewAuthService(time.Hour, rdb, newFakeAccounts(testAccount()), migrator)

	session, err := authService.Login(context.Background(), testCredentials, time.Now())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Zero(t, session.MigratedRecords)
	assert.Len(t, migrator.calls, 1)
	assert.True(t, s.Exists(sessionKeyPrefix+session.Token))
}

func TestAuthService_Register(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	accounts := newFakeAccounts()
	authService := NewAuthService(time.Hour, rdb, accounts, nil)
	authService.HashPasswordFunc = fastHash

	ctx := context.Background()
	account, err := authService.Register(ctx, Credentials{Username: "  lifter ", Password: "squat123"})
	require.NoError(t, err)
	assert.Equal(t, "lifter", account.Username)
	assert.NotEmpty(t, account.ID)
	assert.NotEqual(t, "squat123", account.PasswordHash)

	_, err = authService.Register(ctx, Credentials{Username: "lifter", Password: "other123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = authService.Register(ctx, Credentials{Username: "ab", Password: "squat123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = authService.Register(ctx, Credentials{Username: "lifter2", Password: "123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := authService.Login(ctx, Credentials{Username: "lifter", Password: "squat123"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.OwnerID)
}

func TestAuthService_Logout(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	authService := NewAuthService(time.Hour, rdb, newFakeAccounts(testAccount()), nil)
	ctx := context.Background()

	session, err := authService.Login(ctx, testCredentials, time.Now())
	require.NoError(t, err)

	members, err := s.Members(tokensSetKey)
	require.NoError(t, err)
	assert.Equal(t, []string{session.Token}, members)

	loggedOut, err := authService.Logout(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, loggedOut)
	assert.False(t, s.Exists(sessionKeyPrefix+session.Token))
	assert.False(t, s.Exists(tokensSetKey))

	loggedOut, err = authService.Logout(ctx, session.Token)
	require.NoError(t, err)
	assert.False(t, loggedOut)
}

func TestAuthService_ScanAndClean(t *testing.T) {
	ttl := time.Hour
	now := time.Now()
	then := now.Add(-2 * time.Hour)

	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	authService := NewAuthService(ttl, rdb, newFakeAccounts(), nil)
	require.NotNil(t, authService)

	t1, t2, t3 := "token1", "token2", "token3"
	mock.ExpectSMembers(tokensSetKey).SetVal([]string{t1, t2, t3})
	mock.ExpectGet(sessionKeyPrefix + t1).SetVal(fmt.Sprintf("%d|owner-1", then.Unix()))
	mock.ExpectGet(sessionKeyPrefix + t2).SetVal(fmt.Sprintf("%d|owner-2", now.Unix()))
	mock.ExpectGet(sessionKeyPrefix + t3).RedisNil()
	// t1 is too old, t3 already expired in redis
	mock.ExpectDel(sessionKeyPrefix + t1).SetVal(1)
	mock.ExpectSRem(tokensSetKey, t1).SetVal(1)
	mock.ExpectDel(sessionKeyPrefix + t3).SetVal(0)
	mock.ExpectSRem(tokensSetKey, t3).SetVal(1)

	authService.ScanAndClean(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseSessionValue(t *testing.T) {
	now := time.Unix(time.Now().Unix(), 0)
	v, err := parseSessionValue(sessionValue{OwnerID: "abc", CreatedAt: now}.String())
	require.NoError(t, err)
	assert.Equal(t, "abc", v.OwnerID)
	assert.True(t, now.Equal(v.CreatedAt))

	_, err = parseSessionValue("12345")
	assert.Error(t, err)
	_, err = parseSessionValue("nope|abc")
	assert.Error(t, err)
	_, err = parseSessionValue("12345|")
	assert.Error(t, err)
}
