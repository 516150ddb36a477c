package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/whatsnote/internal/models"
)

// getTestRedisClient connects to a local Redis on DB 1, skipping the test
// when none is running.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func cleanupTestSessions(t *testing.T, client *redis.Client, ctx context.Context) {
	t.Helper()

	for _, pattern := range []string{"session:*", "account:*:sessions"} {
		keys, err := client.Keys(ctx, pattern).Result()
		if err != nil {
			t.Logf("cleanup: failed to list keys: %v", err)
			continue
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	defer cleanupTestSessions(t, client, ctx)

	accountID := uuid.New()
	deviceID := uuid.New()

	session := &models.Session{
		ID:        "session-123",
		AccountID: accountID,
		DeviceID:  deviceID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, session))

	retrieved, err := repo.GetByID(ctx, "session-123")
	require.NoError(t, err)
	assert.Equal(t, accountID, retrieved.AccountID)
	assert.Equal(t, deviceID, retrieved.DeviceID)

	sessions, err := repo.GetByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-123", sessions[0].ID)
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

// Expired sessions are dropped from the account index lazily, on the next
// listing.
func TestSessionRepository_ExpiredSessionCleanedUp(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	defer cleanupTestSessions(t, client, ctx)

	accountID := uuid.New()
	deviceID := uuid.New()

	require.NoError(t, repo.Create(ctx, &models.Session{
		ID:        "expired-session",
		AccountID: accountID,
		DeviceID:  deviceID,
		ExpiresAt: time.Now().Add(1 * time.Second),
		CreatedAt: time.Now(),
	}))
	require.NoError(t, repo.Create(ctx, &models.Session{
		ID:        "valid-session",
		AccountID: accountID,
		DeviceID:  deviceID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}))

	time.Sleep(1500 * time.Millisecond)

	sessions, err := repo.GetByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "valid-session", sessions[0].ID)

	// The expired ID is gone from the index too
	members, err := client.SMembers(ctx, "account:"+accountID.String()+":sessions").Result()
	require.NoError(t, err)
	assert.NotContains(t, members, "expired-session")
}

func TestSessionRepository_DeleteAllForAccount(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	defer cleanupTestSessions(t, client, ctx)

	accountID := uuid.New()
	otherID := uuid.New()

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, repo.Create(ctx, &models.Session{
			ID:        id,
			AccountID: accountID,
			DeviceID:  uuid.New(),
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.Session{
		ID:        "other-account-session",
		AccountID: otherID,
		DeviceID:  uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}))

	require.NoError(t, repo.DeleteAllForAccount(ctx, accountID))

	sessions, err := repo.GetByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = repo.GetByID(ctx, "other-account-session")
	assert.NoError(t, err)
}
