package presenceport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/domain"
)

func newTestRepository(t *testing.T) (*PresenceRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPresenceRepository(client, time.Minute, logging.NewNopLogger()), mr
}

func TestTouchAndOnline(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	older := &domain.MachinePresence{ID: uuid.New(), Host: "a", LastSeen: now}
	newer := &domain.MachinePresence{ID: uuid.New(), Host: "b", LastSeen: now.Add(time.Second)}
	require.NoError(t, repo.Touch(ctx, older))
	require.NoError(t, repo.Touch(ctx, newer))

	online, err := repo.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 2)
	assert.Equal(t, newer.ID, online[0].ID)
	assert.Equal(t, "a", online[1].Host)

	ok, err := repo.IsOnline(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPresenceExpires(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, repo.Touch(ctx, &domain.MachinePresence{ID: id, Host: "a", LastSeen: time.Now()}))
	mr.FastForward(2 * time.Minute)

	ok, err := repo.IsOnline(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	online, err := repo.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestOnlineEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)
	online, err := repo.Online(context.Background())
	require.NoError(t, err)
	assert.Empty(t, online)
}
