package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/adapter/redis/presenceport"
)

// NewPresence returns a presence repository on an in-process Redis
func NewPresence(t *testing.T) (*presenceport.PresenceRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return presenceport.NewPresenceRepository(client, 2*time.Minute, logging.NewNopLogger()), mr
}
