package presenceport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
)

const (
	machineKeyPrefix   = "machine:"
	defaultPresenceTTL = 2 * time.Minute
)

var _ secondary.MachinePresence = (*PresenceRepository)(nil)

// PresenceRepository keeps short-lived machine liveness records in Redis
type PresenceRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      primary.Logger
}

// NewPresenceRepository creates a new Redis presence repository
func NewPresenceRepository(redisClient *redis.Client, ttl time.Duration, logger primary.Logger) *PresenceRepository {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceRepository{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

// Touch saves the presence record with expiration
func (r *PresenceRepository) Touch(ctx context.Context, presence *domain.MachinePresence) error {
	presenceJSON, err := json.Marshal(presence)
	if err != nil {
		r.logger.Error("Failed to marshal machine presence", "error", err)
		return fmt.Errorf("failed to marshal machine presence: %w", err)
	}

	key := machineKeyPrefix + presence.ID.String()
	if err := r.redisClient.Set(ctx, key, presenceJSON, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to save machine presence", "machineId", presence.ID, "error", err)
		return fmt.Errorf("failed to save machine presence: %w", err)
	}
	return nil
}

// Online retrieves every live presence record
func (r *PresenceRepository) Online(ctx context.Context) ([]*domain.MachinePresence, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error
		batch, cursor, err = r.redisClient.Scan(ctx, cursor, machineKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine keys: %w", err)
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			break
		}
	}

	machines := make([]*domain.MachinePresence, 0, len(keys))
	if len(keys) == 0 {
		return machines, nil
	}

	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve machine presence: %w", err)
	}

	for _, value := range values {
		// expired between SCAN and MGET
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var presence domain.MachinePresence
		if err := json.Unmarshal([]byte(raw), &presence); err != nil {
			r.logger.Warn("Skipping malformed machine presence", "error", err)
			continue
		}
		machines = append(machines, &presence)
	}

	sort.Slice(machines, func(i, j int) bool {
		return machines[i].LastSeen.After(machines[j].LastSeen)
	})
	return machines, nil
}

// IsOnline reports whether the machine has a live presence record
func (r *PresenceRepository) IsOnline(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := r.redisClient.Exists(ctx, machineKeyPrefix+id.String()).Result()
	if err != nil {
		r.logger.Error("Failed to check machine presence", "machineId", id, "error", err)
		return false, fmt.Errorf("failed to check machine presence: %w", err)
	}
	return n > 0, nil
}
