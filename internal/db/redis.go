package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/models"
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis: address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return client, nil
}

// liveContextMaxTurns bounds the cached context so long sessions do not grow
// the prompt without limit.
const liveContextMaxTurns = 40

// LiveCache keeps the rolling turn context of in-flight live sessions. Keys
// expire at the maximum call duration so abandoned sessions clean themselves
// up.
type LiveCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLiveCache(client *redis.Client, ttl time.Duration) *LiveCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LiveCache{client: client, ttl: ttl}
}

func liveKey(callID string) string {
	return "live:call:" + callID
}

// LoadTurns returns the cached context for a call, oldest first. A missing
// key yields an empty slice.
func (c *LiveCache) LoadTurns(ctx context.Context, callID string) ([]models.Turn, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("redis: live cache not initialised")
	}

	payload, err := c.client.Get(ctx, liveKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load turns: %w", err)
	}

	var turns []models.Turn
	if err := json.Unmarshal(payload, &turns); err != nil {
		return nil, fmt.Errorf("redis: decode turns: %w", err)
	}

	return turns, nil
}

// AppendTurns adds turns to the cached context, refreshes the TTL and returns
// the merged context.
func (c *LiveCache) AppendTurns(ctx context.Context, callID string, turns ...models.Turn) ([]models.Turn, error) {
	existing, err := c.LoadTurns(ctx, callID)
	if err != nil {
		return nil, err
	}

	merged := append(existing, turns...)
	if len(merged) > liveContextMaxTurns {
		merged = merged[len(merged)-liveContextMaxTurns:]
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("redis: encode turns: %w", err)
	}

	if err := c.client.Set(ctx, liveKey(callID), payload, c.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis: store turns: %w", err)
	}

	return merged, nil
}

// Clear drops the cached context once a session ends.
func (c *LiveCache) Clear(ctx context.Context, callID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, liveKey(callID)).Err(); err != nil {
		return fmt.Errorf("redis: clear turns: %w", err)
	}

	return nil
}
