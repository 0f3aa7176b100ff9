package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelstack/responder/internal/config"
	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

const (
	sessionKeyPrefix = "responder:session:"
	traceKeyPrefix   = "responder:trace:"
	lockKeyPrefix    = "responder:lock:"
	activeSetKey     = "responder:active"
)

// RedisStore is the production HotStore. Session snapshots and traces carry
// a TTL so abandoned state ages out on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) SaveSession(ctx context.Context, sess *models.IncidentSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("save: session has no id")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+sess.ID, data, r.ttl)
	if sess.Phase.Terminal() {
		pipe.SRem(ctx, activeSetKey, sess.ID)
	} else {
		pipe.SAdd(ctx, activeSetKey, sess.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) LoadSession(ctx context.Context, id string) (*models.IncidentSession, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", utils.ErrSessionNotFound, id)
		}
		return nil, err
	}
	var sess models.IncidentSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id, traceKeyPrefix+id)
	pipe.SRem(ctx, activeSetKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) ListActiveSessions(ctx context.Context) ([]*models.IncidentSession, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, err
	}
	sessions := make([]*models.IncidentSession, 0, len(ids))
	for _, id := range ids {
		sess, err := r.LoadSession(ctx, id)
		if err != nil {
			if errors.Is(err, utils.ErrSessionNotFound) {
				// Snapshot expired under the set entry; drop the stale id.
				r.client.SRem(ctx, activeSetKey, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (r *RedisStore) AppendTrace(ctx context.Context, id string, entries ...models.ThoughtEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal trace entry: %w", err)
		}
		values = append(values, data)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, traceKeyPrefix+id, values...)
	pipe.Expire(ctx, traceKeyPrefix+id, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Trace(ctx context.Context, id string) ([]models.ThoughtEntry, error) {
	raw, err := r.client.LRange(ctx, traceKeyPrefix+id, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.ThoughtEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.ThoughtEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal trace entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisStore) LockTarget(ctx context.Context, target string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.Set(ctx, lockKeyPrefix+target, "1", ttl).Err()
}

func (r *RedisStore) UnlockTarget(ctx context.Context, target string) error {
	return r.client.Del(ctx, lockKeyPrefix+target).Err()
}

func (r *RedisStore) LockedTargets(ctx context.Context) ([]string, error) {
	var targets []string
	iter := r.client.Scan(ctx, 0, lockKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		targets = append(targets, iter.Val()[len(lockKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
