package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps sessions in Redis so a restarted process can pick up an
// in-flight call. Idle eviction comes for free from the key TTL, refreshed on
// every Save.
type RedisStore struct {
	redis   *redis.Client
	idleTTL time.Duration
	tracer  trace.Tracer
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, idleTTL time.Duration) *RedisStore {
	if client == nil {
		panic("intake: redis client cannot be nil")
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &RedisStore{
		redis:   client,
		idleTTL: idleTTL,
		tracer:  otel.Tracer("intake.session.redis"),
	}
}

// Get implements SessionStore.
func (s *RedisStore) Get(ctx context.Context, callSID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "intake.session.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(callSID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &Session{
				CallSID:    callSID,
				Stage:      StageName,
				LastActive: time.Now(),
			}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("intake: failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("intake: failed to decode session: %w", err)
	}
	return &sess, nil
}

// Save implements SessionStore.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "intake.session.save")
	defer span.End()

	sess.LastActive = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.CallSID), data, s.idleTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: failed to persist session: %w", err)
	}
	return nil
}

// Exists implements SessionStore.
func (s *RedisStore) Exists(ctx context.Context, callSID string) (bool, error) {
	n, err := s.redis.Exists(ctx, sessionKey(callSID)).Result()
	if err != nil {
		return false, fmt.Errorf("intake: failed to check session: %w", err)
	}
	return n > 0, nil
}

// Evict implements SessionStore.
func (s *RedisStore) Evict(ctx context.Context, callSID string) error {
	if err := s.redis.Del(ctx, sessionKey(callSID)).Err(); err != nil {
		return fmt.Errorf("intake: failed to evict session: %w", err)
	}
	return nil
}

func sessionKey(callSID string) string {
	return fmt.Sprintf("call:%s", callSID)
}

var _ SessionStore = (*RedisStore)(nil)
