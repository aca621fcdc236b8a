package ingest

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/models"
)

// lockTTL bounds how long a crashed run can keep a source locked.
const lockTTL = 2 * time.Hour

// SourceLock is a best-effort per-source run mutex over Redis. It exists to
// keep a scheduled job and a manual trigger from ingesting the same source
// at the same time; it is advisory, and every Redis failure fails open
// because the (source, external_id) unique constraint is the real safety
// net for racing runs.
type SourceLock struct {
	client *redis.Client // nil disables locking entirely
	logger *zap.Logger
}

func NewSourceLock(client *redis.Client, logger *zap.Logger) *SourceLock {
	return &SourceLock{client: client, logger: logger}
}

// Acquire attempts to take the lock for one source. It returns a release
// function and whether the lock was obtained. When Redis is not configured
// or unreachable the lock is granted with a no-op release.
func (l *SourceLock) Acquire(ctx context.Context, source models.Source) (release func(), acquired bool) {
	noop := func() {}
	if l == nil || l.client == nil {
		return noop, true
	}

	key := "reunia:ingest:lock:" + string(source)
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), lockTTL).Result()
	if err != nil {
		l.logger.Warn("source lock unavailable, proceeding without it",
			zap.String("source", string(source)), zap.Error(err))
		return noop, true
	}
	if !ok {
		return noop, false
	}

	return func() {
		if err := l.client.Del(context.Background(), key).Err(); err != nil {
			l.logger.Warn("source lock release failed, TTL will expire it",
				zap.String("source", string(source)), zap.Error(err))
		}
	}, true
}
