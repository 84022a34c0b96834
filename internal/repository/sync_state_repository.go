package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/models"
)

// ErrLockHeld is returned when another process holds the sync lock.
var ErrLockHeld = errors.New("sync lock held")

// ErrNoReport is returned when no sync has been recorded for a track.
var ErrNoReport = errors.New("no sync report")

const reportTTL = 7 * 24 * time.Hour

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SyncStateRepository keeps cross-process sync state in Redis: a per-track
// lock serialising reconciliation passes and the last pass's report.
type SyncStateRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSyncStateRepository constructs the repository.
func NewSyncStateRepository(client *redis.Client, logger *zap.Logger) *SyncStateRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncStateRepository{client: client, logger: logger}
}

func lockKey(track string) string   { return "sync:lock:" + track }
func reportKey(track string) string { return "sync:report:" + track }

// AcquireLock takes the track's sync lock for ttl and returns a release func.
// Without a Redis client locking degrades to a no-op.
func (r *SyncStateRepository) AcquireLock(ctx context.Context, track string, ttl time.Duration) (func(context.Context), error) {
	if r.client == nil {
		return func(context.Context) {}, nil
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKey(track), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire %s: %w", lockKey(track), err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func(ctx context.Context) {
		if err := releaseScript.Run(ctx, r.client, []string{lockKey(track)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Warn("failed to release sync lock", zap.String("track", track), zap.Error(err))
		}
	}
	return release, nil
}

// SaveReport stores the latest sync report of a track.
func (r *SyncStateRepository) SaveReport(ctx context.Context, report *models.SyncReport) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal sync report: %w", err)
	}
	if err := r.client.Set(ctx, reportKey(report.Track), payload, reportTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", reportKey(report.Track), err)
	}
	return nil
}

// LastReport returns the most recent sync report of a track.
func (r *SyncStateRepository) LastReport(ctx context.Context, track string) (*models.SyncReport, error) {
	if r.client == nil {
		return nil, ErrNoReport
	}
	raw, err := r.client.Get(ctx, reportKey(track)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("redis get %s: %w", reportKey(track), err)
	}
	var report models.SyncReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal sync report: %w", err)
	}
	return &report, nil
}
