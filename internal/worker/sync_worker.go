// Package worker runs availability sync passes out of band on asynq.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

// TypeAvailabilitySync is the asynq task type of one track sync.
const TypeAvailabilitySync = "availability:sync"

// SyncPayload is the task body.
type SyncPayload struct {
	Track string `json:"track"`
}

// NewSyncTask builds the task for a track. The task is unique for ttl so a
// slow pass does not pile up duplicates behind it.
func NewSyncTask(track string, ttl time.Duration) (*asynq.Task, error) {
	if track == "" {
		return nil, errors.New("track is required")
	}
	b, err := json.Marshal(SyncPayload{Track: track})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAvailabilitySync, b, asynq.MaxRetry(3), asynq.Timeout(ttl), asynq.Unique(ttl)), nil
}

type syncRunner interface {
	Run(ctx context.Context, principal *models.Principal, track string) (*models.SyncReport, error)
}

// SyncHandler processes availability sync tasks as the system principal.
type SyncHandler struct {
	sync      syncRunner
	principal *models.Principal
	logger    *zap.Logger
}

// NewSyncHandler builds the handler.
func NewSyncHandler(sync syncRunner, principal *models.Principal, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{sync: sync, principal: principal, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *SyncHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p SyncPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode sync payload: %v: %w", err, asynq.SkipRetry)
	}

	report, err := h.sync.Run(ctx, h.principal, p.Track)
	switch {
	case err == nil:
		h.logger.Sugar().Infow("scheduled sync finished",
			"track", p.Track,
			"added", report.Reconcile.Added,
			"updated", report.Reconcile.Updated,
			"deleted_stale", report.Reconcile.DeletedStale,
			"skipped_occupied", report.Reconcile.SkippedOccupied,
			"errors", report.Reconcile.Errors,
		)
		return nil
	case errors.Is(err, appErrors.ErrSyncInProgress):
		h.logger.Sugar().Infow("scheduled sync skipped, pass already running", "track", p.Track)
		return nil
	case errors.Is(err, appErrors.ErrForbidden), errors.Is(err, appErrors.ErrNotFound):
		h.logger.Sugar().Errorw("scheduled sync rejected", "track", p.Track, "error", err)
		return fmt.Errorf("sync %s: %v: %w", p.Track, err, asynq.SkipRetry)
	default:
		h.logger.Sugar().Warnw("scheduled sync failed", "track", p.Track, "error", err)
		return err
	}
}

// Mux routes task types to their handlers.
func Mux(handler *SyncHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeAvailabilitySync, handler)
	return mux
}

type periodicRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterSchedules enqueues a sync task per track on cronspec.
func RegisterSchedules(scheduler periodicRegistrar, cronspec string, tracks []string, ttl time.Duration) error {
	if cronspec == "" {
		return errors.New("sync cron spec is empty")
	}
	for _, track := range tracks {
		task, err := NewSyncTask(track, ttl)
		if err != nil {
			return err
		}
		if _, err := scheduler.Register(cronspec, task); err != nil {
			return fmt.Errorf("register sync schedule for %s: %w", track, err)
		}
	}
	return nil
}
