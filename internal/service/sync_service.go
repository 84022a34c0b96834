package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/internal/repository"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

type availabilityImporter interface {
	Import(ctx context.Context, track string) (*models.ImportBatch, error)
}

type batchReconciler interface {
	Reconcile(ctx context.Context, batch *models.ImportBatch) (*models.ReconcileReport, error)
}

type syncStateStore interface {
	AcquireLock(ctx context.Context, track string, ttl time.Duration) (func(context.Context), error)
	SaveReport(ctx context.Context, report *models.SyncReport) error
	LastReport(ctx context.Context, track string) (*models.SyncReport, error)
}

// Authorizer decides whether a principal may run an operator command.
type Authorizer interface {
	Authorize(p *models.Principal, c models.Capability) error
}

type syncMetrics interface {
	ObserveSync(track string, ok bool, duration time.Duration)
}

// SyncService runs import and reconcile passes for a track, one pass at a
// time across all processes.
type SyncService struct {
	importer   availabilityImporter
	reconciler batchReconciler
	state      syncStateStore
	authorizer Authorizer
	metrics    syncMetrics
	lockTTL    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSyncService constructs the service.
func NewSyncService(importer availabilityImporter, reconciler batchReconciler, state syncStateStore, authorizer Authorizer, metrics syncMetrics, lockTTL time.Duration, logger *zap.Logger) *SyncService {
	if authorizer == nil {
		authorizer = CapabilityAuthorizer{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		importer:   importer,
		reconciler: reconciler,
		state:      state,
		authorizer: authorizer,
		metrics:    metrics,
		lockTTL:    lockTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Run imports the track's availability and reconciles it into the slot store.
func (s *SyncService) Run(ctx context.Context, principal *models.Principal, track string) (*models.SyncReport, error) {
	if err := s.authorizer.Authorize(principal, models.CapabilitySyncAvailability); err != nil {
		return nil, err
	}

	release, err := s.state.AcquireLock(ctx, track, s.lockTTL)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			return nil, appErrors.Clone(appErrors.ErrSyncInProgress, "availability sync already running for "+track)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire sync lock")
	}
	defer release(context.WithoutCancel(ctx))

	started := s.now().UTC()
	report, err := s.run(ctx, principal, track, started)
	s.observe(track, err == nil, s.now().Sub(started))
	if err != nil {
		s.logger.Error("availability sync failed",
			zap.String("track", track),
			zap.String("triggered_by", principal.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.state.SaveReport(ctx, report); err != nil {
		s.logger.Warn("failed to store sync report", zap.String("track", track), zap.Error(err))
	}
	return report, nil
}

func (s *SyncService) run(ctx context.Context, principal *models.Principal, track string, started time.Time) (*models.SyncReport, error) {
	batch, err := s.importer.Import(ctx, track)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrExternalSourceUnavailable.Code, appErrors.ErrExternalSourceUnavailable.Status, "availability import failed")
	}
	reconciled, err := s.reconciler.Reconcile(ctx, batch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "reconciliation failed")
	}
	reconciled.Skipped = append(append([]models.SkippedRow{}, batch.Skipped...), reconciled.Skipped...)

	return &models.SyncReport{
		Track:          track,
		TriggeredBy:    principal.ID,
		Interviewers:   batch.Summary,
		FailedSections: batch.FailedSections,
		Reconcile:      *reconciled,
		StartedAt:      started,
		FinishedAt:     s.now().UTC(),
	}, nil
}

// RunAll syncs every track in turn. A failing track does not stop the others.
func (s *SyncService) RunAll(ctx context.Context, principal *models.Principal, tracks []string) ([]*models.SyncReport, error) {
	var reports []*models.SyncReport
	var errs []error
	for _, track := range tracks {
		report, err := s.Run(ctx, principal, track)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", track, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// LastReport returns the most recent report of a track.
func (s *SyncService) LastReport(ctx context.Context, principal *models.Principal, track string) (*models.SyncReport, error) {
	if err := s.authorizer.Authorize(principal, models.CapabilitySyncAvailability); err != nil {
		return nil, err
	}
	report, err := s.state.LastReport(ctx, track)
	if err != nil {
		if errors.Is(err, repository.ErrNoReport) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no sync recorded for "+track)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sync report")
	}
	return report, nil
}

func (s *SyncService) observe(track string, ok bool, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveSync(track, ok, d)
	}
}
