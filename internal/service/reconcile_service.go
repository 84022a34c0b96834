package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/pkg/database"
)

type reconcileSlotStore interface {
	LockForInterviewer(ctx context.Context, exec sqlx.ExtContext, track, interviewerID string) ([]models.ScopedSlot, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	UpdateSync(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	Touch(ctx context.Context, exec sqlx.ExtContext, ids []string, syncedAt time.Time) error
	DeleteIfFree(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

type rosterReader interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Interviewer, error)
}

type reconcileMetrics interface {
	ObserveReconcile(report *models.ReconcileReport)
}

// ReconcileService merges imported availability into the slot store without
// disturbing reserved slots.
type ReconcileService struct {
	tx      txBeginner
	slots   reconcileSlotStore
	roster  rosterReader
	metrics reconcileMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconcileService constructs the reconciler.
func NewReconcileService(tx txBeginner, slots reconcileSlotStore, roster rosterReader, metrics reconcileMetrics, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{tx: tx, slots: slots, roster: roster, metrics: metrics, logger: logger, now: time.Now}
}

// interviewerWork is everything one interviewer contributes to a batch.
type interviewerWork struct {
	interviewer models.Interviewer
	descriptors []models.SlotDescriptor
}

// Reconcile applies a batch. Each interviewer is merged in its own
// transaction; a failing interviewer is rolled back and counted in Errors
// while the others proceed. A free slot of a touched interviewer that the
// batch no longer lists is deleted when its section was read in this pass;
// slots of failed or unconfigured sections are left alone.
func (s *ReconcileService) Reconcile(ctx context.Context, batch *models.ImportBatch) (*models.ReconcileReport, error) {
	report := &models.ReconcileReport{Track: batch.Track}

	keys := batchKeys(batch)
	interviewers, err := s.roster.ListByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	byKey := make(map[string]models.Interviewer, len(interviewers))
	for _, iv := range interviewers {
		byKey[iv.ExternalKey] = iv
	}

	work := make(map[string]*interviewerWork)
	workFor := func(key string) (*interviewerWork, bool) {
		iv, ok := byKey[key]
		if !ok {
			return nil, false
		}
		w, ok := work[key]
		if !ok {
			w = &interviewerWork{interviewer: iv}
			work[key] = w
		}
		return w, true
	}

	unknown := make(map[string]string)
	for _, d := range batch.Descriptors {
		w, ok := workFor(d.InterviewerKey)
		if !ok {
			report.SkippedUnknownInterviewer++
			if _, seen := unknown[d.InterviewerKey]; !seen {
				unknown[d.InterviewerKey] = d.Section
			}
			continue
		}
		w.descriptors = append(w.descriptors, d)
	}
	for _, scope := range batch.Scopes {
		if _, ok := workFor(scope.InterviewerKey); !ok {
			if _, seen := unknown[scope.InterviewerKey]; !seen {
				unknown[scope.InterviewerKey] = scope.Section
			}
		}
	}
	readSections := make(map[string]struct{}, len(batch.ReadSections))
	for _, name := range batch.ReadSections {
		readSections[name] = struct{}{}
	}
	for _, name := range batch.FailedSections {
		delete(readSections, name)
	}
	for _, key := range sortedKeys(unknown) {
		report.Skipped = append(report.Skipped, models.SkippedRow{
			Section: unknown[key], InterviewerKey: key, Reason: models.SkipUnknownInterviewer,
		})
	}

	syncedAt := s.now().UTC()
	for _, key := range sortedKeys(work) {
		w := work[key]
		var delta models.ReconcileReport
		err := withTx(ctx, s.tx, func(tx database.Tx) error {
			delta = models.ReconcileReport{}
			return s.reconcileInterviewer(ctx, tx, batch.Track, w, readSections, syncedAt, &delta)
		})
		if err != nil {
			report.Errors++
			s.logger.Error("reconcile interviewer failed",
				zap.String("track", batch.Track),
				zap.String("interviewer_key", key),
				zap.Error(err),
			)
			continue
		}
		report.Added += delta.Added
		report.Updated += delta.Updated
		report.Unchanged += delta.Unchanged
		report.SkippedOccupied += delta.SkippedOccupied
		report.DeletedStale += delta.DeletedStale
	}

	if s.metrics != nil {
		s.metrics.ObserveReconcile(report)
	}
	s.logger.Info("availability reconciled",
		zap.String("track", report.Track),
		zap.Int("added", report.Added),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped_occupied", report.SkippedOccupied),
		zap.Int("skipped_unknown_interviewer", report.SkippedUnknownInterviewer),
		zap.Int("deleted_stale", report.DeletedStale),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (s *ReconcileService) reconcileInterviewer(ctx context.Context, tx database.Tx, track string, w *interviewerWork, readSections map[string]struct{}, syncedAt time.Time, delta *models.ReconcileReport) error {
	existing, err := s.slots.LockForInterviewer(ctx, tx, track, w.interviewer.ID)
	if err != nil {
		return err
	}
	type naturalKey struct{ date, start string }
	index := make(map[naturalKey]*models.ScopedSlot, len(existing))
	for i := range existing {
		slot := &existing[i]
		index[naturalKey{slot.SlotDate, slot.TimeStart}] = slot
	}

	matched := make(map[string]struct{}, len(w.descriptors))
	var touch []string
	for _, d := range w.descriptors {
		slot, ok := index[naturalKey{d.Date, d.TimeStart}]
		if !ok {
			fresh := &models.TimeSlot{
				Track:         track,
				Section:       d.Section,
				InterviewerID: w.interviewer.ID,
				SlotDate:      d.Date,
				TimeStart:     d.TimeStart,
				TimeEnd:       d.TimeEnd,
				Tags:          pq.StringArray(append([]string{}, d.Tags...)),
				IsAvailable:   true,
				SyncedAt:      syncedAt,
			}
			if err := s.slots.Insert(ctx, tx, fresh); err != nil {
				return err
			}
			delta.Added++
			continue
		}
		matched[slot.ID] = struct{}{}
		if slot.Reserved {
			delta.SkippedOccupied++
			continue
		}
		if !slotDiffers(slot.TimeSlot, d) {
			touch = append(touch, slot.ID)
			delta.Unchanged++
			continue
		}
		updated := slot.TimeSlot
		updated.Section = d.Section
		updated.TimeEnd = d.TimeEnd
		updated.Tags = pq.StringArray(append([]string{}, d.Tags...))
		updated.SyncedAt = syncedAt
		if err := s.slots.UpdateSync(ctx, tx, &updated); err != nil {
			return err
		}
		delta.Updated++
	}

	for i := range existing {
		slot := &existing[i]
		if _, ok := matched[slot.ID]; ok {
			continue
		}
		// Only sections read in this pass can prove a slot stale.
		if _, ok := readSections[slot.Section]; !ok {
			continue
		}
		if slot.Reserved {
			delta.SkippedOccupied++
			continue
		}
		deleted, err := s.slots.DeleteIfFree(ctx, tx, slot.ID)
		if err != nil {
			return err
		}
		if deleted {
			delta.DeletedStale++
		} else {
			delta.SkippedOccupied++
		}
	}

	return s.slots.Touch(ctx, tx, touch, syncedAt)
}

func slotDiffers(slot models.TimeSlot, d models.SlotDescriptor) bool {
	if slot.TimeEnd != d.TimeEnd || slot.Section != d.Section || len(slot.Tags) != len(d.Tags) {
		return true
	}
	for i := range d.Tags {
		if slot.Tags[i] != d.Tags[i] {
			return true
		}
	}
	return false
}

func batchKeys(batch *models.ImportBatch) []string {
	set := make(map[string]struct{})
	for _, d := range batch.Descriptors {
		set[d.InterviewerKey] = struct{}{}
	}
	for _, scope := range batch.Scopes {
		set[scope.InterviewerKey] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
