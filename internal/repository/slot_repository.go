package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AnatolyKozmin/Shend/internal/models"
)

const slotColumns = `s.id, s.track, s.section, s.interviewer_id, to_char(s.slot_date, 'YYYY-MM-DD') AS slot_date,
s.time_start, s.time_end, s.tags, s.is_available, s.synced_at, s.created_at`

// eligibleClause restricts slots to those a cohort may take; $2 is the cohort.
const eligibleClause = `(cardinality(i.tags) = 0 OR $2 = ANY(i.tags)) AND (cardinality(s.tags) = 0 OR $2 = ANY(s.tags))`

// SlotRepository persists time slots. Methods taking an exec run inside the
// caller's transaction; a nil exec falls back to the pool.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a slot without locking it.
func (r *SlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots s WHERE s.id = $1`
	var slot models.TimeSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return &slot, nil
}

// LockByID reads a slot and holds its row lock until the transaction ends.
func (r *SlotRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots s WHERE s.id = $1 FOR UPDATE`
	var slot models.TimeSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	return &slot, nil
}

// ListAvailable returns free slots of one time bucket open to the cohort.
func (r *SlotRepository) ListAvailable(ctx context.Context, exec sqlx.ExtContext, filter models.SlotFilter) ([]models.TimeSlot, error) {
	query := `SELECT ` + slotColumns + `
FROM time_slots s
JOIN interviewers i ON i.id = s.interviewer_id
WHERE s.track = $1 AND s.is_available AND i.active AND ` + eligibleClause + `
  AND s.slot_date = $3 AND s.time_start = $4
ORDER BY s.id`
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, filter.Track, filter.Cohort, filter.Date, filter.TimeStart); err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// ListDates counts free slots per date for a cohort.
func (r *SlotRepository) ListDates(ctx context.Context, track, cohort string) ([]models.DateBucket, error) {
	query := `SELECT to_char(s.slot_date, 'YYYY-MM-DD') AS slot_date, COUNT(*) AS available
FROM time_slots s
JOIN interviewers i ON i.id = s.interviewer_id
WHERE s.track = $1 AND s.is_available AND i.active AND ` + eligibleClause + `
GROUP BY s.slot_date
ORDER BY s.slot_date`
	var buckets []models.DateBucket
	if err := r.db.SelectContext(ctx, &buckets, query, track, cohort); err != nil {
		return nil, fmt.Errorf("list slot dates: %w", err)
	}
	return buckets, nil
}

// ListBuckets counts free slots per start time on a date for a cohort.
func (r *SlotRepository) ListBuckets(ctx context.Context, track, cohort, date string) ([]models.TimeBucket, error) {
	query := `SELECT to_char(s.slot_date, 'YYYY-MM-DD') AS slot_date, s.time_start, MIN(s.time_end) AS time_end, COUNT(*) AS available
FROM time_slots s
JOIN interviewers i ON i.id = s.interviewer_id
WHERE s.track = $1 AND s.is_available AND i.active AND ` + eligibleClause + ` AND s.slot_date = $3
GROUP BY s.slot_date, s.time_start
ORDER BY s.time_start`
	var buckets []models.TimeBucket
	if err := r.db.SelectContext(ctx, &buckets, query, track, cohort, date); err != nil {
		return nil, fmt.Errorf("list slot buckets: %w", err)
	}
	return buckets, nil
}

// LockForInterviewer locks every slot an interviewer has in a track. Rows are
// locked in id order so concurrent passes cannot deadlock.
func (r *SlotRepository) LockForInterviewer(ctx context.Context, exec sqlx.ExtContext, track, interviewerID string) ([]models.ScopedSlot, error) {
	query := `SELECT ` + slotColumns + `,
(NOT s.is_available OR EXISTS (
	SELECT 1 FROM bookings b WHERE b.slot_id = s.id AND b.status <> 'cancelled'
)) AS reserved
FROM time_slots s
WHERE s.track = $1 AND s.interviewer_id = $2
ORDER BY s.id
FOR UPDATE OF s`
	var slots []models.ScopedSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, track, interviewerID); err != nil {
		return nil, fmt.Errorf("lock interviewer slots: %w", err)
	}
	return slots, nil
}

// Insert stores a new available slot.
func (r *SlotRepository) Insert(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.SyncedAt.IsZero() {
		slot.SyncedAt = now
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	if slot.Tags == nil {
		slot.Tags = pq.StringArray{}
	}
	const query = `INSERT INTO time_slots (id, track, section, interviewer_id, slot_date, time_start, time_end, tags, is_available, synced_at, created_at)
VALUES (:id, :track, :section, :interviewer_id, :slot_date, :time_start, :time_end, :tags, :is_available, :synced_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// UpdateSync rewrites the imported attributes of a slot.
func (r *SlotRepository) UpdateSync(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	const query = `UPDATE time_slots SET section = $2, time_end = $3, tags = $4, synced_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, slot.ID, slot.Section, slot.TimeEnd, pq.Array([]string(slot.Tags)), slot.SyncedAt); err != nil {
		return fmt.Errorf("update slot sync: %w", err)
	}
	return nil
}

// Touch refreshes synced_at on slots the import confirmed unchanged.
func (r *SlotRepository) Touch(ctx context.Context, exec sqlx.ExtContext, ids []string, syncedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE time_slots SET synced_at = $2 WHERE id = ANY($1)`
	if _, err := r.exec(exec).ExecContext(ctx, query, pq.Array(ids), syncedAt); err != nil {
		return fmt.Errorf("touch slots: %w", err)
	}
	return nil
}

// SetAvailability flips a slot's availability flag.
func (r *SlotRepository) SetAvailability(ctx context.Context, exec sqlx.ExtContext, id string, available bool) error {
	const query = `UPDATE time_slots SET is_available = $2 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, available)
	if err != nil {
		return fmt.Errorf("set slot availability: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set slot availability: slot %s: %w", id, ErrNoRowsAffected)
	}
	return nil
}

// DeleteIfFree removes a slot only while it is available and unreferenced by
// an active booking. It reports whether a row was deleted.
func (r *SlotRepository) DeleteIfFree(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `DELETE FROM time_slots s
WHERE s.id = $1 AND s.is_available
  AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.slot_id = s.id AND b.status <> 'cancelled')`
	res, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete slot rows affected: %w", err)
	}
	return n > 0, nil
}
