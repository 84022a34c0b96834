package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
)

const bookingColumns = `b.id, b.track, b.slot_id, b.candidate_id, b.cohort, b.interviewer_id,
to_char(b.slot_date, 'YYYY-MM-DD') AS slot_date, b.time_start, b.time_end, b.status,
b.cancellation_allowed, b.cancelled_at, b.notes, b.created_at, b.updated_at`

// BookingRepository persists bookings. Rows are never deleted.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert stores a new booking.
func (r *BookingRepository) Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = booking.CreatedAt
	const query = `INSERT INTO bookings (id, track, slot_id, candidate_id, cohort, interviewer_id, slot_date, time_start, time_end,
status, cancellation_allowed, cancelled_at, notes, created_at, updated_at)
VALUES (:id, :track, :slot_id, :candidate_id, :cohort, :interviewer_id, :slot_date, :time_start, :time_end,
:status, :cancellation_allowed, :cancelled_at, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, booking); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// LockByID reads a booking and holds its row lock until the transaction ends.
func (r *BookingRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1 FOR UPDATE`
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, id); err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	return &booking, nil
}

// ActiveForSlot returns the active booking referencing a slot.
func (r *BookingRepository) ActiveForSlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.slot_id = $1 AND b.status <> 'cancelled'`
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, slotID); err != nil {
		return nil, fmt.Errorf("get active booking for slot: %w", err)
	}
	return &booking, nil
}

// ActiveForCandidate returns the candidate's active booking in a track.
func (r *BookingRepository) ActiveForCandidate(ctx context.Context, exec sqlx.ExtContext, track, candidateID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.track = $1 AND b.candidate_id = $2 AND b.status <> 'cancelled'`
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, track, candidateID); err != nil {
		return nil, fmt.Errorf("get active booking for candidate: %w", err)
	}
	return &booking, nil
}

// HasCancelled reports whether the candidate has exercised a cancellation in the track.
func (r *BookingRepository) HasCancelled(ctx context.Context, exec sqlx.ExtContext, track, candidateID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM bookings WHERE track = $1 AND candidate_id = $2 AND status = 'cancelled')`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, track, candidateID); err != nil {
		return false, fmt.Errorf("check cancelled bookings: %w", err)
	}
	return exists, nil
}

// MarkCancelled moves a booking to cancelled and disables further cancellation.
func (r *BookingRepository) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE bookings SET status = 'cancelled', cancelled_at = $2, cancellation_allowed = FALSE, updated_at = $2
WHERE id = $1 AND status <> 'cancelled'`
	res, err := r.exec(exec).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("cancel booking %s: %w", id, ErrNoRowsAffected)
	}
	return nil
}

// List returns bookings joined with interviewers plus the unpaginated total.
func (r *BookingRepository) List(ctx context.Context, filter dto.BookingFilter) ([]models.BookingDetail, int, error) {
	where, args := bookingFilterClause(filter)

	countQuery := `SELECT COUNT(*) FROM bookings b` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + `, i.full_name AS interviewer_name, i.external_key AS interviewer_key
FROM bookings b
JOIN interviewers i ON i.id = b.interviewer_id` + where + `
ORDER BY b.slot_date, b.time_start, i.full_name`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var items []models.BookingDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return items, total, nil
}

func bookingFilterClause(filter dto.BookingFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Track != "" {
		add("b.track = $%d", filter.Track)
	}
	if filter.Status != "" {
		add("b.status = $%d", filter.Status)
	}
	if filter.Date != "" {
		add("b.slot_date = $%d", filter.Date)
	}
	if filter.CandidateID != "" {
		add("b.candidate_id = $%d", filter.CandidateID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
