package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
)

var bookingRowColumns = []string{"id", "track", "slot_id", "candidate_id", "cohort", "interviewer_id", "slot_date", "time_start", "time_end",
	"status", "cancellation_allowed", "cancelled_at", "notes", "created_at", "updated_at"}

func TestBookingRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).WillReturnResult(sqlmock.NewResult(0, 1))

	slotID := "slot-1"
	booking := &models.Booking{Track: "main", SlotID: &slotID, CandidateID: "cand-1", InterviewerID: "int-1",
		SlotDate: "2025-11-08", TimeStart: "09:00", TimeEnd: "09:45", Status: models.BookingConfirmed, CancellationAllowed: true}
	require.NoError(t, repo.Insert(context.Background(), nil, booking))
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, booking.CreatedAt, booking.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryLockByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings b WHERE b.id = $1 FOR UPDATE`)).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).
			AddRow("b-1", "main", "slot-1", "cand-1", "ИКТ", "int-1", "2025-11-08", "09:00", "09:45", "confirmed", true, nil, "", now, now))

	booking, err := repo.LockByID(context.Background(), nil, "b-1")
	require.NoError(t, err)
	require.NotNil(t, booking.SlotID)
	assert.Equal(t, "slot-1", *booking.SlotID)
	assert.Nil(t, booking.CancelledAt)
	assert.True(t, booking.Active())
}

func TestBookingRepositoryActiveForCandidateNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`b.track = $1 AND b.candidate_id = $2 AND b.status <> 'cancelled'`)).
		WithArgs("main", "cand-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ActiveForCandidate(context.Background(), nil, "main", "cand-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestBookingRepositoryHasCancelled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("main", "cand-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	cancelled, err := repo.HasCancelled(context.Background(), nil, "main", "cand-1")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestBookingRepositoryMarkCancelledOnlyOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	at := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET status = 'cancelled'`)).
		WithArgs("b-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET status = 'cancelled'`)).
		WithArgs("b-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkCancelled(context.Background(), nil, "b-1", at))
	err := repo.MarkCancelled(context.Background(), nil, "b-1", at)
	assert.True(t, errors.Is(err, ErrNoRowsAffected))
}

func TestBookingRepositoryListPaginates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM bookings b WHERE b.track = $1 AND b.status = $2`)).
		WithArgs("main", "confirmed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	cols := append(append([]string{}, bookingRowColumns...), "interviewer_name", "interviewer_key")
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $3 OFFSET $4`)).
		WithArgs("main", "confirmed", 2, 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b-3", "main", nil, "cand-3", "", "int-1", "2025-11-08", "10:30", "11:15", "confirmed", false, nil, "", now, now, "Иванова", "101"))

	items, total, err := repo.List(context.Background(), dto.BookingFilter{Track: "main", Status: "confirmed", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].SlotID)
	assert.Equal(t, "Иванова", items[0].InterviewerName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingFilterClauseEmpty(t *testing.T) {
	where, args := bookingFilterClause(dto.BookingFilter{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}
