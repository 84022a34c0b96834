package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

func claimRequest(candidate, cohort, date, start string) dto.ClaimBookingRequest {
	return dto.ClaimBookingRequest{Track: "main", CandidateID: candidate, Cohort: cohort, Date: date, TimeStart: start}
}

type bookingFixture struct {
	db     *memDB
	events *eventRecorder
	svc    *BookingService
}

func newBookingFixture(t *testing.T, picker Picker) *bookingFixture {
	t.Helper()
	db := newMemDB()
	db.addInterviewer("iv-1", "101", "Иванова")
	events := &eventRecorder{}
	svc := NewBookingService(db, memSlots{db}, memBookings{db}, memRoster{db}, BookingServiceConfig{
		Tracks: []string{"main", "reserve"},
		Picker: picker,
		Events: events,
	})
	return &bookingFixture{db: db, events: events, svc: svc}
}

func (f *bookingFixture) slot(interviewer, date, start, end string, tags ...string) *models.TimeSlot {
	return f.db.addSlot(models.TimeSlot{
		Track: "main", Section: "Day", InterviewerID: interviewer, SlotDate: date,
		TimeStart: start, TimeEnd: end, Tags: tags, IsAvailable: true,
	})
}

// assertAvailabilityConsistent checks that every slot is free exactly when no
// active booking references it.
func assertAvailabilityConsistent(t *testing.T, db *memDB) {
	t.Helper()
	held := map[string]int{}
	for _, b := range db.allBookings() {
		if b.Active() && b.SlotID != nil {
			held[*b.SlotID]++
		}
	}
	for _, s := range db.allSlots() {
		assert.LessOrEqual(t, held[s.ID], 1, "slot %s double booked", s.ID)
		assert.Equal(t, held[s.ID] == 0, s.IsAvailable, "slot %s availability", s.ID)
	}
}

func TestBookingScenarioClaimThenSlotTaken(t *testing.T) {
	f := newBookingFixture(t, nil)
	slot := f.slot("iv-1", "2025-11-08", "09:00", "09:45")

	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, resp.Booking.Status)
	assert.True(t, resp.Booking.CancellationAllowed)
	assert.Equal(t, "Иванова", resp.InterviewerName)
	require.NotNil(t, resp.Booking.SlotID)
	assert.Equal(t, slot.ID, *resp.Booking.SlotID)
	assert.False(t, f.db.slot(slot.ID).IsAvailable)

	_, err = f.svc.Claim(context.Background(), claimRequest("cand-b", "", "2025-11-08", "09:00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSlotTaken))
	var taken *models.SlotTakenError
	require.True(t, errors.As(err, &taken))
	assert.Empty(t, taken.Buckets)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventBookingCreated, events[0].Type)
	assert.Equal(t, "101", events[0].Interviewer.Key)
	assert.Equal(t, "09:00-09:45", events[0].TimeRange())
	assertAvailabilityConsistent(t, f.db)
}

func TestBookingScenarioCancelOnce(t *testing.T) {
	f := newBookingFixture(t, nil)
	slot := f.slot("iv-1", "2025-11-08", "09:00", "09:45")
	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-a"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.False(t, cancelled.CancellationAllowed)
	require.NotNil(t, cancelled.CancelledAt)
	assert.True(t, f.db.slot(slot.ID).IsAvailable)

	_, err = f.svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-a"})
	assert.True(t, errors.Is(err, appErrors.ErrCancellationNotAllowed))

	// A rebooking after the one permitted cancellation cannot be cancelled.
	again, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)
	assert.False(t, again.Booking.CancellationAllowed)
	_, err = f.svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: again.Booking.ID, CandidateID: "cand-a"})
	assert.True(t, errors.Is(err, appErrors.ErrCancellationNotAllowed))

	events := f.events.all()
	require.Len(t, events, 3)
	assert.Equal(t, models.EventBookingCancelled, events[1].Type)
	assertAvailabilityConsistent(t, f.db)
}

func TestBookingCancelRejectsOtherCandidate(t *testing.T) {
	f := newBookingFixture(t, nil)
	f.slot("iv-1", "2025-11-08", "09:00", "09:45")
	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-b"})
	assert.True(t, errors.Is(err, appErrors.ErrCancellationNotAllowed))

	_, err = f.svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: uuid.NewString(), CandidateID: "cand-a"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBookingAlreadyBookedReturnsExisting(t *testing.T) {
	f := newBookingFixture(t, nil)
	f.slot("iv-1", "2025-11-08", "09:00", "09:45")
	f.slot("iv-1", "2025-11-08", "10:00", "10:45")
	first, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "10:00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyBooked))
	var already *models.AlreadyBookedError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, first.Booking.ID, already.Existing.ID)
	assertAvailabilityConsistent(t, f.db)
}

func TestBookingRespectsCohortTags(t *testing.T) {
	f := newBookingFixture(t, nil)
	f.db.addInterviewer("iv-2", "102", "Петров", "Финфак")
	f.slot("iv-2", "2025-11-08", "09:00", "09:45")

	_, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "Юрфак", "2025-11-08", "09:00"))
	assert.True(t, errors.Is(err, appErrors.ErrSlotTaken))

	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-b", "Финфак", "2025-11-08", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, "iv-2", resp.Booking.InterviewerID)
}

func TestBookingPickerChoosesAmongBucket(t *testing.T) {
	var seen []int
	picker := PickerFunc(func(n int) int {
		seen = append(seen, n)
		return n - 1
	})
	f := newBookingFixture(t, picker)
	f.db.addInterviewer("iv-2", "102", "Петров")
	a := f.db.addSlot(models.TimeSlot{ID: "slot-a", Track: "main", InterviewerID: "iv-1", SlotDate: "2025-11-08", TimeStart: "09:00", TimeEnd: "09:45", IsAvailable: true})
	b := f.db.addSlot(models.TimeSlot{ID: "slot-b", Track: "main", InterviewerID: "iv-2", SlotDate: "2025-11-08", TimeStart: "09:00", TimeEnd: "09:45", IsAvailable: true})

	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, seen)
	assert.Equal(t, b.ID, *resp.Booking.SlotID)
	assert.True(t, f.db.slot(a.ID).IsAvailable)
}

func TestBookingPickerOutOfRangeIsInternal(t *testing.T) {
	for _, idx := range []int{-1, 1} {
		f := newBookingFixture(t, PickerFunc(func(n int) int { return idx }))
		slot := f.slot("iv-1", "2025-11-08", "09:00", "09:45")

		_, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrInternal), "index %d", idx)
		assert.True(t, f.db.slot(slot.ID).IsAvailable)
		assert.Empty(t, f.db.allBookings())
	}
}

type bookingMetricsRecorder struct {
	mu            sync.Mutex
	claims        []string
	cancellations []string
}

func (r *bookingMetricsRecorder) ObserveClaim(track, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = append(r.claims, track+"/"+outcome)
}

func (r *bookingMetricsRecorder) ObserveCancellation(track, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancellations = append(r.cancellations, track+"/"+outcome)
}

func TestBookingCancellationMetricsCarryTrack(t *testing.T) {
	db := newMemDB()
	db.addInterviewer("iv-1", "101", "Иванова")
	db.addSlot(models.TimeSlot{Track: "main", InterviewerID: "iv-1", SlotDate: "2025-11-08", TimeStart: "09:00", TimeEnd: "09:45", IsAvailable: true})
	metrics := &bookingMetricsRecorder{}
	svc := NewBookingService(db, memSlots{db}, memBookings{db}, memRoster{db}, BookingServiceConfig{
		Tracks:  []string{"main"},
		Metrics: metrics,
	})

	resp, err := svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-b"})
	require.Error(t, err)
	_, err = svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-a"})
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-a"})
	require.Error(t, err)
	_, err = svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: uuid.NewString(), CandidateID: "cand-a"})
	require.Error(t, err)

	assert.Equal(t, []string{"main/" + OutcomeConfirmed}, metrics.claims)
	assert.Equal(t, []string{
		"main/" + OutcomeNotAllowed,
		"main/" + OutcomeCancelled,
		"main/" + OutcomeNotAllowed,
		"/" + OutcomeError,
	}, metrics.cancellations)
}

func TestBookingRepairsStaleAvailabilityFlag(t *testing.T) {
	f := newBookingFixture(t, nil)
	slot := f.slot("iv-1", "2025-11-08", "09:00", "09:45")
	slotID := slot.ID
	require.NoError(t, memBookings{f.db}.Insert(context.Background(), nil, &models.Booking{
		Track: "main", SlotID: &slotID, CandidateID: "cand-x", InterviewerID: "iv-1", Status: models.BookingConfirmed,
	}))

	_, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	assert.True(t, errors.Is(err, appErrors.ErrSlotTaken))
	assert.False(t, f.db.slot(slot.ID).IsAvailable, "flag corrected and committed")
	assertAvailabilityConsistent(t, f.db)
}

func TestBookingValidationAndUnknownTrack(t *testing.T) {
	f := newBookingFixture(t, nil)

	_, err := f.svc.Claim(context.Background(), claimRequest("", "", "2025-11-08", "09:00"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Claim(context.Background(), claimRequest("cand-a", "", "08.11.2025", "09:00"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req := claimRequest("cand-a", "", "2025-11-08", "09:00")
	req.Track = "unknown"
	_, err = f.svc.Claim(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBookingConcurrentClaimsExactlyOneWins(t *testing.T) {
	for _, n := range []int{2, 8, 32} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			f := newBookingFixture(t, nil)
			f.slot("iv-1", "2025-11-08", "09:00", "09:45")

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins, taken := 0, 0
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := f.svc.Claim(context.Background(), claimRequest(fmt.Sprintf("cand-%d", i), "", "2025-11-08", "09:00"))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, appErrors.ErrSlotTaken):
						taken++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, wins)
			assert.Equal(t, n-1, taken)
			assertAvailabilityConsistent(t, f.db)
		})
	}
}

func TestBookingConcurrentClaimsBySameCandidate(t *testing.T) {
	f := newBookingFixture(t, nil)
	for i := 0; i < 6; i++ {
		f.slot("iv-1", "2025-11-08", fmt.Sprintf("%02d:00", 9+i), fmt.Sprintf("%02d:45", 9+i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", fmt.Sprintf("%02d:00", 9+i)))
		}(i)
	}
	wg.Wait()

	active := 0
	for _, b := range f.db.allBookings() {
		if b.Active() && b.CandidateID == "cand-a" {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assertAvailabilityConsistent(t, f.db)
}

func TestBookingConcurrentCancelTransitionsOnce(t *testing.T) {
	f := newBookingFixture(t, nil)
	f.slot("iv-1", "2025-11-08", "09:00", "09:45")
	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, denied := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Cancel(context.Background(), dto.CancelBookingRequest{BookingID: resp.Booking.ID, CandidateID: "cand-a"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, appErrors.ErrCancellationNotAllowed) {
				denied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, denied)
	assertAvailabilityConsistent(t, f.db)
}

func TestBookingCurrentAndList(t *testing.T) {
	f := newBookingFixture(t, nil)
	f.slot("iv-1", "2025-11-08", "09:00", "09:45")
	f.slot("iv-1", "2025-11-09", "09:00", "09:45")

	dates, err := f.svc.ListDates(context.Background(), "main", "")
	require.NoError(t, err)
	assert.Equal(t, []models.DateBucket{{Date: "2025-11-08", Available: 1}, {Date: "2025-11-09", Available: 1}}, dates)

	_, err = f.svc.Current(context.Background(), "main", "cand-a")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	resp, err := f.svc.Claim(context.Background(), claimRequest("cand-a", "", "2025-11-08", "09:00"))
	require.NoError(t, err)

	current, err := f.svc.Current(context.Background(), "main", "cand-a")
	require.NoError(t, err)
	assert.Equal(t, resp.Booking.ID, current.ID)

	buckets, err := f.svc.ListBuckets(context.Background(), dto.BucketQuery{Track: "main", Date: "2025-11-08"})
	require.NoError(t, err)
	assert.Empty(t, buckets)

	items, page, err := f.svc.List(context.Background(), dto.BookingFilter{Track: "main"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Иванова", items[0].InterviewerName)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 50, page.PageSize)
}
