package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/pkg/database"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

type bookingSlotStore interface {
	ListAvailable(ctx context.Context, exec sqlx.ExtContext, filter models.SlotFilter) ([]models.TimeSlot, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
	SetAvailability(ctx context.Context, exec sqlx.ExtContext, id string, available bool) error
	ListDates(ctx context.Context, track, cohort string) ([]models.DateBucket, error)
	ListBuckets(ctx context.Context, track, cohort, date string) ([]models.TimeBucket, error)
}

type bookingStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error)
	ActiveForSlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.Booking, error)
	ActiveForCandidate(ctx context.Context, exec sqlx.ExtContext, track, candidateID string) (*models.Booking, error)
	HasCancelled(ctx context.Context, exec sqlx.ExtContext, track, candidateID string) (bool, error)
	MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
	List(ctx context.Context, filter dto.BookingFilter) ([]models.BookingDetail, int, error)
}

type interviewerReader interface {
	FindByID(ctx context.Context, id string) (*models.Interviewer, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.BookingEvent) error
}

type bookingMetrics interface {
	ObserveClaim(track, outcome string)
	ObserveCancellation(track, outcome string)
}

// BookingServiceConfig carries the optional collaborators of BookingService.
type BookingServiceConfig struct {
	Tracks    []string
	Picker    Picker
	Events    eventPublisher
	Metrics   bookingMetrics
	Validator *validator.Validate
	Logger    *zap.Logger
}

// BookingService claims and cancels interview slots. The slot row lock is the
// only serialization point between concurrent claims.
type BookingService struct {
	tx           txBeginner
	slots        bookingSlotStore
	bookings     bookingStore
	interviewers interviewerReader
	tracks       map[string]struct{}
	picker       Picker
	events       eventPublisher
	metrics      bookingMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewBookingService constructs the booking engine.
func NewBookingService(tx txBeginner, slots bookingSlotStore, bookings bookingStore, interviewers interviewerReader, cfg BookingServiceConfig) *BookingService {
	if cfg.Picker == nil {
		cfg.Picker = randomPicker{}
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var tracks map[string]struct{}
	if len(cfg.Tracks) > 0 {
		tracks = make(map[string]struct{}, len(cfg.Tracks))
		for _, t := range cfg.Tracks {
			tracks[t] = struct{}{}
		}
	}
	return &BookingService{
		tx:           tx,
		slots:        slots,
		bookings:     bookings,
		interviewers: interviewers,
		tracks:       tracks,
		picker:       cfg.Picker,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		validator:    cfg.Validator,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// errSlotGone is raised inside a claim transaction and converted to a
// SlotTaken error carrying fresh buckets once the transaction is over.
var errSlotGone = errors.New("slot gone")

// ListDates returns dates with at least one free slot for the cohort.
func (s *BookingService) ListDates(ctx context.Context, track, cohort string) ([]models.DateBucket, error) {
	if err := s.checkTrack(track); err != nil {
		return nil, err
	}
	dates, err := s.slots.ListDates(ctx, track, cohort)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dates")
	}
	return dates, nil
}

// ListBuckets returns free time buckets on a date for the cohort.
func (s *BookingService) ListBuckets(ctx context.Context, query dto.BucketQuery) ([]models.TimeBucket, error) {
	if err := s.checkTrack(query.Track); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bucket query")
	}
	if query.Date == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}
	buckets, err := s.slots.ListBuckets(ctx, query.Track, query.Cohort, query.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time buckets")
	}
	return buckets, nil
}

// Claim reserves any free slot of the requested bucket for the candidate.
func (s *BookingService) Claim(ctx context.Context, req dto.ClaimBookingRequest) (*dto.ClaimBookingResponse, error) {
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	req.Cohort = strings.TrimSpace(req.Cohort)
	if err := s.checkTrack(req.Track); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking request")
	}

	booking, err := s.claim(ctx, req)
	if err != nil {
		s.observeClaim(req.Track, claimOutcome(err))
		return nil, err
	}
	s.observeClaim(req.Track, OutcomeConfirmed)

	resp := &dto.ClaimBookingResponse{Booking: *booking}
	interviewer := s.lookupInterviewer(ctx, booking.InterviewerID)
	if interviewer != nil {
		resp.InterviewerName = interviewer.FullName
	}
	s.logger.Info("booking confirmed",
		zap.String("track", booking.Track),
		zap.String("booking_id", booking.ID),
		zap.String("candidate_id", booking.CandidateID),
		zap.String("interviewer_id", booking.InterviewerID),
		zap.String("date", booking.SlotDate),
		zap.String("time_start", booking.TimeStart),
	)
	s.publish(ctx, models.EventBookingCreated, booking, interviewer)
	return resp, nil
}

func (s *BookingService) claim(ctx context.Context, req dto.ClaimBookingRequest) (*models.Booking, error) {
	candidates, err := s.slots.ListAvailable(ctx, nil, models.SlotFilter{
		Track: req.Track, Cohort: req.Cohort, Date: req.Date, TimeStart: req.TimeStart,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list free slots")
	}
	if len(candidates) == 0 {
		return nil, s.slotTaken(ctx, req)
	}
	idx := s.picker.Intn(len(candidates))
	if idx < 0 || idx >= len(candidates) {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("picker returned index %d for %d slots", idx, len(candidates)))
	}
	picked := candidates[idx]

	var booking *models.Booking
	var existing *models.Booking
	err = withTx(ctx, s.tx, func(tx database.Tx) error {
		slot, err := s.slots.LockByID(ctx, tx, picked.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errSlotGone
			}
			return err
		}
		if !slot.IsAvailable {
			return errSlotGone
		}

		holder, err := s.bookings.ActiveForSlot(ctx, tx, slot.ID)
		switch {
		case err == nil:
			// The flag says free but a booking holds the slot; repair the flag.
			s.logger.Warn("slot flagged free while booked",
				zap.String("slot_id", slot.ID),
				zap.String("booking_id", holder.ID),
			)
			if err := s.slots.SetAvailability(ctx, tx, slot.ID, false); err != nil {
				return err
			}
			return commitThen{err: errSlotGone}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		current, err := s.bookings.ActiveForCandidate(ctx, tx, req.Track, req.CandidateID)
		switch {
		case err == nil:
			existing = current
			return appErrors.ErrAlreadyBooked
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		cancelled, err := s.bookings.HasCancelled(ctx, tx, req.Track, req.CandidateID)
		if err != nil {
			return err
		}

		slotID := slot.ID
		b := &models.Booking{
			ID:                  uuid.NewString(),
			Track:               req.Track,
			SlotID:              &slotID,
			CandidateID:         req.CandidateID,
			Cohort:              req.Cohort,
			InterviewerID:       slot.InterviewerID,
			SlotDate:            slot.SlotDate,
			TimeStart:           slot.TimeStart,
			TimeEnd:             slot.TimeEnd,
			Status:              models.BookingConfirmed,
			CancellationAllowed: !cancelled,
			Notes:               strings.TrimSpace(req.Notes),
			CreatedAt:           s.now().UTC(),
		}
		if err := s.bookings.Insert(ctx, tx, b); err != nil {
			return err
		}
		if err := s.slots.SetAvailability(ctx, tx, slot.ID, false); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err == nil {
		return booking, nil
	}

	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case models.ConstraintActiveCandidate:
			err = appErrors.ErrAlreadyBooked
		default:
			err = errSlotGone
		}
	}
	switch {
	case errors.Is(err, errSlotGone):
		return nil, s.slotTaken(ctx, req)
	case errors.Is(err, appErrors.ErrAlreadyBooked):
		return nil, s.alreadyBooked(ctx, req, existing)
	}
	return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim slot")
}

// slotTaken builds a SlotTaken error with the buckets still open on the date.
func (s *BookingService) slotTaken(ctx context.Context, req dto.ClaimBookingRequest) error {
	buckets, err := s.slots.ListBuckets(ctx, req.Track, req.Cohort, req.Date)
	if err != nil {
		s.logger.Warn("refresh buckets failed", zap.String("track", req.Track), zap.Error(err))
	}
	return appErrors.Wrap(&models.SlotTakenError{Buckets: buckets}, appErrors.ErrSlotTaken.Code, appErrors.ErrSlotTaken.Status, appErrors.ErrSlotTaken.Message)
}

func (s *BookingService) alreadyBooked(ctx context.Context, req dto.ClaimBookingRequest, existing *models.Booking) error {
	if existing == nil {
		found, err := s.bookings.ActiveForCandidate(ctx, nil, req.Track, req.CandidateID)
		if err != nil {
			s.logger.Warn("load existing booking failed", zap.String("candidate_id", req.CandidateID), zap.Error(err))
			return appErrors.Clone(appErrors.ErrAlreadyBooked, "")
		}
		existing = found
	}
	return appErrors.Wrap(&models.AlreadyBookedError{Existing: *existing}, appErrors.ErrAlreadyBooked.Code, appErrors.ErrAlreadyBooked.Status, appErrors.ErrAlreadyBooked.Message)
}

// Cancel cancels the candidate's booking once and frees its slot.
func (s *BookingService) Cancel(ctx context.Context, req dto.CancelBookingRequest) (*models.Booking, error) {
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation request")
	}

	var cancelled *models.Booking
	var track string
	err := withTx(ctx, s.tx, func(tx database.Tx) error {
		booking, err := s.bookings.LockByID(ctx, tx, req.BookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
			}
			return err
		}
		track = booking.Track
		if booking.CandidateID != req.CandidateID || !booking.Active() || !booking.CancellationAllowed {
			return appErrors.ErrCancellationNotAllowed
		}

		at := s.now().UTC()
		if err := s.bookings.MarkCancelled(ctx, tx, booking.ID, at); err != nil {
			return err
		}
		if booking.SlotID != nil {
			slot, err := s.slots.LockByID(ctx, tx, *booking.SlotID)
			switch {
			case err == nil:
				if err := s.slots.SetAvailability(ctx, tx, slot.ID, true); err != nil {
					return err
				}
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		booking.Status = models.BookingCancelled
		booking.CancelledAt = &at
		booking.CancellationAllowed = false
		booking.UpdatedAt = at
		cancelled = booking
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if !errors.As(err, &appErr) {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
		}
		outcome := OutcomeError
		if errors.Is(err, appErrors.ErrCancellationNotAllowed) {
			outcome = OutcomeNotAllowed
		}
		s.observeCancellation(track, outcome)
		return nil, err
	}

	s.observeCancellation(cancelled.Track, OutcomeCancelled)
	s.logger.Info("booking cancelled",
		zap.String("track", cancelled.Track),
		zap.String("booking_id", cancelled.ID),
		zap.String("candidate_id", cancelled.CandidateID),
	)
	s.publish(ctx, models.EventBookingCancelled, cancelled, s.lookupInterviewer(ctx, cancelled.InterviewerID))
	return cancelled, nil
}

// Current returns the candidate's active booking in the track.
func (s *BookingService) Current(ctx context.Context, track, candidateID string) (*models.Booking, error) {
	if err := s.checkTrack(track); err != nil {
		return nil, err
	}
	booking, err := s.bookings.ActiveForCandidate(ctx, nil, track, strings.TrimSpace(candidateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active booking")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

// List returns bookings for operators.
func (s *BookingService) List(ctx context.Context, filter dto.BookingFilter) ([]models.BookingDetail, *models.Pagination, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking filter")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	items, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *BookingService) checkTrack(track string) error {
	if track == "" {
		return appErrors.Clone(appErrors.ErrValidation, "track is required")
	}
	if s.tracks == nil {
		return nil
	}
	if _, ok := s.tracks[track]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "unknown track "+track)
	}
	return nil
}

func (s *BookingService) lookupInterviewer(ctx context.Context, id string) *models.Interviewer {
	if s.interviewers == nil {
		return nil
	}
	interviewer, err := s.interviewers.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("load interviewer failed", zap.String("interviewer_id", id), zap.Error(err))
		return nil
	}
	return interviewer
}

// publish hands the event to the sinks. The booking is already committed, so
// a publishing failure is logged and never reported to the candidate.
func (s *BookingService) publish(ctx context.Context, kind models.BookingEventType, booking *models.Booking, interviewer *models.Interviewer) {
	if s.events == nil {
		return
	}
	event := models.BookingEvent{
		ID:          uuid.NewString(),
		Type:        kind,
		BookingID:   booking.ID,
		Track:       booking.Track,
		CandidateID: booking.CandidateID,
		Cohort:      booking.Cohort,
		Interviewer: models.EventInterviewer{ID: booking.InterviewerID},
		Date:        booking.SlotDate,
		TimeStart:   booking.TimeStart,
		TimeEnd:     booking.TimeEnd,
		OccurredAt:  s.now().UTC(),
	}
	if interviewer != nil {
		event.Interviewer.Key = interviewer.ExternalKey
		event.Interviewer.Name = interviewer.FullName
		event.Interviewer.TelegramID = interviewer.TelegramID
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("publish booking event failed",
			zap.String("booking_id", booking.ID),
			zap.String("event_type", string(kind)),
			zap.Error(err),
		)
	}
}

func (s *BookingService) observeClaim(track, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveClaim(track, outcome)
	}
}

func (s *BookingService) observeCancellation(track, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCancellation(track, outcome)
	}
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrSlotTaken):
		return OutcomeSlotTaken
	case errors.Is(err, appErrors.ErrAlreadyBooked):
		return OutcomeAlreadyBooked
	default:
		return OutcomeError
	}
}
