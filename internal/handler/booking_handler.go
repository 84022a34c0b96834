package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/response"
)

type bookingService interface {
	ListDates(ctx context.Context, track, cohort string) ([]models.DateBucket, error)
	ListBuckets(ctx context.Context, query dto.BucketQuery) ([]models.TimeBucket, error)
	Claim(ctx context.Context, req dto.ClaimBookingRequest) (*dto.ClaimBookingResponse, error)
	Cancel(ctx context.Context, req dto.CancelBookingRequest) (*models.Booking, error)
	Current(ctx context.Context, track, candidateID string) (*models.Booking, error)
}

// BookingHandler serves the candidate booking flow.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(service bookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// Dates godoc
// @Summary List dates with free slots
// @Tags Bookings
// @Produce json
// @Param track path string true "Track"
// @Param cohort query string false "Candidate cohort"
// @Success 200 {object} response.Envelope
// @Router /tracks/{track}/dates [get]
func (h *BookingHandler) Dates(c *gin.Context) {
	dates, err := h.service.ListDates(c.Request.Context(), c.Param("track"), c.Query("cohort"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil)
}

// Buckets godoc
// @Summary List free time buckets on a date
// @Tags Bookings
// @Produce json
// @Param track path string true "Track"
// @Param cohort query string false "Candidate cohort"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /tracks/{track}/buckets [get]
func (h *BookingHandler) Buckets(c *gin.Context) {
	var query dto.BucketQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	query.Track = c.Param("track")
	buckets, err := h.service.ListBuckets(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, buckets, nil)
}

// Claim godoc
// @Summary Claim a slot in a time bucket
// @Description Assigns a random free interviewer of the bucket. A 409 SLOT_TAKEN carries the buckets still open in meta; a 409 ALREADY_BOOKED carries the existing booking in data.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param track path string true "Track"
// @Param payload body dto.ClaimBookingRequest true "Claim payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tracks/{track}/bookings [post]
func (h *BookingHandler) Claim(c *gin.Context) {
	var req dto.ClaimBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	req.Track = c.Param("track")

	resp, err := h.service.Claim(c.Request.Context(), req)
	if err != nil {
		var taken *models.SlotTakenError
		var already *models.AlreadyBookedError
		switch {
		case errors.As(err, &taken):
			response.ErrorWith(c, err, nil, map[string]interface{}{"buckets": taken.Buckets})
		case errors.As(err, &already):
			response.ErrorWith(c, err, already.Existing, nil)
		default:
			response.Error(c, err)
		}
		return
	}
	response.Created(c, resp)
}

// Current godoc
// @Summary Get a candidate's active booking
// @Tags Bookings
// @Produce json
// @Param track path string true "Track"
// @Param candidate path string true "Candidate ID"
// @Success 200 {object} response.Envelope
// @Router /tracks/{track}/candidates/{candidate}/booking [get]
func (h *BookingHandler) Current(c *gin.Context) {
	booking, err := h.service.Current(c.Request.Context(), c.Param("track"), c.Param("candidate"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Cancel godoc
// @Summary Cancel a booking
// @Description A candidate may cancel once per track; later bookings cannot be cancelled.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest true "Cancel payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req dto.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
		return
	}
	req.BookingID = c.Param("id")

	booking, err := h.service.Cancel(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}
