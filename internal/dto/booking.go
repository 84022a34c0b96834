package dto

import "github.com/AnatolyKozmin/Shend/internal/models"

// ClaimBookingRequest asks for any free slot in a time bucket.
type ClaimBookingRequest struct {
	Track       string `json:"-"`
	CandidateID string `json:"candidate_id" validate:"required,max=64"`
	Cohort      string `json:"cohort" validate:"max=64"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeStart   string `json:"time_start" validate:"required,datetime=15:04"`
	Notes       string `json:"notes" validate:"max=500"`
}

// CancelBookingRequest cancels a booking on behalf of its owner.
type CancelBookingRequest struct {
	BookingID   string `json:"-" validate:"required,uuid"`
	CandidateID string `json:"candidate_id" validate:"required,max=64"`
}

// BucketQuery selects free time buckets.
type BucketQuery struct {
	Track  string `form:"-" validate:"required"`
	Cohort string `form:"cohort" validate:"max=64"`
	Date   string `form:"date" validate:"omitempty,datetime=2006-01-02"`
}

// BookingFilter narrows operator booking listings.
type BookingFilter struct {
	Track       string `form:"track"`
	Status      string `form:"status" validate:"omitempty,oneof=pending confirmed cancelled"`
	Date        string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	CandidateID string `form:"candidate_id"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}

// ClaimBookingResponse is returned after a successful claim.
type ClaimBookingResponse struct {
	Booking         models.Booking `json:"booking"`
	InterviewerName string         `json:"interviewer_name"`
}

// ExportBookingsQuery selects the roster export format and scope.
type ExportBookingsQuery struct {
	Track  string `form:"track"`
	Date   string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
