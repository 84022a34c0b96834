package models

import (
	"fmt"
	"time"
)

// BookingStatus enumerates booking lifecycle states.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Names of the partial unique indexes that guard active bookings.
const (
	ConstraintActiveSlot      = "bookings_active_slot_key"
	ConstraintActiveCandidate = "bookings_active_candidate_key"
)

// Booking is a candidate's claim on one slot. SlotID becomes nil if the slot
// is later removed; the date and time columns keep a snapshot for history.
type Booking struct {
	ID                  string        `db:"id" json:"id"`
	Track               string        `db:"track" json:"track"`
	SlotID              *string       `db:"slot_id" json:"slot_id,omitempty"`
	CandidateID         string        `db:"candidate_id" json:"candidate_id"`
	Cohort              string        `db:"cohort" json:"cohort"`
	InterviewerID       string        `db:"interviewer_id" json:"interviewer_id"`
	SlotDate            string        `db:"slot_date" json:"date"`
	TimeStart           string        `db:"time_start" json:"time_start"`
	TimeEnd             string        `db:"time_end" json:"time_end"`
	Status              BookingStatus `db:"status" json:"status"`
	CancellationAllowed bool          `db:"cancellation_allowed" json:"cancellation_allowed"`
	CancelledAt         *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Notes               string        `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the booking still holds its slot.
func (b Booking) Active() bool {
	return b.Status != BookingCancelled
}

// BookingDetail joins a booking with its interviewer for listings and exports.
type BookingDetail struct {
	Booking
	InterviewerName string `db:"interviewer_name" json:"interviewer_name"`
	InterviewerKey  string `db:"interviewer_key" json:"interviewer_key"`
}

// AlreadyBookedError carries the candidate's existing booking so callers can
// show it instead of a generic failure.
type AlreadyBookedError struct {
	Existing Booking
}

func (e *AlreadyBookedError) Error() string {
	return fmt.Sprintf("candidate %s already holds booking %s on %s %s", e.Existing.CandidateID, e.Existing.ID, e.Existing.SlotDate, e.Existing.TimeStart)
}

// SlotTakenError carries a refreshed view of the bucket the claim targeted.
type SlotTakenError struct {
	Buckets []TimeBucket
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot taken, %d buckets still open", len(e.Buckets))
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
