package models

import "time"

// BookingEventType distinguishes booking transitions.
type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "created"
	EventBookingCancelled BookingEventType = "cancelled"
)

// EventInterviewer is the interviewer part of a booking event.
type EventInterviewer struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

// BookingEvent is emitted after a booking transition commits.
type BookingEvent struct {
	ID          string           `json:"id"`
	Type        BookingEventType `json:"event_type"`
	BookingID   string           `json:"booking_id"`
	Track       string           `json:"track"`
	CandidateID string           `json:"candidate"`
	Cohort      string           `json:"cohort,omitempty"`
	Interviewer EventInterviewer `json:"interviewer"`
	Date        string           `json:"date"`
	TimeStart   string           `json:"time_start"`
	TimeEnd     string           `json:"time_end"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// TimeRange renders "HH:MM-HH:MM".
func (e BookingEvent) TimeRange() string {
	return e.TimeStart + "-" + e.TimeEnd
}
