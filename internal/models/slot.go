package models

import (
	"time"

	"github.com/lib/pq"
)

// DateLayout is the wire and storage format of slot dates.
const DateLayout = "2006-01-02"

// TimeLayout is the format of slot start and end times.
const TimeLayout = "15:04"

// TimeSlot is one bookable unit of an interviewer's availability.
type TimeSlot struct {
	ID            string         `db:"id" json:"id"`
	Track         string         `db:"track" json:"track"`
	Section       string         `db:"section" json:"section"`
	InterviewerID string         `db:"interviewer_id" json:"interviewer_id"`
	SlotDate      string         `db:"slot_date" json:"date"`
	TimeStart     string         `db:"time_start" json:"time_start"`
	TimeEnd       string         `db:"time_end" json:"time_end"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	IsAvailable   bool           `db:"is_available" json:"is_available"`
	SyncedAt      time.Time      `db:"synced_at" json:"synced_at"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// SlotKey is the natural key of a slot.
type SlotKey struct {
	Track         string
	InterviewerID string
	Date          string
	TimeStart     string
}

// Key returns the slot's natural key.
func (s TimeSlot) Key() SlotKey {
	return SlotKey{Track: s.Track, InterviewerID: s.InterviewerID, Date: s.SlotDate, TimeStart: s.TimeStart}
}

// Open reports whether a candidate of cohort may be seated in the slot.
func (s TimeSlot) Open(cohort string) bool {
	return matchesTag(s.Tags, cohort)
}

// ScopedSlot is a slot read under lock during reconciliation. Reserved is
// true when the slot is taken or referenced by an active booking.
type ScopedSlot struct {
	TimeSlot
	Reserved bool `db:"reserved"`
}

// SlotFilter narrows available-slot lookups.
type SlotFilter struct {
	Track     string
	Cohort    string
	Date      string
	TimeStart string
}

// DateBucket counts free slots on a date.
type DateBucket struct {
	Date      string `db:"slot_date" json:"date"`
	Available int    `db:"available" json:"available"`
}

// TimeBucket counts free slots starting at the same time of day.
type TimeBucket struct {
	Date      string `db:"slot_date" json:"date"`
	TimeStart string `db:"time_start" json:"time_start"`
	TimeEnd   string `db:"time_end" json:"time_end"`
	Available int    `db:"available" json:"available"`
}
