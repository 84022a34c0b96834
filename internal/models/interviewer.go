package models

import (
	"time"

	"github.com/lib/pq"
)

// Interviewer is read from the roster; the booking core never mutates it.
type Interviewer struct {
	ID          string         `db:"id" json:"id"`
	ExternalKey string         `db:"external_key" json:"external_key"`
	FullName    string         `db:"full_name" json:"full_name"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	TelegramID  *int64         `db:"telegram_id" json:"telegram_id,omitempty"`
	Active      bool           `db:"active" json:"active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Serves reports whether the interviewer may take candidates of cohort. An
// interviewer without tags serves every cohort.
func (i Interviewer) Serves(cohort string) bool {
	return matchesTag(i.Tags, cohort)
}

func matchesTag(tags []string, tag string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
