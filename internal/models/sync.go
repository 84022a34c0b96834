package models

import "time"

// SlotDescriptor is one available cell of an availability grid.
type SlotDescriptor struct {
	InterviewerKey string   `json:"interviewer_key"`
	Track          string   `json:"track"`
	Section        string   `json:"section"`
	Date           string   `json:"date"`
	TimeStart      string   `json:"time_start"`
	TimeEnd        string   `json:"time_end"`
	Tags           []string `json:"tags,omitempty"`
}

// ImportScope marks an interviewer row that was read from a section. An
// interviewer with a scope is touched by the batch even when the row offers
// no slots.
type ImportScope struct {
	Section        string `json:"section"`
	InterviewerKey string `json:"interviewer_key"`
}

// SkipReason explains why a grid row produced no slots.
type SkipReason string

const (
	SkipMissingKey         SkipReason = "missing_correlation_key"
	SkipMalformedRow       SkipReason = "malformed_row"
	SkipUnknownInterviewer SkipReason = "unknown_interviewer"
)

// SkippedRow reports a grid row that was ignored.
type SkippedRow struct {
	Section        string     `json:"section"`
	Row            int        `json:"row"`
	InterviewerKey string     `json:"interviewer_key,omitempty"`
	Name           string     `json:"name,omitempty"`
	Reason         SkipReason `json:"reason"`
}

// InterviewerSummary counts imported slots per interviewer.
type InterviewerSummary struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Slots     int            `json:"slots"`
	BySection map[string]int `json:"by_section"`
}

// ImportBatch is the pure output of one availability import.
type ImportBatch struct {
	Track          string               `json:"track"`
	Descriptors    []SlotDescriptor     `json:"-"`
	Scopes         []ImportScope        `json:"-"`
	Skipped        []SkippedRow         `json:"skipped"`
	Summary        []InterviewerSummary `json:"summary"`
	ReadSections   []string             `json:"read_sections"`
	FailedSections []string             `json:"failed_sections,omitempty"`
	ImportedAt     time.Time            `json:"imported_at"`
}

// ReconcileReport aggregates the outcome of merging a batch into the slot store.
type ReconcileReport struct {
	Track                     string       `json:"track"`
	Added                     int          `json:"added"`
	Updated                   int          `json:"updated"`
	Unchanged                 int          `json:"unchanged"`
	SkippedOccupied           int          `json:"skipped_occupied"`
	SkippedUnknownInterviewer int          `json:"skipped_unknown_interviewer"`
	DeletedStale              int          `json:"deleted_stale"`
	Errors                    int          `json:"errors"`
	Skipped                   []SkippedRow `json:"skipped,omitempty"`
}

// NetChanges is the number of slot rows the pass inserted, changed or removed.
func (r ReconcileReport) NetChanges() int {
	return r.Added + r.Updated + r.DeletedStale
}

// SyncReport is returned to operators after a full import and reconcile pass.
type SyncReport struct {
	Track          string               `json:"track"`
	TriggeredBy    string               `json:"triggered_by"`
	Interviewers   []InterviewerSummary `json:"interviewers"`
	FailedSections []string             `json:"failed_sections,omitempty"`
	Reconcile      ReconcileReport      `json:"reconcile"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
}
