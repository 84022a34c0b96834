package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/pkg/config"
	"github.com/AnatolyKozmin/Shend/pkg/jobs"
	"github.com/AnatolyKozmin/Shend/pkg/sheets"
)

type messagePublisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaSink publishes events as JSON for the chat bot, keyed by booking so a
// booking's events stay ordered.
type KafkaSink struct {
	producer messagePublisher
}

// NewKafkaSink wraps a producer.
func NewKafkaSink(producer messagePublisher) *KafkaSink {
	return &KafkaSink{producer: producer}
}

// Name implements Sink.
func (k *KafkaSink) Name() string { return "kafka" }

// Deliver implements Sink.
func (k *KafkaSink) Deliver(ctx context.Context, event models.BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	return k.producer.Publish(ctx, []byte(event.BookingID), payload)
}

type sheetWriter interface {
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
	AppendRow(ctx context.Context, spreadsheetID, sheet string, row []string) error
	WriteCell(ctx context.Context, spreadsheetID, sheet string, col, row int, value string) error
}

// SheetsSink keeps the record-keeping spreadsheet in step with bookings: one
// log row per event, and the candidate written into (or cleared from) the
// interviewer's matrix cell.
type SheetsSink struct {
	client        sheetWriter
	layout        *config.AvailabilityLayout
	spreadsheetID string
	logSheet      string
}

// NewSheetsSink constructs the sink. An empty logSheet disables the log rows.
func NewSheetsSink(client sheetWriter, layout *config.AvailabilityLayout, spreadsheetID, logSheet string) *SheetsSink {
	return &SheetsSink{client: client, layout: layout, spreadsheetID: spreadsheetID, logSheet: logSheet}
}

// Name implements Sink.
func (s *SheetsSink) Name() string { return "sheets" }

// Deliver implements Sink. A retried delivery may append the log row twice;
// the matrix write is idempotent. A matrix without the bucket column or the
// interviewer row fails permanently.
func (s *SheetsSink) Deliver(ctx context.Context, event models.BookingEvent) error {
	if err := s.writeMatrix(ctx, event); err != nil {
		return err
	}
	if s.logSheet == "" {
		return nil
	}
	row := []string{
		event.OccurredAt.Format(time.RFC3339),
		string(event.Type),
		event.Track,
		event.CandidateID,
		event.Cohort,
		event.Interviewer.Key,
		event.Interviewer.Name,
		event.Date,
		event.TimeRange(),
	}
	return s.client.AppendRow(ctx, s.spreadsheetID, s.logSheet, row)
}

func (s *SheetsSink) writeMatrix(ctx context.Context, event models.BookingEvent) error {
	layout, ok := s.layout.Track(event.Track)
	if !ok || layout.MatrixSheet == "" {
		return nil
	}
	col := -1
	for _, b := range layout.Buckets {
		if b.Start == event.TimeStart {
			col = b.Column
			break
		}
	}
	if col < 0 {
		return jobs.Permanent(fmt.Errorf("matrix %s: no column for bucket %s", layout.MatrixSheet, event.TimeStart))
	}

	keys, err := s.client.ReadRange(ctx, s.spreadsheetID, sheets.Range(layout.MatrixSheet, layout.KeyColumn, 1, layout.KeyColumn, layout.MaxRows))
	if err != nil {
		return err
	}
	row := 0
	for i, r := range keys {
		if len(r) > 0 && strings.TrimSpace(r[0]) == event.Interviewer.Key {
			row = i + 1
			break
		}
	}
	if row == 0 {
		return jobs.Permanent(fmt.Errorf("matrix %s: interviewer %q not found", layout.MatrixSheet, event.Interviewer.Key))
	}

	value := event.CandidateID
	if event.Type == models.EventBookingCancelled {
		value = ""
	}
	return s.client.WriteCell(ctx, s.spreadsheetID, layout.MatrixSheet, col, row, value)
}
