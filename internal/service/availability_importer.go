package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/pkg/config"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/sheets"
)

// GridSource reads rectangular ranges of an external availability grid.
type GridSource interface {
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
}

// AvailabilityImporter turns availability grids into slot descriptors. It
// never writes to the slot store.
type AvailabilityImporter struct {
	source GridSource
	layout *config.AvailabilityLayout
	logger *zap.Logger
	now    func() time.Time
}

// NewAvailabilityImporter constructs the importer.
func NewAvailabilityImporter(source GridSource, layout *config.AvailabilityLayout, logger *zap.Logger) *AvailabilityImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityImporter{source: source, layout: layout, logger: logger, now: time.Now}
}

// Import reads every section of the track's grid. A failing section is logged
// and left out of the batch; only when all sections fail is the source
// reported unavailable.
func (i *AvailabilityImporter) Import(ctx context.Context, track string) (*models.ImportBatch, error) {
	layout, ok := i.layout.Track(track)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown track "+track)
	}
	if len(layout.Sections) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "track "+track+" has no sections")
	}

	batch := &models.ImportBatch{Track: track, ImportedAt: i.now().UTC()}
	acc := newBatchAccumulator(batch)
	lastCol := lastColumn(layout)

	for _, section := range layout.Sections {
		rng := sheets.Range(section.Name, 0, 1, lastCol, layout.MaxRows)
		rows, err := i.source.ReadRange(ctx, layout.SpreadsheetID, rng)
		if err != nil {
			i.logger.Warn("availability section read failed",
				zap.String("track", track),
				zap.String("section", section.Name),
				zap.Error(err),
			)
			batch.FailedSections = append(batch.FailedSections, section.Name)
			continue
		}
		batch.ReadSections = append(batch.ReadSections, section.Name)
		acc.addSection(layout, section, rows)
	}

	if len(batch.FailedSections) == len(layout.Sections) {
		return nil, appErrors.Clone(appErrors.ErrExternalSourceUnavailable, "no availability section of track "+track+" could be read")
	}

	batch.Summary = acc.summaries()
	i.logger.Info("availability imported",
		zap.String("track", track),
		zap.Int("slots", len(batch.Descriptors)),
		zap.Int("interviewers", len(batch.Summary)),
		zap.Int("skipped_rows", len(batch.Skipped)),
		zap.Strings("failed_sections", batch.FailedSections),
	)
	return batch, nil
}

func lastColumn(layout config.TrackLayout) int {
	last := layout.KeyColumn
	if layout.NameColumn > last {
		last = layout.NameColumn
	}
	for _, b := range layout.Buckets {
		if b.Column > last {
			last = b.Column
		}
	}
	return last
}

type batchAccumulator struct {
	batch   *models.ImportBatch
	seen    map[string]struct{}
	summary map[string]*models.InterviewerSummary
}

func newBatchAccumulator(batch *models.ImportBatch) *batchAccumulator {
	return &batchAccumulator{
		batch:   batch,
		seen:    make(map[string]struct{}),
		summary: make(map[string]*models.InterviewerSummary),
	}
}

func (a *batchAccumulator) addSection(layout config.TrackLayout, section config.SectionLayout, rows [][]string) {
	markers := make(map[string]struct{}, len(layout.Markers))
	for _, m := range layout.Markers {
		markers[m] = struct{}{}
	}
	skip := make(map[string]struct{}, len(layout.SkipBuckets))
	for _, s := range layout.SkipBuckets {
		skip[s] = struct{}{}
	}
	keysInSection := make(map[string]struct{})

	for idx, row := range rows {
		rowNum := idx + 1
		if idx < layout.HeaderRows || blank(row) {
			continue
		}
		name := cell(row, layout.NameColumn)
		if len(row) <= layout.KeyColumn {
			a.batch.Skipped = append(a.batch.Skipped, models.SkippedRow{
				Section: section.Name, Row: rowNum, Name: name, Reason: models.SkipMalformedRow,
			})
			continue
		}
		if name == "" {
			continue
		}
		key := cell(row, layout.KeyColumn)
		if key == "" {
			a.batch.Skipped = append(a.batch.Skipped, models.SkippedRow{
				Section: section.Name, Row: rowNum, Name: name, Reason: models.SkipMissingKey,
			})
			continue
		}
		// A key listed twice in one section is ambiguous; the first row wins.
		if _, dup := keysInSection[key]; dup {
			a.batch.Skipped = append(a.batch.Skipped, models.SkippedRow{
				Section: section.Name, Row: rowNum, InterviewerKey: key, Name: name, Reason: models.SkipMalformedRow,
			})
			continue
		}
		keysInSection[key] = struct{}{}

		a.batch.Scopes = append(a.batch.Scopes, models.ImportScope{Section: section.Name, InterviewerKey: key})
		sum := a.summaryFor(key, name)

		for _, bucket := range layout.Buckets {
			if _, skipped := skip[bucket.Start]; skipped {
				continue
			}
			if _, ok := markers[normaliseCell(cell(row, bucket.Column))]; !ok {
				continue
			}
			dedupe := key + "|" + section.Date + "|" + bucket.Start
			if _, dup := a.seen[dedupe]; dup {
				continue
			}
			a.seen[dedupe] = struct{}{}
			a.batch.Descriptors = append(a.batch.Descriptors, models.SlotDescriptor{
				InterviewerKey: key,
				Track:          layout.Name,
				Section:        section.Name,
				Date:           section.Date,
				TimeStart:      bucket.Start,
				TimeEnd:        addMinutes(bucket.Start, layout.SlotMinutes),
				Tags:           append([]string(nil), section.Tags...),
			})
			sum.Slots++
			sum.BySection[section.Name]++
		}
	}
}

func (a *batchAccumulator) summaryFor(key, name string) *models.InterviewerSummary {
	sum, ok := a.summary[key]
	if !ok {
		sum = &models.InterviewerSummary{Key: key, Name: name, BySection: map[string]int{}}
		a.summary[key] = sum
	}
	if sum.Name == "" {
		sum.Name = name
	}
	return sum
}

func (a *batchAccumulator) summaries() []models.InterviewerSummary {
	out := make([]models.InterviewerSummary, 0, len(a.summary))
	for _, s := range a.summary {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// normaliseCell folds case and whitespace so " Могу " matches "могу".
func normaliseCell(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func addMinutes(start string, minutes int) string {
	t, err := time.Parse(models.TimeLayout, start)
	if err != nil {
		return start
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format(models.TimeLayout)
}
