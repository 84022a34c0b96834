package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/export"
)

type bookingLister interface {
	List(ctx context.Context, filter dto.BookingFilter) ([]models.BookingDetail, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered roster ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the booking roster for operators.
type ExportService struct {
	bookings   bookingLister
	csv        csvRenderer
	pdf        pdfRenderer
	authorizer Authorizer
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(bookings bookingLister, csv csvRenderer, pdf pdfRenderer, authorizer Authorizer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	if authorizer == nil {
		authorizer = CapabilityAuthorizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		bookings:   bookings,
		csv:        csv,
		pdf:        pdf,
		authorizer: authorizer,
		validator:  validator.New(),
		logger:     logger,
		now:        time.Now,
	}
}

var rosterHeaders = []string{"date", "time", "interviewer", "interviewer_key", "candidate", "cohort", "status"}

// Roster renders the active bookings matching query.
func (s *ExportService) Roster(ctx context.Context, principal *models.Principal, query dto.ExportBookingsQuery) (*ExportFile, error) {
	if err := s.authorizer.Authorize(principal, models.CapabilityViewBookings); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	if query.Format == "" {
		query.Format = "csv"
	}

	items, _, err := s.bookings.List(ctx, dto.BookingFilter{Track: query.Track, Date: query.Date})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	dataset := export.Dataset{Headers: rosterHeaders}
	for _, item := range items {
		if !item.Active() {
			continue
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"date":            item.SlotDate,
			"time":            item.TimeStart + "-" + item.TimeEnd,
			"interviewer":     item.InterviewerName,
			"interviewer_key": item.InterviewerKey,
			"candidate":       item.CandidateID,
			"cohort":          item.Cohort,
			"status":          string(item.Status),
		})
	}

	name := s.filename(query)
	var file *ExportFile
	switch query.Format {
	case "pdf":
		data, err := s.pdf.Render(dataset, s.title(query))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = &ExportFile{Filename: name + ".pdf", ContentType: "application/pdf", Data: data}
	default:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = &ExportFile{Filename: name + ".csv", ContentType: "text/csv; charset=utf-8", Data: data}
	}

	s.logger.Info("booking roster exported",
		zap.String("principal", principal.ID),
		zap.String("track", query.Track),
		zap.String("format", query.Format),
		zap.Int("rows", len(dataset.Rows)),
	)
	return file, nil
}

func (s *ExportService) filename(query dto.ExportBookingsQuery) string {
	parts := []string{"bookings"}
	if query.Track != "" {
		parts = append(parts, query.Track)
	}
	if query.Date != "" {
		parts = append(parts, query.Date)
	}
	parts = append(parts, s.now().UTC().Format("20060102-150405"))
	return strings.Join(parts, "_")
}

func (s *ExportService) title(query dto.ExportBookingsQuery) string {
	title := "Interview bookings"
	if query.Track != "" {
		title = fmt.Sprintf("%s: %s", title, query.Track)
	}
	if query.Date != "" {
		title = fmt.Sprintf("%s, %s", title, query.Date)
	}
	return title
}
