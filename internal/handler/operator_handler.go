package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/internal/service"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/response"
)

type syncRunner interface {
	Run(ctx context.Context, principal *models.Principal, track string) (*models.SyncReport, error)
	LastReport(ctx context.Context, principal *models.Principal, track string) (*models.SyncReport, error)
}

type bookingLister interface {
	List(ctx context.Context, filter dto.BookingFilter) ([]models.BookingDetail, *models.Pagination, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, principal *models.Principal, query dto.ExportBookingsQuery) (*service.ExportFile, error)
}

// OperatorHandler exposes operator commands.
type OperatorHandler struct {
	sync     syncRunner
	bookings bookingLister
	export   rosterExporter
}

// NewOperatorHandler builds a new handler.
func NewOperatorHandler(sync syncRunner, bookings bookingLister, export rosterExporter) *OperatorHandler {
	return &OperatorHandler{sync: sync, bookings: bookings, export: export}
}

// Sync godoc
// @Summary Import availability and reconcile slots for a track
// @Tags Operator
// @Produce json
// @Security OperatorToken
// @Param track path string true "Track"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /operator/sync/{track} [post]
func (h *OperatorHandler) Sync(c *gin.Context) {
	report, err := h.sync.Run(c.Request.Context(), principalFromContext(c), c.Param("track"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// LastSync godoc
// @Summary Get the last sync report of a track
// @Tags Operator
// @Produce json
// @Security OperatorToken
// @Param track path string true "Track"
// @Success 200 {object} response.Envelope
// @Router /operator/sync/{track} [get]
func (h *OperatorHandler) LastSync(c *gin.Context) {
	report, err := h.sync.LastReport(c.Request.Context(), principalFromContext(c), c.Param("track"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Bookings godoc
// @Summary List bookings
// @Tags Operator
// @Produce json
// @Security OperatorToken
// @Param track query string false "Track"
// @Param status query string false "Status"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param candidate_id query string false "Candidate"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /operator/bookings [get]
func (h *OperatorHandler) Bookings(c *gin.Context) {
	var filter dto.BookingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	items, pagination, err := h.bookings.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Export godoc
// @Summary Download the booking roster
// @Tags Operator
// @Produce text/csv
// @Produce application/pdf
// @Security OperatorToken
// @Param track query string false "Track"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /operator/bookings/export [get]
func (h *OperatorHandler) Export(c *gin.Context) {
	var query dto.ExportBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.export.Roster(c.Request.Context(), principalFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
