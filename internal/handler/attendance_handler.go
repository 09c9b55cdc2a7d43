package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classtrack/attendance-api/internal/models"
	"github.com/classtrack/attendance-api/internal/service"
	appErrors "github.com/classtrack/attendance-api/pkg/errors"
	"github.com/classtrack/attendance-api/pkg/response"
)

type attendanceService interface {
	BulkRecord(ctx context.Context, req service.BulkRecordRequest) error
	DailyStats(ctx context.Context, date string) (*models.DailyStats, bool, error)
	MonthlyReport(ctx context.Context, year, month int, class, section string) (*models.MonthlyReport, error)
	List(ctx context.Context, req service.ListRequest) ([]models.AttendanceRecord, *models.Pagination, error)
}

type reportExporter interface {
	MonthlyReport(report *models.MonthlyReport, format string) (*service.ExportResult, error)
}

// AttendanceHandler exposes the attendance recording and reporting endpoints.
type AttendanceHandler struct {
	service  attendanceService
	exporter reportExporter
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService, exporter reportExporter) *AttendanceHandler {
	return &AttendanceHandler{service: service, exporter: exporter}
}

// BulkRecord godoc
// @Summary Record attendance marks for one date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkRecordRequest true "Attendance batch"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkRecord(c *gin.Context) {
	var req service.BulkRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		userID := claims.UserID
		req.RecordedBy = &userID
	}

	if err := h.service.BulkRecord(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "attendance saved"}, nil)
}

// DailyStats godoc
// @Summary Daily attendance statistics
// @Tags Attendance
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/daily-stats [get]
func (h *AttendanceHandler) DailyStats(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	stats, cacheHit, err := h.service.DailyStats(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"cache": "miss"}
	if cacheHit {
		meta["cache"] = "hit"
	}
	response.JSON(c, http.StatusOK, stats, nil, meta)
}

// MonthlyReport godoc
// @Summary Monthly per-student attendance report
// @Tags Attendance
// @Produce json
// @Param year query int true "Year"
// @Param month query int true "Month (1-12)"
// @Param class query string false "Class filter"
// @Param section query string false "Section filter"
// @Success 200 {object} response.Envelope
// @Router /attendance/monthly-report [get]
func (h *AttendanceHandler) MonthlyReport(c *gin.Context) {
	year, month, err := monthlyReportParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	report, err := h.service.MonthlyReport(c.Request.Context(), year, month, c.Query("class"), c.Query("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportMonthlyReport godoc
// @Summary Download the monthly report as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param year query int true "Year"
// @Param month query int true "Month (1-12)"
// @Param format query string false "Export format (csv or pdf)"
// @Param class query string false "Class filter"
// @Param section query string false "Section filter"
// @Success 200 {file} binary
// @Router /attendance/monthly-report/export [get]
func (h *AttendanceHandler) ExportMonthlyReport(c *gin.Context) {
	year, month, err := monthlyReportParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := c.DefaultQuery("format", "csv")

	report, err := h.service.MonthlyReport(c.Request.Context(), year, month, c.Query("class"), c.Query("section"))
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.exporter.MonthlyReport(report, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// List godoc
// @Summary Paginated attendance marks
// @Tags Attendance
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param status query string false "Status filter (present, absent, late)"
// @Param class query string false "Class filter"
// @Param section query string false "Section filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	req := service.ListRequest{
		Date:     c.Query("date"),
		Status:   c.Query("status"),
		Class:    c.Query("class"),
		Section:  c.Query("section"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	records, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

func monthlyReportParams(c *gin.Context) (int, int, error) {
	year := parseQueryInt(c, "year", 0)
	if year <= 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "year is required")
	}
	month := parseQueryInt(c, "month", 0)
	if month < 1 || month > 12 {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	return year, month, nil
}
