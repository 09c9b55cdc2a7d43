package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/attendance-api/internal/models"
	"github.com/classtrack/attendance-api/internal/notify"
	appErrors "github.com/classtrack/attendance-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type attendanceRepository interface {
	BulkUpsert(ctx context.Context, marks []models.Attendance) ([]models.Attendance, error)
	CountsByDate(ctx context.Context, date time.Time) (models.StatusCounts, error)
	ListRange(ctx context.Context, from, to time.Time, class, section string) ([]models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type studentLookup interface {
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// AttendanceService coordinates attendance recording and reporting.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentLookup
	cache     statsCache
	notifier  notify.Notifier
	validator *validator.Validate
	logger    *zap.Logger
	statsTTL  time.Duration
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students studentLookup, cache statsCache, notifier notify.Notifier, validate *validator.Validate, logger *zap.Logger, statsTTL time.Duration) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = 10 * time.Minute
	}
	svc := &AttendanceService{
		repo:      repo,
		students:  students,
		cache:     cache,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		statsTTL:  statsTTL,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// BulkRecordItem holds one mark inside a bulk submission.
type BulkRecordItem struct {
	StudentID int64   `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Note      *string `json:"note"`
}

// BulkRecordRequest describes the bulk record payload. RecordedBy comes
// from the authenticated caller, not the body.
type BulkRecordRequest struct {
	Date       string           `json:"date" validate:"required"`
	Records    []BulkRecordItem `json:"records" validate:"required,min=1,dive"`
	RecordedBy *int64           `json:"-"`
}

// BulkRecord applies all marks for one date in a single transaction,
// invalidates the daily stats cache entry for that date once, and emits
// one recorded notification per written mark. A failing mark discards
// the whole batch.
func (s *AttendanceService) BulkRecord(ctx context.Context, req BulkRecordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}

	if err := s.checkStudentsExist(ctx, req.Records); err != nil {
		return err
	}

	marks := make([]models.Attendance, len(req.Records))
	for i, item := range req.Records {
		marks[i] = models.Attendance{
			StudentID:  item.StudentID,
			Date:       date,
			Status:     models.AttendanceStatus(strings.ToLower(item.Status)),
			Note:       item.Note,
			RecordedBy: req.RecordedBy,
		}
	}

	stored, err := s.repo.BulkUpsert(ctx, marks)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	// Invalidation runs once per batch, only after a successful commit.
	// A cache fault must not fail the already-committed write.
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, statsCacheKey(req.Date)); err != nil {
			s.logger.Warn("daily stats invalidation failed", zap.String("date", req.Date), zap.Error(err))
		}
	}

	if s.notifier != nil {
		for _, mark := range stored {
			s.notifier.Recorded(notify.RecordedEvent{
				StudentID: mark.StudentID,
				Date:      mark.Date,
				Status:    mark.Status,
			})
		}
	}
	return nil
}

func (s *AttendanceService) checkStudentsExist(ctx context.Context, records []BulkRecordItem) error {
	unique := make(map[int64]struct{}, len(records))
	ids := make([]int64, 0, len(records))
	for _, item := range records {
		if _, ok := unique[item.StudentID]; ok {
			continue
		}
		unique[item.StudentID] = struct{}{}
		ids = append(ids, item.StudentID)
	}
	existing, err := s.students.ExistingIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify students")
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown student ids: %v", missing))
	}
	return nil
}

// DailyStats returns the per-status totals for one date, served from the
// stats cache when a fresh snapshot exists. The boolean reports whether
// the cache was hit. Cache faults fall back to direct computation.
func (s *AttendanceService) DailyStats(ctx context.Context, dateStr string) (*models.DailyStats, bool, error) {
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}

	key := statsCacheKey(dateStr)
	if s.cache != nil {
		var cached models.DailyStats
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("daily stats cache read failed", zap.String("date", dateStr), zap.Error(err))
		}
		if hit {
			return &cached, true, nil
		}
	}

	counts, err := s.repo.CountsByDate(ctx, date)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute daily stats")
	}

	stats := &models.DailyStats{
		Date:    dateStr,
		Total:   counts.Total,
		Present: counts.Present,
		Absent:  counts.Absent,
		Late:    counts.Late,
		Percent: percentage(counts.Present, counts.Total),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.statsTTL); err != nil {
			s.logger.Warn("daily stats cache write failed", zap.String("date", dateStr), zap.Error(err))
		}
	}
	return stats, false, nil
}

// MonthlyReport aggregates one calendar month into per-student records.
// Both filters are optional and independent; an empty string disables
// the restriction. The result is always computed fresh.
func (s *AttendanceService) MonthlyReport(ctx context.Context, year, month int, class, section string) (*models.MonthlyReport, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	rows, err := s.repo.ListRange(ctx, start, end, class, section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load monthly attendance")
	}

	// First pass partitions marks by student, keeping first-seen order.
	order := make([]int64, 0)
	groups := make(map[int64][]models.AttendanceRecord)
	for _, row := range rows {
		if _, ok := groups[row.StudentID]; !ok {
			order = append(order, row.StudentID)
		}
		groups[row.StudentID] = append(groups[row.StudentID], row)
	}

	records := make([]models.MonthlyReportRecord, 0, len(order))
	for _, studentID := range order {
		group := groups[studentID]
		present := 0
		attendances := make([]models.AttendanceDetail, len(group))
		for i, mark := range group {
			if mark.Status == models.AttendanceStatusPresent {
				present++
			}
			attendances[i] = models.AttendanceDetail{
				Date:   mark.Date.Format(dateLayout),
				Status: mark.Status,
				Note:   mark.Note,
			}
		}
		first := group[0]
		records = append(records, models.MonthlyReportRecord{
			Student: models.StudentInfo{
				ID:      first.StudentID,
				Name:    first.StudentName,
				Code:    first.StudentCode,
				Class:   first.StudentClass,
				Section: first.StudentSection,
			},
			Present:     present,
			Total:       len(group),
			Percent:     percentage(present, len(group)),
			Attendances: attendances,
		})
	}

	return &models.MonthlyReport{
		Year:    year,
		Month:   month,
		Class:   class,
		Section: section,
		Records: records,
	}, nil
}

// ListRequest filters the paginated mark listing.
type ListRequest struct {
	Date     string
	Status   string
	Class    string
	Section  string
	Page     int
	PageSize int
}

// List returns paginated marks with student metadata.
func (s *AttendanceService) List(ctx context.Context, req ListRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	filter := models.AttendanceFilter{
		Class:    req.Class,
		Section:  req.Section,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Status != "" {
		status := models.AttendanceStatus(req.Status)
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status, expected present, absent or late")
		}
		filter.Status = status
	}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
		}
		filter.Date = &date
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	filter.Page = page
	filter.PageSize = size

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

func statsCacheKey(date string) string {
	return "attendance:stats:" + date
}

func percentage(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(present)*100/float64(total)*100) / 100
}
