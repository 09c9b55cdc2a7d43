package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-api/internal/models"
	"github.com/classtrack/attendance-api/internal/notify"
	appErrors "github.com/classtrack/attendance-api/pkg/errors"
)

// fakeAttendanceRepo keeps marks in memory keyed by (student, date) so
// upsert semantics match the real table's uniqueness constraint.
type fakeAttendanceRepo struct {
	marks       map[string]models.Attendance
	students    map[int64]models.Student
	upsertCalls int
	countCalls  int
	failUpsert  error
}

func newFakeAttendanceRepo(students ...models.Student) *fakeAttendanceRepo {
	repo := &fakeAttendanceRepo{
		marks:    map[string]models.Attendance{},
		students: map[int64]models.Student{},
	}
	for _, student := range students {
		repo.students[student.ID] = student
	}
	return repo
}

func markKey(studentID int64, date time.Time) string {
	return fmt.Sprintf("%d|%s", studentID, date.Format("2006-01-02"))
}

func (r *fakeAttendanceRepo) BulkUpsert(_ context.Context, marks []models.Attendance) ([]models.Attendance, error) {
	r.upsertCalls++
	if r.failUpsert != nil {
		return nil, r.failUpsert
	}
	stored := make([]models.Attendance, len(marks))
	for i, mark := range marks {
		key := markKey(mark.StudentID, mark.Date)
		if existing, ok := r.marks[key]; ok {
			mark.ID = existing.ID
			mark.CreatedAt = existing.CreatedAt
		} else if mark.ID == "" {
			mark.ID = fmt.Sprintf("mark-%d", len(r.marks)+1)
		}
		r.marks[key] = mark
		stored[i] = mark
	}
	return stored, nil
}

func (r *fakeAttendanceRepo) CountsByDate(_ context.Context, date time.Time) (models.StatusCounts, error) {
	r.countCalls++
	var counts models.StatusCounts
	for _, mark := range r.marks {
		if !mark.Date.Equal(date) {
			continue
		}
		counts.Total++
		switch mark.Status {
		case models.AttendanceStatusPresent:
			counts.Present++
		case models.AttendanceStatusAbsent:
			counts.Absent++
		case models.AttendanceStatusLate:
			counts.Late++
		}
	}
	return counts, nil
}

func (r *fakeAttendanceRepo) ListRange(_ context.Context, from, to time.Time, class, section string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	// Iterate dates in order to mimic the repository's date ordering.
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		for id := int64(1); id <= int64(len(r.students)); id++ {
			mark, ok := r.marks[markKey(id, date)]
			if !ok {
				continue
			}
			student := r.students[id]
			if class != "" && student.Class != class {
				continue
			}
			if section != "" && student.Section != section {
				continue
			}
			records = append(records, models.AttendanceRecord{
				Attendance:     mark,
				StudentName:    student.Name,
				StudentCode:    student.Code,
				StudentClass:   student.Class,
				StudentSection: student.Section,
			})
		}
	}
	return records, nil
}

func (r *fakeAttendanceRepo) List(_ context.Context, _ models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	return nil, 0, nil
}

func (r *fakeAttendanceRepo) ExistingIDs(_ context.Context, ids []int64) (map[int64]struct{}, error) {
	existing := map[int64]struct{}{}
	for _, id := range ids {
		if _, ok := r.students[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

// fakeStatsCache records operations so invalidation can be asserted precisely.
type fakeStatsCache struct {
	entries     map[string][]byte
	invalidated []string
	sets        []string
	getErr      error
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{entries: map[string][]byte{}}
}

func (c *fakeStatsCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	stats := dest.(*models.DailyStats)
	var decoded models.DailyStats
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false, err
	}
	*stats = decoded
	return true, nil
}

func (c *fakeStatsCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.sets = append(c.sets, key)
	return nil
}

func (c *fakeStatsCache) Invalidate(_ context.Context, key string) error {
	delete(c.entries, key)
	c.invalidated = append(c.invalidated, key)
	return nil
}

type fakeNotifier struct {
	events []notify.RecordedEvent
}

func (n *fakeNotifier) Recorded(event notify.RecordedEvent) {
	n.events = append(n.events, event)
}

func newTestService(repo *fakeAttendanceRepo, cache *fakeStatsCache, notifier *fakeNotifier) *AttendanceService {
	return NewAttendanceService(repo, repo, cache, notifier, nil, nil, 10*time.Minute)
}

func TestBulkRecordWritesAndInvalidatesOnce(t *testing.T) {
	repo := newFakeAttendanceRepo(
		models.Student{ID: 1, Name: "Alice", Code: "STU-001", Class: "5", Section: "A"},
		models.Student{ID: 2, Name: "Bob", Code: "STU-002", Class: "5", Section: "A"},
	)
	cache := newFakeStatsCache()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, cache, notifier)

	err := svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date: "2025-01-15",
		Records: []BulkRecordItem{
			{StudentID: 1, Status: "present"},
			{StudentID: 2, Status: "late"},
		},
	})
	require.NoError(t, err)

	assert.Len(t, repo.marks, 2)
	assert.Equal(t, []string{"attendance:stats:2025-01-15"}, cache.invalidated)
	require.Len(t, notifier.events, 2)
	assert.Equal(t, int64(1), notifier.events[0].StudentID)
	assert.Equal(t, models.AttendanceStatusLate, notifier.events[1].Status)
}

func TestBulkRecordUpsertIsIdempotent(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1, Name: "Alice", Code: "STU-001"})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	first := BulkRecordRequest{Date: "2025-01-15", Records: []BulkRecordItem{{StudentID: 1, Status: "absent"}}}
	require.NoError(t, svc.BulkRecord(context.Background(), first))

	note := "came around noon"
	second := BulkRecordRequest{Date: "2025-01-15", Records: []BulkRecordItem{{StudentID: 1, Status: "late", Note: &note}}}
	require.NoError(t, svc.BulkRecord(context.Background(), second))

	require.Len(t, repo.marks, 1)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	mark := repo.marks[markKey(1, date)]
	assert.Equal(t, models.AttendanceStatusLate, mark.Status)
	require.NotNil(t, mark.Note)
	assert.Equal(t, note, *mark.Note)
}

func TestBulkRecordRejectsEmptyBatch(t *testing.T) {
	repo := newFakeAttendanceRepo()
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	err := svc.BulkRecord(context.Background(), BulkRecordRequest{Date: "2025-01-15"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.upsertCalls)
}

func TestBulkRecordRejectsInvalidStatus(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	err := svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 1, Status: "asleep"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.upsertCalls)
}

func TestBulkRecordRejectsUnparseableDate(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	err := svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "15/01/2025",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBulkRecordRejectsUnknownStudentBeforeWriting(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	cache := newFakeStatsCache()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, cache, notifier)

	err := svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date: "2025-01-15",
		Records: []BulkRecordItem{
			{StudentID: 1, Status: "present"},
			{StudentID: 99, Status: "present"},
		},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "99")

	// Atomicity: nothing persisted, no invalidation, no notifications.
	assert.Zero(t, repo.upsertCalls)
	assert.Empty(t, repo.marks)
	assert.Empty(t, cache.invalidated)
	assert.Empty(t, notifier.events)
}

func TestBulkRecordStorageFailureLeavesNoSideEffects(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	repo.failUpsert = errors.New("connection reset")
	cache := newFakeStatsCache()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, cache, notifier)

	err := svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, cache.invalidated)
	assert.Empty(t, notifier.events)
}

func TestDailyStatsComputesAndCachesOnMiss(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	cache := newFakeStatsCache()
	svc := newTestService(repo, cache, &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	}))

	stats, hit, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Present)
	assert.Zero(t, stats.Absent)
	assert.Zero(t, stats.Late)
	assert.Equal(t, 100.0, stats.Percent)
	assert.Equal(t, []string{"attendance:stats:2025-01-15"}, cache.sets)
}

func TestDailyStatsServesCachedSnapshotWithoutRequery(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	cache := newFakeStatsCache()
	svc := newTestService(repo, cache, &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	}))

	_, hit, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.False(t, hit)
	queriesAfterFirst := repo.countCalls

	stats, hit, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, queriesAfterFirst, repo.countCalls)
}

func TestDailyStatsReflectsWritesAfterInvalidation(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1}, models.Student{ID: 2})
	cache := newFakeStatsCache()
	svc := newTestService(repo, cache, &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	}))

	stats, _, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 2, Status: "absent"}},
	}))

	stats, hit, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Absent)
	assert.Equal(t, 50.0, stats.Percent)
}

func TestDailyStatsFallsBackWhenCacheFails(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	cache := newFakeStatsCache()
	cache.getErr = errors.New("redis down")
	svc := newTestService(repo, cache, &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-15",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	}))

	stats, hit, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, stats.Total)
}

func TestDailyStatsPercentageRounding(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1}, models.Student{ID: 2}, models.Student{ID: 3})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date: "2025-01-15",
		Records: []BulkRecordItem{
			{StudentID: 1, Status: "present"},
			{StudentID: 2, Status: "absent"},
			{StudentID: 3, Status: "late"},
		},
	}))

	stats, _, err := svc.DailyStats(context.Background(), "2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 33.33, stats.Percent)
}

func TestDailyStatsRejectsBadDate(t *testing.T) {
	svc := newTestService(newFakeAttendanceRepo(), newFakeStatsCache(), &fakeNotifier{})

	_, _, err := svc.DailyStats(context.Background(), "not-a-date")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMonthlyReportGroupsByStudent(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1, Name: "Alice", Code: "STU-001", Class: "5", Section: "A"})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-10",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}},
	}))
	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-11",
		Records: []BulkRecordItem{{StudentID: 1, Status: "absent"}},
	}))

	report, err := svc.MonthlyReport(context.Background(), 2025, 1, "", "")
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	record := report.Records[0]
	assert.Equal(t, "Alice", record.Student.Name)
	assert.Equal(t, 2, record.Total)
	assert.Equal(t, 1, record.Present)
	assert.Equal(t, 50.0, record.Percent)
	require.Len(t, record.Attendances, 2)
	assert.Equal(t, "2025-01-10", record.Attendances[0].Date)
	assert.Equal(t, "2025-01-11", record.Attendances[1].Date)
}

func TestMonthlyReportKeepsFirstSeenOrder(t *testing.T) {
	repo := newFakeAttendanceRepo(
		models.Student{ID: 1, Name: "Alice", Code: "STU-001", Class: "5", Section: "A"},
		models.Student{ID: 2, Name: "Bob", Code: "STU-002", Class: "5", Section: "A"},
	)
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-10",
		Records: []BulkRecordItem{{StudentID: 2, Status: "present"}},
	}))
	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-11",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}, {StudentID: 2, Status: "present"}},
	}))

	report, err := svc.MonthlyReport(context.Background(), 2025, 1, "", "")
	require.NoError(t, err)
	require.Len(t, report.Records, 2)
	assert.Equal(t, "Bob", report.Records[0].Student.Name)
	assert.Equal(t, "Alice", report.Records[1].Student.Name)
}

func TestMonthlyReportClassFilterExcludesOtherClasses(t *testing.T) {
	repo := newFakeAttendanceRepo(
		models.Student{ID: 1, Name: "Alice", Code: "STU-001", Class: "5", Section: "A"},
		models.Student{ID: 2, Name: "Bob", Code: "STU-002", Class: "6", Section: "B"},
	)
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-10",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}, {StudentID: 2, Status: "present"}},
	}))

	report, err := svc.MonthlyReport(context.Background(), 2025, 1, "5", "")
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "Alice", report.Records[0].Student.Name)
	assert.Equal(t, "5", report.Class)
}

func TestMonthlyReportSectionFilterIsIndependent(t *testing.T) {
	repo := newFakeAttendanceRepo(
		models.Student{ID: 1, Name: "Alice", Code: "STU-001", Class: "5", Section: "A"},
		models.Student{ID: 2, Name: "Bob", Code: "STU-002", Class: "5", Section: "B"},
	)
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	require.NoError(t, svc.BulkRecord(context.Background(), BulkRecordRequest{
		Date:    "2025-01-10",
		Records: []BulkRecordItem{{StudentID: 1, Status: "present"}, {StudentID: 2, Status: "present"}},
	}))

	report, err := svc.MonthlyReport(context.Background(), 2025, 1, "", "B")
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "Bob", report.Records[0].Student.Name)
}

func TestMonthlyReportEmptyRange(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	report, err := svc.MonthlyReport(context.Background(), 2025, 2, "", "")
	require.NoError(t, err)
	assert.NotNil(t, report.Records)
	assert.Empty(t, report.Records)
}

func TestListRejectsInvalidStatusFilter(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	_, _, err := svc.List(context.Background(), ListRequest{Status: "tardy"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListRejectsInvalidDateFilter(t *testing.T) {
	repo := newFakeAttendanceRepo(models.Student{ID: 1})
	svc := newTestService(repo, newFakeStatsCache(), &fakeNotifier{})

	_, _, err := svc.List(context.Background(), ListRequest{Date: "15-01-2025"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
