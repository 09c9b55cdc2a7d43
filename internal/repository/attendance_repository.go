package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classtrack/attendance-api/internal/models"
)

// AttendanceRepository handles persistence for attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// BulkUpsert applies all marks in a single transaction. Each mark is an
// insert-or-update on the (student_id, date) natural key; any failure
// rolls the whole batch back. Returns the stored rows on success.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, marks []models.Attendance) ([]models.Attendance, error) {
	if len(marks) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk attendance: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	query := `INSERT INTO attendance (id, student_id, date, status, note, recorded_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, date)
DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, date, status, note, recorded_by, created_at, updated_at`

	now := time.Now().UTC()
	stored := make([]models.Attendance, len(marks))
	for i := range marks {
		mark := &marks[i]
		if mark.ID == "" {
			mark.ID = uuid.NewString()
		}
		if mark.CreatedAt.IsZero() {
			mark.CreatedAt = now
		}
		mark.UpdatedAt = now
		var row models.Attendance
		if err := tx.QueryRowxContext(ctx, query,
			mark.ID, mark.StudentID, mark.Date, mark.Status, mark.Note, mark.RecordedBy, mark.CreatedAt, mark.UpdatedAt,
		).StructScan(&row); err != nil {
			return nil, fmt.Errorf("upsert attendance for student %d: %w", mark.StudentID, err)
		}
		stored[i] = row
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk attendance: %w", err)
	}
	commit = true
	return stored, nil
}

// CountsByDate aggregates per-status totals for one date.
func (r *AttendanceRepository) CountsByDate(ctx context.Context, date time.Time) (models.StatusCounts, error) {
	query := `SELECT status, COUNT(*) AS cnt FROM attendance WHERE date = $1 GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	var counts models.StatusCounts
	if err := r.db.SelectContext(ctx, &rows, query, date); err != nil {
		return counts, fmt.Errorf("count attendance by date: %w", err)
	}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusPresent:
			counts.Present += row.Count
		case models.AttendanceStatusAbsent:
			counts.Absent += row.Count
		case models.AttendanceStatusLate:
			counts.Late += row.Count
		}
		counts.Total += row.Count
	}
	return counts, nil
}

// ListRange returns all marks with dates in [from, to] joined with
// student metadata, optionally restricted to a class and/or section.
// Rows come back in date order so report grouping can preserve it.
func (r *AttendanceRepository) ListRange(ctx context.Context, from, to time.Time, class, section string) ([]models.AttendanceRecord, error) {
	where := []string{"a.date >= $1", "a.date <= $2"}
	args := []interface{}{from, to}
	if class != "" {
		where = append(where, fmt.Sprintf("s.class = $%d", len(args)+1))
		args = append(args, class)
	}
	if section != "" {
		where = append(where, fmt.Sprintf("s.section = $%d", len(args)+1))
		args = append(args, section)
	}
	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.date, a.status, a.note, a.recorded_by, a.created_at, a.updated_at,
        s.name AS student_name, s.student_id AS student_code, s.class AS student_class, s.section AS student_section
        FROM attendance a
        JOIN students s ON s.id = a.student_id
        WHERE %s
        ORDER BY a.date ASC, a.created_at ASC`, strings.Join(where, " AND "))

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	return records, nil
}

// List returns paginated marks, optionally filtered by date, status,
// class and section.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM attendance a JOIN students s ON s.id = a.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("a.date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if filter.Class != "" {
		where = append(where, fmt.Sprintf("s.class = $%d", len(args)+1))
		args = append(args, filter.Class)
	}
	if filter.Section != "" {
		where = append(where, fmt.Sprintf("s.section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.date, a.status, a.note, a.recorded_by, a.created_at, a.updated_at,
        s.name AS student_name, s.student_id AS student_code, s.class AS student_class, s.section AS student_section
        %s WHERE %s
        ORDER BY a.date DESC, a.created_at DESC
        LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}
