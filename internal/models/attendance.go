package models

import "time"

// AttendanceStatus represents the status for attendance marks.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// Attendance represents one student's mark for one calendar date.
// (student_id, date) is unique; repeated writes overwrite in place.
type Attendance struct {
	ID         string           `db:"id" json:"id"`
	StudentID  int64            `db:"student_id" json:"student_id"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Note       *string          `db:"note" json:"note,omitempty"`
	RecordedBy *int64           `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends a mark with student metadata for listings.
type AttendanceRecord struct {
	Attendance
	StudentName    string `db:"student_name" json:"student_name"`
	StudentCode    string `db:"student_code" json:"student_code"`
	StudentClass   string `db:"student_class" json:"student_class"`
	StudentSection string `db:"student_section" json:"student_section"`
}

// AttendanceFilter defines listing filters.
type AttendanceFilter struct {
	Date     *time.Time
	Status   AttendanceStatus
	Class    string
	Section  string
	Page     int
	PageSize int
}

// StatusCounts holds per-status totals for one date.
type StatusCounts struct {
	Total   int
	Present int
	Absent  int
	Late    int
}

// DailyStats is the cached per-date aggregate snapshot.
type DailyStats struct {
	Date    string  `json:"date"`
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Percent float64 `json:"percent"`
}

// AttendanceDetail is one day's entry inside a monthly report record.
type AttendanceDetail struct {
	Date   string           `json:"date"`
	Status AttendanceStatus `json:"status"`
	Note   *string          `json:"note"`
}

// MonthlyReportRecord aggregates one student's month.
type MonthlyReportRecord struct {
	Student     StudentInfo        `json:"student"`
	Present     int                `json:"present"`
	Total       int                `json:"total"`
	Percent     float64            `json:"percent"`
	Attendances []AttendanceDetail `json:"attendances"`
}

// MonthlyReport is the full per-student breakdown for a year/month.
// Records keep the first-seen order of students in the range query.
type MonthlyReport struct {
	Year    int                   `json:"year"`
	Month   int                   `json:"month"`
	Class   string                `json:"class,omitempty"`
	Section string                `json:"section,omitempty"`
	Records []MonthlyReportRecord `json:"records"`
}
