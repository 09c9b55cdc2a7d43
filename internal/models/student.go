package models

import "time"

// Student is a roster entry. The attendance engine only reads students;
// roster management lives in a separate system.
type Student struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"student_id" json:"student_id"`
	Class     string    `db:"class" json:"class"`
	Section   string    `db:"section" json:"section"`
	Photo     *string   `db:"photo" json:"photo,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter defines roster listing filters.
type StudentFilter struct {
	Class    string
	Section  string
	Search   string
	Page     int
	PageSize int
}

// StudentInfo is the subset of roster data embedded in report payloads.
type StudentInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"student_id"`
	Class   string `json:"class"`
	Section string `json:"section"`
}
