package models

import "time"

// StudentTuition is one semester's payable amount for one student.
// Unique per (student_id, semester, academic_year); is_paid transitions
// false -> true exactly once and is never reversed.
type StudentTuition struct {
	ID            int        `json:"id" db:"id"`
	StudentID     string     `json:"student_id" db:"student_id"`
	Semester      string     `json:"semester" db:"semester"`           // e.g. "2024-1", "2024-Summer"
	AcademicYear  string     `json:"academic_year" db:"academic_year"` // e.g. "2024-2025"
	TuitionAmount int64      `json:"tuition_amount" db:"tuition_amount"`
	IsPaid        bool       `json:"is_paid" db:"is_paid"`
	PaidAt        *time.Time `json:"paid_at" db:"paid_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
