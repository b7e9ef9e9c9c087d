package models

import "time"

// Student represents an enrolled student whose tuition can be paid
type Student struct {
	StudentID      string    `json:"student_id" db:"student_id"`
	FullName       string    `json:"full_name" db:"full_name"`
	Major          string    `json:"major" db:"major"`
	EnrollmentYear int       `json:"enrollment_year" db:"enrollment_year"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
