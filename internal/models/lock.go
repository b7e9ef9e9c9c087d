package models

import "time"

// Lockable resource types. The unique constraint on (resource_type,
// resource_id) is the race arbiter: at most one live lock per pair.
const (
	LockResourceUserAccount     = "user_account"
	LockResourceSemesterTuition = "semester_tuition"
)

// TransactionLock is an advisory lock row asserting exclusive intent over a
// resource. It references resources by id only; no foreign keys.
type TransactionLock struct {
	ID           int       `json:"id" db:"id"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
}
