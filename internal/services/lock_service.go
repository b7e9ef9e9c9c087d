package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/ibanking/backend/internal/models"
)

// LockTTL bounds how long an advisory lock may outlive its transaction. A flow
// that does not finish within the TTL loses its lock to the reaper.
const LockTTL = 5 * time.Minute

// Lock conflict conditions, mapped to 409 by the handlers.
var (
	ErrAccountBusy = errors.New("payer already has a transaction in flight")
	ErrTuitionBusy = errors.New("tuition line is being paid by another transaction")
)

// LockService acquires and releases advisory locks backed by the
// transaction_locks table. The unique constraint on (resource_type,
// resource_id) is the sole arbiter for concurrent acquirers.
type LockService struct {
	db *sql.DB
}

func NewLockService(db *sql.DB) *LockService {
	return &LockService{db: db}
}

// AcquireTx takes a lock on (resourceType, resourceID) inside the caller's
// database transaction. Acquisition is two-phase: an existence check on live
// locks fails fast, and the insert's unique-constraint violation is the
// authoritative conflict signal when a concurrent acquirer wins the race
// between the two steps.
func (s *LockService) AcquireTx(tx *sql.Tx, resourceType, resourceID string) error {
	var exists bool
	err := tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM transaction_locks
			WHERE resource_type = $1 AND resource_id = $2 AND expires_at > NOW()
		)`, resourceType, resourceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lock existence check: %w", err)
	}
	if exists {
		return conflictFor(resourceType)
	}

	// An expired row may still occupy the unique slot; clear it first so the
	// insert below only conflicts with live acquirers.
	if _, err := tx.Exec(`
		DELETE FROM transaction_locks
		WHERE resource_type = $1 AND resource_id = $2 AND expires_at <= NOW()`,
		resourceType, resourceID); err != nil {
		return fmt.Errorf("expired lock sweep: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO transaction_locks (resource_type, resource_id, expires_at)
		VALUES ($1, $2, $3)`,
		resourceType, resourceID, time.Now().Add(LockTTL))
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[LOCK] Lost acquisition race for %s:%s", resourceType, resourceID)
			return conflictFor(resourceType)
		}
		return fmt.Errorf("lock insert: %w", err)
	}

	return nil
}

// ReleaseTx drops the locks for the given resource pairs. Idempotent:
// releasing an already-released or expired lock is not an error.
func (s *LockService) ReleaseTx(tx *sql.Tx, payerID, tuitionID string) error {
	_, err := tx.Exec(`
		DELETE FROM transaction_locks
		WHERE (resource_type = $1 AND resource_id = $2)
		   OR (resource_type = $3 AND resource_id = $4)`,
		models.LockResourceUserAccount, payerID,
		models.LockResourceSemesterTuition, tuitionID)
	if err != nil {
		return fmt.Errorf("lock release: %w", err)
	}
	return nil
}

func conflictFor(resourceType string) error {
	if resourceType == models.LockResourceUserAccount {
		return ErrAccountBusy
	}
	return ErrTuitionBusy
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
