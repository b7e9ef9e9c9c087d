package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/ibanking/backend/internal/models"
)

// CleanupService reaps abandoned transactions, expired resource locks and old
// OTP rows on a fixed interval. Every task is independent; one failing never
// stops the others.
type CleanupService struct {
	db     *sql.DB
	ledger *TuitionLedgerService
}

func NewCleanupService(db *sql.DB) *CleanupService {
	return &CleanupService{
		db:     db,
		ledger: NewTuitionLedgerService(db),
	}
}

func cleanupInterval() time.Duration {
	viper.SetDefault("cleanup.interval_minutes", 30)
	return time.Duration(viper.GetInt("cleanup.interval_minutes")) * time.Minute
}

// Start runs the reaper until ctx is cancelled. The first sweep happens
// immediately so a restart clears backlog without waiting a full interval.
func (cs *CleanupService) Start(ctx context.Context) {
	interval := cleanupInterval()
	log.Printf("[CLEANUP] Reaper started (interval %s, stale after %s)", interval, staleAfter())

	cs.RunAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[CLEANUP] Reaper stopped")
			return
		case <-ticker.C:
			cs.RunAll()
		}
	}
}

// RunAll executes one sweep of all three cleanup tasks.
func (cs *CleanupService) RunAll() {
	if n, err := cs.ExpireStaleTransactions(); err != nil {
		log.Printf("[CLEANUP] Stale transaction sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("[CLEANUP] Expired %d stale transaction(s)", n)
	}

	if n, err := cs.ReleaseExpiredLocks(); err != nil {
		log.Printf("[CLEANUP] Expired lock sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("[CLEANUP] Released %d expired lock(s)", n)
	}

	if n, err := cs.PurgeOldOTPs(); err != nil {
		log.Printf("[CLEANUP] OTP purge failed: %v", err)
	} else if n > 0 {
		log.Printf("[CLEANUP] Purged %d old OTP(s)", n)
	}
}

// ExpireStaleTransactions fails every in-flight transaction older than the
// stale cutoff, releasing its locks and voiding its OTPs. The whole batch
// commits atomically so a crash mid-sweep leaves no half-expired transaction.
func (cs *CleanupService) ExpireStaleTransactions() (int, error) {
	cutoff := time.Now().Add(-staleAfter())

	tx, err := cs.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, payer_id, student_id, tuition_id, amount, status,
		       completed_at, failed_otp_attempts, created_at, updated_at
		FROM transactions
		WHERE status IN ($1, $2) AND created_at < $3
		FOR UPDATE`,
		models.TxnStatusPending, models.TxnStatusOTPSent, cutoff)
	if err != nil {
		return 0, err
	}

	var stale []*models.Transaction
	for rows.Next() {
		txn := &models.Transaction{}
		if err := rows.Scan(&txn.ID, &txn.PayerID, &txn.StudentID, &txn.TuitionID,
			&txn.Amount, &txn.Status, &txn.CompletedAt, &txn.FailedOTPAttempts,
			&txn.CreatedAt, &txn.UpdatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, txn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, txn := range stale {
		if err := cs.ledger.FailTransactionTx(tx, txn); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// ReleaseExpiredLocks removes lock rows past their expiry. Normal release
// happens on settle/fail; this catches rows orphaned by crashes.
func (cs *CleanupService) ReleaseExpiredLocks() (int, error) {
	res, err := cs.db.Exec(`DELETE FROM transaction_locks WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PurgeOldOTPs deletes OTP rows older than a day. Used and expired rows are
// kept that long for dispute review, then dropped.
func (cs *CleanupService) PurgeOldOTPs() (int, error) {
	res, err := cs.db.Exec(`DELETE FROM otp_codes WHERE created_at < NOW() - INTERVAL '24 hours'`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
