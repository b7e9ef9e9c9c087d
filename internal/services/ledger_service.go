package services

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ibanking/backend/internal/models"
)

// TuitionLedgerService owns the persisted payment entities and the composite
// mutations that must commit all-or-nothing: transaction creation with its two
// locks, settlement, and failure. Nothing outside this service and the lock
// service writes those tables.
type TuitionLedgerService struct {
	db    *sql.DB
	locks *LockService
	otps  *OTPService
}

func NewTuitionLedgerService(db *sql.DB) *TuitionLedgerService {
	return &TuitionLedgerService{
		db:    db,
		locks: NewLockService(db),
		otps:  NewOTPService(db),
	}
}

// GetTransaction loads a transaction owned by payerID. sql.ErrNoRows when the
// id is unknown or belongs to someone else.
func (s *TuitionLedgerService) GetTransaction(transactionID string, payerID int) (*models.Transaction, error) {
	txn := &models.Transaction{}
	err := s.db.QueryRow(`
		SELECT id, payer_id, student_id, tuition_id, amount, status,
		       completed_at, failed_otp_attempts, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND payer_id = $2`, transactionID, payerID).Scan(
		&txn.ID, &txn.PayerID, &txn.StudentID, &txn.TuitionID, &txn.Amount,
		&txn.Status, &txn.CompletedAt, &txn.FailedOTPAttempts,
		&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// GetTuition loads one tuition line for a student.
func (s *TuitionLedgerService) GetTuition(tuitionID int, studentID string) (*models.StudentTuition, error) {
	t := &models.StudentTuition{}
	err := s.db.QueryRow(`
		SELECT id, student_id, semester, academic_year, tuition_amount,
		       is_paid, paid_at, created_at, updated_at
		FROM student_tuition
		WHERE id = $1 AND student_id = $2`, tuitionID, studentID).Scan(
		&t.ID, &t.StudentID, &t.Semester, &t.AcademicYear, &t.TuitionAmount,
		&t.IsPaid, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransactionWithLocks inserts the account lock, the tuition lock and a
// pending transaction in one database transaction. The amount is snapshotted
// from the tuition line by the caller. Returns ErrAccountBusy or
// ErrTuitionBusy when either lock is contended.
func (s *TuitionLedgerService) CreateTransactionWithLocks(payerID int, studentID string, tuitionID int, amount int64) (*models.Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payerKey := strconv.Itoa(payerID)
	tuitionKey := strconv.Itoa(tuitionID)

	if err := s.locks.AcquireTx(tx, models.LockResourceUserAccount, payerKey); err != nil {
		return nil, err
	}
	if err := s.locks.AcquireTx(tx, models.LockResourceSemesterTuition, tuitionKey); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:        uuid.NewString(),
		PayerID:   payerID,
		StudentID: studentID,
		TuitionID: tuitionID,
		Amount:    amount,
		Status:    models.TxnStatusPending,
	}
	err = tx.QueryRow(`
		INSERT INTO transactions (id, payer_id, student_id, tuition_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at`,
		txn.ID, txn.PayerID, txn.StudentID, txn.TuitionID, txn.Amount, txn.Status).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transaction insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

// MarkOTPSent transitions pending -> otp_sent after a successful delivery.
func (s *TuitionLedgerService) MarkOTPSent(transactionID string) error {
	_, err := s.db.Exec(`
		UPDATE transactions SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $1)`,
		models.TxnStatusOTPSent, transactionID, models.TxnStatusPending)
	return err
}

// SettlePaymentTx performs the five settlement mutations inside the caller's
// database transaction: debit the payer, mark the tuition line paid, complete
// the transaction, append the history entry, release both locks. The caller
// commits; a failure of any step aborts them all.
func (s *TuitionLedgerService) SettlePaymentTx(tx *sql.Tx, txn *models.Transaction, balanceBefore, newBalance int64) error {
	now := time.Now()

	res, err := tx.Exec(`
		UPDATE users SET balance = $1 WHERE id = $2 AND balance = $3`,
		newBalance, txn.PayerID, balanceBefore)
	if err != nil {
		return fmt.Errorf("balance debit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("balance changed concurrently for user %d", txn.PayerID)
	}

	res, err = tx.Exec(`
		UPDATE student_tuition SET is_paid = TRUE, paid_at = $1, updated_at = $1
		WHERE id = $2 AND is_paid = FALSE`, now, txn.TuitionID)
	if err != nil {
		return fmt.Errorf("tuition mark paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tuition %d already paid", txn.TuitionID)
	}

	if _, err = tx.Exec(`
		UPDATE transactions SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3`, models.TxnStatusCompleted, now, txn.ID); err != nil {
		return fmt.Errorf("transaction complete: %w", err)
	}

	if _, err = tx.Exec(`
		INSERT INTO transaction_history (user_id, transaction_id, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		txn.PayerID, txn.ID, balanceBefore, newBalance, now); err != nil {
		return fmt.Errorf("history insert: %w", err)
	}

	return s.locks.ReleaseTx(tx, strconv.Itoa(txn.PayerID), strconv.Itoa(txn.TuitionID))
}

// FailTransactionTx marks the transaction failed, releases both locks and
// voids any unused OTP codes, atomically within the caller's transaction.
func (s *TuitionLedgerService) FailTransactionTx(tx *sql.Tx, txn *models.Transaction) error {
	if _, err := tx.Exec(`
		UPDATE transactions SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2`, models.TxnStatusFailed, txn.ID); err != nil {
		return fmt.Errorf("transaction fail: %w", err)
	}

	if err := s.locks.ReleaseTx(tx, strconv.Itoa(txn.PayerID), strconv.Itoa(txn.TuitionID)); err != nil {
		return err
	}

	return s.otps.VoidTx(tx, txn.ID)
}

// IncrementOTPFailuresTx bumps failed_otp_attempts and returns the
// post-increment count.
func (s *TuitionLedgerService) IncrementOTPFailuresTx(tx *sql.Tx, transactionID string) (int, error) {
	var attempts int
	err := tx.QueryRow(`
		UPDATE transactions SET failed_otp_attempts = failed_otp_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING failed_otp_attempts`, transactionID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("otp failure increment: %w", err)
	}
	return attempts, nil
}

// LockPayerTx loads the payer's balance under FOR UPDATE so the balance check
// and the debit observe the same value.
func (s *TuitionLedgerService) LockPayerTx(tx *sql.Tx, payerID int) (*models.User, error) {
	u := &models.User{}
	err := tx.QueryRow(`
		SELECT id, username, full_name, email, balance
		FROM users
		WHERE id = $1
		FOR UPDATE`, payerID).Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Balance)
	if err != nil {
		return nil, err
	}
	return u, nil
}
