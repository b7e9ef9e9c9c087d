package services

import (
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"time"
)

// OTP parameters: 6-digit codes valid for 5 minutes, with a 60-second
// cooldown between issues for the same transaction.
const (
	otpLength      = 6
	OTPTTL         = 5 * time.Minute
	ResendCooldown = 60 * time.Second
)

// OTPResult is the outcome of verifying a submitted code.
type OTPResult int

const (
	OTPMatched OTPResult = iota
	OTPWrongCode
	OTPExpired
)

// ErrOTPCooldown is returned by Resend when the newest code for the
// transaction is younger than the cooldown window.
type ErrOTPCooldown struct {
	Remaining int // seconds until a new code may be issued
}

func (e *ErrOTPCooldown) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting new OTP", e.Remaining)
}

// OTPService generates, stores and verifies one-time codes bound to a
// transaction. Codes live in the otp_codes table; single-use is enforced by
// marking is_used inside the caller's database transaction.
type OTPService struct {
	db *sql.DB
}

func NewOTPService(db *sql.DB) *OTPService {
	return &OTPService{db: db}
}

// Issue creates a fresh code for the transaction and returns it for delivery.
func (s *OTPService) Issue(transactionID string) (string, error) {
	code, err := generateOTPCode()
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec(`
		INSERT INTO otp_codes (transaction_id, otp_code, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, FALSE, NOW())`,
		transactionID, code, time.Now().Add(OTPTTL))
	if err != nil {
		return "", fmt.Errorf("otp insert: %w", err)
	}

	return code, nil
}

// Resend voids all unused codes for the transaction and issues a fresh one.
// Rejects with ErrOTPCooldown when the newest code is younger than the
// cooldown window, reporting the seconds remaining.
func (s *OTPService) Resend(transactionID string) (string, error) {
	var lastIssued time.Time
	err := s.db.QueryRow(`
		SELECT created_at FROM otp_codes
		WHERE transaction_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, transactionID).Scan(&lastIssued)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("otp lookup: %w", err)
	}

	if err == nil {
		if elapsed := time.Since(lastIssued); elapsed < ResendCooldown {
			remaining := int((ResendCooldown - elapsed).Seconds()) + 1
			return "", &ErrOTPCooldown{Remaining: remaining}
		}
	}

	if _, err := s.db.Exec(`
		UPDATE otp_codes SET is_used = TRUE
		WHERE transaction_id = $1 AND is_used = FALSE`, transactionID); err != nil {
		return "", fmt.Errorf("otp void: %w", err)
	}

	return s.Issue(transactionID)
}

// VerifyTx checks a submitted code inside the caller's database transaction so
// the check-then-mark cannot double-spend one code across two concurrent
// verification attempts. An expired code is still marked used to prevent
// replay.
func (s *OTPService) VerifyTx(tx *sql.Tx, transactionID, submittedCode string) (OTPResult, error) {
	var otpID int
	var expiresAt time.Time
	err := tx.QueryRow(`
		SELECT id, expires_at FROM otp_codes
		WHERE transaction_id = $1 AND otp_code = $2 AND is_used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, transactionID, submittedCode).Scan(&otpID, &expiresAt)
	if err == sql.ErrNoRows {
		return OTPWrongCode, nil
	}
	if err != nil {
		return OTPWrongCode, fmt.Errorf("otp verify lookup: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE otp_codes SET is_used = TRUE WHERE id = $1`, otpID); err != nil {
		return OTPWrongCode, fmt.Errorf("otp mark used: %w", err)
	}

	if time.Now().After(expiresAt) {
		log.Printf("[OTP] Expired code submitted for transaction %s", transactionID)
		return OTPExpired, nil
	}

	return OTPMatched, nil
}

// VoidTx marks all unused codes for the transaction as used, inside the
// caller's database transaction. Called when a transaction terminates.
func (s *OTPService) VoidTx(tx *sql.Tx, transactionID string) error {
	_, err := tx.Exec(`
		UPDATE otp_codes SET is_used = TRUE
		WHERE transaction_id = $1 AND is_used = FALSE`, transactionID)
	if err != nil {
		return fmt.Errorf("otp void: %w", err)
	}
	return nil
}

// generateOTPCode draws a uniform 6-digit code. Leading zeros are preserved
// because the code is text, not a number.
func generateOTPCode() (string, error) {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("otp entropy: %w", err)
	}
	n := binary.BigEndian.Uint64(buf[:]) % 1_000_000
	return fmt.Sprintf("%0*d", otpLength, n), nil
}
