package models

import "time"

// Transaction status values. completed and failed are terminal; no operation
// may move a transaction out of a terminal status.
const (
	TxnStatusPending   = "pending"
	TxnStatusOTPSent   = "otp_sent"
	TxnStatusCompleted = "completed"
	TxnStatusFailed    = "failed"
)

// MaxFailedOTPAttempts is the number of wrong OTP submissions that fails a
// transaction permanently.
const MaxFailedOTPAttempts = 3

// Transaction is a tuition payment attempt. The amount is snapshotted from the
// tuition line at creation time and never changes afterwards.
type Transaction struct {
	ID                string     `json:"id" db:"id"`
	PayerID           int        `json:"payer_id" db:"payer_id"`
	StudentID         string     `json:"student_id" db:"student_id"`
	TuitionID         int        `json:"tuition_id" db:"tuition_id"`
	Amount            int64      `json:"amount" db:"amount"`
	Status            string     `json:"status" db:"status"`
	CompletedAt       *time.Time `json:"completed_at" db:"completed_at"`
	FailedOTPAttempts int        `json:"failed_otp_attempts" db:"failed_otp_attempts"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the status permits no further transitions.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// IsTerminalStatus reports whether a raw status value is terminal.
func IsTerminalStatus(status string) bool {
	return status == TxnStatusCompleted || status == TxnStatusFailed
}
