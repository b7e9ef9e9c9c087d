package models

import "time"

// OTPCode is a one-time passcode bound to a transaction. Several may exist per
// transaction (one per resend) but at most one is unused and unexpired at
// verification time. is_used transitions false -> true exactly once.
type OTPCode struct {
	ID            int       `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	OTPCode       string    `json:"-" db:"otp_code"` // 6 digits, leading zeros preserved
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	IsUsed        bool      `json:"is_used" db:"is_used"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
