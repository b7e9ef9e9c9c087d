package models

import "time"

// User represents a payer account in the tuition payment system
type User struct {
	ID        int       `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	FullName  string    `json:"full_name" db:"full_name"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	Balance   int64     `json:"balance" db:"balance"` // VND, zero-decimal currency
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
