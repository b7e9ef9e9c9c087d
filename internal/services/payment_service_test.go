package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ibanking/backend/internal/models"
)

const testTxnID = "b1946ac9-2f29-4f42-9f52-7d2e8c6f3a1d"

func authedRequest(method, target string, body []byte) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	return r.WithContext(context.WithValue(r.Context(), "userID", "1"))
}

func expectTransactionLock(dbmock sqlmock.Sqlmock, status string, amount int64) {
	dbmock.ExpectQuery("SELECT id, payer_id, student_id, tuition_id, amount, status").
		WithArgs(testTxnID, 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "payer_id", "student_id", "tuition_id", "amount", "status",
			"completed_at", "failed_otp_attempts", "created_at", "updated_at"}).
			AddRow(testTxnID, 1, "SV001", 42, amount, status, nil, 0, time.Now(), time.Now()))
}

func expectFailTransition(dbmock sqlmock.Sqlmock) {
	dbmock.ExpectExec("UPDATE transactions SET status").
		WithArgs(models.TxnStatusFailed, testTxnID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectExec("DELETE FROM transaction_locks").
		WithArgs(models.LockResourceUserAccount, "1", models.LockResourceSemesterTuition, "42").
		WillReturnResult(sqlmock.NewResult(0, 2))
	dbmock.ExpectExec("UPDATE otp_codes SET is_used = TRUE").
		WithArgs(testTxnID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestPaymentService_Initialize(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	reqBody, _ := json.Marshal(InitializeRequest{StudentID: "SV001", TuitionID: 42})

	expectStudent := func() {
		dbmock.ExpectQuery("FROM students").
			WithArgs("SV001").
			WillReturnRows(sqlmock.NewRows([]string{"student_id", "full_name", "major", "enrollment_year"}).
				AddRow("SV001", "Nguyen Van B", "Computer Science", 2023))
	}
	expectTuition := func(isPaid bool) {
		dbmock.ExpectQuery("FROM student_tuition").
			WithArgs(42, "SV001").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "student_id", "semester", "academic_year", "tuition_amount",
				"is_paid", "paid_at", "created_at", "updated_at"}).
				AddRow(42, "SV001", "HK1", "2025-2026", int64(20_000_000), isPaid, nil, time.Now(), time.Now()))
	}
	expectLockAndInsert := func() {
		dbmock.ExpectBegin()
		dbmock.ExpectQuery("SELECT EXISTS").
			WithArgs(models.LockResourceUserAccount, "1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		dbmock.ExpectExec("DELETE FROM transaction_locks").
			WithArgs(models.LockResourceUserAccount, "1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbmock.ExpectExec("INSERT INTO transaction_locks").
			WithArgs(models.LockResourceUserAccount, "1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbmock.ExpectQuery("SELECT EXISTS").
			WithArgs(models.LockResourceSemesterTuition, "42").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		dbmock.ExpectExec("DELETE FROM transaction_locks").
			WithArgs(models.LockResourceSemesterTuition, "42").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbmock.ExpectExec("INSERT INTO transaction_locks").
			WithArgs(models.LockResourceSemesterTuition, "42", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		dbmock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), 1, "SV001", 42, int64(20_000_000), models.TxnStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		dbmock.ExpectCommit()
	}

	t.Run("creates transaction and sends OTP", func(t *testing.T) {
		mailer := &MockMailer{}
		mailer.On("SendOTPEmail", "payer@example.com", mock.Anything, mock.Anything).Return(nil)
		service := NewPaymentService(db, mailer)

		expectStudent()
		expectTuition(false)
		expectLockAndInsert()
		dbmock.ExpectExec("INSERT INTO otp_codes").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbmock.ExpectQuery("FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "balance"}).
				AddRow(1, "payer", "Nguyen Van A", "payer@example.com", int64(50_000_000)))
		dbmock.ExpectExec("UPDATE transactions SET status").
			WithArgs(models.TxnStatusOTPSent, sqlmock.AnyArg(), models.TxnStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		service.Initialize(w, authedRequest("POST", "/transactions/initialize", reqBody))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Nil(t, resp["warning"])
		txn := resp["transaction"].(map[string]any)
		assert.Equal(t, models.TxnStatusOTPSent, txn["status"])
		assert.Equal(t, float64(20_000_000), txn["amount"])
		mailer.AssertExpectations(t)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("mail failure leaves transaction pending with a warning", func(t *testing.T) {
		mailer := &MockMailer{}
		mailer.On("SendOTPEmail", "payer@example.com", mock.Anything, mock.Anything).
			Return(assert.AnError)
		service := NewPaymentService(db, mailer)

		expectStudent()
		expectTuition(false)
		expectLockAndInsert()
		dbmock.ExpectExec("INSERT INTO otp_codes").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbmock.ExpectQuery("FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "balance"}).
				AddRow(1, "payer", "Nguyen Van A", "payer@example.com", int64(50_000_000)))

		w := httptest.NewRecorder()
		service.Initialize(w, authedRequest("POST", "/transactions/initialize", reqBody))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.NotEmpty(t, resp["warning"])
		txn := resp["transaction"].(map[string]any)
		assert.Equal(t, models.TxnStatusPending, txn["status"])
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("already paid tuition is rejected", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		expectStudent()
		expectTuition(true)

		w := httptest.NewRecorder()
		service.Initialize(w, authedRequest("POST", "/transactions/initialize", reqBody))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("contended account lock returns conflict", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		expectStudent()
		expectTuition(false)
		dbmock.ExpectBegin()
		dbmock.ExpectQuery("SELECT EXISTS").
			WithArgs(models.LockResourceUserAccount, "1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbmock.ExpectRollback()

		w := httptest.NewRecorder()
		service.Initialize(w, authedRequest("POST", "/transactions/initialize", reqBody))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("unknown student returns not found", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectQuery("FROM students").
			WithArgs("SV404").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(InitializeRequest{StudentID: "SV404", TuitionID: 42})
		w := httptest.NewRecorder()
		service.Initialize(w, authedRequest("POST", "/transactions/initialize", body))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("missing auth context is unauthorized", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/transactions/initialize", bytes.NewBuffer(reqBody))
		service.Initialize(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPaymentService_Complete(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	body := func(code string) []byte {
		b, _ := json.Marshal(CompleteRequest{TransactionID: testTxnID, OTPCode: code})
		return b
	}

	t.Run("settles payment and debits balance", func(t *testing.T) {
		mailer := &MockMailer{}
		mailer.On("SendPaymentConfirmation", "payer@example.com", mock.Anything).Return(nil)
		service := NewPaymentService(db, mailer)

		dbmock.ExpectBegin()
		expectTransactionLock(dbmock, models.TxnStatusOTPSent, 20_000_000)
		dbmock.ExpectQuery("SELECT id, expires_at FROM otp_codes").
			WithArgs(testTxnID, "123456").
			WillReturnRows(sqlmock.NewRows([]string{"id", "expires_at"}).
				AddRow(7, time.Now().Add(2*time.Minute)))
		dbmock.ExpectExec("UPDATE otp_codes SET is_used = TRUE WHERE id").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbmock.ExpectQuery("FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "balance"}).
				AddRow(1, "payer", "Nguyen Van A", "payer@example.com", int64(50_000_000)))
		dbmock.ExpectExec("UPDATE users SET balance").
			WithArgs(int64(30_000_000), 1, int64(50_000_000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbmock.ExpectExec("UPDATE student_tuition SET is_paid = TRUE").
			WithArgs(sqlmock.AnyArg(), 42).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbmock.ExpectExec("UPDATE transactions SET status").
			WithArgs(models.TxnStatusCompleted, sqlmock.AnyArg(), testTxnID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbmock.ExpectExec("INSERT INTO transaction_history").
			WithArgs(1, testTxnID, int64(50_000_000), int64(30_000_000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbmock.ExpectExec("DELETE FROM transaction_locks").
			WithArgs(models.LockResourceUserAccount, "1", models.LockResourceSemesterTuition, "42").
			WillReturnResult(sqlmock.NewResult(0, 2))
		dbmock.ExpectCommit()
		// confirmation email enrichment, after the commit
		dbmock.ExpectQuery("FROM students").
			WithArgs("SV001").
			WillReturnRows(sqlmock.NewRows([]string{"student_id", "full_name", "major", "enrollment_year"}).
				AddRow("SV001", "Nguyen Van B", "", 0))
		dbmock.ExpectQuery("FROM student_tuition").
			WithArgs(42, "SV001").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "student_id", "semester", "academic_year", "tuition_amount",
				"is_paid", "paid_at", "created_at", "updated_at"}).
				AddRow(42, "SV001", "HK1", "2025-2026", int64(20_000_000), true, time.Now(), time.Now(), time.Now()))

		w := httptest.NewRecorder()
		service.Complete(w, authedRequest("POST", "/transactions/complete", body("123456")))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(30_000_000), resp["new_balance"])
		txn := resp["transaction"].(map[string]any)
		assert.Equal(t, models.TxnStatusCompleted, txn["status"])
		mailer.AssertExpectations(t)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("wrong OTP reports remaining attempts", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectBegin()
		expectTransactionLock(dbmock, models.TxnStatusOTPSent, 20_000_000)
		dbmock.ExpectQuery("SELECT id, expires_at FROM otp_codes").
			WithArgs(testTxnID, "000000").
			WillReturnRows(sqlmock.NewRows([]string{"id", "expires_at"}))
		dbmock.ExpectQuery("UPDATE transactions SET failed_otp_attempts").
			WithArgs(testTxnID).
			WillReturnRows(sqlmock.NewRows([]string{"failed_otp_attempts"}).AddRow(1))
		dbmock.ExpectCommit()

		w := httptest.NewRecorder()
		service.Complete(w, authedRequest("POST", "/transactions/complete", body("000000")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "INVALID_OTP", resp["error_code"])
		assert.Equal(t, float64(2), resp["remaining_attempts"])
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("third wrong OTP locks the transaction", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectBegin()
		expectTransactionLock(dbmock, models.TxnStatusOTPSent, 20_000_000)
		dbmock.ExpectQuery("SELECT id, expires_at FROM otp_codes").
			WithArgs(testTxnID, "000000").
			WillReturnRows(sqlmock.NewRows([]string{"id", "expires_at"}))
		dbmock.ExpectQuery("UPDATE transactions SET failed_otp_attempts").
			WithArgs(testTxnID).
			WillReturnRows(sqlmock.NewRows([]string{"failed_otp_attempts"}).AddRow(3))
		expectFailTransition(dbmock)
		dbmock.ExpectCommit()

		w := httptest.NewRecorder()
		service.Complete(w, authedRequest("POST", "/transactions/complete", body("000000")))

		assert.Equal(t, http.StatusLocked, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "TOO_MANY_ATTEMPTS", resp["error_code"])
		assert.Equal(t, models.TxnStatusFailed, resp["transaction_status"])
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("expired OTP fails the transaction", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectBegin()
		expectTransactionLock(dbmock, models.TxnStatusOTPSent, 20_000_000)
		dbmock.ExpectQuery("SELECT id, expires_at FROM otp_codes").
			WithArgs(testTxnID, "123456").
			WillReturnRows(sqlmock.NewRows([]string{"id", "expires_at"}).
				AddRow(7, time.Now().Add(-time.Minute)))
		dbmock.ExpectExec("UPDATE otp_codes SET is_used = TRUE WHERE id").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectFailTransition(dbmock)
		dbmock.ExpectCommit()

		w := httptest.NewRecorder()
		service.Complete(w, authedRequest("POST", "/transactions/complete", body("123456")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "OTP_EXPIRED", resp["error_code"])
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("insufficient balance fails the transaction", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectBegin()
		expectTransactionLock(dbmock, models.TxnStatusOTPSent, 20_000_000)
		dbmock.ExpectQuery("SELECT id, expires_at FROM otp_codes").
			WithArgs(testTxnID, "123456").
			WillReturnRows(sqlmock.NewRows([]string{"id", "expires_at"}).
				AddRow(7, time.Now().Add(2*time.Minute)))
		dbmock.ExpectExec("UPDATE otp_codes SET is_used = TRUE WHERE id").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbmock.ExpectQuery("FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "balance"}).
				AddRow(1, "payer", "Nguyen Van A", "payer@example.com", int64(10_000_000)))
		expectFailTransition(dbmock)
		dbmock.ExpectCommit()

		w := httptest.NewRecorder()
		service.Complete(w, authedRequest("POST", "/transactions/complete", body("123456")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "INSUFFICIENT_BALANCE", resp["error_code"])
		assert.Equal(t, float64(10_000_000), resp["current_balance"])
		assert.Equal(t, float64(20_000_000), resp["required_amount"])
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("terminal transaction is not ready for completion", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectBegin()
		dbmock.ExpectQuery("SELECT id, payer_id, student_id, tuition_id, amount, status").
			WithArgs(testTxnID, 1, sqlmock.AnyArg()).
			WillReturnError(sql.ErrNoRows)
		dbmock.ExpectRollback()

		w := httptest.NewRecorder()
		service.Complete(w, authedRequest("POST", "/transactions/complete", body("123456")))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})
}

func TestPaymentService_ResendOTP(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	reqBody, _ := json.Marshal(TransactionRef{TransactionID: testTxnID})

	t.Run("cooldown window returns rate limited with seconds remaining", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectQuery("FROM transactions").
			WithArgs(testTxnID, 1).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "payer_id", "student_id", "tuition_id", "amount", "status",
				"completed_at", "failed_otp_attempts", "created_at", "updated_at"}).
				AddRow(testTxnID, 1, "SV001", 42, int64(20_000_000), models.TxnStatusOTPSent,
					nil, 0, time.Now(), time.Now()))
		dbmock.ExpectQuery("SELECT created_at FROM otp_codes").
			WithArgs(testTxnID).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).
				AddRow(time.Now().Add(-10 * time.Second)))

		w := httptest.NewRecorder()
		service.ResendOTP(w, authedRequest("POST", "/transactions/send_otp", reqBody))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "RATE_LIMITED", resp["error_code"])
		remaining := resp["seconds_remaining"].(float64)
		assert.Greater(t, remaining, float64(0))
		assert.LessOrEqual(t, remaining, float64(51))
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("completed transaction cannot be resent", func(t *testing.T) {
		service := NewPaymentService(db, &MockMailer{})

		dbmock.ExpectQuery("FROM transactions").
			WithArgs(testTxnID, 1).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "payer_id", "student_id", "tuition_id", "amount", "status",
				"completed_at", "failed_otp_attempts", "created_at", "updated_at"}).
				AddRow(testTxnID, 1, "SV001", 42, int64(20_000_000), models.TxnStatusCompleted,
					time.Now(), 0, time.Now(), time.Now()))

		w := httptest.NewRecorder()
		service.ResendOTP(w, authedRequest("POST", "/transactions/send_otp", reqBody))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})
}

func TestPaymentService_Cancel(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, &MockMailer{})
	reqBody, _ := json.Marshal(TransactionRef{TransactionID: testTxnID})

	t.Run("fails the transaction and releases locks", func(t *testing.T) {
		dbmock.ExpectBegin()
		expectTransactionLock(dbmock, models.TxnStatusOTPSent, 20_000_000)
		expectFailTransition(dbmock)
		dbmock.ExpectCommit()

		w := httptest.NewRecorder()
		service.Cancel(w, authedRequest("POST", "/transactions/cancel", reqBody))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, models.TxnStatusFailed, resp["status"])
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("terminal transaction is not found", func(t *testing.T) {
		dbmock.ExpectBegin()
		dbmock.ExpectQuery("SELECT id, payer_id, student_id, tuition_id, amount, status").
			WithArgs(testTxnID, 1, sqlmock.AnyArg()).
			WillReturnError(sql.ErrNoRows)
		dbmock.ExpectRollback()

		w := httptest.NewRecorder()
		service.Cancel(w, authedRequest("POST", "/transactions/cancel", reqBody))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})
}

func TestPaymentService_Listings(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, &MockMailer{})

	listingCols := []string{"id", "student_id", "full_name", "semester", "academic_year",
		"amount", "status", "created_at", "completed_at", "failed_otp_attempts"}

	t.Run("pending listing flags stale transactions", func(t *testing.T) {
		dbmock.ExpectQuery("FROM transactions t").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(listingCols).
				AddRow(testTxnID, "SV001", "Nguyen Van B", "HK1", "2025-2026",
					int64(20_000_000), models.TxnStatusOTPSent, time.Now().Add(-2*time.Hour), nil, 0).
				AddRow("c2a57bd8-3e18-4d31-8e41-6c1d7b5e2a0c", "SV002", "Tran Thi C", "HK1", "2025-2026",
					int64(15_000_000), models.TxnStatusPending, time.Now().Add(-5*time.Minute), nil, 0))

		w := httptest.NewRecorder()
		service.PendingTransactions(w, authedRequest("GET", "/transactions/pending", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Pending []enrichedTransaction `json:"pending_transactions"`
			Count   int                   `json:"count"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, 2, resp.Count)
		assert.True(t, resp.Pending[0].IsExpired)
		assert.False(t, resp.Pending[1].IsExpired)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("history honours the status filter", func(t *testing.T) {
		dbmock.ExpectQuery("FROM transactions t").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(listingCols).
				AddRow(testTxnID, "SV001", "Nguyen Van B", "HK1", "2025-2026",
					int64(20_000_000), models.TxnStatusCompleted, time.Now().Add(-time.Hour), time.Now(), 0))

		w := httptest.NewRecorder()
		service.History(w, authedRequest("GET", "/transactions/history?status=completed", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Transactions []enrichedTransaction `json:"transactions"`
			Count        int                   `json:"count"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, 1, resp.Count)
		assert.False(t, resp.Transactions[0].IsExpired)
		assert.NotNil(t, resp.Transactions[0].CompletedAt)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("unknown status filter is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.History(w, authedRequest("GET", "/transactions/history?status=bogus", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
