package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/viper"

	"github.com/ibanking/backend/internal/models"
)

// PaymentService drives the tuition payment state machine:
// pending -> otp_sent -> completed, with failed reachable from any live state.
// All coordination happens through the database; handlers never share mutable
// state beyond the connection pool.
type PaymentService struct {
	db        *sql.DB
	ledger    *TuitionLedgerService
	otps      *OTPService
	mailer    Mailer
	validator *ValidationHelper
}

func NewPaymentService(db *sql.DB, mailer Mailer) *PaymentService {
	return &PaymentService{
		db:        db,
		ledger:    NewTuitionLedgerService(db),
		otps:      NewOTPService(db),
		mailer:    mailer,
		validator: NewValidationHelper(),
	}
}

// InitializeRequest starts a payment for one tuition line.
type InitializeRequest struct {
	StudentID string `json:"student_id" validate:"required,max=20"`
	TuitionID int    `json:"tuition_id" validate:"required,gt=0"`
}

// CompleteRequest settles a payment with the emailed OTP.
type CompleteRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid4"`
	OTPCode       string `json:"otp_code" validate:"required,len=6,numeric"`
}

// TransactionRef identifies a transaction for resend/cancel.
type TransactionRef struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid4"`
}

// staleAfter is the age past which an in-flight transaction is considered
// abandoned, shared with the cleanup sweep.
func staleAfter() time.Duration {
	viper.SetDefault("cleanup.stale_after_minutes", 60)
	return time.Duration(viper.GetInt("cleanup.stale_after_minutes")) * time.Minute
}

// Initialize creates a payment transaction
// @Summary Initialize a tuition payment
// @Description Lock the payer account and tuition line, create a pending transaction and email an OTP
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body InitializeRequest true "Payment target"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /transactions/initialize [post]
func (ps *PaymentService) Initialize(w http.ResponseWriter, r *http.Request) {
	payerID, ok := payerFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req InitializeRequest
	if !ps.decodeBody(w, r, &req) {
		return
	}

	student, err := ps.fetchStudent(req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[PAYMENT] Student lookup failed for %s: %v", req.StudentID, err)
			SendErrorResponse(w, "Failed to initialize transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	tuition, err := ps.ledger.GetTuition(req.TuitionID, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Tuition record not found for this student", http.StatusNotFound, nil)
		} else {
			log.Printf("[PAYMENT] Tuition lookup failed for %d: %v", req.TuitionID, err)
			SendErrorResponse(w, "Failed to initialize transaction", http.StatusInternalServerError, nil)
		}
		return
	}
	if tuition.IsPaid {
		SendErrorResponse(w, "This semester tuition is already paid", http.StatusBadRequest, nil)
		return
	}

	txn, err := ps.ledger.CreateTransactionWithLocks(payerID, req.StudentID, req.TuitionID, tuition.TuitionAmount)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountBusy):
			SendErrorResponse(w, "You already have a pending transaction. Please complete or wait for expiration", http.StatusConflict, nil)
		case errors.Is(err, ErrTuitionBusy):
			SendErrorResponse(w, "This semester tuition payment is already being processed by another user", http.StatusConflict, nil)
		default:
			log.Printf("[PAYMENT] Transaction create failed for payer %d: %v", payerID, err)
			SendErrorResponse(w, "Failed to initialize transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[PAYMENT] Transaction %s created for payer %d (tuition %d, amount %d)",
		txn.ID, payerID, req.TuitionID, txn.Amount)

	// Locks and the transaction row are committed at this point. Email is slow
	// external I/O and must run outside the atomic unit; its failure never
	// rolls back what was committed.
	status, warning := ps.deliverOTP(txn, student, tuition)

	resp := map[string]any{
		"message": "Transaction created successfully. OTP sent to your email.",
		"transaction": map[string]any{
			"id":            txn.ID,
			"student_id":    txn.StudentID,
			"tuition_id":    txn.TuitionID,
			"semester":      tuition.Semester,
			"academic_year": tuition.AcademicYear,
			"amount":        txn.Amount,
			"status":        status,
		},
	}
	if warning != "" {
		resp["message"] = "Transaction created. Please use resend OTP if you don't receive the email."
		resp["warning"] = warning
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// deliverOTP issues a code, emails it and advances pending -> otp_sent on
// success. Returns the resulting status and a warning when delivery failed.
func (ps *PaymentService) deliverOTP(txn *models.Transaction, student *models.Student, tuition *models.StudentTuition) (string, string) {
	code, err := ps.otps.Issue(txn.ID)
	if err != nil {
		log.Printf("[PAYMENT] OTP issue failed for transaction %s: %v", txn.ID, err)
		return models.TxnStatusPending, "OTP could not be generated. Please use resend OTP."
	}

	payer, err := ps.fetchPayer(txn.PayerID)
	if err != nil {
		log.Printf("[PAYMENT] Payer lookup failed for %d: %v", txn.PayerID, err)
		return models.TxnStatusPending, "OTP email could not be sent. Please use resend OTP."
	}

	emailData := PaymentEmailData{
		StudentID:     student.StudentID,
		StudentName:   student.FullName,
		Semester:      tuition.Semester,
		AcademicYear:  tuition.AcademicYear,
		TuitionAmount: tuition.TuitionAmount,
	}
	if err := ps.mailer.SendOTPEmail(payer.Email, code, emailData); err != nil {
		log.Printf("[PAYMENT] OTP email failed for transaction %s: %v", txn.ID, err)
		return models.TxnStatusPending, "OTP email could not be sent. Please use resend OTP button."
	}

	if err := ps.ledger.MarkOTPSent(txn.ID); err != nil {
		log.Printf("[PAYMENT] Status update failed for transaction %s: %v", txn.ID, err)
		return models.TxnStatusPending, ""
	}
	return models.TxnStatusOTPSent, ""
}

// ResendOTP reissues a code for an in-flight transaction
// @Summary Resend the OTP email
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body TransactionRef true "Transaction reference"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /transactions/send_otp [post]
func (ps *PaymentService) ResendOTP(w http.ResponseWriter, r *http.Request) {
	payerID, ok := payerFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransactionRef
	if !ps.decodeBody(w, r, &req) {
		return
	}

	txn, err := ps.ledger.GetTransaction(req.TransactionID, payerID)
	if err != nil || txn.IsTerminal() {
		SendErrorResponse(w, "Transaction not found or already completed", http.StatusNotFound, nil)
		return
	}

	code, err := ps.otps.Resend(txn.ID)
	if err != nil {
		var cooldown *ErrOTPCooldown
		if errors.As(err, &cooldown) {
			SendBusinessError(w, cooldown.Error(), "RATE_LIMITED", http.StatusTooManyRequests,
				map[string]any{"seconds_remaining": cooldown.Remaining})
			return
		}
		log.Printf("[PAYMENT] OTP resend failed for transaction %s: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to resend OTP", http.StatusInternalServerError, nil)
		return
	}

	student, serr := ps.fetchStudent(txn.StudentID)
	tuition, terr := ps.ledger.GetTuition(txn.TuitionID, txn.StudentID)
	if serr != nil || terr != nil {
		log.Printf("[PAYMENT] Enrichment lookup failed for transaction %s", txn.ID)
		SendErrorResponse(w, "Failed to resend OTP", http.StatusInternalServerError, nil)
		return
	}

	status, warning := models.TxnStatusOTPSent, ""
	payer, err := ps.fetchPayer(payerID)
	if err == nil {
		err = ps.mailer.SendOTPEmail(payer.Email, code, PaymentEmailData{
			StudentID:     student.StudentID,
			StudentName:   student.FullName,
			Semester:      tuition.Semester,
			AcademicYear:  tuition.AcademicYear,
			TuitionAmount: tuition.TuitionAmount,
		})
	}
	if err != nil {
		log.Printf("[PAYMENT] OTP resend email failed for transaction %s: %v", txn.ID, err)
		status, warning = txn.Status, "OTP email could not be sent. Please try again."
	} else if err := ps.ledger.MarkOTPSent(txn.ID); err != nil {
		log.Printf("[PAYMENT] Status update failed for transaction %s: %v", txn.ID, err)
	}

	resp := map[string]any{
		"message": "OTP resent successfully. Check your email.",
		"status":  status,
	}
	if warning != "" {
		resp["warning"] = warning
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Complete settles a payment after OTP verification
// @Summary Complete a tuition payment
// @Description Verify the OTP, debit the payer and mark the tuition paid atomically
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body CompleteRequest true "Transaction and OTP"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Router /transactions/complete [post]
func (ps *PaymentService) Complete(w http.ResponseWriter, r *http.Request) {
	payerID, ok := payerFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CompleteRequest
	if !ps.decodeBody(w, r, &req) {
		return
	}

	tx, err := ps.db.Begin()
	if err != nil {
		log.Printf("[PAYMENT] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	txn, err := ps.lockTransactionTx(tx, req.TransactionID, payerID, models.TxnStatusOTPSent)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found or not ready for completion", http.StatusNotFound, nil)
		} else {
			log.Printf("[PAYMENT] Transaction lock failed for %s: %v", req.TransactionID, err)
			SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		}
		return
	}

	result, err := ps.otps.VerifyTx(tx, txn.ID, req.OTPCode)
	if err != nil {
		log.Printf("[PAYMENT] OTP verification failed for transaction %s: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	switch result {
	case OTPWrongCode:
		ps.handleWrongOTP(w, tx, txn)
		return
	case OTPExpired:
		if err := ps.failAndCommit(tx, txn); err != nil {
			SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
			return
		}
		SendBusinessError(w, "OTP has expired. Transaction has been cancelled.", "OTP_EXPIRED",
			http.StatusBadRequest, map[string]any{"transaction_status": models.TxnStatusFailed})
		return
	}

	payer, err := ps.ledger.LockPayerTx(tx, payerID)
	if err != nil {
		log.Printf("[PAYMENT] Payer lock failed for %d: %v", payerID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	if payer.Balance < txn.Amount {
		if err := ps.failAndCommit(tx, txn); err != nil {
			SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
			return
		}
		SendBusinessError(w, "Insufficient balance. Transaction has been cancelled.", "INSUFFICIENT_BALANCE",
			http.StatusBadRequest, map[string]any{
				"transaction_status": models.TxnStatusFailed,
				"current_balance":    payer.Balance,
				"required_amount":    txn.Amount,
			})
		return
	}

	newBalance := payer.Balance - txn.Amount
	if err := ps.ledger.SettlePaymentTx(tx, txn, payer.Balance, newBalance); err != nil {
		log.Printf("[PAYMENT] Settlement failed for transaction %s: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[PAYMENT] Settlement commit failed for transaction %s: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENT] Transaction %s completed, payer %d new balance %d", txn.ID, payerID, newBalance)

	// Money movement is final once the commit above lands. The confirmation
	// email is best-effort and never reverses committed state.
	ps.sendConfirmation(txn, payer, newBalance)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "Transaction completed successfully!",
		"transaction": map[string]any{
			"id":         txn.ID,
			"student_id": txn.StudentID,
			"amount":     txn.Amount,
			"status":     models.TxnStatusCompleted,
		},
		"new_balance": newBalance,
	})
}

func (ps *PaymentService) handleWrongOTP(w http.ResponseWriter, tx *sql.Tx, txn *models.Transaction) {
	attempts, err := ps.ledger.IncrementOTPFailuresTx(tx, txn.ID)
	if err != nil {
		log.Printf("[PAYMENT] Attempt counter update failed for %s: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	if attempts >= models.MaxFailedOTPAttempts {
		if err := ps.failAndCommit(tx, txn); err != nil {
			SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
			return
		}
		log.Printf("[PAYMENT] Transaction %s failed after %d wrong OTP attempts", txn.ID, attempts)
		SendBusinessError(w, "Transaction locked due to multiple failed OTP attempts. Please start a new payment.",
			"TOO_MANY_ATTEMPTS", http.StatusLocked, map[string]any{
				"failed_attempts":    attempts,
				"transaction_status": models.TxnStatusFailed,
			})
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[PAYMENT] Attempt counter commit failed for %s: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	SendBusinessError(w, "Invalid OTP code", "INVALID_OTP", http.StatusBadRequest, map[string]any{
		"failed_attempts":    attempts,
		"remaining_attempts": models.MaxFailedOTPAttempts - attempts,
	})
}

func (ps *PaymentService) failAndCommit(tx *sql.Tx, txn *models.Transaction) error {
	if err := ps.ledger.FailTransactionTx(tx, txn); err != nil {
		log.Printf("[PAYMENT] Fail transition error for %s: %v", txn.ID, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[PAYMENT] Fail transition commit error for %s: %v", txn.ID, err)
		return err
	}
	return nil
}

func (ps *PaymentService) sendConfirmation(txn *models.Transaction, payer *models.User, newBalance int64) {
	student, serr := ps.fetchStudent(txn.StudentID)
	tuition, terr := ps.ledger.GetTuition(txn.TuitionID, txn.StudentID)
	if serr != nil || terr != nil {
		log.Printf("[PAYMENT] Confirmation enrichment failed for %s", txn.ID)
		return
	}
	err := ps.mailer.SendPaymentConfirmation(payer.Email, ConfirmationEmailData{
		TransactionID: txn.ID,
		StudentID:     student.StudentID,
		StudentName:   student.FullName,
		Semester:      tuition.Semester,
		AcademicYear:  tuition.AcademicYear,
		Amount:        txn.Amount,
		NewBalance:    newBalance,
	})
	if err != nil {
		log.Printf("[PAYMENT] Confirmation email failed for %s: %v", txn.ID, err)
	}
}

// Cancel fails an in-flight transaction at the payer's request
// @Summary Cancel a pending payment
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body TransactionRef true "Transaction reference"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /transactions/cancel [post]
func (ps *PaymentService) Cancel(w http.ResponseWriter, r *http.Request) {
	payerID, ok := payerFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransactionRef
	if !ps.decodeBody(w, r, &req) {
		return
	}

	tx, err := ps.db.Begin()
	if err != nil {
		log.Printf("[PAYMENT] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to cancel transaction", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	txn, err := ps.lockTransactionTx(tx, req.TransactionID, payerID,
		models.TxnStatusPending, models.TxnStatusOTPSent)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found or already completed/cancelled", http.StatusNotFound, nil)
		} else {
			log.Printf("[PAYMENT] Transaction lock failed for %s: %v", req.TransactionID, err)
			SendErrorResponse(w, "Failed to cancel transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	if err := ps.failAndCommit(tx, txn); err != nil {
		SendErrorResponse(w, "Failed to cancel transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENT] Transaction %s cancelled by payer %d", txn.ID, payerID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":        "Transaction cancelled successfully",
		"transaction_id": txn.ID,
		"status":         models.TxnStatusFailed,
	})
}

// enrichedTransaction is the listing shape for pending and history views.
type enrichedTransaction struct {
	ID                string     `json:"id"`
	StudentID         string     `json:"student_id"`
	StudentName       string     `json:"student_name"`
	Semester          *string    `json:"semester"`
	AcademicYear      *string    `json:"academic_year"`
	Amount            int64      `json:"amount"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	IsExpired         bool       `json:"is_expired"`
	FailedOTPAttempts int        `json:"failed_otp_attempts"`
}

// PendingTransactions lists the payer's in-flight transactions
// @Summary List pending transactions
// @Tags transactions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /transactions/pending [get]
func (ps *PaymentService) PendingTransactions(w http.ResponseWriter, r *http.Request) {
	payerID, ok := payerFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txns, err := ps.listTransactions(payerID, []string{models.TxnStatusPending, models.TxnStatusOTPSent})
	if err != nil {
		log.Printf("[PAYMENT] Pending listing failed for payer %d: %v", payerID, err)
		SendErrorResponse(w, "Failed to fetch pending transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"pending_transactions": txns,
		"count":                len(txns),
	})
}

// History lists the payer's transactions, optionally filtered by status
// @Summary List transaction history
// @Tags transactions
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} map[string]interface{}
// @Router /transactions/history [get]
func (ps *PaymentService) History(w http.ResponseWriter, r *http.Request) {
	payerID, ok := payerFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var statuses []string
	switch status := r.URL.Query().Get("status"); status {
	case models.TxnStatusPending, models.TxnStatusOTPSent, models.TxnStatusCompleted, models.TxnStatusFailed:
		statuses = []string{status}
	case "":
		statuses = []string{models.TxnStatusPending, models.TxnStatusOTPSent,
			models.TxnStatusCompleted, models.TxnStatusFailed}
	default:
		SendErrorResponse(w, "Invalid status filter", http.StatusBadRequest, nil)
		return
	}

	txns, err := ps.listTransactions(payerID, statuses)
	if err != nil {
		log.Printf("[PAYMENT] History listing failed for payer %d: %v", payerID, err)
		SendErrorResponse(w, "Failed to fetch transaction history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": txns,
		"count":        len(txns),
	})
}

// Database helper functions

func (ps *PaymentService) listTransactions(payerID int, statuses []string) ([]enrichedTransaction, error) {
	rows, err := ps.db.Query(`
		SELECT t.id, t.student_id, COALESCE(s.full_name, 'Unknown'),
		       st.semester, st.academic_year,
		       t.amount, t.status, t.created_at, t.completed_at, t.failed_otp_attempts
		FROM transactions t
		LEFT JOIN students s ON t.student_id = s.student_id
		LEFT JOIN student_tuition st ON t.tuition_id = st.id
		WHERE t.payer_id = $1 AND t.status = ANY($2)
		ORDER BY t.created_at DESC`, payerID, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cutoff := time.Now().Add(-staleAfter())
	txns := []enrichedTransaction{}
	for rows.Next() {
		var e enrichedTransaction
		if err := rows.Scan(&e.ID, &e.StudentID, &e.StudentName, &e.Semester, &e.AcademicYear,
			&e.Amount, &e.Status, &e.CreatedAt, &e.CompletedAt, &e.FailedOTPAttempts); err != nil {
			return nil, err
		}
		e.IsExpired = !models.IsTerminalStatus(e.Status) && e.CreatedAt.Before(cutoff)
		txns = append(txns, e)
	}
	return txns, rows.Err()
}

// lockTransactionTx loads the payer's transaction under FOR UPDATE, restricted
// to the given statuses. Terminal transactions never match, so completed or
// failed transactions surface as not-found rather than being mutated.
func (ps *PaymentService) lockTransactionTx(tx *sql.Tx, transactionID string, payerID int, statuses ...string) (*models.Transaction, error) {
	txn := &models.Transaction{}
	err := tx.QueryRow(`
		SELECT id, payer_id, student_id, tuition_id, amount, status,
		       completed_at, failed_otp_attempts, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND payer_id = $2 AND status = ANY($3)
		FOR UPDATE`, transactionID, payerID, pq.Array(statuses)).Scan(
		&txn.ID, &txn.PayerID, &txn.StudentID, &txn.TuitionID, &txn.Amount,
		&txn.Status, &txn.CompletedAt, &txn.FailedOTPAttempts,
		&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (ps *PaymentService) fetchStudent(studentID string) (*models.Student, error) {
	s := &models.Student{}
	err := ps.db.QueryRow(`
		SELECT student_id, full_name, COALESCE(major, ''), COALESCE(enrollment_year, 0)
		FROM students WHERE student_id = $1`, studentID).Scan(
		&s.StudentID, &s.FullName, &s.Major, &s.EnrollmentYear)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (ps *PaymentService) fetchPayer(payerID int) (*models.User, error) {
	u := &models.User{}
	err := ps.db.QueryRow(`
		SELECT id, username, full_name, email, balance
		FROM users WHERE id = $1`, payerID).Scan(
		&u.ID, &u.Username, &u.FullName, &u.Email, &u.Balance)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (ps *PaymentService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := ps.validator.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// payerFromContext extracts the authenticated payer id set by the auth
// middleware.
func payerFromContext(r *http.Request) (int, bool) {
	raw, ok := r.Context().Value("userID").(string)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}
