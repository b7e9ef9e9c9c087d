package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ibanking/backend/internal/models"
)

// StudentService serves read-only student and tuition lookups used by the
// payment entry screen.
type StudentService struct {
	db *sql.DB
}

func NewStudentService(db *sql.DB) *StudentService {
	return &StudentService{db: db}
}

// GetStudent returns a student's public profile
// @Summary Look up a student by id
// @Tags students
// @Produce json
// @Param student_id path string true "Student ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /students/{student_id} [get]
func (ss *StudentService) GetStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "student_id")

	s := &models.Student{}
	err := ss.db.QueryRow(`
		SELECT student_id, full_name, COALESCE(major, ''), COALESCE(enrollment_year, 0)
		FROM students WHERE student_id = $1`, studentID).Scan(
		&s.StudentID, &s.FullName, &s.Major, &s.EnrollmentYear)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[STUDENT] Lookup failed for %s: %v", studentID, err)
			SendErrorResponse(w, "Failed to fetch student", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"student": s})
}

// semesterLine is one tuition row in the semesters listing.
type semesterLine struct {
	ID            int     `json:"id"`
	Semester      string  `json:"semester"`
	AcademicYear  string  `json:"academic_year"`
	TuitionAmount int64   `json:"tuition_amount"`
	IsPaid        bool    `json:"is_paid"`
	PaidAt        *string `json:"paid_at,omitempty"`
}

// Semesters lists a student's tuition lines
// @Summary List tuition semesters for a student
// @Description Unpaid semesters by default; pass show_all=true for the full ledger
// @Tags students
// @Produce json
// @Param student_id path string true "Student ID"
// @Param show_all query bool false "Include paid semesters"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /transactions/semesters/{student_id} [get]
func (ss *StudentService) Semesters(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "student_id")
	showAll := r.URL.Query().Get("show_all") == "true"

	var fullName string
	err := ss.db.QueryRow(`SELECT full_name FROM students WHERE student_id = $1`, studentID).Scan(&fullName)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[STUDENT] Lookup failed for %s: %v", studentID, err)
			SendErrorResponse(w, "Failed to fetch semesters", http.StatusInternalServerError, nil)
		}
		return
	}

	query := `
		SELECT id, semester, academic_year, tuition_amount, is_paid,
		       to_char(paid_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM student_tuition
		WHERE student_id = $1`
	if !showAll {
		query += ` AND is_paid = FALSE`
	}
	query += ` ORDER BY academic_year DESC, semester DESC`

	rows, err := ss.db.Query(query, studentID)
	if err != nil {
		log.Printf("[STUDENT] Semesters query failed for %s: %v", studentID, err)
		SendErrorResponse(w, "Failed to fetch semesters", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	semesters := []semesterLine{}
	var totalUnpaid int64
	for rows.Next() {
		var line semesterLine
		if err := rows.Scan(&line.ID, &line.Semester, &line.AcademicYear,
			&line.TuitionAmount, &line.IsPaid, &line.PaidAt); err != nil {
			log.Printf("[STUDENT] Semesters scan failed for %s: %v", studentID, err)
			SendErrorResponse(w, "Failed to fetch semesters", http.StatusInternalServerError, nil)
			return
		}
		if !line.IsPaid {
			totalUnpaid += line.TuitionAmount
		}
		semesters = append(semesters, line)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[STUDENT] Semesters rows error for %s: %v", studentID, err)
		SendErrorResponse(w, "Failed to fetch semesters", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"student": map[string]any{
			"student_id": studentID,
			"full_name":  fullName,
		},
		"semesters":    semesters,
		"count":        len(semesters),
		"total_unpaid": totalUnpaid,
	})
}
