package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/dernekpro/backend/internal/email"
	"github.com/dernekpro/backend/internal/sms"
	"github.com/go-chi/chi/v5"
)

// EmailService sends bulk email to members. Email has no campaign record
// or delivery history table; per-recipient outcomes are returned inline.
type EmailService struct {
	db        *sql.DB
	mailer    email.Mailer
	org       *OrgAccess
	validator *ValidationHelper
}

type BulkEmailRequest struct {
	Subject   string   `json:"subject" validate:"required,min=1,max=500"`
	Message   string   `json:"message" validate:"required,min=1"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,uuid4"`
}

type emailSendResult struct {
	MemberID string `json:"memberId"`
	Email    string `json:"email"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func NewEmailService(db *sql.DB, mailer email.Mailer) *EmailService {
	return &EmailService{
		db:        db,
		mailer:    mailer,
		org:       NewOrgAccess(db),
		validator: NewValidationHelper(),
	}
}

// SendBulk emails the selected members
// @Summary Send bulk email
// @Description Sends a personalized email to every selected member that has an address on file; a recipient failure never aborts the run
// @Tags messaging
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param request body BulkEmailRequest true "Email content and recipients"
// @Success 200 {object} object{success=bool,sent=int,failed=int,results=[]emailSendResult}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /{org}/email/send [post]
func (s *EmailService) SendBulk(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := s.org.EnsureBySlug(userID, chi.URLParam(r, "org"), true)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	var req BulkEmailRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	recipients, err := s.resolveEmailRecipients(orgID, req.MemberIDs)
	if err != nil {
		log.Printf("[EMAIL] Failed to resolve recipients for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to resolve recipients", http.StatusInternalServerError, nil)
		return
	}
	if len(recipients) == 0 {
		SendErrorResponse(w, "No selected member has an email address", http.StatusBadRequest, nil)
		return
	}

	results := make([]emailSendResult, 0, len(recipients))
	var sent, failed int
	for _, rec := range recipients {
		content := sms.RenderTemplate(req.Message, rec.firstName, rec.lastName)

		res := emailSendResult{MemberID: rec.memberID, Email: rec.email}
		if err := s.mailer.Send(r.Context(), rec.email, req.Subject, content); err != nil {
			log.Printf("[EMAIL] Failed to send to %s: %v", rec.email, err)
			res.Error = err.Error()
			failed++
		} else {
			res.Success = true
			sent++
		}
		results = append(results, res)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"sent":    sent,
		"failed":  failed,
		"results": results,
	})
}

type emailRecipient struct {
	memberID  string
	email     string
	firstName string
	lastName  string
}

// resolveEmailRecipients keeps only org members with an address on file.
func (s *EmailService) resolveEmailRecipients(orgID string, memberIDs []string) ([]emailRecipient, error) {
	args := []any{orgID}
	placeholders := make([]string, len(memberIDs))
	for i, id := range memberIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	query := fmt.Sprintf(`
		SELECT id, email, first_name, last_name FROM members
		WHERE organization_id = $1 AND email IS NOT NULL AND email <> ''
		AND id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []emailRecipient{}
	for rows.Next() {
		var rec emailRecipient
		if err := rows.Scan(&rec.memberID, &rec.email, &rec.firstName, &rec.lastName); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}

	return recipients, rows.Err()
}
