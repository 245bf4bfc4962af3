package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dernekpro/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type MemberService struct {
	db        *sql.DB
	org       *OrgAccess
	validator *ValidationHelper
}

type CreateMemberRequest struct {
	FirstName string `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string `json:"lastName" validate:"required,min=1,max=100"`
	Phone     string `json:"phone" validate:"omitempty,msisdn"`
	Email     string `json:"email" validate:"omitempty,email"`
}

type CreateNoteRequest struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

func NewMemberService(db *sql.DB) *MemberService {
	return &MemberService{
		db:        db,
		org:       NewOrgAccess(db),
		validator: NewValidationHelper(),
	}
}

// ListMembers retrieves the org roster
// @Summary List members
// @Tags members
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param status query string false "Filter by status (ACTIVE or PASSIVE)"
// @Success 200 {object} object{members=[]models.Member,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /{org}/members [get]
func (s *MemberService) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := s.org.EnsureBySlug(userID, chi.URLParam(r, "org"), false)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	status := r.URL.Query().Get("status")
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	query := `
		SELECT id, organization_id, first_name, last_name, COALESCE(phone, ''),
		       COALESCE(email, ''), status, joined_at, created_at
		FROM members
		WHERE organization_id = $1
	`
	args := []any{orgID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY last_name, first_name LIMIT " + strconv.Itoa(limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[MEMBERS] Failed to list members for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.FirstName, &m.LastName,
			&m.Phone, &m.Email, &m.Status, &m.JoinedAt, &m.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to read members", http.StatusInternalServerError, nil)
			return
		}
		members = append(members, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// CreateMember adds a member to the roster
// @Summary Create member
// @Tags members
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param member body CreateMemberRequest true "Member data"
// @Success 201 {object} models.Member
// @Failure 400 {object} ErrorResponse
// @Router /{org}/members [post]
func (s *MemberService) CreateMember(w http.ResponseWriter, r *http.Request) {
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

	var req CreateMemberRequest
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

	if req.Phone != "" {
		req.Phone = NormalizePhone(req.Phone)
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	now := time.Now()
	member := models.Member{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Email:          req.Email,
		Status:         "ACTIVE",
		JoinedAt:       now,
		CreatedAt:      now,
	}

	_, err = s.db.Exec(`
		INSERT INTO members
		(id, organization_id, first_name, last_name, phone, email, status, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, member.ID, member.OrganizationID, member.FirstName, member.LastName,
		nullable(member.Phone), nullable(member.Email), member.Status, member.JoinedAt, member.CreatedAt)
	if err != nil {
		log.Printf("[MEMBERS] Failed to create member: %v", err)
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

// ListNotes retrieves notes attached to a member
// @Summary List member notes
// @Tags members
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param id path string true "Member ID"
// @Success 200 {object} object{notes=[]models.MemberNote}
// @Router /{org}/members/{id}/notes [get]
func (s *MemberService) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := s.org.EnsureBySlug(userID, chi.URLParam(r, "org"), false)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	memberID := chi.URLParam(r, "id")
	rows, err := s.db.Query(`
		SELECT n.id, n.member_id, n.author_id, n.body, n.created_at
		FROM member_notes n
		JOIN members m ON m.id = n.member_id
		WHERE n.member_id = $1 AND m.organization_id = $2
		ORDER BY n.created_at DESC
	`, memberID, orgID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch notes", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	notes := []models.MemberNote{}
	for rows.Next() {
		var n models.MemberNote
		if err := rows.Scan(&n.ID, &n.MemberID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to read notes", http.StatusInternalServerError, nil)
			return
		}
		notes = append(notes, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"notes": notes})
}

// CreateNote attaches a note to a member
// @Summary Create member note
// @Tags members
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param id path string true "Member ID"
// @Param note body CreateNoteRequest true "Note body"
// @Success 201 {object} models.MemberNote
// @Failure 400 {object} ErrorResponse
// @Router /{org}/members/{id}/notes [post]
func (s *MemberService) CreateNote(w http.ResponseWriter, r *http.Request) {
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

	memberID := chi.URLParam(r, "id")

	var req CreateNoteRequest
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

	var exists bool
	err = s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM members WHERE id = $1 AND organization_id = $2)
	`, memberID, orgID).Scan(&exists)
	if err != nil || !exists {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}

	note := models.MemberNote{
		ID:        uuid.New().String(),
		MemberID:  memberID,
		AuthorID:  userID,
		Body:      req.Body,
		CreatedAt: time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO member_notes (id, member_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.MemberID, note.AuthorID, note.Body, note.CreatedAt)
	if err != nil {
		log.Printf("[MEMBERS] Failed to create note: %v", err)
		SendErrorResponse(w, "Failed to create note", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(note)
}
