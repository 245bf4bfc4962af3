package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dernekpro/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type MeetingService struct {
	db        *sql.DB
	org       *OrgAccess
	validator *ValidationHelper
}

type CreateMeetingRequest struct {
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	Location    string    `json:"location" validate:"max=200"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

func NewMeetingService(db *sql.DB) *MeetingService {
	return &MeetingService{
		db:        db,
		org:       NewOrgAccess(db),
		validator: NewValidationHelper(),
	}
}

// ListMeetings retrieves org meetings, newest first
// @Summary List meetings
// @Tags meetings
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Success 200 {object} object{meetings=[]models.Meeting}
// @Router /{org}/meetings [get]
func (s *MeetingService) ListMeetings(w http.ResponseWriter, r *http.Request) {
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

	rows, err := s.db.Query(`
		SELECT id, organization_id, title, COALESCE(location, ''), scheduled_at,
		       COALESCE(minutes, ''), created_at
		FROM meetings
		WHERE organization_id = $1
		ORDER BY scheduled_at DESC
		LIMIT 100
	`, orgID)
	if err != nil {
		log.Printf("[MEETINGS] Failed to list meetings for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch meetings", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	meetings := []models.Meeting{}
	for rows.Next() {
		var m models.Meeting
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.Title, &m.Location,
			&m.ScheduledAt, &m.Minutes, &m.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to read meetings", http.StatusInternalServerError, nil)
			return
		}
		meetings = append(meetings, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"meetings": meetings})
}

// CreateMeeting schedules a meeting
// @Summary Create meeting
// @Tags meetings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param meeting body CreateMeetingRequest true "Meeting data"
// @Success 201 {object} models.Meeting
// @Failure 400 {object} ErrorResponse
// @Router /{org}/meetings [post]
func (s *MeetingService) CreateMeeting(w http.ResponseWriter, r *http.Request) {
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

	var req CreateMeetingRequest
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

	meeting := models.Meeting{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Title:          req.Title,
		Location:       req.Location,
		ScheduledAt:    req.ScheduledAt,
		CreatedAt:      time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO meetings (id, organization_id, title, location, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, meeting.ID, meeting.OrganizationID, meeting.Title, nullable(meeting.Location),
		meeting.ScheduledAt, meeting.CreatedAt)
	if err != nil {
		log.Printf("[MEETINGS] Failed to create meeting: %v", err)
		SendErrorResponse(w, "Failed to create meeting", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(meeting)
}
