package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/dernekpro/backend/internal/models"
	"github.com/dernekpro/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type SMSHandler struct {
	service   *services.SmsService
	org       *services.OrgAccess
	validator *services.ValidationHelper
}

type BulkSendRequest struct {
	Message      string   `json:"message" validate:"required,min=1,max=612"`
	MemberIDs    []string `json:"memberIds" validate:"omitempty,dive,uuid4"`
	Phones       []string `json:"phones" validate:"omitempty,dive,min=6,max=20"`
	CampaignName string   `json:"campaignName" validate:"omitempty,max=200"`
	Channel      string   `json:"channel" validate:"omitempty,oneof=SMS WHATSAPP"`
	DryRun       bool     `json:"dryRun"`
	Personalize  *bool    `json:"personalize"`
}

func NewSMSHandler(service *services.SmsService, db *sql.DB) *SMSHandler {
	return &SMSHandler{
		service:   service,
		org:       services.NewOrgAccess(db),
		validator: services.NewValidationHelper(),
	}
}

// SendBulk dispatches a message to members and raw phone numbers
// @Summary Send bulk SMS
// @Description Dispatch a campaign to selected members and phone numbers, with optional per-recipient personalization and dry-run preview
// @Tags sms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param request body BulkSendRequest true "Dispatch request"
// @Success 200 {object} services.BulkResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /{org}/sms/send [post]
func (h *SMSHandler) SendBulk(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := h.org.EnsureBySlug(userID, chi.URLParam(r, "org"), true)
	if err != nil {
		services.SendAccessError(w, err)
		return
	}

	var req BulkSendRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	channel := models.ChannelSMS
	if req.Channel != "" {
		channel = models.Channel(req.Channel)
	}

	result, err := h.service.SendBulk(r.Context(), services.BulkSendOptions{
		OrganizationID: orgID,
		MemberIDs:      req.MemberIDs,
		Phones:         req.Phones,
		Message:        req.Message,
		CampaignName:   req.CampaignName,
		Channel:        channel,
		DryRun:         req.DryRun,
		Personalize:    req.Personalize,
	})
	if err != nil {
		var rateErr *services.RateLimitError
		var capErr *services.CapacityError
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		case errors.As(err, &rateErr):
			services.SendErrorResponse(w, rateErr.Error(), http.StatusTooManyRequests, nil)
		case errors.As(err, &capErr):
			services.SendErrorResponse(w, capErr.Error(), http.StatusBadRequest, nil)
		default:
			log.Printf("[SMS] Dispatch failed for org %s: %v", orgID, err)
			services.SendErrorResponse(w, "Failed to dispatch messages", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
