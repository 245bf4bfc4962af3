package handlers

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dernekpro/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	service   *services.QRService
	org       *services.OrgAccess
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService, db *sql.DB) *QRHandler {
	return &QRHandler{
		service:   service,
		org:       services.NewOrgAccess(db),
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR generates a dues payment QR code for a member
// @Summary Generate QR Code
// @Description Generate a single-use QR code for collecting a member's dues payment
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param request body object{memberId=string,amount=int64} true "QR generation request"
// @Success 200 {object} object{qrCode=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /{org}/qr/generate [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		MemberID string `json:"memberId" validate:"required,uuid4"`
		Amount   int64  `json:"amount" validate:"required,gt=0"`
	}

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

	qrCode, qrImage, err := h.service.GenerateQRCode(r.Context(), orgID, req.MemberID, req.Amount)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"qrCode":  qrCode,
		"qrImage": qrImage,
	})
}

// ProcessQR processes a scanned payment QR code
// @Summary Process QR Code
// @Description Redeem a scanned QR code and return the dues payment payload
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param request body object{qrData=string} true "QR processing request"
// @Success 200 {object} object{memberId=string,amount=int64}
// @Failure 400 {object} services.ErrorResponse
// @Router /{org}/qr/process [post]
func (h *QRHandler) ProcessQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if _, err := h.org.EnsureBySlug(userID, chi.URLParam(r, "org"), true); err != nil {
		services.SendAccessError(w, err)
		return
	}

	var req struct {
		QRData string `json:"qrData" validate:"required"`
	}

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

	result, err := h.service.ProcessQRCode(r.Context(), req.QRData)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}
