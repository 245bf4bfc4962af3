package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dernekpro/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

var (
	ErrOrgNotFound  = errors.New("organization not found")
	ErrOrgForbidden = errors.New("no access to organization")
)

// writeRoles may mutate org data; VIEWER is read-only.
var writeRoles = map[string]bool{
	models.RoleOwner:   true,
	models.RoleAdmin:   true,
	models.RoleManager: true,
}

// OrgAccess resolves organization slugs to ids and checks membership.
// Every org-scoped handler goes through it before touching data.
type OrgAccess struct {
	db *sql.DB
}

func NewOrgAccess(db *sql.DB) *OrgAccess {
	return &OrgAccess{db: db}
}

// EnsureBySlug returns the organization id if userID is a member of the
// organization identified by slug. When write is true, the membership
// role must also carry write permission.
func (oa *OrgAccess) EnsureBySlug(userID, slug string, write bool) (string, error) {
	var orgID string
	err := oa.db.QueryRow(`SELECT id FROM organizations WHERE slug = $1`, slug).Scan(&orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrOrgNotFound
		}
		return "", err
	}

	var role string
	err = oa.db.QueryRow(`
		SELECT role FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrOrgForbidden
		}
		return "", err
	}

	if write && !writeRoles[role] {
		return "", ErrOrgForbidden
	}

	return orgID, nil
}

// Profile returns the organization record plus the caller's role
// @Summary Get organization profile
// @Tags organizations
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Success 200 {object} object{organization=models.Organization,role=string}
// @Failure 404 {object} ErrorResponse
// @Router /{org} [get]
func (oa *OrgAccess) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	slug := chi.URLParam(r, "org")

	var org models.Organization
	err := oa.db.QueryRow(`
		SELECT id, slug, name, created_at FROM organizations WHERE slug = $1
	`, slug).Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendAccessError(w, ErrOrgNotFound)
		} else {
			SendErrorResponse(w, "Failed to resolve organization", http.StatusInternalServerError, nil)
		}
		return
	}

	var role string
	err = oa.db.QueryRow(`
		SELECT role FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, org.ID, userID).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			SendAccessError(w, ErrOrgForbidden)
		} else {
			SendErrorResponse(w, "Failed to resolve organization", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"organization": org,
		"role":         role,
	})
}

// SendAccessError maps access errors onto the HTTP status the caller expects.
func SendAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrgNotFound):
		SendErrorResponse(w, "Organization not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrOrgForbidden):
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
	default:
		SendErrorResponse(w, "Failed to resolve organization", http.StatusInternalServerError, nil)
	}
}
