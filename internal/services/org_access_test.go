package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestOrgAccess_EnsureBySlug(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	access := NewOrgAccess(db)

	t.Run("viewer can read", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")

		orgID, err := access.EnsureBySlug("user1", "besiktas-dernegi", false)

		assert.NoError(t, err)
		assert.Equal(t, "org1", orgID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("viewer cannot write", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")

		_, err := access.EnsureBySlug("user1", "besiktas-dernegi", true)

		assert.ErrorIs(t, err, ErrOrgForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown slug", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM organizations WHERE slug").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := access.EnsureBySlug("user1", "ghost", false)

		assert.ErrorIs(t, err, ErrOrgNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM organizations WHERE slug").
			WithArgs("besiktas-dernegi").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("org1"))
		mock.ExpectQuery("SELECT role FROM organization_members").
			WithArgs("org1", "outsider").
			WillReturnRows(sqlmock.NewRows([]string{"role"}))

		_, err := access.EnsureBySlug("outsider", "besiktas-dernegi", false)

		assert.ErrorIs(t, err, ErrOrgForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrgAccess_Profile(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	access := NewOrgAccess(db)
	now := time.Now()

	t.Run("returns organization and role", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, slug, name, created_at FROM organizations").
			WithArgs("besiktas-dernegi").
			WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at"}).
				AddRow("org1", "besiktas-dernegi", "Besiktas Dernegi", now))
		mock.ExpectQuery("SELECT role FROM organization_members").
			WithArgs("org1", "user1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("MANAGER"))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		access.Profile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Organization struct {
				Name string `json:"name"`
			} `json:"organization"`
			Role string `json:"role"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Besiktas Dernegi", resp.Organization.Name)
		assert.Equal(t, "MANAGER", resp.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown slug", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, slug, name, created_at FROM organizations").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at"}))

		req := newOrgRequest(http.MethodGet, "/ghost", "", "user1", "ghost")
		w := httptest.NewRecorder()

		access.Profile(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
