package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestSettlementService_ExportBankTransfers(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSettlementService(db)

	columns := []string{"id", "amount", "currency", "receipt_no", "first_name", "last_name"}

	t.Run("exports bank transfer payments as pacs.008", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT name FROM organizations").
			WithArgs("org1").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Besiktas Dernegi"))
		mock.ExpectQuery("SELECT ft.id, ft.amount, ft.currency").
			WithArgs("org1", "PAYMENT", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("t1", int64(5000), "TRY", "R-001", "Ayse", "Yilmaz").
				AddRow("t2", int64(7500), "TRY", "", "Mehmet", "Demir"))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/settlement-export", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.ExportBankTransfers(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "exported", resp["status"])
		assert.Equal(t, "pacs.008.001.08", resp["messageType"])
		assert.Equal(t, float64(2), resp["transactionCount"])

		xmlData := resp["xml"].(string)
		assert.Contains(t, xmlData, "<?xml")
		assert.Contains(t, xmlData, "R-001")
		assert.Contains(t, xmlData, "Ayse Yilmaz")
		assert.Contains(t, xmlData, "Besiktas Dernegi")
		// Transactions without a receipt fall back to their id.
		assert.Contains(t, xmlData, "t2")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty window", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT name FROM organizations").
			WithArgs("org1").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Besiktas Dernegi"))
		mock.ExpectQuery("SELECT ft.id, ft.amount, ft.currency").
			WithArgs("org1", "PAYMENT", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(columns))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/settlement-export", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.ExportBankTransfers(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "empty", resp["status"])
		assert.Equal(t, float64(0), resp["transactionCount"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
