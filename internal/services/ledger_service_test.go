package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dernekpro/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestComputeBalance(t *testing.T) {
	t.Run("mixed transaction kinds", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindCharge, Amount: 10000},
			{ID: "t2", Kind: models.KindPayment, Amount: 4000},
			{ID: "t3", Kind: models.KindRefund, Amount: 1000},
			{ID: "t4", Kind: models.KindAdjustment, Amount: -500},
		}

		balance, err := ComputeBalance(txs)
		assert.NoError(t, err)
		assert.Equal(t, int64(10000), balance.Charges)
		assert.Equal(t, int64(4000), balance.Payments)
		assert.Equal(t, int64(1000), balance.Refunds)
		assert.Equal(t, int64(-500), balance.Adjustments)
		// 10000 - (4000 + 1000) + (-500)
		assert.Equal(t, int64(4500), balance.Net)
	})

	t.Run("empty transaction list", func(t *testing.T) {
		balance, err := ComputeBalance([]models.FinanceTransaction{})
		assert.NoError(t, err)
		assert.Equal(t, int64(0), balance.Net)
	})

	t.Run("order independence", func(t *testing.T) {
		forward := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindCharge, Amount: 5000},
			{ID: "t2", Kind: models.KindPayment, Amount: 2500},
			{ID: "t3", Kind: models.KindAdjustment, Amount: 300},
		}
		reversed := []models.FinanceTransaction{forward[2], forward[1], forward[0]}

		b1, err := ComputeBalance(forward)
		assert.NoError(t, err)
		b2, err := ComputeBalance(reversed)
		assert.NoError(t, err)
		assert.Equal(t, b1, b2)
	})

	t.Run("positive adjustment increases debt", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindCharge, Amount: 1000},
			{ID: "t2", Kind: models.KindAdjustment, Amount: 250},
		}

		balance, err := ComputeBalance(txs)
		assert.NoError(t, err)
		assert.Equal(t, int64(1250), balance.Net)
	})

	t.Run("unknown kind fails hard", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindCharge, Amount: 1000},
			{ID: "t2", Kind: "GIFT", Amount: 500},
		}

		_, err := ComputeBalance(txs)
		var integrityErr *DataIntegrityError
		assert.ErrorAs(t, err, &integrityErr)
		assert.Equal(t, "t2", integrityErr.TransactionID)
		assert.Equal(t, models.TransactionKind("GIFT"), integrityErr.Kind)
	})

	t.Run("fully settled member", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindCharge, Amount: 5000},
			{ID: "t2", Kind: models.KindPayment, Amount: 5000},
		}

		balance, err := ComputeBalance(txs)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), balance.Net)
	})
}

func TestLedgerService_FinancialReports(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	columns := []string{
		"id", "organization_id", "member_id", "kind", "amount", "currency",
		"payment_method", "plan_id", "period_id", "receipt_no", "note", "txn_date", "created_at",
	}
	now := time.Now()

	t.Run("overview counts debtors and creditors", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT (.+) FROM finance_transactions").
			WithArgs("org1").
			WillReturnRows(sqlmock.NewRows(columns).
				// m1 owes 6000, m2 overpaid by 1000, m3 is settled
				AddRow("t1", "org1", "m1", "CHARGE", 10000, "TRY", "", "", "", "", "", now, now).
				AddRow("t2", "org1", "m1", "PAYMENT", 4000, "TRY", "CASH", "", "", "", "", now, now).
				AddRow("t3", "org1", "m2", "PAYMENT", 1000, "TRY", "BANK_TRANSFER", "", "", "", "", now, now).
				AddRow("t4", "org1", "m3", "CHARGE", 2000, "TRY", "", "", "", "", "", now, now).
				AddRow("t5", "org1", "m3", "PAYMENT", 2000, "TRY", "CASH", "", "", "", "", now, now))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/reports", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Overview struct {
				TotalMembers      int   `json:"totalMembers"`
				TotalTransactions int   `json:"totalTransactions"`
				TotalCharges      int64 `json:"totalCharges"`
				TotalPayments     int64 `json:"totalPayments"`
				NetBalance        int64 `json:"netBalance"`
				Debtors           int   `json:"debtors"`
				Creditors         int   `json:"creditors"`
				Balanced          int   `json:"balanced"`
			} `json:"overview"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Overview.TotalMembers)
		assert.Equal(t, 5, resp.Overview.TotalTransactions)
		assert.Equal(t, int64(12000), resp.Overview.TotalCharges)
		assert.Equal(t, int64(7000), resp.Overview.TotalPayments)
		assert.Equal(t, int64(5000), resp.Overview.NetBalance)
		assert.Equal(t, 1, resp.Overview.Debtors)
		assert.Equal(t, 1, resp.Overview.Creditors)
		assert.Equal(t, 1, resp.Overview.Balanced)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("date window narrows the query", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT (.+) FROM finance_transactions(.+)txn_date >= (.+)txn_date <=").
			WithArgs("org1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(columns))

		req := newOrgRequest(http.MethodGet,
			"/besiktas-dernegi/finance/reports?startDate=2026-01-01&endDate=2026-06-30", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("monthly groups by calendar month", func(t *testing.T) {
		jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
		feb := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT (.+) FROM finance_transactions").
			WithArgs("org1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("t1", "org1", "m1", "CHARGE", 5000, "TRY", "", "", "", "", "", jan, jan).
				AddRow("t2", "org1", "m1", "PAYMENT", 2000, "TRY", "CASH", "", "", "", "", jan, jan).
				AddRow("t3", "org1", "m2", "PAYMENT", 3000, "TRY", "CASH", "", "", "", "", feb, feb))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/reports?type=monthly", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Monthly []struct {
				Month            string `json:"month"`
				Charges          int64  `json:"charges"`
				Payments         int64  `json:"payments"`
				Net              int64  `json:"net"`
				TransactionCount int    `json:"transactionCount"`
			} `json:"monthly"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Monthly, 2)
		// newest month first
		assert.Equal(t, "2026-02", resp.Monthly[0].Month)
		assert.Equal(t, int64(3000), resp.Monthly[0].Payments)
		assert.Equal(t, "2026-01", resp.Monthly[1].Month)
		assert.Equal(t, int64(5000), resp.Monthly[1].Charges)
		assert.Equal(t, int64(3000), resp.Monthly[1].Net)
		assert.Equal(t, 2, resp.Monthly[1].TransactionCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("payment methods sorted by total", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT (.+) FROM finance_transactions").
			WithArgs("org1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("t1", "org1", "m1", "PAYMENT", 1000, "TRY", "CASH", "", "", "", "", now, now).
				AddRow("t2", "org1", "m2", "PAYMENT", 8000, "TRY", "BANK_TRANSFER", "", "", "", "", now, now).
				AddRow("t3", "org1", "m3", "PAYMENT", 500, "TRY", "", "", "", "", "", now, now).
				AddRow("t4", "org1", "m1", "CHARGE", 9999, "TRY", "", "", "", "", "", now, now))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/reports?type=payment-methods", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			PaymentMethods []struct {
				Method string `json:"method"`
				Count  int    `json:"count"`
				Total  int64  `json:"total"`
			} `json:"paymentMethods"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.PaymentMethods, 3)
		assert.Equal(t, "BANK_TRANSFER", resp.PaymentMethods[0].Method)
		assert.Equal(t, int64(8000), resp.PaymentMethods[0].Total)
		assert.Equal(t, "UNSPECIFIED", resp.PaymentMethods[2].Method)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by-plan skips unplanned rows", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")
		mock.ExpectQuery("SELECT (.+) FROM finance_transactions").
			WithArgs("org1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("t1", "org1", "m1", "CHARGE", 5000, "TRY", "", "plan-2026", "", "", "", now, now).
				AddRow("t2", "org1", "m2", "CHARGE", 5000, "TRY", "", "plan-2026", "", "", "", now, now).
				AddRow("t3", "org1", "m1", "PAYMENT", 5000, "TRY", "CASH", "plan-2026", "", "", "", now, now).
				AddRow("t4", "org1", "m1", "PAYMENT", 777, "TRY", "CASH", "", "", "", "", now, now))

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/reports?type=by-plan", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			ByPlan []struct {
				PlanID        string `json:"planId"`
				TotalCharges  int64  `json:"totalCharges"`
				TotalPayments int64  `json:"totalPayments"`
				Balance       int64  `json:"balance"`
				MemberCount   int    `json:"memberCount"`
			} `json:"byPlan"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.ByPlan, 1)
		assert.Equal(t, "plan-2026", resp.ByPlan[0].PlanID)
		assert.Equal(t, int64(10000), resp.ByPlan[0].TotalCharges)
		assert.Equal(t, int64(5000), resp.ByPlan[0].TotalPayments)
		assert.Equal(t, int64(5000), resp.ByPlan[0].Balance)
		assert.Equal(t, 2, resp.ByPlan[0].MemberCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid report type", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/reports?type=weekly", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid date", func(t *testing.T) {
		expectOrgAccess(mock, "besiktas-dernegi", "org1", "user1", "VIEWER")

		req := newOrgRequest(http.MethodGet, "/besiktas-dernegi/finance/reports?startDate=gecen-yil", "", "user1", "besiktas-dernegi")
		w := httptest.NewRecorder()

		service.FinancialReports(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCashFlow(t *testing.T) {
	t.Run("payments and refunds are income", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindPayment, Amount: 4000},
			{ID: "t2", Kind: models.KindRefund, Amount: 1000},
		}

		income, expense, err := cashFlow(txs)
		assert.NoError(t, err)
		assert.Equal(t, int64(5000), income)
		assert.Equal(t, int64(0), expense)
	})

	t.Run("adjustment splits on sign", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: models.KindAdjustment, Amount: 300},
			{ID: "t2", Kind: models.KindAdjustment, Amount: -200},
		}

		income, expense, err := cashFlow(txs)
		assert.NoError(t, err)
		assert.Equal(t, int64(300), income)
		assert.Equal(t, int64(200), expense)
	})

	t.Run("unknown kind fails hard", func(t *testing.T) {
		txs := []models.FinanceTransaction{
			{ID: "t1", Kind: "DONATION", Amount: 100},
		}

		_, _, err := cashFlow(txs)
		var integrityErr *DataIntegrityError
		assert.ErrorAs(t, err, &integrityErr)
	})
}
