package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dernekpro/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// DataIntegrityError signals a stored transaction whose kind is outside
// the enumerated set. Skipping it silently would corrupt balances, so
// aggregation stops instead.
type DataIntegrityError struct {
	TransactionID string
	Kind          models.TransactionKind
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("unknown transaction kind %q on transaction %s", e.Kind, e.TransactionID)
}

// LedgerService computes dues balances from the immutable transaction
// log. There is no materialized balance; every read re-aggregates.
type LedgerService struct {
	db  *sql.DB
	org *OrgAccess
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:  db,
		org: NewOrgAccess(db),
	}
}

// ComputeBalance sums transactions by kind in a single pass. Summation
// is commutative, so input order does not matter. ADJUSTMENT amounts are
// summed as-is: the sign carries the credit/expense direction and no
// convention beyond that is assumed.
func ComputeBalance(txs []models.FinanceTransaction) (models.Balance, error) {
	var b models.Balance
	for _, tx := range txs {
		switch tx.Kind {
		case models.KindCharge:
			b.Charges += tx.Amount
		case models.KindPayment:
			b.Payments += tx.Amount
		case models.KindRefund:
			b.Refunds += tx.Amount
		case models.KindAdjustment:
			b.Adjustments += tx.Amount
		default:
			return models.Balance{}, &DataIntegrityError{TransactionID: tx.ID, Kind: tx.Kind}
		}
	}
	b.Net = b.Charges - (b.Payments + b.Refunds) + b.Adjustments
	return b, nil
}

// MemberBalance returns the dues balance plus recent transactions for one member
// @Summary Get member balance
// @Description Recompute a member's dues balance from all of their transactions
// @Tags finance
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param id path string true "Member ID"
// @Success 200 {object} object{memberId=string,memberName=string,balance=models.Balance}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{org}/members/{id}/balance [get]
func (s *LedgerService) MemberBalance(w http.ResponseWriter, r *http.Request) {
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

	var firstName, lastName string
	err = s.db.QueryRow(`
		SELECT first_name, last_name FROM members
		WHERE id = $1 AND organization_id = $2
	`, memberID, orgID).Scan(&firstName, &lastName)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch member", http.StatusInternalServerError, nil)
		}
		return
	}

	txs, err := s.fetchTransactions(orgID, memberID)
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch transactions for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	balance, err := ComputeBalance(txs)
	if err != nil {
		log.Printf("[LEDGER] Data integrity failure for member %s: %v", memberID, err)
		SendErrorResponse(w, "Ledger data integrity failure", http.StatusInternalServerError, nil)
		return
	}

	recent := txs
	if len(recent) > 10 {
		recent = recent[:10]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"memberId":           memberID,
		"memberName":         firstName + " " + lastName,
		"balance":            balance,
		"recentTransactions": recent,
	})
}

// OrganizationCashBook returns the org cash position (income/expense)
// @Summary Get organization cash book
// @Description Cash flow view over PAYMENT, REFUND and ADJUSTMENT transactions; CHARGE rows are debt assignments, not cash, and are excluded
// @Tags finance
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param limit query int false "Number of transactions to return (default: 100)"
// @Success 200 {object} object{income=int64,expense=int64,balance=int64}
// @Failure 500 {object} ErrorResponse
// @Router /{org}/finance/kasa [get]
func (s *LedgerService) OrganizationCashBook(w http.ResponseWriter, r *http.Request) {
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

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	rows, err := s.db.Query(`
		SELECT id, organization_id, COALESCE(member_id, ''), kind, amount, currency,
		       COALESCE(payment_method, ''), COALESCE(note, ''), txn_date, created_at
		FROM finance_transactions
		WHERE organization_id = $1 AND kind IN ('PAYMENT', 'REFUND', 'ADJUSTMENT')
		ORDER BY txn_date DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		log.Printf("[LEDGER] Cash book query failed for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.FinanceTransaction{}
	for rows.Next() {
		var tx models.FinanceTransaction
		if err := rows.Scan(&tx.ID, &tx.OrganizationID, &tx.MemberID, &tx.Kind, &tx.Amount,
			&tx.Currency, &tx.PaymentMethod, &tx.Note, &tx.TxnDate, &tx.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to read transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, tx)
	}

	income, expense, err := cashFlow(transactions)
	if err != nil {
		log.Printf("[LEDGER] Data integrity failure for org %s: %v", orgID, err)
		SendErrorResponse(w, "Ledger data integrity failure", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"income":       income,
		"expense":      expense,
		"balance":      income - expense,
		"transactions": transactions,
	})
}

// FinancialReports returns aggregate financial analytics
// @Summary Get financial reports
// @Description Aggregated views over the transaction log: overview totals with debtor/creditor counts, monthly breakdown, dues-plan breakdown, or payment-method breakdown
// @Tags finance
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param type query string false "Report type: overview, monthly, by-plan, payment-methods (default: overview)"
// @Param startDate query string false "Start date (YYYY-MM-DD)"
// @Param endDate query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} object{}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{org}/finance/reports [get]
func (s *LedgerService) FinancialReports(w http.ResponseWriter, r *http.Request) {
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

	reportType := r.URL.Query().Get("type")
	if reportType == "" {
		reportType = "overview"
	}
	switch reportType {
	case "overview", "monthly", "by-plan", "payment-methods":
	default:
		SendErrorResponse(w, "Invalid report type", http.StatusBadRequest, nil)
		return
	}

	var startDate, endDate *time.Time
	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			SendErrorResponse(w, "Invalid startDate, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		startDate = &t
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			SendErrorResponse(w, "Invalid endDate, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		endDate = &t
	}

	txs, err := s.fetchOrgTransactions(orgID, startDate, endDate)
	if err != nil {
		log.Printf("[LEDGER] Report query failed for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	var payload map[string]any
	switch reportType {
	case "overview":
		payload, err = overviewReport(txs)
	case "monthly":
		payload, err = monthlyReport(txs)
	case "by-plan":
		payload, err = planReport(txs)
	case "payment-methods":
		payload = paymentMethodReport(txs)
	}
	if err != nil {
		log.Printf("[LEDGER] Data integrity failure for org %s: %v", orgID, err)
		SendErrorResponse(w, "Ledger data integrity failure", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// overviewReport totals the whole window and classifies every member as
// debtor (net > 0), creditor (net < 0) or balanced.
func overviewReport(txs []models.FinanceTransaction) (map[string]any, error) {
	total, err := ComputeBalance(txs)
	if err != nil {
		return nil, err
	}

	perMember := make(map[string][]models.FinanceTransaction)
	for _, tx := range txs {
		if tx.MemberID != "" {
			perMember[tx.MemberID] = append(perMember[tx.MemberID], tx)
		}
	}

	var debtors, creditors, balanced int
	for _, memberTxs := range perMember {
		b, err := ComputeBalance(memberTxs)
		if err != nil {
			return nil, err
		}
		switch {
		case b.Net > 0:
			debtors++
		case b.Net < 0:
			creditors++
		default:
			balanced++
		}
	}

	return map[string]any{
		"overview": map[string]any{
			"totalMembers":      len(perMember),
			"totalTransactions": len(txs),
			"totalCharges":      total.Charges,
			"totalPayments":     total.Payments,
			"totalRefunds":      total.Refunds,
			"totalAdjustments":  total.Adjustments,
			"netBalance":        total.Net,
			"debtors":           debtors,
			"creditors":         creditors,
			"balanced":          balanced,
		},
	}, nil
}

type monthlyReportRow struct {
	Month            string `json:"month"`
	Charges          int64  `json:"charges"`
	Payments         int64  `json:"payments"`
	Net              int64  `json:"net"`
	TransactionCount int    `json:"transactionCount"`
}

// monthlyReport buckets transactions by calendar month, newest first,
// capped at twelve months.
func monthlyReport(txs []models.FinanceTransaction) (map[string]any, error) {
	groups := make(map[string][]models.FinanceTransaction)
	for _, tx := range txs {
		key := tx.TxnDate.Format("2006-01")
		groups[key] = append(groups[key], tx)
	}

	months := make([]monthlyReportRow, 0, len(groups))
	for month, group := range groups {
		b, err := ComputeBalance(group)
		if err != nil {
			return nil, err
		}
		months = append(months, monthlyReportRow{
			Month:            month,
			Charges:          b.Charges,
			Payments:         b.Payments,
			Net:              b.Charges - b.Payments,
			TransactionCount: len(group),
		})
	}

	sort.Slice(months, func(i, j int) bool { return months[i].Month > months[j].Month })
	if len(months) > 12 {
		months = months[:12]
	}

	return map[string]any{"monthly": months}, nil
}

type planReportRow struct {
	PlanID        string `json:"planId"`
	TotalCharges  int64  `json:"totalCharges"`
	TotalPayments int64  `json:"totalPayments"`
	Balance       int64  `json:"balance"`
	MemberCount   int    `json:"memberCount"`
}

// planReport breaks charges and payments down per dues plan. Rows without
// a plan are not plan activity and are skipped.
func planReport(txs []models.FinanceTransaction) (map[string]any, error) {
	groups := make(map[string][]models.FinanceTransaction)
	for _, tx := range txs {
		if tx.PlanID != "" {
			groups[tx.PlanID] = append(groups[tx.PlanID], tx)
		}
	}

	plans := make([]planReportRow, 0, len(groups))
	for planID, group := range groups {
		b, err := ComputeBalance(group)
		if err != nil {
			return nil, err
		}
		members := make(map[string]bool)
		for _, tx := range group {
			if tx.MemberID != "" {
				members[tx.MemberID] = true
			}
		}
		plans = append(plans, planReportRow{
			PlanID:        planID,
			TotalCharges:  b.Charges,
			TotalPayments: b.Payments,
			Balance:       b.Charges - b.Payments,
			MemberCount:   len(members),
		})
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].TotalCharges > plans[j].TotalCharges })

	return map[string]any{"byPlan": plans}, nil
}

type paymentMethodRow struct {
	Method string `json:"method"`
	Count  int    `json:"count"`
	Total  int64  `json:"total"`
}

// paymentMethodReport groups PAYMENT rows by method, largest total first.
func paymentMethodReport(txs []models.FinanceTransaction) map[string]any {
	totals := make(map[string]*paymentMethodRow)
	for _, tx := range txs {
		if tx.Kind != models.KindPayment {
			continue
		}
		method := tx.PaymentMethod
		if method == "" {
			method = "UNSPECIFIED"
		}
		row, ok := totals[method]
		if !ok {
			row = &paymentMethodRow{Method: method}
			totals[method] = row
		}
		row.Count++
		row.Total += tx.Amount
	}

	methods := make([]paymentMethodRow, 0, len(totals))
	for _, row := range totals {
		methods = append(methods, *row)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].Total > methods[j].Total })

	return map[string]any{"paymentMethods": methods}
}

// fetchOrgTransactions loads every transaction in the optional date window.
func (s *LedgerService) fetchOrgTransactions(orgID string, startDate, endDate *time.Time) ([]models.FinanceTransaction, error) {
	query := `
		SELECT id, organization_id, COALESCE(member_id, ''), kind, amount, currency,
		       COALESCE(payment_method, ''), COALESCE(plan_id, ''), COALESCE(period_id, ''),
		       COALESCE(receipt_no, ''), COALESCE(note, ''), txn_date, created_at
		FROM finance_transactions
		WHERE organization_id = $1
	`
	args := []any{orgID}
	if startDate != nil {
		args = append(args, *startDate)
		query += fmt.Sprintf(" AND txn_date >= $%d", len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		query += fmt.Sprintf(" AND txn_date <= $%d", len(args))
	}
	query += " ORDER BY txn_date DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.FinanceTransaction{}
	for rows.Next() {
		var tx models.FinanceTransaction
		if err := rows.Scan(&tx.ID, &tx.OrganizationID, &tx.MemberID, &tx.Kind, &tx.Amount,
			&tx.Currency, &tx.PaymentMethod, &tx.PlanID, &tx.PeriodID,
			&tx.ReceiptNo, &tx.Note, &tx.TxnDate, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// cashFlow splits cash-affecting transactions into income and expense.
// PAYMENT and REFUND rows are money in the cash box; an ADJUSTMENT is
// income when positive and expense when negative.
func cashFlow(txs []models.FinanceTransaction) (income, expense int64, err error) {
	for _, tx := range txs {
		switch tx.Kind {
		case models.KindPayment, models.KindRefund:
			income += tx.Amount
		case models.KindAdjustment:
			if tx.Amount < 0 {
				expense += -tx.Amount
			} else {
				income += tx.Amount
			}
		case models.KindCharge:
			// not cash flow; the query excludes these
		default:
			return 0, 0, &DataIntegrityError{TransactionID: tx.ID, Kind: tx.Kind}
		}
	}
	return income, expense, nil
}

func (s *LedgerService) fetchTransactions(orgID, memberID string) ([]models.FinanceTransaction, error) {
	rows, err := s.db.Query(`
		SELECT id, organization_id, COALESCE(member_id, ''), kind, amount, currency,
		       COALESCE(payment_method, ''), COALESCE(plan_id, ''), COALESCE(period_id, ''),
		       COALESCE(receipt_no, ''), COALESCE(note, ''), txn_date, created_at
		FROM finance_transactions
		WHERE organization_id = $1 AND member_id = $2
		ORDER BY txn_date DESC
	`, orgID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.FinanceTransaction{}
	for rows.Next() {
		var tx models.FinanceTransaction
		if err := rows.Scan(&tx.ID, &tx.OrganizationID, &tx.MemberID, &tx.Kind, &tx.Amount,
			&tx.Currency, &tx.PaymentMethod, &tx.PlanID, &tx.PeriodID,
			&tx.ReceiptNo, &tx.Note, &tx.TxnDate, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}
