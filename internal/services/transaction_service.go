package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dernekpro/backend/internal/audit"
	"github.com/dernekpro/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TransactionService writes and reads the immutable finance transaction
// log. Transactions are never updated or deleted once created.
type TransactionService struct {
	db        *sql.DB
	org       *OrgAccess
	validator *ValidationHelper
	audit     *audit.Logger
}

type CreateTransactionRequest struct {
	MemberID      string `json:"memberId"`
	Kind          string `json:"kind" validate:"required,oneof=CHARGE PAYMENT REFUND ADJUSTMENT"`
	Amount        int64  `json:"amount" validate:"required"` // minor units
	Currency      string `json:"currency" validate:"required,len=3"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=CASH BANK_TRANSFER CREDIT_CARD OTHER"`
	PlanID        string `json:"planId"`
	PeriodID      string `json:"periodId"`
	ReceiptNo     string `json:"receiptNo" validate:"max=50"`
	Note          string `json:"note" validate:"max=500"`
}

type BulkDebitRequest struct {
	MemberIDs []string `json:"memberIds" validate:"required,min=1,max=1000,dive,required"`
	Amount    int64    `json:"amount" validate:"required,gt=0"`
	Currency  string   `json:"currency" validate:"required,len=3"`
	PlanID    string   `json:"planId"`
	PeriodID  string   `json:"periodId"`
	Note      string   `json:"note" validate:"max=500"`
}

type AutoChargeRequest struct {
	PlanID   string `json:"planId" validate:"required"`
	PeriodID string `json:"periodId" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,len=3"`
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		db:        db,
		org:       NewOrgAccess(db),
		validator: NewValidationHelper(),
		audit:     audit.NewLogger(),
	}
}

// CreateTransaction records one finance movement
// @Summary Create a finance transaction
// @Description Record a CHARGE, PAYMENT, REFUND or ADJUSTMENT for the organization
// @Tags finance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param transaction body CreateTransactionRequest true "Transaction data"
// @Success 201 {object} models.FinanceTransaction
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{org}/transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := ts.org.EnsureBySlug(userID, chi.URLParam(r, "org"), true)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	var req CreateTransactionRequest
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

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// ADJUSTMENT is the only signed kind; everything else is a face value.
	if req.Kind != string(models.KindAdjustment) && req.Amount <= 0 {
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
		return
	}

	if req.MemberID != "" {
		if err := ts.verifyMember(orgID, req.MemberID); err != nil {
			SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
			return
		}
	}

	tx := models.FinanceTransaction{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		MemberID:       req.MemberID,
		Kind:           models.TransactionKind(req.Kind),
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaymentMethod:  req.PaymentMethod,
		PlanID:         req.PlanID,
		PeriodID:       req.PeriodID,
		ReceiptNo:      req.ReceiptNo,
		Note:           req.Note,
		TxnDate:        time.Now(),
		CreatedAt:      time.Now(),
	}

	if err := ts.insertTransaction(&tx); err != nil {
		log.Printf("[FINANCE] Failed to store transaction: %v", err)
		ts.audit.LogError(orgID, tx.ID, err)
		SendErrorResponse(w, "Failed to store transaction", http.StatusInternalServerError, nil)
		return
	}

	ts.audit.LogTransaction(orgID, tx.ID, string(tx.Kind), tx.Amount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

// ListTransactions retrieves org transactions with optional filters
// @Summary List finance transactions
// @Description Get organization transactions, optionally filtered by member or kind
// @Tags finance
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param memberId query string false "Filter by member ID"
// @Param kind query string false "Filter by transaction kind"
// @Success 200 {object} object{transactions=[]models.FinanceTransaction,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /{org}/transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := ts.org.EnsureBySlug(userID, chi.URLParam(r, "org"), false)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	memberID := r.URL.Query().Get("memberId")
	kind := r.URL.Query().Get("kind")
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	transactions, err := ts.fetchTransactions(orgID, memberID, kind, limit)
	if err != nil {
		log.Printf("[FINANCE] Failed to fetch transactions for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// BulkDebit assigns one CHARGE to many members atomically
// @Summary Bulk debit members
// @Description Create the same CHARGE for a list of members in a single database transaction
// @Tags finance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param request body BulkDebitRequest true "Bulk debit data"
// @Success 200 {object} object{created=int}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{org}/finance/bulk-debit [post]
func (ts *TransactionService) BulkDebit(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := ts.org.EnsureBySlug(userID, chi.URLParam(r, "org"), true)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	var req BulkDebitRequest
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

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process bulk debit", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	created := 0
	now := time.Now()
	for _, memberID := range req.MemberIDs {
		var exists bool
		err := dbTx.QueryRow(`
			SELECT EXISTS(SELECT 1 FROM members WHERE id = $1 AND organization_id = $2)
		`, memberID, orgID).Scan(&exists)
		if err != nil {
			SendErrorResponse(w, "Failed to process bulk debit", http.StatusInternalServerError, nil)
			return
		}
		if !exists {
			SendErrorResponse(w, fmt.Sprintf("Member %s not found", memberID), http.StatusBadRequest, nil)
			return
		}

		_, err = dbTx.Exec(`
			INSERT INTO finance_transactions
			(id, organization_id, member_id, kind, amount, currency, plan_id, period_id, note, txn_date, created_at)
			VALUES ($1, $2, $3, 'CHARGE', $4, $5, $6, $7, $8, $9, $10)
		`, uuid.New().String(), orgID, memberID, req.Amount, req.Currency,
			nullable(req.PlanID), nullable(req.PeriodID), req.Note, now, now)
		if err != nil {
			log.Printf("[FINANCE] Bulk debit insert failed: %v", err)
			SendErrorResponse(w, "Failed to process bulk debit", http.StatusInternalServerError, nil)
			return
		}
		created++
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[FINANCE] Bulk debit commit failed: %v", err)
		SendErrorResponse(w, "Failed to process bulk debit", http.StatusInternalServerError, nil)
		return
	}

	ts.audit.LogTransaction(orgID, "bulk-debit", string(models.KindCharge), req.Amount*int64(created))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"created": created})
}

// AutoCharge charges every active member for a dues period
// @Summary Auto charge dues
// @Description Create a CHARGE for every active member who has not yet been charged for the given plan period
// @Tags finance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param request body AutoChargeRequest true "Auto charge data"
// @Success 200 {object} object{created=int}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /{org}/finance/auto-charge [post]
func (ts *TransactionService) AutoCharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := ts.org.EnsureBySlug(userID, chi.URLParam(r, "org"), true)
	if err != nil {
		SendAccessError(w, err)
		return
	}

	var req AutoChargeRequest
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

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// One INSERT ... SELECT keeps the skip-already-charged check and the
	// inserts in the same statement.
	result, err := ts.db.Exec(`
		INSERT INTO finance_transactions
		(id, organization_id, member_id, kind, amount, currency, plan_id, period_id, txn_date, created_at)
		SELECT gen_random_uuid(), m.organization_id, m.id, 'CHARGE', $1, $2, $3, $4, NOW(), NOW()
		FROM members m
		WHERE m.organization_id = $5 AND m.status = 'ACTIVE'
		AND NOT EXISTS (
			SELECT 1 FROM finance_transactions ft
			WHERE ft.member_id = m.id AND ft.kind = 'CHARGE'
			AND ft.plan_id = $3 AND ft.period_id = $4
		)
	`, req.Amount, req.Currency, req.PlanID, req.PeriodID, orgID)
	if err != nil {
		log.Printf("[FINANCE] Auto charge failed for org %s: %v", orgID, err)
		ts.audit.LogError(orgID, req.PeriodID, err)
		SendErrorResponse(w, "Failed to auto charge", http.StatusInternalServerError, nil)
		return
	}

	created, _ := result.RowsAffected()
	ts.audit.LogTransaction(orgID, req.PeriodID, string(models.KindCharge), req.Amount*created)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"created": created})
}

func (ts *TransactionService) verifyMember(orgID, memberID string) error {
	var exists bool
	err := ts.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM members WHERE id = $1 AND organization_id = $2)
	`, memberID, orgID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return errors.New("member not found")
	}
	return nil
}

func (ts *TransactionService) insertTransaction(tx *models.FinanceTransaction) error {
	_, err := ts.db.Exec(`
		INSERT INTO finance_transactions
		(id, organization_id, member_id, kind, amount, currency, payment_method, plan_id, period_id, receipt_no, note, txn_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, tx.ID, tx.OrganizationID, nullable(tx.MemberID), tx.Kind, tx.Amount, tx.Currency,
		nullable(tx.PaymentMethod), nullable(tx.PlanID), nullable(tx.PeriodID),
		tx.ReceiptNo, tx.Note, tx.TxnDate, tx.CreatedAt)
	return err
}

func (ts *TransactionService) fetchTransactions(orgID, memberID, kind string, limit int) ([]models.FinanceTransaction, error) {
	conditions := []string{"organization_id = $1"}
	args := []any{orgID}
	argIndex := 2

	if memberID != "" {
		conditions = append(conditions, fmt.Sprintf("member_id = $%d", argIndex))
		args = append(args, memberID)
		argIndex++
	}

	if kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIndex))
		args = append(args, kind)
		argIndex++
	}

	query := `
		SELECT id, organization_id, COALESCE(member_id, ''), kind, amount, currency,
		       COALESCE(payment_method, ''), COALESCE(plan_id, ''), COALESCE(period_id, ''),
		       COALESCE(receipt_no, ''), COALESCE(note, ''), txn_date, created_at
		FROM finance_transactions
		WHERE ` + strings.Join(conditions, " AND ")
	query += " ORDER BY txn_date DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := ts.db.Query(query, args...)
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

// nullable maps empty strings onto SQL NULL for optional foreign keys.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
