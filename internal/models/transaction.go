package models

import (
	"time"
)

// TransactionKind classifies a finance movement.
type TransactionKind string

const (
	KindCharge     TransactionKind = "CHARGE"     // debt assigned to a member
	KindPayment    TransactionKind = "PAYMENT"    // money received from a member
	KindRefund     TransactionKind = "REFUND"     // money returned to a member
	KindAdjustment TransactionKind = "ADJUSTMENT" // signed correction; positive = income, negative = expense
)

// FinanceTransaction is one immutable financial movement for an organization,
// optionally tied to a member. Amounts are stored in minor units (kuruş/cents).
type FinanceTransaction struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organizationId" db:"organization_id"`
	MemberID       string          `json:"memberId,omitempty" db:"member_id"`
	Kind           TransactionKind `json:"kind" db:"kind"`
	Amount         int64           `json:"amount" db:"amount"` // minor units, signed for ADJUSTMENT
	Currency       string          `json:"currency" db:"currency"`
	PaymentMethod  string          `json:"paymentMethod,omitempty" db:"payment_method"` // CASH, BANK_TRANSFER, CREDIT_CARD, OTHER
	PlanID         string          `json:"planId,omitempty" db:"plan_id"`
	PeriodID       string          `json:"periodId,omitempty" db:"period_id"`
	ReceiptNo      string          `json:"receiptNo,omitempty" db:"receipt_no"`
	Note           string          `json:"note,omitempty" db:"note"`
	TxnDate        time.Time       `json:"txnDate" db:"txn_date"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// Balance is derived, never persisted. Net follows the dues convention:
// net = charges - (payments + refunds) + adjustments.
type Balance struct {
	Charges     int64 `json:"charges"`
	Payments    int64 `json:"payments"`
	Refunds     int64 `json:"refunds"`
	Adjustments int64 `json:"adjustments"`
	Net         int64 `json:"net"`
}
