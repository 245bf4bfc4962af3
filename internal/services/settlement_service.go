package services

import (
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dernekpro/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// SettlementService exports dues payments collected by bank transfer as
// ISO 20022 pacs.008 messages for bank-side reconciliation.
type SettlementService struct {
	db  *sql.DB
	org *OrgAccess
}

func NewSettlementService(db *sql.DB) *SettlementService {
	return &SettlementService{
		db:  db,
		org: NewOrgAccess(db),
	}
}

// ExportBankTransfers exports bank-transfer payments as pacs.008 XML
// @Summary Export bank-transfer payments
// @Description Build an ISO 20022 pacs.008 message covering the organization's BANK_TRANSFER payments for reconciliation
// @Tags finance
// @Produce json
// @Security BearerAuth
// @Param org path string true "Organization slug"
// @Param days query int false "Look-back window in days (default: 30)"
// @Success 200 {object} object{status=string,messageType=string,transactionCount=int,xml=string}
// @Failure 500 {object} ErrorResponse
// @Router /{org}/finance/settlement-export [get]
func (s *SettlementService) ExportBankTransfers(w http.ResponseWriter, r *http.Request) {
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

	days := 30
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 && d <= 365 {
			days = d
		}
	}

	var orgName string
	if err := s.db.QueryRow(`SELECT name FROM organizations WHERE id = $1`, orgID).Scan(&orgName); err != nil {
		SendErrorResponse(w, "Failed to fetch organization", http.StatusInternalServerError, nil)
		return
	}

	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT ft.id, ft.amount, ft.currency, COALESCE(ft.receipt_no, ''),
		       COALESCE(m.first_name, ''), COALESCE(m.last_name, '')
		FROM finance_transactions ft
		LEFT JOIN members m ON m.id = ft.member_id
		WHERE ft.organization_id = $1 AND ft.kind = $2
		AND ft.payment_method = 'BANK_TRANSFER' AND ft.txn_date >= $3
		ORDER BY ft.txn_date
	`, orgID, string(models.KindPayment), since)
	if err != nil {
		log.Printf("[SETTLEMENT] Export query failed for org %s: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type exportRow struct {
		id        string
		amount    int64
		currency  string
		receiptNo string
		payerName string
	}
	exports := []exportRow{}
	for rows.Next() {
		var row exportRow
		var firstName, lastName string
		if err := rows.Scan(&row.id, &row.amount, &row.currency, &row.receiptNo, &firstName, &lastName); err != nil {
			SendErrorResponse(w, "Failed to read transactions", http.StatusInternalServerError, nil)
			return
		}
		row.payerName = firstName + " " + lastName
		exports = append(exports, row)
	}

	if len(exports) == 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":           "empty",
			"messageType":      "pacs.008.001.08",
			"transactionCount": 0,
		})
		return
	}

	var total float64
	currency := exports[0].currency
	creditTransfers := make([]pacs_v08.CreditTransferTransaction39, 0, len(exports))
	for _, row := range exports {
		amount := float64(row.amount) / 100
		total += amount

		endToEnd := row.receiptNo
		if endToEnd == "" {
			endToEnd = row.id
		}

		txID := row.id
		settlementDate := time.Now()
		creditTransfers = append(creditTransfers, pacs_v08.CreditTransferTransaction39{
			PmtId: pacs_v08.PaymentIdentification7{
				InstrId:    &[]common.Max35Text{common.Max35Text(txID)}[0],
				EndToEndId: common.Max35Text(endToEnd),
				TxId:       &[]common.Max35Text{common.Max35Text(txID)}[0],
			},
			IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(row.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			ChrgBr:        "SLEV",
			Dbtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{common.Max140Text(row.payerName)}[0],
			},
			Cdtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{common.Max140Text(orgName)}[0],
			},
		})
	}

	creDtTm := time.Now()
	settlementDate := time.Now()
	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: common.Max15NumericText(strconv.Itoa(len(exports))),
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: total,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: creditTransfers,
	}

	xmlData, err := convertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "exported",
		"messageType":      "pacs.008.001.08",
		"transactionCount": len(exports),
		"xml":              xmlData,
	})
}

func convertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
