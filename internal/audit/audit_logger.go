package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	OrganizationID string    `json:"organization_id"`
	ReferenceID    string    `json:"reference_id"`
	Status         string    `json:"status"`
	Details        any       `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTransaction(orgID, txID string, kind string, amount int64) {
	event := Event{
		Timestamp:      time.Now(),
		EventType:      "FINANCE_TXN",
		OrganizationID: orgID,
		ReferenceID:    txID,
		Status:         "SUCCESS",
		Details: map[string]any{
			"kind":   kind,
			"amount": amount,
		},
	}
	a.log(event)
}

func (a *Logger) LogDispatch(orgID, campaignID string, total, sent, failed int) {
	event := Event{
		Timestamp:      time.Now(),
		EventType:      "SMS_DISPATCH",
		OrganizationID: orgID,
		ReferenceID:    campaignID,
		Status:         "SUCCESS",
		Details: map[string]int{
			"total":  total,
			"sent":   sent,
			"failed": failed,
		},
	}
	a.log(event)
}

func (a *Logger) LogError(orgID, referenceID string, err error) {
	event := Event{
		Timestamp:      time.Now(),
		EventType:      "ERROR",
		OrganizationID: orgID,
		ReferenceID:    referenceID,
		Status:         "FAILED",
		Details:        map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
