package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Envelope is the canonical wrapper for events published to the bus.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// C2BEvent is the normalized form of a C2B validation or confirmation callback.
type C2BEvent struct {
	Kind              string          `json:"kind"` // "validation" | "confirmation"
	TransID           string          `json:"trans_id"`
	TransactionType   string          `json:"trans_type,omitempty"`
	TransTime         *time.Time      `json:"trans_time,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	ShortCode         string          `json:"short_code"`
	BillRefNumber     string          `json:"bill_ref,omitempty"`
	InvoiceNumber     string          `json:"invoice_number,omitempty"`
	ThirdPartyTransID string          `json:"third_party_trans_id,omitempty"`
	MSISDN            string          `json:"msisdn,omitempty"`
	FirstName         string          `json:"first_name,omitempty"`
	MiddleName        string          `json:"middle_name,omitempty"`
	LastName          string          `json:"last_name,omitempty"`
	OrgAccountBalance decimal.Decimal `json:"org_balance"`
	ResultCode        string          `json:"result_code"`
	ReceivedAt        time.Time       `json:"received_at"`
}
