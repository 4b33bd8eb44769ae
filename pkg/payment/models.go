package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the escrow lifecycle state of a payment.
type Status string

const (
	// StatusPending: checkout initiated, waiting for the customer and the
	// gateway.
	StatusPending Status = "pending"
	// StatusLocked: funds held in escrow. Only the payment webhook moves a
	// payment here.
	StatusLocked Status = "locked"
	// StatusReleased: escrow paid out to the recipient. Terminal.
	StatusReleased Status = "released"
	// StatusRefunded: escrow returned to the payer. Terminal.
	StatusRefunded Status = "refunded"
	// StatusFailed: the charge did not complete. Terminal.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded || s == StatusFailed
}

// JSONMap stores payment metadata as a JSON column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Record is the GORM model for payments.
type Record struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement"`
	ContractID string `gorm:"column:contract_id;type:varchar(50);index;not null"`

	// TransactionID is the internally derived reference; ExternalTransactionID
	// is the gateway's.
	TransactionID         string `gorm:"column:transaction_id;type:varchar(100);uniqueIndex"`
	ExternalTransactionID string `gorm:"column:external_transaction_id;type:varchar(100);index"`

	PayerPhone     string `gorm:"column:payer_phone;type:varchar(20);index;not null"`
	RecipientPhone string `gorm:"column:recipient_phone;type:varchar(20)"`

	Amount      float64 `gorm:"column:amount;not null"`
	Currency    string  `gorm:"column:currency;type:varchar(3);default:KES"`
	PaymentType string  `gorm:"column:payment_type;type:varchar(20);default:escrow"`
	Status      Status  `gorm:"column:status;type:varchar(20);default:pending;index"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	ReleasedAt  *time.Time `gorm:"column:released_at"`

	FailureReason string  `gorm:"column:failure_reason;type:varchar(200)"`
	RetryCount    int     `gorm:"column:retry_count;default:0"`
	Metadata      JSONMap `gorm:"column:metadata;type:text"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "payments" }

// Response is the API-facing payment type.
type Response struct {
	PaymentID     uint    `json:"paymentId"`
	ContractID    string  `json:"contractId"`
	TransactionID string  `json:"transactionId,omitempty"`
	Status        Status  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	CreatedAt     string  `json:"createdAt"`
	ReleasedAt    string  `json:"releasedAt,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
}

func toResponse(rec *Record) *Response {
	r := &Response{
		PaymentID:     rec.ID,
		ContractID:    rec.ContractID,
		TransactionID: rec.ExternalTransactionID,
		Status:        rec.Status,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		FailureReason: rec.FailureReason,
	}
	if rec.ReleasedAt != nil {
		r.ReleasedAt = rec.ReleasedAt.Format(time.RFC3339)
	}
	return r
}
