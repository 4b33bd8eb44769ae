package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap stores before/after snapshots as a JSON column.
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

// EventRecord is one immutable entry in the contract audit trail. The
// signature is an HMAC over the entry's content, so tampering with a stored
// row is detectable without any external state.
type EventRecord struct {
	ID         string  `gorm:"column:id;type:varchar(36);primaryKey"`
	ContractID string  `gorm:"column:contract_id;type:varchar(50);index;not null"`
	Action     string  `gorm:"column:action;type:varchar(50);index;not null"`
	Actor      string  `gorm:"column:actor;type:varchar(50);index"`
	OldValue   JSONMap `gorm:"column:old_value;type:text"`
	NewValue   JSONMap `gorm:"column:new_value;type:text"`
	Signature  string  `gorm:"column:signature;type:varchar(120);not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }

// Event is the API-facing audit entry.
type Event struct {
	ID         string         `json:"id"`
	ContractID string         `json:"contractId"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor,omitempty"`
	OldValue   map[string]any `json:"oldValue,omitempty"`
	NewValue   map[string]any `json:"newValue,omitempty"`
	CreatedAt  string         `json:"createdAt"`
}

func toEvent(rec *EventRecord) Event {
	return Event{
		ID:         rec.ID,
		ContractID: rec.ContractID,
		Action:     rec.Action,
		Actor:      rec.Actor,
		OldValue:   map[string]any(rec.OldValue),
		NewValue:   map[string]any(rec.NewValue),
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339Nano),
	}
}
