package ussd

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Menu identifies a screen in the session state machine.
type Menu string

const (
	MenuMain           Menu = "main"
	MenuContracts      Menu = "contracts"
	MenuContractDetail Menu = "contract_detail"
	MenuDelivery       Menu = "delivery"
)

// SessionContext is the navigation state carried between requests. The
// gateway protocol is stateless, so everything the next screen needs lives
// here.
type SessionContext struct {
	// ContractIDs are the contracts listed on the contracts screen, in
	// display order. Menu digit N selects ContractIDs[N-1].
	ContractIDs []string `json:"contractIds,omitempty"`
	// SelectedContract is the contract the detail and delivery screens act
	// on.
	SelectedContract string `json:"selectedContract,omitempty"`
}

// Value implements driver.Valuer for JSON columns.
func (c SessionContext) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSON columns.
func (c *SessionContext) Scan(value any) error {
	if value == nil {
		*c = SessionContext{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SessionContext", value)
	}
	if len(data) == 0 {
		*c = SessionContext{}
		return nil
	}
	return json.Unmarshal(data, c)
}

// SessionRecord is the GORM model for USSD sessions.
type SessionRecord struct {
	ID           uint           `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID    string         `gorm:"column:session_id;type:varchar(100);uniqueIndex;not null"`
	PhoneNumber  string         `gorm:"column:phone_number;type:varchar(20);index;not null"`
	CurrentMenu  Menu           `gorm:"column:current_menu;type:varchar(30);default:main"`
	Context      SessionContext `gorm:"column:context_data;type:text"`
	LastInput    string         `gorm:"column:last_input;type:varchar(160)"`
	LastResponse string         `gorm:"column:last_response;type:text"`
	IsActive     bool           `gorm:"column:is_active;default:true"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	ExpiresAt    time.Time      `gorm:"column:expires_at;index"`
}

// TableName returns the GORM table name.
func (SessionRecord) TableName() string { return "ussd_sessions" }

// Expired reports whether the session's sliding window has passed.
func (r *SessionRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
