package contract

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a custom GORM type for map[string]any stored as JSON text.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Record is the GORM model for a contract. The contract exclusively owns its
// parties, signatures and payments; deleting it cascades to all of them.
// There are no back-references: reverse navigation goes through the store by
// foreign key.
type Record struct {
	ID string `gorm:"primaryKey;column:id;type:varchar(50)"`

	Transcript   string  `gorm:"column:transcript;type:text"`
	ContractType Type    `gorm:"column:contract_type;not null;default:other"`
	Terms        JSONMap `gorm:"column:terms;type:text"`

	// ContractHash is the tamper-evidence anchor, recomputed and checked on
	// integrity-sensitive reads, not just a cache key.
	ContractHash string `gorm:"column:contract_hash;type:varchar(128);uniqueIndex;not null"`

	TotalAmount float64 `gorm:"column:total_amount"`
	Currency    string  `gorm:"column:currency;type:varchar(3);default:KES"`

	Status Status `gorm:"column:status;index:idx_contract_status;not null;default:pending"`

	DeliveryLocation    string     `gorm:"column:delivery_location;type:varchar(200)"`
	DeliveryDeadline    *time.Time `gorm:"column:delivery_deadline"`
	QualityRequirements string     `gorm:"column:quality_requirements;type:text"`

	CreatedAt   time.Time  `gorm:"column:created_at;index;autoCreateTime"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "contracts" }

// PartyRecord is the GORM model for a contract party. At most one row may
// exist per (contract, phone, role); the same phone may appear twice in one
// contract only under different roles.
type PartyRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	ContractID string    `gorm:"column:contract_id;type:varchar(50);index;not null;uniqueIndex:uniq_party_role,priority:1"`
	PhoneNumber string   `gorm:"column:phone_number;type:varchar(20);index;not null;uniqueIndex:uniq_party_role,priority:2"`
	Role       PartyRole `gorm:"column:role;not null;uniqueIndex:uniq_party_role,priority:3"`
	Name       string    `gorm:"column:name;type:varchar(100)"`
	AddedAt    time.Time `gorm:"column:added_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (PartyRecord) TableName() string { return "contract_parties" }

// SignatureRecord is the GORM model for a per-signer confirmation, one per
// (contract, signer phone) independent of role. Quorum counts these rows,
// not declared parties, so action handlers must never create a signature
// without a matching party.
type SignatureRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ContractID  string `gorm:"column:contract_id;type:varchar(50);index;not null;uniqueIndex:uniq_contract_signer,priority:1"`
	SignerPhone string `gorm:"column:signer_phone;type:varchar(20);index;not null;uniqueIndex:uniq_contract_signer,priority:2"`

	Method        string  `gorm:"column:signature_method;type:varchar(20);default:sms_confirmation"`
	SignatureHash string  `gorm:"column:signature_hash;type:varchar(128)"`
	SignatureData JSONMap `gorm:"column:signature_data;type:text"`

	Status SignatureStatus `gorm:"column:status;not null;default:pending"`

	SignedAt  *time.Time `gorm:"column:signed_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

// TableName returns the GORM table name.
func (SignatureRecord) TableName() string { return "contract_signatures" }
