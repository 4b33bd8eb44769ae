package contract

// Status represents contract lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDisputed  Status = "disputed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Type classifies the contract subject matter. It selects the ID prefix and
// the rendering template.
type Type string

const (
	TypeAgriculturalSupply Type = "agricultural_supply"
	TypeServiceAgreement   Type = "service_agreement"
	TypeGoodsPurchase      Type = "goods_purchase"
	TypeLogistics          Type = "logistics"
	TypeOther              Type = "other"
)

// PartyRole is the role a phone number plays in a contract.
type PartyRole string

const (
	RoleBuyer    PartyRole = "buyer"
	RoleSeller   PartyRole = "seller"
	RoleMediator PartyRole = "mediator"
	RoleWitness  PartyRole = "witness"
)

// ValidRole reports whether r is one of the defined roles.
func ValidRole(r PartyRole) bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleMediator, RoleWitness:
		return true
	}
	return false
}

// SignatureStatus is the per-signer confirmation state.
type SignatureStatus string

const (
	SignaturePending  SignatureStatus = "pending"
	SignatureSigned   SignatureStatus = "signed"
	SignatureRejected SignatureStatus = "rejected"
	SignatureExpired  SignatureStatus = "expired"
)

// Decision is a signer's answer to a confirmation request.
type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionReject  Decision = "reject"
)

// PartyInput describes one party at contract creation time.
type PartyInput struct {
	Phone string    `json:"phone"`
	Role  PartyRole `json:"role"`
	Name  string    `json:"name,omitempty"`
}

// SignerProgress is one row of the status projection.
type SignerProgress struct {
	PhoneNumber string          `json:"phoneNumber"`
	Status      SignatureStatus `json:"status"`
	SignedAt    string          `json:"signedAt,omitempty"` // RFC3339
}

// StatusReport is the read-only projection of a contract's confirmation
// progress. Producing it has no side effects.
type StatusReport struct {
	ContractID  string           `json:"contractId"`
	Status      Status           `json:"status"`
	CreatedAt   string           `json:"createdAt"`
	ConfirmedAt string           `json:"confirmedAt,omitempty"`
	Signatures  []SignerProgress `json:"signatures"`
	Signed      int              `json:"signed"`
	Total       int              `json:"total"`
}

// Party is the API-facing party type.
type Party struct {
	PhoneNumber string    `json:"phoneNumber"`
	Role        PartyRole `json:"role"`
	Name        string    `json:"name,omitempty"`
}

// Contract is the API-facing contract type.
type Contract struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Status       Status         `json:"status"`
	Transcript   string         `json:"transcript,omitempty"`
	Terms        map[string]any `json:"terms"`
	ContractHash string         `json:"contractHash"`
	TotalAmount  float64        `json:"totalAmount,omitempty"`
	Currency     string         `json:"currency"`
	Parties      []Party        `json:"parties"`
	CreatedAt    string         `json:"createdAt"`
	ExpiresAt    string         `json:"expiresAt,omitempty"`
	ConfirmedAt  string         `json:"confirmedAt,omitempty"`
	CompletedAt  string         `json:"completedAt,omitempty"`
}
