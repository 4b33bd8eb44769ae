package contract

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/voicepact/voicepact/pkg/crypto"
)

// RequiredTerms are the fields the completeness check looks for. Missing
// fields are reported as warnings; they never block creation.
var RequiredTerms = []string{
	"product", "quantity", "unit", "total_amount",
	"currency", "delivery_location", "delivery_deadline",
}

// DefaultConfirmationWindow is how long a new contract waits for signatures
// before the expiry sweep may mark it expired.
const DefaultConfirmationWindow = 48 * time.Hour

// Auditor records contract actions after they commit. Implementations must
// be best-effort; a failing auditor never rolls back a transition.
type Auditor interface {
	RecordAction(contractID, action, actor string, oldValues, newValues map[string]any)
}

// CreateRequest carries the inputs for Store.Create.
type CreateRequest struct {
	Transcript string         `json:"transcript"`
	Type       Type           `json:"contractType"`
	Terms      map[string]any `json:"terms"`
	Parties    []PartyInput   `json:"parties"`
}

// CreateResult is the outcome of Store.Create. Warnings list advisory
// completeness problems with the terms.
type CreateResult struct {
	Contract *Contract `json:"contract"`
	Warnings []string  `json:"warnings,omitempty"`
}

// SignatureResult reports the outcome of recording one signer's decision.
type SignatureResult struct {
	ContractID string          `json:"contractId"`
	Phone      string          `json:"phone"`
	Status     SignatureStatus `json:"status"`
	// QuorumReached is true when this write completed the quorum and the
	// contract transitioned to confirmed.
	QuorumReached bool `json:"quorumReached"`
}

// Store owns the Contract/Party/Signature aggregate. All mutations go
// through one GORM transaction per operation; quorum is evaluated inside the
// same transaction as the signature write so two racing last signers cannot
// both observe an unmet quorum.
type Store struct {
	db        *gorm.DB
	crypto    *crypto.Service
	machine   *LifecycleMachine
	auditor   Auditor
	// AllowUnknownSigners restores the permissive upstream behavior of
	// creating signature rows for phones with no matching party. Off by
	// default: quorum counts signature rows, so a phantom row would let an
	// un-enrolled number tip confirmation.
	AllowUnknownSigners bool
	now                 func() time.Time
}

// NewStore creates a contract store.
func NewStore(db *gorm.DB, cryptoSvc *crypto.Service) *Store {
	return &Store{
		db:      db,
		crypto:  cryptoSvc,
		machine: NewLifecycleMachine(),
		now:     time.Now,
	}
}

// SetAuditor attaches a best-effort audit recorder.
func (s *Store) SetAuditor(a Auditor) { s.auditor = a }

// AutoMigrate creates or updates the contract tables.
func (s *Store) AutoMigrate() error {
	for _, model := range []any{&Record{}, &PartyRecord{}, &SignatureRecord{}} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate contracts: %w", err)
		}
	}
	return nil
}

// Create allocates an ID, computes the content hash, and inserts the
// contract in pending status with one party and one pending signature per
// input party, all in one transaction.
func (s *Store) Create(req *CreateRequest) (*CreateResult, error) {
	if len(req.Parties) < 2 {
		return nil, &ValidationError{Field: "parties", Message: "a contract needs at least 2 parties"}
	}
	for _, p := range req.Parties {
		if p.Phone == "" {
			return nil, &ValidationError{Field: "parties", Message: "every party needs a phone number"}
		}
		if !ValidRole(p.Role) {
			return nil, &ValidationError{Field: "parties", Message: fmt.Sprintf("unknown role %q", p.Role)}
		}
	}

	if req.Type == "" {
		req.Type = TypeOther
	}
	if req.Terms == nil {
		req.Terms = map[string]any{}
	}

	var warnings []string
	for _, f := range RequiredTerms {
		if v, ok := req.Terms[f]; !ok || v == nil || v == "" {
			warnings = append(warnings, "missing term: "+f)
		}
	}

	now := s.now().UTC()
	hash := s.crypto.ContractHash(req.Transcript, req.Terms)
	expires := now.Add(DefaultConfirmationWindow)

	rec := &Record{
		Transcript:          req.Transcript,
		ContractType:        req.Type,
		Terms:               JSONMap(req.Terms),
		ContractHash:        hash,
		TotalAmount:         termFloat(req.Terms, "total_amount"),
		Currency:            termString(req.Terms, "currency", "KES"),
		DeliveryLocation:    termString(req.Terms, "delivery_location", ""),
		QualityRequirements: termString(req.Terms, "quality_requirements", ""),
		Status:              StatusPending,
		CreatedAt:           now,
		ExpiresAt:           &expires,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// The content hash is unique across contracts: identical transcript
		// and terms mean a duplicate submission.
		var dupes int64
		if err := tx.Model(&Record{}).Where("contract_hash = ?", hash).Count(&dupes).Error; err != nil {
			return fmt.Errorf("check contract hash: %w", err)
		}
		if dupes > 0 {
			return &ValidationError{Field: "transcript", Message: "a contract with identical content already exists"}
		}

		// IDs are only probabilistically unique: verify before insert and
		// redraw on collision.
		for attempt := 0; ; attempt++ {
			id, err := NewContractID(req.Type, now)
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Model(&Record{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("check contract id: %w", err)
			}
			if count == 0 {
				rec.ID = id
				break
			}
			if attempt >= 5 {
				return fmt.Errorf("could not allocate a unique contract id")
			}
		}

		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("create contract: %w", err)
		}

		for _, p := range req.Parties {
			party := &PartyRecord{
				ContractID:  rec.ID,
				PhoneNumber: p.Phone,
				Role:        p.Role,
				Name:        p.Name,
				AddedAt:     now,
			}
			if err := tx.Create(party).Error; err != nil {
				return fmt.Errorf("create party: %w", err)
			}

			sig := &SignatureRecord{
				ContractID:  rec.ID,
				SignerPhone: p.Phone,
				Method:      "sms_confirmation",
				Status:      SignaturePending,
				CreatedAt:   now,
				ExpiresAt:   &expires,
			}
			// The same phone under two roles still signs once.
			if err := tx.Where("contract_id = ? AND signer_phone = ?", rec.ID, p.Phone).
				FirstOrCreate(sig).Error; err != nil {
				return fmt.Errorf("create signature: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.RecordAction(rec.ID, "contract_created", "system", nil, map[string]any{
			"status": string(StatusPending),
			"hash":   hash,
		})
	}

	c, err := s.GetContract(rec.ID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Contract: c, Warnings: warnings}, nil
}

// RecordSignature applies one signer's confirm/reject decision and evaluates
// quorum strictly after the write, inside the same transaction. A phone with
// no signature row gets one created lazily only when it matches an enrolled
// party (or AllowUnknownSigners is set).
func (s *Store) RecordSignature(contractID, phone string, decision Decision) (*SignatureResult, error) {
	contractID = NormalizeContractID(contractID)
	result := &SignatureResult{ContractID: contractID, Phone: phone}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.Where("id = ?", contractID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Kind: "contract", ID: contractID}
			}
			return fmt.Errorf("load contract: %w", err)
		}

		var sig SignatureRecord
		err := tx.Where("contract_id = ? AND signer_phone = ?", contractID, phone).First(&sig).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !s.AllowUnknownSigners {
				var partyCount int64
				if err := tx.Model(&PartyRecord{}).
					Where("contract_id = ? AND phone_number = ?", contractID, phone).
					Count(&partyCount).Error; err != nil {
					return fmt.Errorf("check party: %w", err)
				}
				if partyCount == 0 {
					return &ValidationError{Field: "phone", Message: fmt.Sprintf("%s is not a party to %s", phone, contractID)}
				}
			}
			sig = SignatureRecord{
				ContractID:  contractID,
				SignerPhone: phone,
				Method:      "sms_confirmation",
				Status:      SignaturePending,
				CreatedAt:   s.now().UTC(),
			}
			if err := tx.Create(&sig).Error; err != nil {
				return fmt.Errorf("create signature: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load signature: %w", err)
		}

		now := s.now().UTC()
		switch decision {
		case DecisionConfirm:
			sig.Status = SignatureSigned
			sig.SignedAt = &now
			sigHash, err := s.crypto.SignContract(rec.ContractHash, phone)
			if err != nil {
				return err
			}
			sig.SignatureHash = sigHash
		case DecisionReject:
			// Terminal for this signer only. The contract stays put until an
			// explicit operator or dispute transition.
			sig.Status = SignatureRejected
			sig.SignedAt = nil
		default:
			return &ValidationError{Field: "decision", Message: fmt.Sprintf("unknown decision %q", decision)}
		}

		if err := tx.Save(&sig).Error; err != nil {
			return fmt.Errorf("save signature: %w", err)
		}
		result.Status = sig.Status

		reached, err := evaluateQuorum(tx, &rec, now)
		if err != nil {
			return err
		}
		result.QuorumReached = reached
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.RecordAction(contractID, "signature_"+string(decision), phone, nil, map[string]any{
			"signature_status": string(result.Status),
			"quorum_reached":   result.QuorumReached,
		})
	}
	return result, nil
}

// evaluateQuorum recomputes quorum from persisted state: every signature row
// signed and at least one row present. Transitioning an already-confirmed
// contract is a no-op, which makes re-evaluation safe to repeat.
func evaluateQuorum(tx *gorm.DB, rec *Record, now time.Time) (bool, error) {
	if rec.Status != StatusPending {
		return false, nil
	}

	var total, signed int64
	if err := tx.Model(&SignatureRecord{}).
		Where("contract_id = ?", rec.ID).Count(&total).Error; err != nil {
		return false, fmt.Errorf("count signatures: %w", err)
	}
	if err := tx.Model(&SignatureRecord{}).
		Where("contract_id = ? AND status = ?", rec.ID, SignatureSigned).Count(&signed).Error; err != nil {
		return false, fmt.Errorf("count signed: %w", err)
	}

	if total == 0 || signed != total {
		return false, nil
	}

	rec.Status = StatusConfirmed
	rec.ConfirmedAt = &now
	if err := tx.Save(rec).Error; err != nil {
		return false, fmt.Errorf("confirm contract: %w", err)
	}
	return true, nil
}

// Transition applies an explicit operator- or channel-driven transition.
// Illegal transitions fail with a TransitionError and leave state unchanged.
// Completion is integrity-sensitive: the stored hash is re-checked first.
func (s *Store) Transition(contractID string, target Status, actor string) error {
	contractID = NormalizeContractID(contractID)
	var from Status

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.Where("id = ?", contractID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Kind: "contract", ID: contractID}
			}
			return fmt.Errorf("load contract: %w", err)
		}
		from = rec.Status

		if err := s.machine.ValidateTransition(rec.Status, target); err != nil {
			return err
		}
		if rec.Status == target {
			return nil
		}

		if target == StatusCompleted {
			if !s.crypto.ValidateIntegrity(rec.ContractHash, rec.Transcript, map[string]any(rec.Terms)) {
				return &IntegrityError{ContractID: contractID}
			}
		}

		now := s.now().UTC()
		rec.Status = target
		switch target {
		case StatusConfirmed:
			rec.ConfirmedAt = &now
		case StatusCompleted:
			rec.CompletedAt = &now
		}

		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("save contract: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.auditor != nil && from != target {
		s.auditor.RecordAction(contractID, "status_change", actor,
			map[string]any{"status": string(from)},
			map[string]any{"status": string(target)})
	}
	return nil
}

// Status returns the contract's current status plus per-signer progress.
// Read-only; no side effects.
func (s *Store) Status(contractID string) (*StatusReport, error) {
	contractID = NormalizeContractID(contractID)

	var rec Record
	if err := s.db.Where("id = ?", contractID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "contract", ID: contractID}
		}
		return nil, fmt.Errorf("load contract: %w", err)
	}

	var sigs []SignatureRecord
	if err := s.db.Where("contract_id = ?", contractID).
		Order("created_at ASC").Find(&sigs).Error; err != nil {
		return nil, fmt.Errorf("load signatures: %w", err)
	}

	report := &StatusReport{
		ContractID: contractID,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		Total:      len(sigs),
	}
	if rec.ConfirmedAt != nil {
		report.ConfirmedAt = rec.ConfirmedAt.Format(time.RFC3339)
	}
	for _, sig := range sigs {
		p := SignerProgress{PhoneNumber: sig.SignerPhone, Status: sig.Status}
		if sig.SignedAt != nil {
			p.SignedAt = sig.SignedAt.Format(time.RFC3339)
		}
		if sig.Status == SignatureSigned {
			report.Signed++
		}
		report.Signatures = append(report.Signatures, p)
	}
	return report, nil
}

// Get loads the raw contract record.
func (s *Store) Get(contractID string) (*Record, error) {
	var rec Record
	if err := s.db.Where("id = ?", NormalizeContractID(contractID)).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "contract", ID: contractID}
		}
		return nil, fmt.Errorf("load contract: %w", err)
	}
	return &rec, nil
}

// GetContract loads a contract with its parties in API form.
func (s *Store) GetContract(contractID string) (*Contract, error) {
	rec, err := s.Get(contractID)
	if err != nil {
		return nil, err
	}

	var parties []PartyRecord
	if err := s.db.Where("contract_id = ?", rec.ID).
		Order("added_at ASC").Find(&parties).Error; err != nil {
		return nil, fmt.Errorf("load parties: %w", err)
	}
	return toContract(rec, parties), nil
}

// Parties returns the party rows for a contract.
func (s *Store) Parties(contractID string) ([]PartyRecord, error) {
	var parties []PartyRecord
	if err := s.db.Where("contract_id = ?", NormalizeContractID(contractID)).
		Find(&parties).Error; err != nil {
		return nil, fmt.Errorf("load parties: %w", err)
	}
	return parties, nil
}

// IsParty reports whether phone is enrolled under any role.
func (s *Store) IsParty(contractID, phone string) (bool, error) {
	var count int64
	if err := s.db.Model(&PartyRecord{}).
		Where("contract_id = ? AND phone_number = ?", NormalizeContractID(contractID), phone).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check party: %w", err)
	}
	return count > 0, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status   Status
	Phone    string
	Limit    int
	Offset   int
}

// List returns contracts newest-first, optionally filtered by status or
// participating phone number.
func (s *Store) List(filter ListFilter) ([]Contract, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	query := s.db.Model(&Record{}).Order("created_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Phone != "" {
		query = query.Joins("JOIN contract_parties ON contract_parties.contract_id = contracts.id").
			Where("contract_parties.phone_number = ?", filter.Phone).
			Distinct("contracts.*")
	}

	var recs []Record
	if err := query.Limit(filter.Limit).Offset(filter.Offset).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	out := make([]Contract, 0, len(recs))
	for i := range recs {
		var parties []PartyRecord
		if err := s.db.Where("contract_id = ?", recs[i].ID).Find(&parties).Error; err != nil {
			return nil, fmt.Errorf("load parties: %w", err)
		}
		out = append(out, *toContract(&recs[i], parties))
	}
	return out, nil
}

// ActiveForPhone lists the caller's open contracts (pending, confirmed or
// active) newest-first. The USSD contract menu is built from this.
func (s *Store) ActiveForPhone(phone string, limit int) ([]Contract, error) {
	if limit <= 0 {
		limit = 5
	}

	var recs []Record
	err := s.db.Model(&Record{}).
		Joins("JOIN contract_parties ON contract_parties.contract_id = contracts.id").
		Where("contract_parties.phone_number = ?", phone).
		Where("contracts.status IN ?", []Status{StatusPending, StatusConfirmed, StatusActive}).
		Order("contracts.created_at DESC").
		Distinct("contracts.*").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list active contracts: %w", err)
	}

	out := make([]Contract, 0, len(recs))
	for i := range recs {
		out = append(out, *toContract(&recs[i], nil))
	}
	return out, nil
}

// VerifyIntegrity recomputes the contract hash from stored content and
// checks it against the recorded anchor. Payment release and completion call
// this before proceeding.
func (s *Store) VerifyIntegrity(contractID string) error {
	rec, err := s.Get(contractID)
	if err != nil {
		return err
	}
	if !s.crypto.ValidateIntegrity(rec.ContractHash, rec.Transcript, map[string]any(rec.Terms)) {
		return &IntegrityError{ContractID: rec.ID}
	}
	return nil
}

// ReevaluateQuorum is the idempotent recovery path for a contract whose
// last-signer race left it pending with all signatures signed. Safe to call
// repeatedly; a no-op when already applied.
func (s *Store) ReevaluateQuorum(contractID string) (bool, error) {
	var reached bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.Where("id = ?", NormalizeContractID(contractID)).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Kind: "contract", ID: contractID}
			}
			return fmt.Errorf("load contract: %w", err)
		}
		var err error
		reached, err = evaluateQuorum(tx, &rec, s.now().UTC())
		return err
	})
	return reached, err
}

// ReevaluateAllPending runs quorum recovery over every pending contract.
// The maintenance scheduler calls this periodically.
func (s *Store) ReevaluateAllPending() (promoted int, err error) {
	var ids []string
	if err := s.db.Model(&Record{}).Where("status = ?", StatusPending).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list pending contracts: %w", err)
	}
	for _, id := range ids {
		reached, err := s.ReevaluateQuorum(id)
		if err != nil {
			return promoted, err
		}
		if reached {
			promoted++
		}
	}
	return promoted, nil
}

// ExpireStale marks pending and confirmed contracts whose confirmation
// window has passed as expired.
func (s *Store) ExpireStale() (expired int64, err error) {
	res := s.db.Model(&Record{}).
		Where("status IN ?", []Status{StatusPending, StatusConfirmed}).
		Where("expires_at IS NOT NULL AND expires_at < ?", s.now().UTC()).
		Update("status", StatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire contracts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes a contract and everything it owns: parties, signatures and
// payments.
func (s *Store) Delete(contractID string) error {
	contractID = NormalizeContractID(contractID)
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Payments live in their own package; deleting by table keeps the
		// cascade in one transaction without a package cycle.
		if tx.Migrator().HasTable("payments") {
			if err := tx.Exec("DELETE FROM payments WHERE contract_id = ?", contractID).Error; err != nil {
				return fmt.Errorf("delete payments: %w", err)
			}
		}
		if err := tx.Where("contract_id = ?", contractID).Delete(&SignatureRecord{}).Error; err != nil {
			return fmt.Errorf("delete signatures: %w", err)
		}
		if err := tx.Where("contract_id = ?", contractID).Delete(&PartyRecord{}).Error; err != nil {
			return fmt.Errorf("delete parties: %w", err)
		}
		res := tx.Where("id = ?", contractID).Delete(&Record{})
		if res.Error != nil {
			return fmt.Errorf("delete contract: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Kind: "contract", ID: contractID}
		}
		return nil
	})
}

func toContract(rec *Record, parties []PartyRecord) *Contract {
	c := &Contract{
		ID:           rec.ID,
		Type:         rec.ContractType,
		Status:       rec.Status,
		Transcript:   rec.Transcript,
		Terms:        map[string]any(rec.Terms),
		ContractHash: rec.ContractHash,
		TotalAmount:  rec.TotalAmount,
		Currency:     rec.Currency,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ExpiresAt != nil {
		c.ExpiresAt = rec.ExpiresAt.Format(time.RFC3339)
	}
	if rec.ConfirmedAt != nil {
		c.ConfirmedAt = rec.ConfirmedAt.Format(time.RFC3339)
	}
	if rec.CompletedAt != nil {
		c.CompletedAt = rec.CompletedAt.Format(time.RFC3339)
	}
	for _, p := range parties {
		c.Parties = append(c.Parties, Party{PhoneNumber: p.PhoneNumber, Role: p.Role, Name: p.Name})
	}
	return c
}

func termString(terms map[string]any, key, fallback string) string {
	if v, ok := terms[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func termFloat(terms map[string]any, key string) float64 {
	switch v := terms[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
