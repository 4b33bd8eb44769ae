package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	vcrypto "github.com/voicepact/voicepact/pkg/crypto"
)

// Store provides append-only access to the contract audit trail. Every
// appended event carries an HMAC signature derived from the master key, so
// the trail can be verified entry by entry long after the fact.
type Store struct {
	db     *gorm.DB
	crypto *vcrypto.Service
	log    *zap.Logger
}

// NewStore creates an audit store.
func NewStore(db *gorm.DB, cryptoSvc *vcrypto.Service, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, crypto: cryptoSvc, log: log}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit events: %w", err)
	}
	return nil
}

// Append stores one immutable audit event. Callers normally go through
// RecordAction; Append exists for replaying trails from another system.
func (s *Store) Append(rec *EventRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// RecordAction appends a signed audit event. It satisfies the contract
// store's Auditor contract: best-effort, never surfaces an error to the
// operation being audited.
func (s *Store) RecordAction(contractID, action, actor string, oldValues, newValues map[string]any) {
	rec := &EventRecord{
		ID:         uuid.New().String(),
		ContractID: contractID,
		Action:     action,
		Actor:      actor,
		OldValue:   JSONMap(oldValues),
		NewValue:   JSONMap(newValues),
		Signature:  s.crypto.AuditSignature(action, contractID, actor, newValues),
	}
	if err := s.db.Create(rec).Error; err != nil {
		s.log.Warn("audit append failed",
			zap.String("contract_id", contractID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// ListFilter narrows an audit listing.
type ListFilter struct {
	ContractID string
	Actor      string
	Action     string
}

// List returns audit events newest-first. pageToken is an RFC3339Nano
// timestamp; events created strictly before it are returned.
func (s *Store) List(filter ListFilter, pageSize int, pageToken string) ([]Event, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	base := s.db.Model(&EventRecord{})
	if filter.ContractID != "" {
		base = base.Where("contract_id = ?", filter.ContractID)
	}
	if filter.Actor != "" {
		base = base.Where("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		base = base.Where("action = ?", filter.Action)
	}

	var totalSize int64
	if err := base.Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := base.Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	events := make([]Event, len(records))
	for i := range records {
		events[i] = toEvent(&records[i])
	}
	return events, nextToken, int(totalSize), nil
}

// GetByID returns one audit event, or nil when it does not exist.
func (s *Store) GetByID(eventID string) (*EventRecord, error) {
	var rec EventRecord
	err := s.db.Where("id = ?", eventID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &rec, nil
}

// Verify recomputes an event's HMAC from its stored content and checks it
// against the stored signature.
func (s *Store) Verify(rec *EventRecord) bool {
	return s.crypto.VerifyAuditSignature(
		rec.Signature, rec.Action, rec.ContractID, rec.Actor, map[string]any(rec.NewValue))
}

// DeleteOlderThan removes audit events created before cutoff. Returns the
// number of deleted records.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
