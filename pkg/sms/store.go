package sms

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// LogStore persists the outbound SMS audit trail.
type LogStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLogStore creates a log store.
func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db, now: time.Now}
}

// AutoMigrate creates or updates the SMS log table.
func (s *LogStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&MessageLog{}); err != nil {
		return fmt.Errorf("auto-migrate sms logs: %w", err)
	}
	return nil
}

// AppendBatch records one log row per recipient of a dispatched message.
func (s *LogStore) AppendBatch(messageID string, recipients []string, message, messageType, contractID string) error {
	logs := make([]MessageLog, len(recipients))
	for i, r := range recipients {
		logs[i] = MessageLog{
			MessageID:   messageID,
			Recipient:   r,
			Message:     message,
			Status:      "sent",
			MessageType: messageType,
			ContractID:  contractID,
		}
	}
	if err := s.db.Create(&logs).Error; err != nil {
		return fmt.Errorf("append sms logs: %w", err)
	}
	return nil
}

// RecordDelivery applies a gateway delivery report. Unknown message IDs are
// ignored; the gateway may report on messages sent before this deployment.
func (s *LogStore) RecordDelivery(messageID, status, failureReason string, cost float64) error {
	updates := map[string]any{
		"status":       status,
		"delivered_at": s.now().UTC(),
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}
	if cost > 0 {
		updates["cost"] = cost
	}
	if err := s.db.Model(&MessageLog{}).
		Where("message_id = ?", messageID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("record sms delivery: %w", err)
	}
	return nil
}

// LogFilter narrows List results.
type LogFilter struct {
	Recipient  string
	ContractID string
	Limit      int
	Offset     int
}

// List returns log rows newest-first.
func (s *LogStore) List(filter LogFilter) ([]MessageLog, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	query := s.db.Model(&MessageLog{}).Order("sent_at DESC")
	if filter.Recipient != "" {
		query = query.Where("recipient = ?", filter.Recipient)
	}
	if filter.ContractID != "" {
		query = query.Where("contract_id = ?", filter.ContractID)
	}

	var logs []MessageLog
	if err := query.Limit(filter.Limit).Offset(filter.Offset).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list sms logs: %w", err)
	}
	return logs, nil
}
