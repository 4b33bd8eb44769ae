package ussd

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SessionTTL is the sliding expiry window. Every handled request pushes
// expires_at this far into the future.
const SessionTTL = 5 * time.Minute

// SessionStore persists USSD session state between stateless gateway
// requests.
type SessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionStore creates a session store.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// AutoMigrate creates or updates the session table.
func (s *SessionStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&SessionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate ussd sessions: %w", err)
	}
	return nil
}

// Healthy verifies the session table is reachable.
func (s *SessionStore) Healthy() error {
	var n int64
	if err := s.db.Model(&SessionRecord{}).Count(&n).Error; err != nil {
		return fmt.Errorf("session store check: %w", err)
	}
	return nil
}

// GetOrCreate loads the session for the gateway session ID, creating a
// fresh one at the main menu when none exists. An expired session is not
// resumed: it is explicitly reset to the main menu with cleared context so
// the caller never lands mid-flow with stale state.
func (s *SessionStore) GetOrCreate(sessionID, phoneNumber string) (*SessionRecord, bool, error) {
	now := s.now().UTC()

	var rec SessionRecord
	err := s.db.Where("session_id = ?", sessionID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = SessionRecord{
			SessionID:   sessionID,
			PhoneNumber: phoneNumber,
			CurrentMenu: MenuMain,
			IsActive:    true,
			ExpiresAt:   now.Add(SessionTTL),
		}
		if err := s.db.Create(&rec).Error; err != nil {
			return nil, false, fmt.Errorf("create ussd session: %w", err)
		}
		return &rec, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("load ussd session: %w", err)
	}

	if rec.Expired(now) {
		rec.CurrentMenu = MenuMain
		rec.Context = SessionContext{}
		rec.IsActive = true
		rec.ExpiresAt = now.Add(SessionTTL)
		if err := s.db.Save(&rec).Error; err != nil {
			return nil, false, fmt.Errorf("reset ussd session: %w", err)
		}
		return &rec, true, nil
	}

	return &rec, false, nil
}

// Save persists the session's new state and refreshes the sliding expiry
// window.
func (s *SessionStore) Save(rec *SessionRecord, input, response string) error {
	rec.LastInput = input
	rec.LastResponse = response
	rec.ExpiresAt = s.now().UTC().Add(SessionTTL)
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("save ussd session: %w", err)
	}
	return nil
}

// End marks the session inactive. The record is kept for the purge sweep.
func (s *SessionStore) End(rec *SessionRecord) error {
	rec.IsActive = false
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("end ussd session: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions whose expiry passed more than the grace
// period ago. The maintenance scheduler calls this.
func (s *SessionStore) PurgeExpired(grace time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-grace)
	res := s.db.Where("expires_at < ?", cutoff).Delete(&SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge ussd sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
