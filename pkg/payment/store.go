package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicepact/voicepact/pkg/contract"
	vcrypto "github.com/voicepact/voicepact/pkg/crypto"
	"github.com/voicepact/voicepact/pkg/gateway"
)

// StateError reports an escrow operation not permitted from the payment's
// current status.
type StateError struct {
	Code    string `json:"code"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Message string `json:"message"`
}

func (e *StateError) Error() string { return e.Message }

// Notifier receives payment status changes after they commit. Implementations
// must be non-blocking; a slow notifier never stalls the webhook path.
type Notifier interface {
	PaymentUpdated(contractID, status string, amount float64)
}

// MoneyMover is the slice of the gateway client the escrow flow needs.
type MoneyMover interface {
	MobileCheckout(ctx context.Context, phoneNumber string, amount float64, currency string) (*gateway.PaymentResult, error)
	MobileTransfer(ctx context.Context, phoneNumber string, amount float64, currency string) (*gateway.PaymentResult, error)
}

// Store owns payment records and the escrow flow around them. Checkout and
// webhook handling mirror the gateway's asynchronous model: checkout leaves
// the payment pending, and only the webhook settles it to locked or failed.
type Store struct {
	db        *gorm.DB
	contracts *contract.Store
	crypto    *vcrypto.Service
	mover     MoneyMover
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
}

// NewStore creates a payment store.
func NewStore(db *gorm.DB, contracts *contract.Store, cryptoSvc *vcrypto.Service, mover MoneyMover, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:        db,
		contracts: contracts,
		crypto:    cryptoSvc,
		mover:     mover,
		log:       log,
		now:       time.Now,
	}
}

// SetNotifier attaches a best-effort payment event listener.
func (s *Store) SetNotifier(n Notifier) { s.notifier = n }

func (s *Store) notify(rec *Record) {
	if s.notifier != nil {
		s.notifier.PaymentUpdated(rec.ContractID, string(rec.Status), rec.Amount)
	}
}

// AutoMigrate creates or updates the payments table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto-migrate payments: %w", err)
	}
	return nil
}

// CheckoutRequest carries the inputs to Checkout.
type CheckoutRequest struct {
	ContractID  string  `json:"contractId"`
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PaymentType string  `json:"paymentType"`
}

// Checkout records a pending payment and asks the gateway to charge the
// payer. The payment stays pending regardless of the gateway's immediate
// answer; the webhook is the sole authority for locked/failed.
func (s *Store) Checkout(ctx context.Context, req *CheckoutRequest) (*Response, error) {
	if req.Amount <= 0 {
		return nil, &contract.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if req.PhoneNumber == "" {
		return nil, &contract.ValidationError{Field: "phoneNumber", Message: "phone number is required"}
	}
	if req.Currency == "" {
		req.Currency = "KES"
	}
	if req.PaymentType == "" {
		req.PaymentType = "escrow"
	}

	c, err := s.contracts.Get(req.ContractID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ContractID:    c.ID,
		TransactionID: s.crypto.PaymentReference(c.ID, req.Amount, req.PhoneNumber),
		PayerPhone:    req.PhoneNumber,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentType:   req.PaymentType,
		Status:        StatusPending,
	}
	if err := s.db.Create(rec).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "Duplicate") {
			return nil, &contract.ValidationError{Field: "amount", Message: "an identical payment is already in flight"}
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	result, err := s.mover.MobileCheckout(ctx, req.PhoneNumber, req.Amount, req.Currency)
	if err != nil {
		// Keep the record pending; the operator can retry or the payer can
		// be charged again under the same reference.
		s.log.Warn("mobile checkout dispatch failed",
			zap.String("contract_id", c.ID), zap.Uint("payment_id", rec.ID), zap.Error(err))
		return nil, err
	}
	if result.TransactionID != "" {
		rec.ExternalTransactionID = result.TransactionID
		if err := s.db.Save(rec).Error; err != nil {
			return nil, fmt.Errorf("attach transaction id: %w", err)
		}
	}

	return toResponse(rec), nil
}

// ApplyWebhook settles a pending payment from a gateway notification.
// Success locks the escrow; anything else fails the payment. Reports for
// already-settled payments are ignored so webhook retries stay idempotent.
func (s *Store) ApplyWebhook(transactionID, status, description string) (*Response, error) {
	var rec Record
	err := s.db.Where("external_transaction_id = ?", transactionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &contract.NotFoundError{Kind: "payment", ID: transactionID}
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	if rec.Status != StatusPending {
		return toResponse(&rec), nil
	}

	now := s.now().UTC()
	if strings.EqualFold(status, "success") {
		rec.Status = StatusLocked
		rec.ConfirmedAt = &now
	} else {
		rec.Status = StatusFailed
		if description == "" {
			description = "Payment failed"
		}
		rec.FailureReason = description
	}

	if err := s.db.Save(&rec).Error; err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	s.log.Info("payment settled",
		zap.Uint("payment_id", rec.ID), zap.String("status", string(rec.Status)))
	s.notify(&rec)
	return toResponse(&rec), nil
}

// Release pays locked escrow out to the recipient. It is integrity-gated:
// a contract whose stored hash no longer matches its content cannot move
// money.
func (s *Store) Release(ctx context.Context, paymentID uint, recipientPhone string) (*Response, error) {
	rec, err := s.get(paymentID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusLocked {
		return nil, &StateError{
			Code:    "PAYMENT_NOT_LOCKED",
			From:    rec.Status,
			To:      StatusReleased,
			Message: fmt.Sprintf("payment is %s; only locked escrow can be released", rec.Status),
		}
	}
	if recipientPhone == "" {
		return nil, &contract.ValidationError{Field: "recipientPhone", Message: "recipient phone is required"}
	}

	if err := s.contracts.VerifyIntegrity(rec.ContractID); err != nil {
		return nil, err
	}

	if _, err := s.mover.MobileTransfer(ctx, recipientPhone, rec.Amount, rec.Currency); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec.Status = StatusReleased
	rec.RecipientPhone = recipientPhone
	rec.ReleasedAt = &now
	if err := s.db.Save(rec).Error; err != nil {
		return nil, fmt.Errorf("release payment: %w", err)
	}
	s.notify(rec)
	return toResponse(rec), nil
}

// Refund returns locked escrow to the payer, typically after a dispute is
// resolved in the payer's favor or the contract is cancelled.
func (s *Store) Refund(ctx context.Context, paymentID uint) (*Response, error) {
	rec, err := s.get(paymentID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusLocked {
		return nil, &StateError{
			Code:    "PAYMENT_NOT_LOCKED",
			From:    rec.Status,
			To:      StatusRefunded,
			Message: fmt.Sprintf("payment is %s; only locked escrow can be refunded", rec.Status),
		}
	}

	if _, err := s.mover.MobileTransfer(ctx, rec.PayerPhone, rec.Amount, rec.Currency); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec.Status = StatusRefunded
	rec.ReleasedAt = &now
	if err := s.db.Save(rec).Error; err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	s.notify(rec)
	return toResponse(rec), nil
}

// Get returns one payment.
func (s *Store) Get(paymentID uint) (*Response, error) {
	rec, err := s.get(paymentID)
	if err != nil {
		return nil, err
	}
	return toResponse(rec), nil
}

// ListByContract returns a contract's payments newest-first.
func (s *Store) ListByContract(contractID string) ([]Response, error) {
	var recs []Record
	if err := s.db.Where("contract_id = ?", contract.NormalizeContractID(contractID)).
		Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]Response, len(recs))
	for i := range recs {
		out[i] = *toResponse(&recs[i])
	}
	return out, nil
}

func (s *Store) get(paymentID uint) (*Record, error) {
	var rec Record
	err := s.db.Where("id = ?", paymentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &contract.NotFoundError{Kind: "payment", ID: fmt.Sprintf("%d", paymentID)}
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return &rec, nil
}
