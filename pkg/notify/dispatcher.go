package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/gateway"
)

// SMSSender is the slice of the sms service the dispatcher needs. Nil
// disables SMS fan-out.
type SMSSender interface {
	SendContractNotification(ctx context.Context, contractID, messageType string) (*gateway.SMSResult, []string, error)
}

// Dispatcher formats domain events and fans them out. Every method is
// fire-and-forget: it queues the work and returns, so callers inside
// transactions never wait on a gateway.
type Dispatcher struct {
	hub *Hub
	log *zap.Logger
	now func() time.Time
}

// NewDispatcher creates a dispatcher over a running hub.
func NewDispatcher(hub *Hub, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{hub: hub, log: log, now: time.Now}
}

// ContractUpdated tells each party's connected clients about a status
// change.
func (d *Dispatcher) ContractUpdated(contractID, status string, parties []string) {
	payload, err := json.Marshal(map[string]any{
		"type":        "contract_update",
		"contract_id": contractID,
		"status":      status,
		"timestamp":   fmt.Sprintf("%d", d.now().UTC().Unix()),
	})
	if err != nil {
		return
	}
	for _, phone := range parties {
		d.hub.Send(phone, payload)
	}
	d.log.Info("contract update dispatched",
		zap.String("contract_id", contractID), zap.String("status", status))
}

// PaymentUpdated broadcasts a payment status change to every connected
// client.
func (d *Dispatcher) PaymentUpdated(contractID, status string, amount float64) {
	payload, err := json.Marshal(map[string]any{
		"type":        "payment_update",
		"contract_id": contractID,
		"status":      status,
		"amount":      amount,
		"timestamp":   fmt.Sprintf("%d", d.now().UTC().Unix()),
	})
	if err != nil {
		return
	}
	d.hub.Broadcast(payload)
	d.log.Info("payment update dispatched",
		zap.String("contract_id", contractID), zap.String("status", status))
}

// RequestConfirmations asks every party to sign a new contract over SMS, in
// the background. Failures are logged, never surfaced.
func (d *Dispatcher) RequestConfirmations(sender SMSSender, contractID string) {
	if sender == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, _, err := sender.SendContractNotification(ctx, contractID, "confirmation"); err != nil {
			d.log.Warn("confirmation sms dispatch failed",
				zap.String("contract_id", contractID), zap.Error(err))
		}
	}()
}
