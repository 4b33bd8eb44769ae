package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/contract"
	"github.com/voicepact/voicepact/pkg/gateway"
)

// Sender is the slice of the gateway client the SMS routes need.
type Sender interface {
	SendSMS(ctx context.Context, message string, recipients []string) (*gateway.SMSResult, error)
}

// Service bundles the dependencies of the SMS routes.
type Service struct {
	sender     Sender
	logs       *LogStore
	dispatcher *Dispatcher
	contracts  *contract.Store
	log        *zap.Logger
}

// NewService creates the SMS service.
func NewService(sender Sender, logs *LogStore, dispatcher *Dispatcher, contracts *contract.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{sender: sender, logs: logs, dispatcher: dispatcher, contracts: contracts, log: log}
}

// Send dispatches a message and records one log row per recipient.
func (s *Service) Send(ctx context.Context, message string, recipients []string, messageType, contractID string) (*gateway.SMSResult, error) {
	result, err := s.sender.SendSMS(ctx, message, recipients)
	if err != nil {
		return nil, err
	}
	if err := s.logs.AppendBatch(result.MessageID, result.Recipients, message, messageType, contractID); err != nil {
		// The message is already out; a failed log write must not fail the
		// request.
		s.log.Warn("sms log write failed", zap.Error(err))
	}
	return result, nil
}

// SendContractNotification builds the typed message for a contract and
// sends it to every party.
func (s *Service) SendContractNotification(ctx context.Context, contractID, messageType string) (*gateway.SMSResult, []string, error) {
	c, err := s.contracts.GetContract(contractID)
	if err != nil {
		return nil, nil, err
	}

	recipients := make([]string, 0, len(c.Parties))
	for _, p := range c.Parties {
		recipients = append(recipients, p.PhoneNumber)
	}

	var message string
	switch messageType {
	case "confirmation":
		message = ConfirmationSMS(c.ID, c.Terms)
	case "payment":
		message = PaymentSMS(c.ID, c.TotalAmount, c.Currency, "received")
	case "delivery":
		message = DeliverySMS(c.ID, "full")
	default:
		message = fmt.Sprintf("VoicePact Contract Update: %s", c.ID)
	}

	result, err := s.Send(ctx, message, recipients, messageType, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return result, recipients, nil
}

func sendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Recipients []string `json:"recipients"`
			Message    string   `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if len(req.Recipients) == 0 || req.Message == "" {
			writeError(w, http.StatusBadRequest, "recipients and message are required")
			return
		}
		if len(req.Message) > 160 {
			writeError(w, http.StatusBadRequest, "message exceeds 160 characters")
			return
		}

		result, err := svc.Send(r.Context(), req.Message, req.Recipients, "notification", "")
		if err != nil {
			writeError(w, http.StatusBadGateway, fmt.Sprintf("sms send failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func sendContractHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContractID  string `json:"contractId"`
			MessageType string `json:"messageType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.MessageType == "" {
			req.MessageType = "confirmation"
		}

		result, recipients, err := svc.SendContractNotification(r.Context(), req.ContractID, req.MessageType)
		if err != nil {
			var nfErr *contract.NotFoundError
			if errors.As(err, &nfErr) {
				writeError(w, http.StatusNotFound, nfErr.Error())
				return
			}
			writeError(w, http.StatusBadGateway, fmt.Sprintf("contract sms send failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"messageId":  result.MessageID,
			"recipients": recipients,
			"status":     "sent",
		})
	}
}

// deliveryReportHandler handles the gateway's form-encoded delivery
// reports.
func deliveryReportHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}

		messageID := r.PostFormValue("id")
		status := r.PostFormValue("status")
		if status == "" {
			status = "delivered"
		}
		failureReason := r.PostFormValue("failureReason")
		cost, _ := strconv.ParseFloat(r.PostFormValue("cost"), 64)

		if messageID != "" {
			if err := svc.logs.RecordDelivery(messageID, status, failureReason, cost); err != nil {
				svc.log.Warn("delivery report update failed",
					zap.String("message_id", messageID), zap.Error(err))
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "webhook_processed",
			"messageId": messageID,
		})
	}
}

// confirmHandler processes inbound command messages (YES-<id>, NO-<id>,
// ACCEPT-<id>, DISPUTE-<id>).
func confirmHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PhoneNumber string `json:"phoneNumber"`
			Message     string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.PhoneNumber == "" || req.Message == "" {
			writeError(w, http.StatusBadRequest, "phoneNumber and message are required")
			return
		}

		result, err := svc.dispatcher.Dispatch(req.PhoneNumber, req.Message)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("sms confirmation processing failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func listLogsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := LogFilter{
			Recipient:  r.URL.Query().Get("phone"),
			ContractID: r.URL.Query().Get("contractId"),
		}
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			filter.Limit = v
		}
		if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
			filter.Offset = v
		}

		logs, err := svc.logs.List(filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		out := make([]map[string]any, len(logs))
		for i, l := range logs {
			entry := map[string]any{
				"id":         l.ID,
				"recipient":  l.Recipient,
				"message":    l.Message,
				"status":     l.Status,
				"type":       l.MessageType,
				"contractId": l.ContractID,
				"sentAt":     l.SentAt.Format(time.RFC3339),
			}
			if l.DeliveredAt != nil {
				entry["deliveredAt"] = l.DeliveredAt.Format(time.RFC3339)
			}
			if l.Cost > 0 {
				entry["cost"] = l.Cost
			}
			out[i] = entry
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": out, "size": len(out)})
	}
}

// NewRouter creates a chi router with the SMS routes. Mounted by the server
// under /api/v1/sms.
func NewRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	r.Post("/send", sendHandler(svc))
	r.Post("/send/contract", sendContractHandler(svc))
	r.Post("/webhook", deliveryReportHandler(svc))
	r.Post("/confirm", confirmHandler(svc))
	r.Get("/logs", listLogsHandler(svc))
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
