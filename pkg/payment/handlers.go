package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/contract"
	vcrypto "github.com/voicepact/voicepact/pkg/crypto"
)

func checkoutHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		resp, err := store.Checkout(r.Context(), &req)
		if err != nil {
			writePaymentError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// webhookHandler settles payments from gateway notifications. When the
// gateway signs its callbacks, the signature is checked before any state
// changes; unsigned callbacks are accepted for gateways that do not sign.
func webhookHandler(store *Store, cryptoSvc *vcrypto.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		if sig := r.Header.Get("X-Voicepact-Signature"); sig != "" {
			if !cryptoSvc.VerifyWebhookSignature(string(body), sig) {
				log.Warn("payment webhook signature rejected")
				writeError(w, http.StatusUnauthorized, "invalid webhook signature")
				return
			}
		}

		form, err := url.ParseQuery(string(body))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}

		transactionID := form.Get("transactionId")
		status := form.Get("status")
		if status == "" {
			status = "failed"
		}

		if transactionID == "" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "webhook_processed"})
			return
		}

		resp, err := store.ApplyWebhook(transactionID, status, form.Get("description"))
		if err != nil {
			var nfErr *contract.NotFoundError
			if errors.As(err, &nfErr) {
				// Unknown transactions are acknowledged; the gateway may
				// report on payments from another deployment.
				writeJSON(w, http.StatusOK, map[string]string{
					"status":        "unknown_transaction",
					"transactionId": transactionID,
				})
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "webhook_processed",
			"transactionId": transactionID,
			"paymentStatus": resp.Status,
		})
	}
}

func getPaymentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "paymentID"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payment id")
			return
		}
		resp, err := store.Get(uint(id))
		if err != nil {
			writePaymentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listContractPaymentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID := chi.URLParam(r, "contractID")
		payments, err := store.ListByContract(contractID)
		if err != nil {
			writePaymentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"contractId": contract.NormalizeContractID(contractID),
			"payments":   payments,
		})
	}
}

func releaseHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "paymentID"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payment id")
			return
		}

		var req struct {
			RecipientPhone string `json:"recipientPhone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		resp, err := store.Release(r.Context(), uint(id), req.RecipientPhone)
		if err != nil {
			writePaymentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func refundHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "paymentID"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payment id")
			return
		}
		resp, err := store.Refund(r.Context(), uint(id))
		if err != nil {
			writePaymentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewRouter creates a chi router with the payment routes. Mounted by the
// server under /api/v1/payments.
func NewRouter(store *Store, cryptoSvc *vcrypto.Service, log *zap.Logger) chi.Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Post("/checkout", checkoutHandler(store))
	r.Post("/webhook", webhookHandler(store, cryptoSvc, log))
	r.Get("/contract/{contractID}", listContractPaymentsHandler(store))
	r.Route("/{paymentID}", func(r chi.Router) {
		r.Get("/", getPaymentHandler(store))
		r.Post("/release", releaseHandler(store))
		r.Post("/refund", refundHandler(store))
	})
	return r
}

func writePaymentError(w http.ResponseWriter, err error) {
	var (
		validationErr *contract.ValidationError
		notFoundErr   *contract.NotFoundError
		stateErr      *StateError
		integrityErr  *contract.IntegrityError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusConflict, stateErr)
	case errors.As(err, &integrityErr):
		writeError(w, http.StatusConflict, integrityErr.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
