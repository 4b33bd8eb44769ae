package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// createContractHandler returns a handler that creates a contract from a
// transcript, terms and party list. Incomplete terms produce warnings, not
// failures.
func createContractHandler(store *Store, renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		result, err := store.Create(&req)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"contract":     result.Contract,
			"summary":      renderer.Summary(result.Contract),
			"completeness": Completeness(result.Contract.Terms),
			"warnings":     result.Warnings,
		})
	}
}

// getContractHandler returns a handler that loads one contract with its
// parties.
func getContractHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.GetContract(chi.URLParam(r, "contractID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// getContractTextHandler returns a handler that renders the contract
// document text.
func getContractTextHandler(store *Store, renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.GetContract(chi.URLParam(r, "contractID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"contractId": c.ID,
			"text":       renderer.Render(c),
			"summary":    renderer.Summary(c),
		})
	}
}

// listContractsHandler returns a handler that lists contracts filtered by
// status and participating phone number.
func listContractsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{
			Status: Status(r.URL.Query().Get("status")),
			Phone:  r.URL.Query().Get("phone"),
		}
		contracts, err := store.List(filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"contracts": contracts,
			"size":      len(contracts),
		})
	}
}

// getStatusHandler returns a handler for the read-only confirmation
// progress projection.
func getStatusHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := store.Status(chi.URLParam(r, "contractID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// confirmContractHandler returns a handler that records one signer's
// confirm or reject decision and reports whether quorum was reached.
func confirmContractHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Phone    string   `json:"phone"`
			Decision Decision `json:"decision"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Phone == "" {
			writeError(w, http.StatusBadRequest, "phone is required")
			return
		}
		if req.Decision == "" {
			req.Decision = DecisionConfirm
		}

		result, err := store.RecordSignature(chi.URLParam(r, "contractID"), req.Phone, req.Decision)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// transitionContractHandler returns a handler for explicit lifecycle
// transitions (activate, complete, dispute, resolve, cancel).
func transitionContractHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status Status `json:"status"`
			Actor  string `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Actor == "" {
			req.Actor = "system"
		}

		contractID := chi.URLParam(r, "contractID")
		if err := store.Transition(contractID, req.Status, req.Actor); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"contractId": NormalizeContractID(contractID),
			"status":     string(req.Status),
		})
	}
}

// verifyContractHandler returns a handler that re-checks the stored content
// hash against the stored transcript and terms.
func verifyContractHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID := chi.URLParam(r, "contractID")
		err := store.VerifyIntegrity(contractID)
		var integrityErr *IntegrityError
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"contractId": NormalizeContractID(contractID),
				"valid":      true,
			})
		case errors.As(err, &integrityErr):
			writeJSON(w, http.StatusOK, map[string]any{
				"contractId": NormalizeContractID(contractID),
				"valid":      false,
			})
		default:
			writeStoreError(w, err)
		}
	}
}

// deleteContractHandler returns a handler that deletes a contract and the
// parties, signatures and payments it owns.
func deleteContractHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(chi.URLParam(r, "contractID")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeStoreError maps store error types to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		transitionErr *TransitionError
		integrityErr  *IntegrityError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, transitionErr)
	case errors.As(err, &integrityErr):
		writeError(w, http.StatusConflict, integrityErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
