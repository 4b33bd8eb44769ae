package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// listEventsHandler serves the audit trail with optional filters.
// Query params: contractId, actor, action, pageSize, pageToken.
func listEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{
			ContractID: r.URL.Query().Get("contractId"),
			Actor:      r.URL.Query().Get("actor"),
			Action:     r.URL.Query().Get("action"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		events, nextToken, total, err := store.List(filter, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events":        events,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

func getEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		rec, err := store.GetByID(eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", eventID))
			return
		}
		writeJSON(w, http.StatusOK, toEvent(rec))
	}
}

// verifyEventHandler recomputes the event's signature so tampering with the
// stored row is detectable over the API.
func verifyEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		rec, err := store.GetByID(eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", eventID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"eventId": rec.ID,
			"valid":   store.Verify(rec),
		})
	}
}

// NewRouter creates a chi router for the audit API. Mounted by the server
// under /api/v1/audit.
func NewRouter(store *Store) chi.Router {
	r := chi.NewRouter()
	r.Get("/events", listEventsHandler(store))
	r.Get("/events/{eventID}", getEventHandler(store))
	r.Get("/events/{eventID}/verify", verifyEventHandler(store))
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
