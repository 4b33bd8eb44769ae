package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/contract"
)

// Service turns transcripts into draft contracts.
type Service struct {
	contracts *contract.Store
	renderer  *contract.Renderer
	notifier  func(contractID string)
	log       *zap.Logger
}

// NewService creates a voice service. notifier, when non-nil, runs after a
// contract is minted; it must not block.
func NewService(contracts *contract.Store, renderer *contract.Renderer, notifier func(contractID string), log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{contracts: contracts, renderer: renderer, notifier: notifier, log: log}
}

type extractRequest struct {
	Transcript string `json:"transcript"`
}

// extractHandler runs term extraction alone, for callers that want to show
// the parsed terms before committing to a contract.
func extractHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Transcript == "" {
			writeError(w, http.StatusBadRequest, "transcript is required")
			return
		}

		terms := Extract(req.Transcript)
		writeJSON(w, http.StatusOK, map[string]any{
			"terms":           terms,
			"confidenceScore": Confidence(terms),
			"wordCount":       wordCount(req.Transcript),
		})
	}
}

type processRequest struct {
	Transcript string                `json:"transcript"`
	Type       string                `json:"contractType"`
	Parties    []contract.PartyInput `json:"parties"`
}

// processHandler extracts terms and mints a pending contract from them in
// one step.
func processHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Transcript == "" {
			writeError(w, http.StatusBadRequest, "transcript is required")
			return
		}

		terms := Extract(req.Transcript)
		contractType := contract.Type(req.Type)
		if req.Type == "" {
			contractType = contract.TypeAgriculturalSupply
		}

		result, err := svc.contracts.Create(&contract.CreateRequest{
			Transcript: req.Transcript,
			Type:       contractType,
			Terms:      terms.Map(),
			Parties:    req.Parties,
		})
		if err != nil {
			var validationErr *contract.ValidationError
			if errors.As(err, &validationErr) {
				writeError(w, http.StatusBadRequest, validationErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if svc.notifier != nil {
			svc.notifier(result.Contract.ID)
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"contract":        result.Contract,
			"summary":         svc.renderer.Summary(result.Contract),
			"terms":           terms,
			"confidenceScore": Confidence(terms),
			"warnings":        result.Warnings,
		})
	}
}

// NewRouter creates a chi router for the voice API. Mounted by the server
// under /api/v1/voice.
func NewRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	r.Post("/extract", extractHandler())
	r.Post("/process", processHandler(svc))
	return r
}

func wordCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
