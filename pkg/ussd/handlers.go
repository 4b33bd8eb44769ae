package ussd

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// callbackHandler returns the gateway callback handler. The gateway posts
// form-encoded fields and expects a plain-text "CON ..."/"END ..." body.
func callbackHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}

		sessionID := r.PostFormValue("sessionId")
		phoneNumber := r.PostFormValue("phoneNumber")
		text := r.PostFormValue("text")
		if sessionID == "" || phoneNumber == "" {
			http.Error(w, "sessionId and phoneNumber are required", http.StatusBadRequest)
			return
		}

		response := engine.Handle(sessionID, phoneNumber, text)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(response))
	}
}

// NewRouter creates a chi router with the USSD callback route. Mounted by
// the server under /api/v1/ussd.
func NewRouter(engine *Engine) chi.Router {
	r := chi.NewRouter()
	r.Post("/", callbackHandler(engine))
	return r
}
