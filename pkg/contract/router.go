package contract

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the contract API routes. Mounted by
// the server under /api/v1/contracts.
func NewRouter(store *Store, renderer *Renderer) chi.Router {
	r := chi.NewRouter()

	r.Post("/", createContractHandler(store, renderer))
	r.Get("/", listContractsHandler(store))

	r.Route("/{contractID}", func(r chi.Router) {
		r.Get("/", getContractHandler(store))
		r.Delete("/", deleteContractHandler(store))
		r.Get("/text", getContractTextHandler(store, renderer))
		r.Get("/status", getStatusHandler(store))
		r.Get("/verify", verifyContractHandler(store))
		r.Post("/confirm", confirmContractHandler(store))
		r.Post("/transition", transitionContractHandler(store))
	})

	return r
}
