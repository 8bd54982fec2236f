package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/adelven/recommendation-service/internal/domain/discount"
	"github.com/adelven/recommendation-service/internal/domain/recommendation"
)

// Handler exposes the recommendation CRUD API and the discount subsystem
// over HTTP, delegating all business logic to the injected collaborators.
type Handler struct {
	recs   recommendation.Repository
	engine *discount.Engine
}

// New constructs a Handler with the required domain dependencies.
func New(recs recommendation.Repository, engine *discount.Engine) *Handler {
	return &Handler{recs: recs, engine: engine}
}

// Routes mounts every API route on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Index)
	r.Route("/recommendations", func(r chi.Router) {
		r.Post("/", h.CreateRecommendation)
		r.Get("/", h.ListRecommendations)
		r.Put("/apply_discount", h.ApplyDiscount)
		r.Get("/{id}", h.GetRecommendation)
		r.Put("/{id}", h.UpdateRecommendation)
		r.Delete("/{id}", h.DeleteRecommendation)
	})

	return r
}

// Index describes the service for clients hitting the root URL.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"message": "Welcome to the Recommendation Service",
		"paths": map[string]string{
			"list":           "GET /recommendations",
			"create":         "POST /recommendations",
			"read":           "GET /recommendations/{id}",
			"update":         "PUT /recommendations/{id}",
			"delete":         "DELETE /recommendations/{id}",
			"apply_discount": "PUT /recommendations/apply_discount",
		},
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("Encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"message": message})
}

// requireJSON enforces an application/json content type on mutating
// endpoints, answering 415 otherwise.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if mt, _, _ := strings.Cut(ct, ";"); strings.TrimSpace(mt) == "application/json" {
		return true
	}
	respondError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
	return false
}
