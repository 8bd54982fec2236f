package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adelven/recommendation-service/internal/domain/recommendation"
)

type recommendationResponse struct {
	RecommendationID              int64    `json:"recommendation_id"`
	BaseProductID                 int64    `json:"base_product_id"`
	RecommendedProductID          int64    `json:"recommended_product_id"`
	RecommendationType            string   `json:"recommendation_type"`
	Status                        string   `json:"status"`
	ConfidenceScore               float64  `json:"confidence_score"`
	BaseProductPrice              *float64 `json:"base_product_price"`
	RecommendedProductPrice       *float64 `json:"recommended_product_price"`
	BaseProductDescription        string   `json:"base_product_description"`
	RecommendedProductDescription string   `json:"recommended_product_description"`
	CreatedDate                   string   `json:"created_date"`
	UpdatedDate                   string   `json:"updated_date"`
}

func toResponse(rec *recommendation.Recommendation) recommendationResponse {
	return recommendationResponse{
		RecommendationID:              rec.ID,
		BaseProductID:                 rec.BaseProductID,
		RecommendedProductID:          rec.RecommendedProductID,
		RecommendationType:            string(rec.Type),
		Status:                        string(rec.Status),
		ConfidenceScore:               rec.ConfidenceScore.InexactFloat64(),
		BaseProductPrice:              nullPriceToFloat(rec.BaseProductPrice),
		RecommendedProductPrice:       nullPriceToFloat(rec.RecommendedProductPrice),
		BaseProductDescription:        rec.BaseProductDescription,
		RecommendedProductDescription: rec.RecommendedProductDescription,
		CreatedDate:                   rec.CreatedDate.Format(time.RFC3339),
		UpdatedDate:                   rec.UpdatedDate.Format(time.RFC3339),
	}
}

func nullPriceToFloat(p decimal.NullDecimal) *float64 {
	if !p.Valid {
		return nil
	}
	f := p.Decimal.InexactFloat64()
	return &f
}

type createRecommendationRequest struct {
	BaseProductID                 *int64           `json:"base_product_id"`
	RecommendedProductID          *int64           `json:"recommended_product_id"`
	RecommendationType            string           `json:"recommendation_type"`
	Status                        string           `json:"status"`
	ConfidenceScore               *decimal.Decimal `json:"confidence_score"`
	BaseProductPrice              *decimal.Decimal `json:"base_product_price"`
	RecommendedProductPrice       *decimal.Decimal `json:"recommended_product_price"`
	BaseProductDescription        string           `json:"base_product_description"`
	RecommendedProductDescription string           `json:"recommended_product_description"`
}

// CreateRecommendation handles POST /recommendations.
func (h *Handler) CreateRecommendation(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}

	var req createRecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	rec, err := req.toDomain()
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.recs.Create(r.Context(), rec); err != nil {
		zctx.From(r.Context()).Error("Create recommendation", zap.Error(err))
		respondError(w, r, http.StatusBadRequest, "could not create recommendation")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/recommendations/%d", rec.ID))
	respondJSON(w, r, http.StatusCreated, toResponse(rec))
}

func (req *createRecommendationRequest) toDomain() (*recommendation.Recommendation, error) {
	if req.BaseProductID == nil || req.RecommendedProductID == nil {
		return nil, errors.New("base_product_id and recommended_product_id are required")
	}
	if req.ConfidenceScore == nil {
		return nil, errors.New("confidence_score is required")
	}
	if err := recommendation.ValidateConfidence(*req.ConfidenceScore); err != nil {
		return nil, err
	}

	typ, err := recommendation.ParseType(req.RecommendationType)
	if err != nil {
		return nil, err
	}

	status := recommendation.StatusActive
	if req.Status != "" {
		if status, err = recommendation.ParseStatus(req.Status); err != nil {
			return nil, err
		}
	}

	return &recommendation.Recommendation{
		BaseProductID:                 *req.BaseProductID,
		RecommendedProductID:          *req.RecommendedProductID,
		Type:                          typ,
		Status:                        status,
		ConfidenceScore:               *req.ConfidenceScore,
		BaseProductPrice:              optionalPrice(req.BaseProductPrice),
		RecommendedProductPrice:       optionalPrice(req.RecommendedProductPrice),
		BaseProductDescription:        req.BaseProductDescription,
		RecommendedProductDescription: req.RecommendedProductDescription,
	}, nil
}

func optionalPrice(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}

// GetRecommendation handles GET /recommendations/{id}.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := recommendationID(w, r)
	if !ok {
		return
	}

	rec, err := h.recs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recommendation.ErrNotFound) {
			respondError(w, r, http.StatusNotFound,
				fmt.Sprintf("Recommendation with id '%d' was not found", id))
			return
		}
		zctx.From(r.Context()).Error("Get recommendation", zap.Int64("id", id), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "could not read recommendation")
		return
	}

	respondJSON(w, r, http.StatusOK, toResponse(rec))
}

// ListRecommendations handles GET /recommendations with optional AND-combined
// filters and a result limit (quantity, default 10).
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilterFromQuery(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.recs.List(r.Context(), filter)
	if err != nil {
		zctx.From(r.Context()).Error("List recommendations", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "could not list recommendations")
		return
	}

	if len(recs) == 0 {
		respondError(w, r, http.StatusNotFound, "Recommendation not found")
		return
	}

	out := make([]recommendationResponse, len(recs))
	for i := range recs {
		out[i] = toResponse(&recs[i])
	}
	respondJSON(w, r, http.StatusOK, out)
}

func listFilterFromQuery(r *http.Request) (recommendation.ListFilter, error) {
	var filter recommendation.ListFilter
	q := r.URL.Query()

	if v := q.Get("base_product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.Errorf("base_product_id must be an integer, got %q", v)
		}
		filter.BaseProductID = &id
	}
	if v := q.Get("recommendation_type"); v != "" {
		typ, err := recommendation.ParseType(v)
		if err != nil {
			return filter, err
		}
		filter.Type = &typ
	}
	if v := q.Get("status"); v != "" {
		status, err := recommendation.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if v := q.Get("confidence_score"); v != "" {
		minScore, err := decimal.NewFromString(v)
		if err != nil {
			return filter, errors.Errorf("confidence_score must be numeric, got %q", v)
		}
		filter.MinConfidence = &minScore
	}
	if v := q.Get("quantity"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, errors.Errorf("quantity must be a positive integer, got %q", v)
		}
		filter.Limit = limit
	}

	return filter, nil
}

type updateRecommendationRequest struct {
	RecommendationType *string          `json:"recommendation_type"`
	Status             *string          `json:"status"`
	ConfidenceScore    *decimal.Decimal `json:"confidence_score"`
}

// UpdateRecommendation handles PUT /recommendations/{id}. Only the
// recommendation type, status, and confidence score are editable.
func (h *Handler) UpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := recommendationID(w, r)
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req updateRecommendationRequest
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON in request body")
		return
	}
	if req.RecommendationType == nil && req.Status == nil && req.ConfidenceScore == nil {
		respondError(w, r, http.StatusBadRequest, "update must include at least one editable field")
		return
	}

	rec, err := h.recs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recommendation.ErrNotFound) {
			respondError(w, r, http.StatusNotFound,
				fmt.Sprintf("Recommendation with id '%d' was not found", id))
			return
		}
		zctx.From(r.Context()).Error("Get recommendation", zap.Int64("id", id), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "could not read recommendation")
		return
	}

	if err := applyUpdate(rec, req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec.UpdatedDate = time.Now().UTC()
	if err := h.recs.Update(r.Context(), rec); err != nil {
		zctx.From(r.Context()).Error("Update recommendation", zap.Int64("id", id), zap.Error(err))
		respondError(w, r, http.StatusBadRequest, "could not update recommendation")
		return
	}

	respondJSON(w, r, http.StatusOK, toResponse(rec))
}

func applyUpdate(rec *recommendation.Recommendation, req updateRecommendationRequest) error {
	if req.RecommendationType != nil {
		typ, err := recommendation.ParseType(*req.RecommendationType)
		if err != nil {
			return err
		}
		rec.Type = typ
	}
	if req.Status != nil {
		status, err := recommendation.ParseStatus(*req.Status)
		if err != nil {
			return err
		}
		rec.Status = status
	}
	if req.ConfidenceScore != nil {
		if err := recommendation.ValidateConfidence(*req.ConfidenceScore); err != nil {
			return err
		}
		rec.ConfidenceScore = *req.ConfidenceScore
	}
	return nil
}

// DeleteRecommendation handles DELETE /recommendations/{id}. Deletes are
// idempotent: a missing id still answers 204.
func (h *Handler) DeleteRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := recommendationID(w, r)
	if !ok {
		return
	}

	if err := h.recs.Delete(r.Context(), id); err != nil {
		zctx.From(r.Context()).Error("Delete recommendation", zap.Int64("id", id), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "could not delete recommendation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// recommendationID extracts the {id} route parameter. Non-numeric ids answer
// 404 like any other missing resource.
func recommendationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, r, http.StatusNotFound,
			fmt.Sprintf("Recommendation with id '%s' was not found", raw))
		return 0, false
	}
	return id, true
}
