package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/adelven/recommendation-service/internal/domain/discount"
)

// percentValue accepts a percentage as either a JSON number or a JSON string.
type percentValue string

func (p *percentValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = percentValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = percentValue(n.String())
	return nil
}

// customDiscountEntry is one record's discount configuration in the custom
// mapping body. Both fields are optional, but at least one must be present.
type customDiscountEntry struct {
	BaseProductPrice        *percentValue `json:"base_product_price"`
	RecommendedProductPrice *percentValue `json:"recommended_product_price"`
}

type flatDiscountResponse struct {
	Message      string  `json:"message"`
	UpdatedCount int     `json:"updated_count"`
	UpdatedIDs   []int64 `json:"updated_ids"`
}

type customDiscountResponse struct {
	Message    string  `json:"message"`
	UpdatedIDs []int64 `json:"updated_ids"`
}

// ApplyDiscount handles PUT /recommendations/apply_discount.
//
// The presence of the discount query parameter always selects flat mode,
// whatever the body holds. Without it the JSON body is read as a custom
// id-to-percentages mapping. Neither present is a bad request.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("discount") {
		h.applyFlatDiscount(w, r, r.URL.Query().Get("discount"))
		return
	}
	h.applyCustomDiscounts(w, r)
}

func (h *Handler) applyFlatDiscount(w http.ResponseWriter, r *http.Request, rawPercent string) {
	ids, err := h.engine.ApplyFlatDiscount(r.Context(), rawPercent)
	if err != nil {
		h.respondDiscountError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, flatDiscountResponse{
		Message:      "Discount applied to accessory recommendations",
		UpdatedCount: len(ids),
		UpdatedIDs:   ids,
	})
}

func (h *Handler) applyCustomDiscounts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "could not read request body")
		return
	}
	if len(body) == 0 {
		respondError(w, r, http.StatusBadRequest,
			"provide a discount query parameter or a custom discount mapping body")
		return
	}

	var entries map[string]customDiscountEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		respondError(w, r, http.StatusBadRequest,
			"body must map recommendation ids to discount objects")
		return
	}

	mapping := make(discount.CustomMapping, len(entries))
	for key, entry := range entries {
		mapping[key] = discount.FieldPercents{
			BaseProductPrice:        (*string)(entry.BaseProductPrice),
			RecommendedProductPrice: (*string)(entry.RecommendedProductPrice),
		}
	}

	ids, err := h.engine.ApplyCustomDiscounts(r.Context(), mapping)
	if err != nil {
		h.respondDiscountError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, customDiscountResponse{
		Message:    "Custom discounts applied",
		UpdatedIDs: ids,
	})
}

// respondDiscountError maps engine error kinds onto status codes: validation
// failures (including wrapped storage errors) answer 400, not-found answers
// 404.
func (h *Handler) respondDiscountError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *discount.ValidationError
	if errors.As(err, &ve) {
		if ve.Err != nil {
			zctx.From(r.Context()).Error("Apply discount", zap.Error(err))
		}
		respondError(w, r, http.StatusBadRequest, ve.Msg)
		return
	}

	var ne *discount.NotFoundError
	if errors.As(err, &ne) {
		respondError(w, r, http.StatusNotFound, ne.Msg)
		return
	}

	zctx.From(r.Context()).Error("Apply discount", zap.Error(err))
	respondError(w, r, http.StatusInternalServerError, "could not apply discount")
}
