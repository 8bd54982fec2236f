//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestRecommendationLifecycle(t *testing.T) {
	created := createRecommendation(t, "cross-sell", fptr(19.99), nil)
	path := fmt.Sprintf("/recommendations/%d", created.RecommendationID)

	// Read it back.
	resp := doGet(t, path)
	got := decodeJSON[recommendationResponse](t, resp)
	resp.Body.Close()

	if got.RecommendationType != "cross-sell" {
		t.Errorf("type: got %q, want cross-sell", got.RecommendationType)
	}
	if got.Status != "active" {
		t.Errorf("status: got %q, want active (default)", got.Status)
	}
	if got.BaseProductPrice == nil || *got.BaseProductPrice != 19.99 {
		t.Errorf("base price: got %v, want 19.99", got.BaseProductPrice)
	}
	if got.RecommendedProductPrice != nil {
		t.Errorf("recommended price: got %v, want null", *got.RecommendedProductPrice)
	}

	// Update editable fields.
	resp = doJSON(t, http.MethodPut, path, map[string]any{
		"status":           "inactive",
		"confidence_score": 0.25,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	updated := decodeJSON[recommendationResponse](t, resp)
	resp.Body.Close()

	if updated.Status != "inactive" {
		t.Errorf("status after update: got %q, want inactive", updated.Status)
	}
	if updated.ConfidenceScore != 0.25 {
		t.Errorf("confidence after update: got %v, want 0.25", updated.ConfidenceScore)
	}

	// Delete, then verify it is gone.
	resp = doDelete(t, path)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	resp = doGet(t, path)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	want := fmt.Sprintf("Recommendation with id '%d' was not found", created.RecommendationID)
	if errResp.Message != want {
		t.Errorf("message: got %q, want %q", errResp.Message, want)
	}

	// Deleting again is still a 204.
	resp = doDelete(t, path)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repeat delete: expected 204, got %d", resp.StatusCode)
	}
}

func TestCreateRecommendation_SetsLocation(t *testing.T) {
	resp := doJSON(t, http.MethodPost, "/recommendations", map[string]any{
		"base_product_id":        11,
		"recommended_product_id": 22,
		"recommendation_type":    "up-sell",
		"confidence_score":       0.5,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[recommendationResponse](t, resp)

	want := fmt.Sprintf("/recommendations/%d", created.RecommendationID)
	if got := resp.Header.Get("Location"); got != want {
		t.Errorf("Location: got %q, want %q", got, want)
	}
}

func TestCreateRecommendation_Validation(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"MissingProductIDs", map[string]any{
			"recommendation_type": "accessory",
			"confidence_score":    0.5,
		}},
		{"UnknownType", map[string]any{
			"base_product_id":        1,
			"recommended_product_id": 2,
			"recommendation_type":    "bundle",
			"confidence_score":       0.5,
		}},
		{"ConfidenceOutOfRange", map[string]any{
			"base_product_id":        1,
			"recommended_product_id": 2,
			"recommendation_type":    "accessory",
			"confidence_score":       1.5,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, "/recommendations", tc.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateRecommendation_RequiresJSON(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/recommendations", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}

func TestListRecommendations_Filtered(t *testing.T) {
	created := createRecommendation(t, "up-sell", fptr(10), nil)

	path := fmt.Sprintf("/recommendations?base_product_id=%d&recommendation_type=up-sell", created.BaseProductID)
	resp := doGet(t, path)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	recs := decodeJSON[[]recommendationResponse](t, resp)
	found := false
	for _, rec := range recs {
		if rec.RecommendationID == created.RecommendationID {
			found = true
		}
		if rec.RecommendationType != "up-sell" {
			t.Errorf("filter leaked type %q", rec.RecommendationType)
		}
	}
	if !found {
		t.Errorf("created recommendation %d missing from filtered list", created.RecommendationID)
	}
}

func TestListRecommendations_NoMatchIs404(t *testing.T) {
	resp := doGet(t, "/recommendations?base_product_id=987654321")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Message != "Recommendation not found" {
		t.Errorf("message: got %q", errResp.Message)
	}
}

func TestUpdateRecommendation_EmptyBody(t *testing.T) {
	created := createRecommendation(t, "cross-sell", nil, nil)

	resp := doJSON(t, http.MethodPut, fmt.Sprintf("/recommendations/%d", created.RecommendationID), map[string]any{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
