package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelven/recommendation-service/internal/domain/recommendation"
)

// fakeStore is an in-memory Store with real transaction semantics: row
// mutations are staged per transaction and only reach the backing map on a
// successful commit.
type fakeStore struct {
	recs      map[int64]recommendation.Recommendation
	listErr   error
	findErr   error
	updateErr error
	commitErr error
}

func newFakeStore(recs ...recommendation.Recommendation) *fakeStore {
	s := &fakeStore{recs: make(map[int64]recommendation.Recommendation, len(recs))}
	for _, rec := range recs {
		s.recs[rec.ID] = rec
	}
	return s
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	staged := make(map[int64]recommendation.Recommendation, len(s.recs))
	for id, rec := range s.recs {
		staged[id] = rec
	}

	if err := fn(&fakeTx{store: s, staged: staged}); err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	s.recs = staged
	return nil
}

type fakeTx struct {
	store  *fakeStore
	staged map[int64]recommendation.Recommendation
}

func (t *fakeTx) ListByType(_ context.Context, typ recommendation.Type) ([]recommendation.Recommendation, error) {
	if t.store.listErr != nil {
		return nil, t.store.listErr
	}
	var out []recommendation.Recommendation
	for _, rec := range t.staged {
		if rec.Type == typ {
			out = append(out, rec)
		}
	}
	// Stable iteration order, matching the repository's ORDER BY.
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID < out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (t *fakeTx) Find(_ context.Context, id int64) (*recommendation.Recommendation, error) {
	if t.store.findErr != nil {
		return nil, t.store.findErr
	}
	rec, ok := t.staged[id]
	if !ok {
		return nil, recommendation.ErrNotFound
	}
	return &rec, nil
}

func (t *fakeTx) UpdatePrices(_ context.Context, rec *recommendation.Recommendation) error {
	if t.store.updateErr != nil {
		return t.store.updateErr
	}
	t.staged[rec.ID] = *rec
	return nil
}

// --- Helpers ---

func price(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func noPrice() decimal.NullDecimal {
	return decimal.NullDecimal{}
}

func accessory(id int64, base, recommended decimal.NullDecimal) recommendation.Recommendation {
	return testRec(id, recommendation.TypeAccessory, base, recommended)
}

func testRec(id int64, typ recommendation.Type, base, recommended decimal.NullDecimal) recommendation.Recommendation {
	return recommendation.Recommendation{
		ID:                      id,
		BaseProductID:           id * 10,
		RecommendedProductID:    id*10 + 1,
		Type:                    typ,
		Status:                  recommendation.StatusActive,
		ConfidenceScore:         d("0.90"),
		BaseProductPrice:        base,
		RecommendedProductPrice: recommended,
		UpdatedDate:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestEngine(store Store, now time.Time) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return now }
	return e
}

func strptr(s string) *string { return &s }

// --- ApplyFlatDiscount ---

func TestApplyFlatDiscount(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("discounts every accessory with a price", func(t *testing.T) {
		store := newFakeStore(
			accessory(1, price("100.00"), price("50.00")),
			accessory(2, price("20.00"), price("10.00")),
		)
		engine := newTestEngine(store, now)

		ids, err := engine.ApplyFlatDiscount(context.Background(), "10")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)

		first := store.recs[1]
		assert.True(t, d("90.00").Equal(first.BaseProductPrice.Decimal))
		assert.True(t, d("45.00").Equal(first.RecommendedProductPrice.Decimal))
		assert.Equal(t, now, first.UpdatedDate)

		second := store.recs[2]
		assert.True(t, d("18.00").Equal(second.BaseProductPrice.Decimal))
		assert.True(t, d("9.00").Equal(second.RecommendedProductPrice.Decimal))
		assert.Equal(t, now, second.UpdatedDate)
	})

	t.Run("zero percent is rejected before touching the store", func(t *testing.T) {
		store := newFakeStore(accessory(1, price("100.00"), price("50.00")))
		engine := newTestEngine(store, now)

		_, err := engine.ApplyFlatDiscount(context.Background(), "0")

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Discount must be between 0 and 100", ve.Msg)
		assert.True(t, d("100.00").Equal(store.recs[1].BaseProductPrice.Decimal), "no record may change")
	})

	t.Run("no accessories returns NotFoundError", func(t *testing.T) {
		store := newFakeStore(testRec(1, recommendation.TypeCrossSell, price("100.00"), price("50.00")))
		engine := newTestEngine(store, now)

		_, err := engine.ApplyFlatDiscount(context.Background(), "10")

		var ne *NotFoundError
		require.ErrorAs(t, err, &ne)
		assert.Contains(t, ne.Msg, "no matching accessory recommendations")
	})

	t.Run("accessories with only null prices return NotFoundError", func(t *testing.T) {
		store := newFakeStore(
			accessory(1, noPrice(), noPrice()),
			accessory(2, noPrice(), noPrice()),
		)
		engine := newTestEngine(store, now)

		_, err := engine.ApplyFlatDiscount(context.Background(), "10")

		var ne *NotFoundError
		require.ErrorAs(t, err, &ne)
	})

	t.Run("null price field is skipped, the other is discounted", func(t *testing.T) {
		store := newFakeStore(accessory(1, price("100.00"), noPrice()))
		engine := newTestEngine(store, now)

		ids, err := engine.ApplyFlatDiscount(context.Background(), "25")
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids)

		rec := store.recs[1]
		assert.True(t, d("75.00").Equal(rec.BaseProductPrice.Decimal))
		assert.False(t, rec.RecommendedProductPrice.Valid, "null price must stay null")
	})

	t.Run("commit failure rolls back and surfaces as ValidationError", func(t *testing.T) {
		store := newFakeStore(
			accessory(1, price("100.00"), price("50.00")),
			accessory(2, price("20.00"), price("10.00")),
		)
		store.commitErr = errors.New("connection reset")
		engine := newTestEngine(store, now)

		_, err := engine.ApplyFlatDiscount(context.Background(), "10")

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.ErrorContains(t, err, "connection reset")

		// All-or-nothing: nothing may have been committed.
		assert.True(t, d("100.00").Equal(store.recs[1].BaseProductPrice.Decimal))
		assert.True(t, d("20.00").Equal(store.recs[2].BaseProductPrice.Decimal))
	})

	t.Run("row update failure rolls back the whole batch", func(t *testing.T) {
		store := newFakeStore(accessory(1, price("100.00"), price("50.00")))
		store.updateErr = errors.New("numeric overflow")
		engine := newTestEngine(store, now)

		_, err := engine.ApplyFlatDiscount(context.Background(), "10")

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.True(t, d("100.00").Equal(store.recs[1].BaseProductPrice.Decimal))
	})
}

// --- ApplyCustomDiscounts ---

func TestApplyCustomDiscounts(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("per-record per-field percentages", func(t *testing.T) {
		store := newFakeStore(
			accessory(1, price("200.00"), price("20.00")),
			accessory(2, price("100.00"), price("10.00")),
		)
		engine := newTestEngine(store, now)

		ids, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"1": {BaseProductPrice: strptr("10"), RecommendedProductPrice: strptr("20")},
			"2": {BaseProductPrice: strptr("15")},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)

		first := store.recs[1]
		assert.True(t, d("180.00").Equal(first.BaseProductPrice.Decimal))
		assert.True(t, d("16.00").Equal(first.RecommendedProductPrice.Decimal))
		assert.Equal(t, now, first.UpdatedDate)

		second := store.recs[2]
		assert.True(t, d("85.00").Equal(second.BaseProductPrice.Decimal))
		assert.True(t, d("10.00").Equal(second.RecommendedProductPrice.Decimal), "unsupplied field stays untouched")
		assert.Equal(t, now, second.UpdatedDate)
	})

	t.Run("unknown ids are skipped silently", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(store, now)

		ids, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"41": {BaseProductPrice: strptr("10")},
			"42": {RecommendedProductPrice: strptr("20")},
		})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("targeted null price produces no update", func(t *testing.T) {
		store := newFakeStore(accessory(1, noPrice(), price("20.00")))
		engine := newTestEngine(store, now)
		before := store.recs[1].UpdatedDate

		ids, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"1": {BaseProductPrice: strptr("10")},
		})
		require.NoError(t, err)
		assert.Empty(t, ids)

		rec := store.recs[1]
		assert.False(t, rec.BaseProductPrice.Valid)
		assert.True(t, d("20.00").Equal(rec.RecommendedProductPrice.Decimal))
		assert.Equal(t, before, rec.UpdatedDate, "updated_date changes only when a price changed")
	})

	t.Run("non-numeric key aborts the whole batch", func(t *testing.T) {
		store := newFakeStore(accessory(1, price("100.00"), price("50.00")))
		engine := newTestEngine(store, now)

		_, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"1":   {BaseProductPrice: strptr("10")},
			"abc": {BaseProductPrice: strptr("10")},
		})

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Msg, "keys must be numeric recommendation ids")
		assert.True(t, d("100.00").Equal(store.recs[1].BaseProductPrice.Decimal), "no entry may be applied")
	})

	t.Run("entry without discount fields aborts the batch", func(t *testing.T) {
		store := newFakeStore(accessory(1, price("100.00"), price("50.00")))
		engine := newTestEngine(store, now)

		_, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"1": {},
		})

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Msg, "base_product_price or recommended_product_price")
	})

	t.Run("out-of-range percentage in one entry aborts the batch", func(t *testing.T) {
		store := newFakeStore(
			accessory(1, price("100.00"), price("50.00")),
			accessory(2, price("20.00"), price("10.00")),
		)
		engine := newTestEngine(store, now)

		_, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"1": {BaseProductPrice: strptr("10")},
			"2": {BaseProductPrice: strptr("100")},
		})

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.True(t, d("100.00").Equal(store.recs[1].BaseProductPrice.Decimal))
		assert.True(t, d("20.00").Equal(store.recs[2].BaseProductPrice.Decimal))
	})

	t.Run("empty mapping is rejected", func(t *testing.T) {
		engine := newTestEngine(newFakeStore(), now)

		_, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{})

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("commit failure rolls back and surfaces as ValidationError", func(t *testing.T) {
		store := newFakeStore(accessory(1, price("100.00"), price("50.00")))
		store.commitErr = errors.New("deadlock detected")
		engine := newTestEngine(store, now)

		_, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"1": {BaseProductPrice: strptr("10")},
		})

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.True(t, d("100.00").Equal(store.recs[1].BaseProductPrice.Decimal))
	})

	t.Run("custom mode ignores record type", func(t *testing.T) {
		store := newFakeStore(testRec(7, recommendation.TypeUpSell, price("40.00"), noPrice()))
		engine := newTestEngine(store, now)

		ids, err := engine.ApplyCustomDiscounts(context.Background(), CustomMapping{
			"7": {BaseProductPrice: strptr("50")},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{7}, ids)
		assert.True(t, d("20.00").Equal(store.recs[7].BaseProductPrice.Decimal))
	})
}
