package discount

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/adelven/recommendation-service/internal/domain/recommendation"
)

// Store opens the single storage transaction each bulk operation runs in.
// The callback's error decides the outcome: nil commits, anything else
// rolls every row mutation back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the narrow slice of storage the engine needs inside a transaction.
type Tx interface {
	ListByType(ctx context.Context, t recommendation.Type) ([]recommendation.Recommendation, error)
	Find(ctx context.Context, id int64) (*recommendation.Recommendation, error)
	UpdatePrices(ctx context.Context, rec *recommendation.Recommendation) error
}

// FieldPercents holds the optional per-field raw percentages for one record
// in a custom discount mapping. A nil field leaves that price alone.
type FieldPercents struct {
	BaseProductPrice        *string
	RecommendedProductPrice *string
}

// CustomMapping associates raw recommendation-id tokens with per-field
// percentages, as supplied by the client.
type CustomMapping map[string]FieldPercents

// Engine applies bulk price discounts to recommendation records. It is
// stateless; every invocation runs in exactly one storage transaction.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an Engine backed by the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// ApplyFlatDiscount discounts every non-null price of every accessory-typed
// recommendation by the given raw percentage. It returns the ids of the
// records that actually changed, in storage iteration order.
//
// A NotFoundError is returned when no accessory records exist or none had a
// price to discount. Storage failures surface as ValidationError per the
// service's error contract.
func (e *Engine) ApplyFlatDiscount(ctx context.Context, rawPercent string) ([]int64, error) {
	pct, err := ValidatePercentage(rawPercent)
	if err != nil {
		return nil, err
	}

	var updated []int64
	err = e.store.InTx(ctx, func(tx Tx) error {
		recs, err := tx.ListByType(ctx, recommendation.TypeAccessory)
		if err != nil {
			return errors.Wrap(err, "list accessory recommendations")
		}
		if len(recs) == 0 {
			return &NotFoundError{Msg: "no matching accessory recommendations found"}
		}

		now := e.now()
		for i := range recs {
			rec := &recs[i]
			if !discountPrices(rec, &pct, &pct) {
				continue
			}
			rec.UpdatedDate = now
			if err := tx.UpdatePrices(ctx, rec); err != nil {
				return errors.Wrapf(err, "update recommendation %d", rec.ID)
			}
			updated = append(updated, rec.ID)
		}

		// Every accessory had both prices null: nothing to discount.
		if len(updated) == 0 {
			return &NotFoundError{Msg: "no matching accessory recommendations found"}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

// ApplyCustomDiscounts applies per-record, per-field percentages from the
// mapping in one transaction. The whole mapping is validated before any row
// is touched: a single malformed key or percentage aborts the entire batch.
// Ids that reference no record are tolerated and silently skipped, as is a
// supplied percentage whose stored price is null.
//
// The returned ids are in ascending numeric order and may be empty when
// every id was unknown or every targeted price was null.
func (e *Engine) ApplyCustomDiscounts(ctx context.Context, mapping CustomMapping) ([]int64, error) {
	entries, err := validateMapping(mapping)
	if err != nil {
		return nil, err
	}

	updated := make([]int64, 0, len(entries))
	err = e.store.InTx(ctx, func(tx Tx) error {
		now := e.now()
		for _, entry := range entries {
			rec, err := tx.Find(ctx, entry.id)
			if err != nil {
				if errors.Is(err, recommendation.ErrNotFound) {
					// Stale client references are tolerated per entry;
					// only malformed input aborts the batch.
					continue
				}
				return errors.Wrapf(err, "find recommendation %d", entry.id)
			}
			if !discountPrices(rec, entry.base, entry.recommended) {
				continue
			}
			rec.UpdatedDate = now
			if err := tx.UpdatePrices(ctx, rec); err != nil {
				return errors.Wrapf(err, "update recommendation %d", rec.ID)
			}
			updated = append(updated, rec.ID)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

type customEntry struct {
	id          int64
	base        *decimal.Decimal
	recommended *decimal.Decimal
}

// validateMapping checks the whole mapping before any row is touched and
// returns the entries ordered by ascending id.
func validateMapping(mapping CustomMapping) ([]customEntry, error) {
	if len(mapping) == 0 {
		return nil, &ValidationError{Msg: "discount mapping must be a non-empty object"}
	}

	entries := make([]customEntry, 0, len(mapping))
	for key, fields := range mapping {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("keys must be numeric recommendation ids, got %q", key)}
		}
		if fields.BaseProductPrice == nil && fields.RecommendedProductPrice == nil {
			return nil, &ValidationError{Msg: fmt.Sprintf(
				"entry %d must set base_product_price or recommended_product_price", id)}
		}

		entry := customEntry{id: id}
		if fields.BaseProductPrice != nil {
			pct, err := ValidatePercentage(*fields.BaseProductPrice)
			if err != nil {
				return nil, err
			}
			entry.base = &pct
		}
		if fields.RecommendedProductPrice != nil {
			pct, err := ValidatePercentage(*fields.RecommendedProductPrice)
			if err != nil {
				return nil, err
			}
			entry.recommended = &pct
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return entries, nil
}

// discountPrices recomputes whichever price fields are both requested and
// present on the record. Null prices stay null. It reports whether at least
// one field changed.
func discountPrices(rec *recommendation.Recommendation, base, recommended *decimal.Decimal) bool {
	changed := false
	if base != nil && rec.BaseProductPrice.Valid {
		rec.BaseProductPrice.Decimal = ApplyPercentDiscount(rec.BaseProductPrice.Decimal, *base)
		changed = true
	}
	if recommended != nil && rec.RecommendedProductPrice.Valid {
		rec.RecommendedProductPrice.Decimal = ApplyPercentDiscount(rec.RecommendedProductPrice.Decimal, *recommended)
		changed = true
	}
	return changed
}

// classify keeps engine error kinds intact and folds everything else
// (storage and commit failures included) into ValidationError.
func classify(err error) error {
	var (
		ve *ValidationError
		ne *NotFoundError
	)
	if errors.As(err, &ve) || errors.As(err, &ne) {
		return err
	}
	return &ValidationError{Msg: "applying discount", Err: err}
}
