package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adelven/recommendation-service/internal/domain/discount"
	"github.com/adelven/recommendation-service/internal/domain/recommendation"
)

// DefaultListLimit bounds unfiltered list queries, matching the API default.
const DefaultListLimit = 10

const recommendationColumns = `recommendation_id, base_product_id, recommended_product_id,
		recommendation_type, status, confidence_score,
		base_product_price, recommended_product_price,
		base_product_description, recommended_product_description,
		created_date, updated_date`

const (
	createRecommendationSQL = `INSERT INTO recommendations (
			base_product_id, recommended_product_id, recommendation_type, status,
			confidence_score, base_product_price, recommended_product_price,
			base_product_description, recommended_product_description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING recommendation_id, created_date, updated_date`

	getRecommendationSQL = `SELECT ` + recommendationColumns + `
		FROM recommendations WHERE recommendation_id = $1`

	updateRecommendationSQL = `UPDATE recommendations
		SET recommendation_type = $2, status = $3, confidence_score = $4, updated_date = $5
		WHERE recommendation_id = $1`

	deleteRecommendationSQL = `DELETE FROM recommendations WHERE recommendation_id = $1`

	listByTypeForUpdateSQL = `SELECT ` + recommendationColumns + `
		FROM recommendations WHERE recommendation_type = $1
		ORDER BY recommendation_id FOR UPDATE`

	getForUpdateSQL = `SELECT ` + recommendationColumns + `
		FROM recommendations WHERE recommendation_id = $1 FOR UPDATE`

	updatePricesSQL = `UPDATE recommendations
		SET base_product_price = $2, recommended_product_price = $3, updated_date = $4
		WHERE recommendation_id = $1`
)

// Compile-time checks against both consumer interfaces.
var (
	_ recommendation.Repository = (*RecommendationRepository)(nil)
	_ discount.Store            = (*RecommendationRepository)(nil)
)

// RecommendationRepository implements recommendation.Repository and
// discount.Store backed by PostgreSQL.
type RecommendationRepository struct {
	pool *pgxpool.Pool
}

// NewRecommendationRepository returns a repository that uses the given pool.
func NewRecommendationRepository(pool *pgxpool.Pool) *RecommendationRepository {
	return &RecommendationRepository{pool: pool}
}

// Create inserts a new recommendation and fills in the store-assigned id and
// timestamps.
func (r *RecommendationRepository) Create(ctx context.Context, rec *recommendation.Recommendation) error {
	row := r.pool.QueryRow(ctx, createRecommendationSQL,
		rec.BaseProductID, rec.RecommendedProductID, rec.Type, rec.Status,
		rec.ConfidenceScore, rec.BaseProductPrice, rec.RecommendedProductPrice,
		rec.BaseProductDescription, rec.RecommendedProductDescription,
	)
	if err := row.Scan(&rec.ID, &rec.CreatedDate, &rec.UpdatedDate); err != nil {
		return fmt.Errorf("creating recommendation: %w", err)
	}
	return nil
}

// Get returns a single recommendation by its identifier.
func (r *RecommendationRepository) Get(ctx context.Context, id int64) (*recommendation.Recommendation, error) {
	rows, err := r.pool.Query(ctx, getRecommendationSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting recommendation %d: %w", id, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanRecommendation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recommendation.ErrNotFound
		}
		return nil, fmt.Errorf("getting recommendation %d: %w", id, err)
	}
	return &rec, nil
}

// List returns recommendations matching every provided filter, ordered by id.
func (r *RecommendationRepository) List(ctx context.Context, filter recommendation.ListFilter) ([]recommendation.Recommendation, error) {
	query, args := buildListQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	return pgx.CollectRows(rows, scanRecommendation)
}

// buildListQuery ANDs together the provided filters and appends the limit.
func buildListQuery(filter recommendation.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.BaseProductID != nil {
		args = append(args, *filter.BaseProductID)
		conds = append(conds, fmt.Sprintf("base_product_id = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conds = append(conds, fmt.Sprintf("recommendation_type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.MinConfidence != nil {
		args = append(args, *filter.MinConfidence)
		conds = append(conds, fmt.Sprintf("confidence_score >= $%d", len(args)))
	}

	query := `SELECT ` + recommendationColumns + ` FROM recommendations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY recommendation_id LIMIT $%d", len(args))

	return query, args
}

// Update persists the editable fields of an existing recommendation.
func (r *RecommendationRepository) Update(ctx context.Context, rec *recommendation.Recommendation) error {
	tag, err := r.pool.Exec(ctx, updateRecommendationSQL,
		rec.ID, rec.Type, rec.Status, rec.ConfidenceScore, rec.UpdatedDate,
	)
	if err != nil {
		return fmt.Errorf("updating recommendation %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return recommendation.ErrNotFound
	}
	return nil
}

// Delete removes a recommendation. Deleting a missing id is not an error.
func (r *RecommendationRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, deleteRecommendationSQL, id); err != nil {
		return fmt.Errorf("deleting recommendation %d: %w", id, err)
	}
	return nil
}

// InTx runs fn inside a single database transaction, committing when fn
// returns nil and rolling back otherwise. This is the transactional boundary
// the discount engine relies on for its all-or-nothing bulk updates.
func (r *RecommendationRepository) InTx(ctx context.Context, fn func(tx discount.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(ptx pgx.Tx) error {
		return fn(&recommendationTx{tx: ptx})
	})
}

// recommendationTx exposes the engine's Tx operations on a live pgx
// transaction. Reads take row locks so two overlapping bulk discounts
// serialize at the storage layer.
type recommendationTx struct {
	tx pgx.Tx
}

var _ discount.Tx = (*recommendationTx)(nil)

func (t *recommendationTx) ListByType(ctx context.Context, typ recommendation.Type) ([]recommendation.Recommendation, error) {
	rows, err := t.tx.Query(ctx, listByTypeForUpdateSQL, typ)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations by type %q: %w", typ, err)
	}
	return pgx.CollectRows(rows, scanRecommendation)
}

func (t *recommendationTx) Find(ctx context.Context, id int64) (*recommendation.Recommendation, error) {
	rows, err := t.tx.Query(ctx, getForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding recommendation %d: %w", id, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanRecommendation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recommendation.ErrNotFound
		}
		return nil, fmt.Errorf("finding recommendation %d: %w", id, err)
	}
	return &rec, nil
}

func (t *recommendationTx) UpdatePrices(ctx context.Context, rec *recommendation.Recommendation) error {
	_, err := t.tx.Exec(ctx, updatePricesSQL,
		rec.ID, rec.BaseProductPrice, rec.RecommendedProductPrice, rec.UpdatedDate,
	)
	if err != nil {
		return fmt.Errorf("updating prices for recommendation %d: %w", rec.ID, err)
	}
	return nil
}

func scanRecommendation(row pgx.CollectableRow) (recommendation.Recommendation, error) {
	var rec recommendation.Recommendation
	err := row.Scan(
		&rec.ID, &rec.BaseProductID, &rec.RecommendedProductID,
		&rec.Type, &rec.Status, &rec.ConfidenceScore,
		&rec.BaseProductPrice, &rec.RecommendedProductPrice,
		&rec.BaseProductDescription, &rec.RecommendedProductDescription,
		&rec.CreatedDate, &rec.UpdatedDate,
	)
	return rec, err
}
