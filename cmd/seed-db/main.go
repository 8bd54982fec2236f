// Command seed-db loads a JSON file of recommendation records into the
// database. Intended for development and demo environments; production
// bulk loads go through recommendation-ingest instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/adelven/recommendation-service/internal/domain/recommendation"
	"github.com/adelven/recommendation-service/internal/repository"
)

type recommendationJSON struct {
	BaseProductID                 int64            `json:"base_product_id"`
	RecommendedProductID          int64            `json:"recommended_product_id"`
	RecommendationType            string           `json:"recommendation_type"`
	Status                        string           `json:"status"`
	ConfidenceScore               decimal.Decimal  `json:"confidence_score"`
	BaseProductPrice              *decimal.Decimal `json:"base_product_price"`
	RecommendedProductPrice       *decimal.Decimal `json:"recommended_product_price"`
	BaseProductDescription        string           `json:"base_product_description"`
	RecommendedProductDescription string           `json:"recommended_product_description"`
}

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/recommendations.json", "path to recommendations JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var rows []recommendationJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewRecommendationRepository(pool)
	for i, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return errors.Wrapf(err, "seed row %d", i)
		}
		if err := repo.Create(ctx, rec); err != nil {
			return errors.Wrapf(err, "insert seed row %d", i)
		}
	}

	slog.Info("seeded recommendations", slog.Int("count", len(rows)))
	return nil
}

func (r *recommendationJSON) toDomain() (*recommendation.Recommendation, error) {
	typ, err := recommendation.ParseType(r.RecommendationType)
	if err != nil {
		return nil, err
	}
	status := recommendation.StatusActive
	if r.Status != "" {
		if status, err = recommendation.ParseStatus(r.Status); err != nil {
			return nil, err
		}
	}
	if err := recommendation.ValidateConfidence(r.ConfidenceScore); err != nil {
		return nil, err
	}

	rec := &recommendation.Recommendation{
		BaseProductID:                 r.BaseProductID,
		RecommendedProductID:          r.RecommendedProductID,
		Type:                          typ,
		Status:                        status,
		ConfidenceScore:               r.ConfidenceScore,
		BaseProductDescription:        r.BaseProductDescription,
		RecommendedProductDescription: r.RecommendedProductDescription,
	}
	if r.BaseProductPrice != nil {
		rec.BaseProductPrice = decimal.NullDecimal{Decimal: *r.BaseProductPrice, Valid: true}
	}
	if r.RecommendedProductPrice != nil {
		rec.RecommendedProductPrice = decimal.NullDecimal{Decimal: *r.RecommendedProductPrice, Valid: true}
	}
	return rec, nil
}
