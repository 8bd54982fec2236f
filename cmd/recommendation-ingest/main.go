// Command recommendation-ingest bulk-loads recommendation feeds into the
// database. Feeds are gzip-compressed JSONL files, one candidate per line,
// as exported by upstream analytics jobs. Duplicate (base product,
// recommended product, type) tuples across all feeds are dropped via a
// bloom filter so re-running the ingest against overlapping exports does
// not multiply rows.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/adelven/recommendation-service/internal/domain/recommendation"
	"github.com/adelven/recommendation-service/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	writeBuffer   = 1024
)

// feedEntry is one line of an upstream feed file.
type feedEntry struct {
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
		feedDir     string
		databaseURL string
	)

	flag.StringVar(&feedDir, "feed-dir", "feeds", "directory containing *.jsonl.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, feedDir, databaseURL); err != nil {
		slog.Error("recommendation ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("recommendation ingest completed successfully")
}

func run(ctx context.Context, feedDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(feedDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", feedDir)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewRecommendationRepository(pool)
	dedup := newDeduper()

	slog.Info("ingesting feeds", slog.Int("files", len(files)))

	// Readers parse feed files concurrently; one writer owns the insert
	// path so progress accounting and row ordering stay simple.
	entries := make(chan *recommendation.Recommendation, writeBuffer)

	g, ctx := errgroup.WithContext(ctx)
	readers, readCtx := errgroup.WithContext(ctx)
	for _, f := range files {
		readers.Go(ingestFile(readCtx, f, dedup, entries))
	}
	g.Go(func() error {
		defer close(entries)
		return readers.Wait()
	})
	g.Go(writeEntries(ctx, repo, entries))

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Uint64("seen", dedup.seen.Load()),
		slog.Uint64("duplicates", dedup.dupes.Load()),
	)
	return nil
}

// deduper tracks (base, recommended, type) tuples across every feed file.
// bloom.BloomFilter is not safe for concurrent use, hence the mutex.
type deduper struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   atomic.Uint64
	dupes  atomic.Uint64
}

func newDeduper() *deduper {
	return &deduper{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}
}

// testAndAdd reports whether the tuple was already ingested. False
// positives drop a genuinely new tuple once in ~a thousand, an accepted
// trade against holding every tuple in memory.
func (d *deduper) testAndAdd(key string) bool {
	d.seen.Add(1)
	d.mu.Lock()
	dup := d.filter.TestAndAddString(key)
	d.mu.Unlock()
	if dup {
		d.dupes.Add(1)
	}
	return dup
}

func ingestFile(ctx context.Context, path string, dedup *deduper, out chan<- *recommendation.Recommendation) func() error {
	return func() error {
		var lines uint64
		err := streamGzFile(ctx, path, func(line []byte) error {
			lines++
			if lines%progressEvery == 0 {
				slog.Info("ingest progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("lines", lines),
				)
			}

			var entry feedEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return errors.Wrapf(err, "line %d", lines)
			}
			rec, err := entry.toDomain()
			if err != nil {
				return errors.Wrapf(err, "line %d", lines)
			}

			key := fmt.Sprintf("%d|%d|%s", rec.BaseProductID, rec.RecommendedProductID, rec.Type)
			if dedup.testAndAdd(key) {
				return nil
			}

			select {
			case out <- rec:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "ingest %s", path)
		}

		slog.Info("file complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("lines", lines),
		)
		return nil
	}
}

func (e *feedEntry) toDomain() (*recommendation.Recommendation, error) {
	typ, err := recommendation.ParseType(e.RecommendationType)
	if err != nil {
		return nil, err
	}
	status := recommendation.StatusActive
	if e.Status != "" {
		if status, err = recommendation.ParseStatus(e.Status); err != nil {
			return nil, err
		}
	}
	if err := recommendation.ValidateConfidence(e.ConfidenceScore); err != nil {
		return nil, err
	}

	rec := &recommendation.Recommendation{
		BaseProductID:                 e.BaseProductID,
		RecommendedProductID:          e.RecommendedProductID,
		Type:                          typ,
		Status:                        status,
		ConfidenceScore:               e.ConfidenceScore,
		BaseProductDescription:        e.BaseProductDescription,
		RecommendedProductDescription: e.RecommendedProductDescription,
	}
	if e.BaseProductPrice != nil {
		rec.BaseProductPrice = decimal.NullDecimal{Decimal: *e.BaseProductPrice, Valid: true}
	}
	if e.RecommendedProductPrice != nil {
		rec.RecommendedProductPrice = decimal.NullDecimal{Decimal: *e.RecommendedProductPrice, Valid: true}
	}
	return rec, nil
}

func writeEntries(ctx context.Context, repo *repository.RecommendationRepository, entries <-chan *recommendation.Recommendation) func() error {
	return func() error {
		var written uint64
		for rec := range entries {
			if err := repo.Create(ctx, rec); err != nil {
				return errors.Wrapf(err, "insert recommendation %d->%d",
					rec.BaseProductID, rec.RecommendedProductID)
			}
			written++
			if written%10_000 == 0 {
				slog.Info("write progress", slog.Uint64("written", written))
			}
		}
		slog.Info("write complete", slog.Uint64("written", written))
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
