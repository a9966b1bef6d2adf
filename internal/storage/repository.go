// Package storage loads gold layer records into the production Postgres
// database.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triptide/collector/internal/poi"
)

const defaultBatchSize = 50

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides idempotent write access for destinations and their
// activities.
type Repository struct {
	q         Querier
	batchSize int
	log       *slog.Logger
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) *Repository {
	return &Repository{q: pool, batchSize: defaultBatchSize, log: log}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier, log *slog.Logger) *Repository {
	return &Repository{q: q, batchSize: defaultBatchSize, log: log}
}

// UpsertDestination inserts or updates the destination row keyed by slug and
// returns its id.
func (r *Repository) UpsertDestination(ctx context.Context, d *poi.Destination) (int64, error) {
	const q = `
		INSERT INTO destinations (slug, name, country_code, lat, lng, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (slug) DO UPDATE
		SET name         = EXCLUDED.name,
		    country_code = EXCLUDED.country_code,
		    lat          = EXCLUDED.lat,
		    lng          = EXCLUDED.lng,
		    timezone     = EXCLUDED.timezone,
		    updated_at   = EXCLUDED.updated_at
		RETURNING id
	`

	var id int64
	err := r.q.QueryRow(ctx, q, d.Slug, d.Name, d.CountryCode, d.Center.Lat, d.Center.Lng, d.Timezone).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting destination %s: %w", d.Slug, err)
	}
	return id, nil
}

// UpsertDestinationDetails inserts or replaces the narrative payload for a
// destination.
func (r *Repository) UpsertDestinationDetails(ctx context.Context, destinationID int64, details poi.DestinationDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshaling details for destination %d: %w", destinationID, err)
	}

	const q = `
		INSERT INTO destination_details (destination_id, summary, details, is_fallback, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (destination_id) DO UPDATE
		SET summary     = EXCLUDED.summary,
		    details     = EXCLUDED.details,
		    is_fallback = EXCLUDED.is_fallback,
		    updated_at  = EXCLUDED.updated_at
	`

	if _, err := r.q.Exec(ctx, q, destinationID, details.Summary, payload, details.Fallback); err != nil {
		return fmt.Errorf("upserting details for destination %d: %w", destinationID, err)
	}
	return nil
}

// UpsertActivities loads enriched records in batches. A failed batch is
// logged and skipped rather than aborting the load; the returned counts
// cover rows attempted in successful and failed batches respectively.
func (r *Repository) UpsertActivities(ctx context.Context, destinationID int64, records []poi.EnrichedPOI) (loaded, failed int, err error) {
	for start := 0; start < len(records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := r.upsertActivityBatch(ctx, destinationID, batch); err != nil {
			r.log.Error("activity batch failed",
				"destination_id", destinationID,
				"batch_start", start,
				"batch_size", len(batch),
				"error", err,
			)
			failed += len(batch)
			continue
		}
		loaded += len(batch)
	}
	return loaded, failed, nil
}

const activityColumns = 16

func (r *Repository) upsertActivityBatch(ctx context.Context, destinationID int64, batch []poi.EnrichedPOI) error {
	var (
		sb   strings.Builder
		args = make([]any, 0, len(batch)*activityColumns)
	)
	sb.WriteString(`
		INSERT INTO activities (
			destination_id, osm_id, name, category, lat, lng,
			priority_score, priority_tier, description, duration_min,
			best_time, personas, price_level, tips, is_popular, is_fallback
		) VALUES `)

	for i, rec := range batch {
		personas, err := json.Marshal(rec.Enrichment.Personas)
		if err != nil {
			return fmt.Errorf("marshaling personas for %s: %w", rec.OSMID, err)
		}
		tips, err := json.Marshal(rec.Enrichment.Tips)
		if err != nil {
			return fmt.Errorf("marshaling tips for %s: %w", rec.OSMID, err)
		}

		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * activityColumns
		sb.WriteByte('(')
		for j := 1; j <= activityColumns; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteByte(')')

		args = append(args,
			destinationID, rec.OSMID, rec.Name, rec.Category, rec.Lat, rec.Lon,
			rec.PriorityScore, string(rec.PriorityTier), rec.Enrichment.Description, rec.Enrichment.DurationMin,
			rec.Enrichment.BestTime, personas, rec.Enrichment.PriceLevel, tips, rec.Enrichment.IsPopular, rec.Enrichment.Fallback,
		)
	}

	sb.WriteString(`
		ON CONFLICT (destination_id, osm_id) DO UPDATE
		SET name           = EXCLUDED.name,
		    category       = EXCLUDED.category,
		    lat            = EXCLUDED.lat,
		    lng            = EXCLUDED.lng,
		    priority_score = EXCLUDED.priority_score,
		    priority_tier  = EXCLUDED.priority_tier,
		    description    = EXCLUDED.description,
		    duration_min   = EXCLUDED.duration_min,
		    best_time      = EXCLUDED.best_time,
		    personas       = EXCLUDED.personas,
		    price_level    = EXCLUDED.price_level,
		    tips           = EXCLUDED.tips,
		    is_popular     = EXCLUDED.is_popular,
		    is_fallback    = EXCLUDED.is_fallback,
		    updated_at     = NOW()`)

	if _, err := r.q.Exec(ctx, sb.String(), args...); err != nil {
		return err
	}
	return nil
}
