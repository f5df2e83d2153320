// Package catalog answers "what do we own" and "what is free right now" from
// the custody store. Every call recomputes from the database.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"

	"github.com/erazemk/oprema/internal/lib/logger/sl"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

var tracer = otel.Tracer("github.com/erazemk/oprema/internal/catalog")

// Service reads catalog and availability figures from the custody store.
type Service struct {
	log *slog.Logger
	db  *sqlx.DB
}

// New creates a catalog service over the custody store.
func New(log *slog.Logger, custody *sqlx.DB) *Service {
	return &Service{log: log, db: custody}
}

// GetCatalog returns unit counts grouped by (name, category). A database
// failure is returned as an error wrapping store.ErrDataSource, never as an
// empty catalog.
func (s *Service) GetCatalog(ctx context.Context) ([]model.CatalogEntry, error) {
	const op = "catalog.GetCatalog"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	entries, err := store.ListCatalog(ctx, s.db)
	if err != nil {
		span.RecordError(err)
		s.log.Error("failed to list catalog", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if entries == nil {
		entries = []model.CatalogEntry{}
	}
	return entries, nil
}

// GetInventorySummary returns claim-aware availability per item name,
// aggregated across categories.
//
// For assets, available counts units in storage with no active claim and in
// use counts units that are out or actively claimed. For consumables,
// available is the remaining non-expired lot quantity and in use is the
// quantity held by outstanding claims.
func (s *Service) GetInventorySummary(ctx context.Context) (map[string]model.Availability, error) {
	const op = "catalog.GetInventorySummary"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	log := s.log.With(slog.String("op", op))

	assets, err := store.ListAssetSupply(ctx, s.db)
	if err != nil {
		span.RecordError(err)
		log.Error("failed to count asset supply", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	consumables, err := store.ListConsumableSupply(ctx, s.db)
	if err != nil {
		span.RecordError(err)
		log.Error("failed to count consumable supply", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary := make(map[string]model.Availability, len(assets)+len(consumables))
	for _, a := range assets {
		summary[a.Name] = model.Availability{
			Total:     a.Total,
			Available: a.Available,
			InUse:     a.InUse,
		}
	}
	for _, c := range consumables {
		prev := summary[c.Name]
		summary[c.Name] = model.Availability{
			Total:     prev.Total + c.Available + c.Claimed,
			Available: prev.Available + c.Available,
			InUse:     prev.InUse + c.Claimed,
		}
	}

	return summary, nil
}
