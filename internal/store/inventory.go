package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/model"
)

// ListCatalog returns unit counts grouped by (name, category): non-disposed
// assets and the quantities of non-expired consumable lots.
func ListCatalog(ctx context.Context, q sqlx.ExtContext) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	err := sqlx.SelectContext(ctx, q, &entries,
		`SELECT d.name AS name, d.category AS category, d.kind AS kind, COUNT(*) AS units
		 FROM assets a
		 JOIN item_definitions d ON d.id = a.item_id
		 WHERE a.custody_status <> 'disposed'
		 GROUP BY d.name, d.category, d.kind
		 UNION ALL
		 SELECT d.name AS name, d.category AS category, d.kind AS kind, SUM(l.quantity) AS units
		 FROM consumable_lots l
		 JOIN item_definitions d ON d.id = l.item_id
		 WHERE l.status <> 'expired'
		 GROUP BY d.name, d.category, d.kind
		 ORDER BY name, category`)
	if err != nil {
		return nil, sourceErr("listing catalog", err)
	}
	return entries, nil
}

// AssetSupply is the claim-aware unit count of one asset item name.
type AssetSupply struct {
	Name      string `db:"name"`
	Total     int    `db:"total"`
	Available int    `db:"available"`
	InUse     int    `db:"in_use"`
}

// ListAssetSupply counts non-disposed assets per item name. An asset is
// available only if it is in storage and has no active reservation; it is in
// use if it is physically out or actively reserved.
func ListAssetSupply(ctx context.Context, q sqlx.ExtContext) ([]AssetSupply, error) {
	var supply []AssetSupply
	err := sqlx.SelectContext(ctx, q, &supply,
		`SELECT d.name AS name,
		        COUNT(*) AS total,
		        SUM(CASE WHEN a.custody_status = 'in_storage' AND r.id IS NULL THEN 1 ELSE 0 END) AS available,
		        SUM(CASE WHEN a.custody_status = 'in_use' OR r.id IS NOT NULL THEN 1 ELSE 0 END) AS in_use
		 FROM assets a
		 JOIN item_definitions d ON d.id = a.item_id
		 LEFT JOIN reservations r ON r.asset_id = a.id AND r.status IN ('reserved', 'issued')
		 WHERE a.custody_status <> 'disposed'
		 GROUP BY d.name
		 ORDER BY d.name`)
	if err != nil {
		return nil, sourceErr("counting asset supply", err)
	}
	return supply, nil
}

// ConsumableSupply is the unit count of one consumable item name.
type ConsumableSupply struct {
	Name      string `db:"name"`
	Available int    `db:"available"`
	Claimed   int    `db:"claimed"`
}

// ListConsumableSupply sums non-expired lot quantities and outstanding claims
// per consumable item name.
func ListConsumableSupply(ctx context.Context, q sqlx.ExtContext) ([]ConsumableSupply, error) {
	var supply []ConsumableSupply
	err := sqlx.SelectContext(ctx, q, &supply,
		`SELECT d.name AS name,
		        COALESCE(SUM(CASE WHEN l.status = 'available' THEN l.quantity ELSE 0 END), 0) AS available,
		        COALESCE((SELECT SUM(c.quantity)
		                  FROM consumable_claims c
		                  JOIN consumable_lots cl ON cl.id = c.lot_id
		                  JOIN item_definitions cd ON cd.id = cl.item_id
		                  WHERE cd.name = d.name), 0) AS claimed
		 FROM item_definitions d
		 LEFT JOIN consumable_lots l ON l.item_id = d.id
		 WHERE d.kind = 'consumable'
		 GROUP BY d.name
		 ORDER BY d.name`)
	if err != nil {
		return nil, sourceErr("counting consumable supply", err)
	}
	return supply, nil
}
