package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store names one of the two independently owned databases.
type Store string

// Stores.
const (
	// Custody holds item definitions, assets, consumable lots and the
	// reservation ledger.
	Custody Store = "custody"
	// Events holds the event records owned by the event-management system.
	Events Store = "events"
)

const sqliteCustodySchema = `
CREATE TABLE IF NOT EXISTS item_definitions (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    category   TEXT NOT NULL DEFAULT '',
    kind       TEXT NOT NULL CHECK (kind IN ('asset', 'consumable')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (name, category)
);

CREATE TABLE IF NOT EXISTS assets (
    id             INTEGER PRIMARY KEY,
    item_id        INTEGER NOT NULL REFERENCES item_definitions(id),
    tag            TEXT NOT NULL DEFAULT '',
    custody_status TEXT NOT NULL DEFAULT 'in_storage'
        CHECK (custody_status IN ('in_storage', 'in_use', 'damaged', 'lost', 'disposed')),
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_assets_item_custody ON assets(item_id, custody_status);

CREATE TABLE IF NOT EXISTS consumable_lots (
    id         INTEGER PRIMARY KEY,
    item_id    INTEGER NOT NULL REFERENCES item_definitions(id),
    quantity   INTEGER NOT NULL CHECK (quantity >= 0),
    status     TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'expired')),
    expires_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reservations (
    id          INTEGER PRIMARY KEY,
    event_id    INTEGER NOT NULL,
    asset_id    INTEGER NOT NULL REFERENCES assets(id),
    status      TEXT NOT NULL DEFAULT 'reserved' CHECK (status IN ('reserved', 'issued', 'returned')),
    reserved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_asset
    ON reservations(asset_id) WHERE status IN ('reserved', 'issued');

CREATE INDEX IF NOT EXISTS idx_reservations_event ON reservations(event_id);

CREATE TABLE IF NOT EXISTS consumable_claims (
    id         INTEGER PRIMARY KEY,
    event_id   INTEGER NOT NULL,
    lot_id     INTEGER NOT NULL REFERENCES consumable_lots(id),
    quantity   INTEGER NOT NULL CHECK (quantity > 0),
    claimed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_consumable_claims_event ON consumable_claims(event_id);
`

const postgresCustodySchema = `
CREATE TABLE IF NOT EXISTS item_definitions (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    category   TEXT NOT NULL DEFAULT '',
    kind       TEXT NOT NULL CHECK (kind IN ('asset', 'consumable')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (name, category)
);

CREATE TABLE IF NOT EXISTS assets (
    id             BIGSERIAL PRIMARY KEY,
    item_id        BIGINT NOT NULL REFERENCES item_definitions(id),
    tag            TEXT NOT NULL DEFAULT '',
    custody_status TEXT NOT NULL DEFAULT 'in_storage'
        CHECK (custody_status IN ('in_storage', 'in_use', 'damaged', 'lost', 'disposed')),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assets_item_custody ON assets(item_id, custody_status);

CREATE TABLE IF NOT EXISTS consumable_lots (
    id         BIGSERIAL PRIMARY KEY,
    item_id    BIGINT NOT NULL REFERENCES item_definitions(id),
    quantity   INTEGER NOT NULL CHECK (quantity >= 0),
    status     TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'expired')),
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reservations (
    id          BIGSERIAL PRIMARY KEY,
    event_id    BIGINT NOT NULL,
    asset_id    BIGINT NOT NULL REFERENCES assets(id),
    status      TEXT NOT NULL DEFAULT 'reserved' CHECK (status IN ('reserved', 'issued', 'returned')),
    reserved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_asset
    ON reservations(asset_id) WHERE status IN ('reserved', 'issued');

CREATE INDEX IF NOT EXISTS idx_reservations_event ON reservations(event_id);

CREATE TABLE IF NOT EXISTS consumable_claims (
    id         BIGSERIAL PRIMARY KEY,
    event_id   BIGINT NOT NULL,
    lot_id     BIGINT NOT NULL REFERENCES consumable_lots(id),
    quantity   INTEGER NOT NULL CHECK (quantity > 0),
    claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_consumable_claims_event ON consumable_claims(event_id);
`

const sqliteEventsSchema = `
CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    venue      TEXT NOT NULL,
    start_at   DATETIME NOT NULL,
    end_at     DATETIME NOT NULL,
    status     TEXT NOT NULL DEFAULT 'draft',
    event_type TEXT NOT NULL DEFAULT 'other',
    department TEXT NOT NULL DEFAULT '',
    equipment  TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME,
    CHECK (end_at > start_at)
);

CREATE INDEX IF NOT EXISTS idx_events_venue_window ON events(venue, start_at, end_at);
`

const postgresEventsSchema = `
CREATE TABLE IF NOT EXISTS events (
    id         BIGSERIAL PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    venue      TEXT NOT NULL,
    start_at   TIMESTAMPTZ NOT NULL,
    end_at     TIMESTAMPTZ NOT NULL,
    status     TEXT NOT NULL DEFAULT 'draft',
    event_type TEXT NOT NULL DEFAULT 'other',
    department TEXT NOT NULL DEFAULT '',
    equipment  TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ,
    CHECK (end_at > start_at)
);

CREATE INDEX IF NOT EXISTS idx_events_venue_window ON events(venue, start_at, end_at);
`

// EnsureSchema creates the tables and indexes of the given store if they don't
// already exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB, store Store) error {
	var schema string
	switch {
	case store == Custody && IsPostgres(db):
		schema = postgresCustodySchema
	case store == Custody:
		schema = sqliteCustodySchema
	case store == Events && IsPostgres(db):
		schema = postgresEventsSchema
	case store == Events:
		schema = sqliteEventsSchema
	default:
		return fmt.Errorf("unknown store %q", store)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating %s schema: %w", store, err)
	}
	return nil
}
