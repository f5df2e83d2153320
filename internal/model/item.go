package model

import (
	"strings"
	"time"
)

// ItemKind tells whether an item definition tracks individual units or bulk quantities.
type ItemKind string

// Item kinds.
const (
	ItemKindAsset      ItemKind = "asset"
	ItemKindConsumable ItemKind = "consumable"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	return k == ItemKindAsset || k == ItemKindConsumable
}

// NormalizeName returns the form of an item name used to match requests,
// claims and supply.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ItemDefinition is an item type such as "Chair" or "Projector". Name is unique
// within its category.
type ItemDefinition struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Category  string    `json:"category" db:"category"`
	Kind      ItemKind  `json:"kind" db:"kind"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Asset is one individually tracked physical unit of an item definition.
type Asset struct {
	ID        int64         `json:"id" db:"id"`
	ItemID    int64         `json:"item_id" db:"item_id"`
	Tag       string        `json:"tag,omitempty" db:"tag"`
	Custody   CustodyStatus `json:"custody_status" db:"custody_status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty" db:"item_name"`
}

// LotStatus is the state of a consumable lot.
type LotStatus string

// Lot statuses.
const (
	LotStatusAvailable LotStatus = "available"
	LotStatusExpired   LotStatus = "expired"
)

// ConsumableLot is a quantity of a consumable item received together.
type ConsumableLot struct {
	ID        int64      `json:"id" db:"id"`
	ItemID    int64      `json:"item_id" db:"item_id"`
	Quantity  int        `json:"quantity" db:"quantity"`
	Status    LotStatus  `json:"status" db:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty" db:"item_name"`
}

// CatalogEntry is the unit count of one (name, category) group.
type CatalogEntry struct {
	Name     string   `json:"name" db:"name"`
	Category string   `json:"category" db:"category"`
	Kind     ItemKind `json:"kind" db:"kind"`
	Units    int      `json:"units" db:"units"`
}

// Availability summarizes supply of one item name.
type Availability struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
}
