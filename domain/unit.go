package domain

import "github.com/shopspring/decimal"

// UnitStatus is the lifecycle state of an inventory unit.
type UnitStatus string

const (
	StatusQuarantine UnitStatus = "quarantine"
	StatusAvailable  UnitStatus = "available"
	StatusReserved   UnitStatus = "reserved"
	StatusDispatched UnitStatus = "dispatched"
	StatusRetired    UnitStatus = "retired"
)

// legalTransitions is the single authority on unit lifecycle moves.
// dispatched -> available happens only through order cancellation.
var legalTransitions = map[UnitStatus][]UnitStatus{
	StatusQuarantine: {StatusAvailable},
	StatusAvailable:  {StatusReserved, StatusDispatched, StatusRetired},
	StatusReserved:   {StatusAvailable, StatusDispatched},
	StatusDispatched: {StatusAvailable},
}

// CanTransition reports whether moving a unit from one status to another is legal.
func CanTransition(from, to UnitStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known unit status.
func (s UnitStatus) Valid() bool {
	switch s {
	case StatusQuarantine, StatusAvailable, StatusReserved, StatusDispatched, StatusRetired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected. Dispatched is
// terminal unless the owning order is cancelled.
func (s UnitStatus) Terminal() bool {
	return s == StatusRetired
}

// InventoryUnit is one physically tracked unit of stock. A unit has a
// location exactly while its status is available or reserved. The meterage
// fields are set only for measured products.
type InventoryUnit struct {
	ID                string           `db:"id" json:"id"`
	Serial            string           `db:"serial" json:"serial"`
	ProductID         string           `db:"product_id" json:"product_id"`
	ManifestID        string           `db:"manifest_id" json:"manifest_id"`
	Status            UnitStatus       `db:"status" json:"status"`
	LocationID        *string          `db:"location_id" json:"location_id,omitempty"`
	OriginalMeterage  *decimal.Decimal `db:"original_meterage" json:"original_meterage,omitempty"`
	RemainingMeterage *decimal.Decimal `db:"remaining_meterage" json:"remaining_meterage,omitempty"`
	WeightKg          *float64         `db:"weight_kg" json:"weight_kg,omitempty"`
	Notes             *string          `db:"notes" json:"notes,omitempty"`
	Version           int64            `db:"version" json:"-"`
	AdmittedAt        string           `db:"admitted_at" json:"admitted_at"`
	PlacedAt          *string          `db:"placed_at" json:"placed_at,omitempty"`
	DispatchedAt      *string          `db:"dispatched_at" json:"dispatched_at,omitempty"`
	CreatedAt         string           `db:"created_at" json:"created_at"`
	UpdatedAt         string           `db:"updated_at" json:"updated_at"`
}
