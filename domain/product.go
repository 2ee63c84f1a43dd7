package domain

import "github.com/shopspring/decimal"

// UnitKind distinguishes how a product's stock is consumed.
type UnitKind string

const (
	// KindMeasured products carry a continuous remaining quantity (meterage)
	// that can be partially consumed across several orders.
	KindMeasured UnitKind = "measured"
	// KindDiscrete products are dispatched as indivisible whole units.
	KindDiscrete UnitKind = "discrete"
)

// Valid reports whether k is a known unit kind.
func (k UnitKind) Valid() bool {
	return k == KindMeasured || k == KindDiscrete
}

type Product struct {
	ID              string           `db:"id" json:"id"`
	SKU             string           `db:"sku" json:"sku"`
	Name            string           `db:"name" json:"name"`
	Kind            UnitKind         `db:"kind" json:"kind"`
	Category        *string          `db:"category" json:"category,omitempty"`
	Description     *string          `db:"description" json:"description,omitempty"`
	DefaultMeterage *decimal.Decimal `db:"default_meterage" json:"default_meterage,omitempty"`
	DefaultWeightKg *float64         `db:"default_weight_kg" json:"default_weight_kg,omitempty"`
	IsActive        bool             `db:"is_active" json:"is_active"`
	CreatedAt       string           `db:"created_at" json:"created_at"`
	UpdatedAt       string           `db:"updated_at" json:"updated_at"`
}
