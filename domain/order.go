package domain

import "github.com/shopspring/decimal"

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Order is a committed dispatch to a customer.
type Order struct {
	ID           string      `db:"id" json:"id"`
	CustomerID   string      `db:"customer_id" json:"customer_id"`
	Notes        *string     `db:"notes" json:"notes,omitempty"`
	Status       OrderStatus `db:"status" json:"status"`
	DispatchDate *string     `db:"dispatch_date" json:"dispatch_date,omitempty"`
	CreatedAt    string      `db:"created_at" json:"created_at"`
	UpdatedAt    string      `db:"updated_at" json:"updated_at"`
}

// OrderLine takes stock from one inventory unit. DispatchedMeterage is set
// only for measured products and records the quantity taken from the unit.
type OrderLine struct {
	ID                 string           `db:"id" json:"id"`
	OrderID            string           `db:"order_id" json:"order_id"`
	UnitID             string           `db:"unit_id" json:"unit_id"`
	DispatchedMeterage *decimal.Decimal `db:"dispatched_meterage" json:"dispatched_meterage,omitempty"`
	Notes              *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt          string           `db:"created_at" json:"created_at"`
}
