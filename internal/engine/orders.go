package engine

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"almacen/m/domain"
)

type orderLineDetail struct {
	OrderID            string           `db:"order_id" json:"order_id"`
	UnitID             string           `db:"unit_id" json:"unit_id"`
	Serial             string           `db:"serial" json:"serial"`
	ProductName        string           `db:"product_name" json:"product_name"`
	DispatchedMeterage *decimal.Decimal `db:"dispatched_meterage" json:"dispatched_meterage,omitempty"`
}

// OrderSummary is an order with its resolved lines.
type OrderSummary struct {
	domain.Order
	CustomerName string            `db:"customer_name" json:"customer_name"`
	Lines        []orderLineDetail `json:"lines"`
}

// ListOrders returns all orders, newest first, each with its lines.
func (e *Engine) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	var orders []OrderSummary
	err := e.db.SelectContext(ctx, &orders, `SELECT o.id, o.customer_id, o.notes, o.status,
			o.dispatch_date, o.created_at, o.updated_at, c.name AS customer_name
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []OrderSummary{}, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	query, args, err := sqlx.In(`SELECT l.order_id, l.unit_id, l.dispatched_meterage,
			u.serial, p.name AS product_name
		FROM order_lines l
		JOIN inventory_units u ON u.id = l.unit_id
		JOIN products p ON p.id = u.product_id
		WHERE l.order_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []orderLineDetail
	if err := e.db.SelectContext(ctx, &rows, e.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byOrder := make(map[string][]orderLineDetail)
	for _, row := range rows {
		byOrder[row.OrderID] = append(byOrder[row.OrderID], row)
	}
	for i := range orders {
		lines := byOrder[orders[i].ID]
		if lines == nil {
			lines = []orderLineDetail{}
		}
		orders[i].Lines = lines
	}
	return orders, nil
}
