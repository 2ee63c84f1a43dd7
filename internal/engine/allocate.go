package engine

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"almacen/m/domain"
)

// AllocationLine requests stock from one unit. Meterage is required for
// measured products and ignored for discrete ones.
type AllocationLine struct {
	UnitID   string           `json:"unit_id"`
	Meterage *decimal.Decimal `json:"meterage,omitempty"`
}

type allocUnit struct {
	ID                string            `db:"id"`
	Serial            string            `db:"serial"`
	Status            domain.UnitStatus `db:"status"`
	LocationID        *string           `db:"location_id"`
	RemainingMeterage *decimal.Decimal  `db:"remaining_meterage"`
	Version           int64             `db:"version"`
	Kind              domain.UnitKind   `db:"kind"`
}

// unitUpdate is the staged effect of one validated allocation line.
type unitUpdate struct {
	unit      allocUnit
	taken     *decimal.Decimal // measured only
	remaining *decimal.Decimal // measured only
	dispatch  bool
}

// Allocate validates every requested line and commits the order atomically.
// If any line fails, no unit is mutated. Units are validated in canonical
// serial order; each mutation carries a status and version guard, so a unit
// consumed by a concurrent allocation aborts the whole order with Contention.
func (e *Engine) Allocate(ctx context.Context, actorID, customerID, notes string, lines []AllocationLine) (string, error) {
	if customerID == "" {
		return "", domain.Errf(domain.ErrNotFound, "customer is required")
	}
	if len(lines) == 0 {
		return "", domain.Errf(domain.ErrInvalidState, "allocation requires at least one line")
	}

	byUnit := make(map[string]AllocationLine, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.UnitID == "" {
			return "", domain.Errf(domain.ErrNotFound, "allocation line is missing a unit")
		}
		if _, dup := byUnit[line.UnitID]; dup {
			derr := domain.Errf(domain.ErrUnitUnavailable, "unit listed more than once in the order")
			derr.UnitID = line.UnitID
			return "", derr
		}
		byUnit[line.UnitID] = line
		ids = append(ids, line.UnitID)
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var customerExists bool
	if err := tx.Get(&customerExists, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = ?)`, customerID); err != nil {
		return "", err
	}
	if !customerExists {
		return "", domain.Errf(domain.ErrNotFound, "customer %s not found", customerID)
	}

	query, args, err := sqlx.In(`SELECT u.id, u.serial, u.status, u.location_id,
			u.remaining_meterage, u.version, p.kind
		FROM inventory_units u
		JOIN products p ON p.id = u.product_id
		WHERE u.id IN (?)`, ids)
	if err != nil {
		return "", err
	}
	var units []allocUnit
	if err := tx.Select(&units, tx.Rebind(query), args...); err != nil {
		return "", err
	}
	if len(units) != len(ids) {
		found := make(map[string]bool, len(units))
		for _, u := range units {
			found[u.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				derr := domain.Errf(domain.ErrNotFound, "unit not found")
				derr.UnitID = id
				return "", derr
			}
		}
	}

	// Canonical validation order: sorted by serial.
	sort.Slice(units, func(i, j int) bool { return units[i].Serial < units[j].Serial })

	updates := make([]unitUpdate, 0, len(units))
	for _, unit := range units {
		if unit.Status != domain.StatusAvailable {
			derr := domain.Errf(domain.ErrUnitUnavailable, "unit is %s, not available", unit.Status)
			derr.Serial = unit.Serial
			derr.UnitID = unit.ID
			return "", derr
		}

		line := byUnit[unit.ID]
		switch unit.Kind {
		case domain.KindMeasured:
			if line.Meterage == nil || !line.Meterage.IsPositive() {
				derr := domain.Errf(domain.ErrInsufficientQuantity, "requested meterage must be greater than zero")
				derr.Serial = unit.Serial
				derr.UnitID = unit.ID
				return "", derr
			}
			remaining := decimal.Zero
			if unit.RemainingMeterage != nil {
				remaining = *unit.RemainingMeterage
			}
			if line.Meterage.GreaterThan(remaining) {
				derr := domain.Errf(domain.ErrInsufficientQuantity,
					"requested %s exceeds remaining %s", line.Meterage.String(), remaining.String())
				derr.Serial = unit.Serial
				derr.UnitID = unit.ID
				return "", derr
			}
			left := remaining.Sub(*line.Meterage)
			updates = append(updates, unitUpdate{
				unit:      unit,
				taken:     line.Meterage,
				remaining: &left,
				dispatch:  left.IsZero(),
			})
		default:
			// Discrete units are consumed whole; a quantity on the line is ignored.
			updates = append(updates, unitUpdate{unit: unit, dispatch: true})
		}
	}

	now := domain.Now()
	orderID := newID()
	_, err = tx.Exec(`INSERT INTO orders (id, customer_id, notes, status, dispatch_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orderID, customerID, nullIfEmpty(notes), string(domain.OrderCompleted), now, now, now)
	if err != nil {
		return "", err
	}

	for _, up := range updates {
		_, err = tx.Exec(`INSERT INTO order_lines (id, order_id, unit_id, dispatched_meterage, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			newID(), orderID, up.unit.ID, up.taken, now)
		if err != nil {
			return "", err
		}

		var res sql.Result
		if up.dispatch {
			res, err = tx.Exec(`UPDATE inventory_units
				SET status = ?, location_id = NULL, remaining_meterage = ?,
				    dispatched_at = ?, updated_at = ?, version = version + 1
				WHERE id = ? AND status = ? AND version = ?`,
				string(domain.StatusDispatched), up.remaining, now, now,
				up.unit.ID, string(domain.StatusAvailable), up.unit.Version)
		} else {
			// A partially consumed measured unit keeps its status and location.
			res, err = tx.Exec(`UPDATE inventory_units
				SET remaining_meterage = ?, updated_at = ?, version = version + 1
				WHERE id = ? AND status = ? AND version = ?`,
				up.remaining, now,
				up.unit.ID, string(domain.StatusAvailable), up.unit.Version)
		}
		if err != nil {
			return "", err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			derr := domain.Errf(domain.ErrContention, "unit changed under a concurrent operation, retry the order")
			derr.Serial = up.unit.Serial
			derr.UnitID = up.unit.ID
			return "", derr
		}

		if up.dispatch {
			if err := appendMovement(tx, up.unit.ID, up.unit.LocationID, nil, "dispatch", actorID); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	e.log.Info("order allocated",
		zap.String("order_id", orderID),
		zap.String("customer_id", customerID),
		zap.Int("lines", len(updates)))

	return orderID, nil
}

// EligibleUnit is one available unit of a product in FIFO order.
type EligibleUnit struct {
	UnitID            string           `db:"id" json:"unit_id"`
	Serial            string           `db:"serial" json:"serial"`
	RemainingMeterage *decimal.Decimal `db:"remaining_meterage" json:"remaining_meterage,omitempty"`
	AdmittedAt        string           `db:"admitted_at" json:"admitted_at"`
}

// ListEligibleUnits returns the available units of a product ordered by
// admission time ascending, oldest stock first, so callers building an order
// default to consuming the longest-resident units.
func (e *Engine) ListEligibleUnits(ctx context.Context, productID string) ([]EligibleUnit, error) {
	var exists bool
	if err := e.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, productID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.Errf(domain.ErrNotFound, "product %s not found", productID)
	}

	units := []EligibleUnit{}
	err := e.db.SelectContext(ctx, &units, `SELECT id, serial, remaining_meterage, admitted_at
		FROM inventory_units
		WHERE product_id = ? AND status = ?
		ORDER BY admitted_at ASC, rowid ASC`,
		productID, string(domain.StatusAvailable))
	if err != nil {
		return nil, err
	}
	return units, nil
}
