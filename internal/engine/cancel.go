package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"almacen/m/domain"
)

type cancelLine struct {
	LineID             string            `db:"line_id"`
	UnitID             string            `db:"unit_id"`
	Serial             string            `db:"serial"`
	Status             domain.UnitStatus `db:"status"`
	RemainingMeterage  *decimal.Decimal  `db:"remaining_meterage"`
	OriginalMeterage   *decimal.Decimal  `db:"original_meterage"`
	Version            int64             `db:"version"`
	Kind               domain.UnitKind   `db:"kind"`
	DispatchedMeterage *decimal.Decimal  `db:"dispatched_meterage"`
}

// CancelOrder reverses every line of a non-cancelled order: consumed meterage
// is restored and dispatched units return to available with no location, so
// they must be re-placed before they can be allocated again. A unit whose
// state no longer matches what the allocation left behind fails the cancel
// for manual review instead of being silently repaired.
func (e *Engine) CancelOrder(ctx context.Context, actorID, orderID string) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status domain.OrderStatus
	err = tx.Get(&status, `SELECT status FROM orders WHERE id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		derr := domain.Errf(domain.ErrNotFound, "order not found")
		derr.OrderID = orderID
		return derr
	}
	if err != nil {
		return err
	}
	if status == domain.OrderCancelled {
		derr := domain.Errf(domain.ErrInvalidState, "order is already cancelled")
		derr.OrderID = orderID
		return derr
	}

	var lines []cancelLine
	err = tx.Select(&lines, `SELECT l.id AS line_id, l.unit_id, l.dispatched_meterage,
			u.serial, u.status, u.remaining_meterage, u.original_meterage, u.version, p.kind
		FROM order_lines l
		JOIN inventory_units u ON u.id = l.unit_id
		JOIN products p ON p.id = u.product_id
		WHERE l.order_id = ?`, orderID)
	if err != nil {
		return err
	}

	// Same canonical order as allocation, so cancel and a concurrent new
	// allocation contend on units deterministically.
	sort.Slice(lines, func(i, j int) bool { return lines[i].Serial < lines[j].Serial })

	now := domain.Now()
	for _, line := range lines {
		manualReview := func(msg string) error {
			derr := domain.Errf(domain.ErrInvalidState, "cannot reverse line: %s, flag for manual review", msg)
			derr.OrderID = orderID
			derr.Serial = line.Serial
			derr.UnitID = line.UnitID
			return derr
		}

		var res sql.Result
		switch line.Kind {
		case domain.KindMeasured:
			if line.DispatchedMeterage == nil {
				return manualReview("measured line has no recorded meterage")
			}
			remaining := decimal.Zero
			if line.RemainingMeterage != nil {
				remaining = *line.RemainingMeterage
			}
			restored := remaining.Add(*line.DispatchedMeterage)
			if line.OriginalMeterage != nil && restored.GreaterThan(*line.OriginalMeterage) {
				return manualReview("restoring meterage would exceed the unit's original quantity")
			}

			switch line.Status {
			case domain.StatusDispatched:
				res, err = tx.Exec(`UPDATE inventory_units
					SET status = ?, location_id = NULL, remaining_meterage = ?,
					    dispatched_at = NULL, updated_at = ?, version = version + 1
					WHERE id = ? AND status = ? AND version = ?`,
					string(domain.StatusAvailable), restored, now,
					line.UnitID, string(domain.StatusDispatched), line.Version)
			case domain.StatusAvailable:
				res, err = tx.Exec(`UPDATE inventory_units
					SET remaining_meterage = ?, updated_at = ?, version = version + 1
					WHERE id = ? AND status = ? AND version = ?`,
					restored, now,
					line.UnitID, string(domain.StatusAvailable), line.Version)
			default:
				return manualReview("unit is " + string(line.Status))
			}
		default:
			if line.Status != domain.StatusDispatched {
				return manualReview("unit is " + string(line.Status) + ", expected dispatched")
			}
			res, err = tx.Exec(`UPDATE inventory_units
				SET status = ?, location_id = NULL, dispatched_at = NULL,
				    updated_at = ?, version = version + 1
				WHERE id = ? AND status = ? AND version = ?`,
				string(domain.StatusAvailable), now,
				line.UnitID, string(domain.StatusDispatched), line.Version)
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			derr := domain.Errf(domain.ErrContention, "unit changed under a concurrent operation, retry the cancel")
			derr.Serial = line.Serial
			derr.UnitID = line.UnitID
			return derr
		}

		if line.Status == domain.StatusDispatched {
			if err := appendMovement(tx, line.UnitID, nil, nil, "dispatch cancelled", actorID); err != nil {
				return err
			}
		}
	}

	_, err = tx.Exec(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(domain.OrderCancelled), now, orderID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	e.log.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.Int("lines", len(lines)))

	return nil
}
