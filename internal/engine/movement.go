package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"almacen/m/domain"
)

type movableUnit struct {
	ID         string            `db:"id"`
	Serial     string            `db:"serial"`
	Status     domain.UnitStatus `db:"status"`
	LocationID *string           `db:"location_id"`
	Version    int64             `db:"version"`
}

func getUnitForUpdate(tx *sqlx.Tx, unitID string) (*movableUnit, error) {
	var unit movableUnit
	err := tx.Get(&unit, `SELECT id, serial, status, location_id, version
		FROM inventory_units WHERE id = ?`, unitID)
	if errors.Is(err, sql.ErrNoRows) {
		derr := domain.Errf(domain.ErrNotFound, "unit not found")
		derr.UnitID = unitID
		return nil, derr
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// RelocateUnit moves an available unit to another location and appends the
// movement to the ledger. The unit's status does not change.
func (e *Engine) RelocateUnit(ctx context.Context, actorID, unitID, newLocationID, reason string) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	unit, err := getUnitForUpdate(tx, unitID)
	if err != nil {
		return err
	}
	if unit.Status != domain.StatusAvailable {
		derr := domain.Errf(domain.ErrInvalidState, "unit is %s, only available units can be moved", unit.Status)
		derr.Serial = unit.Serial
		derr.UnitID = unit.ID
		return derr
	}

	var exists bool
	if err := tx.Get(&exists, `SELECT EXISTS(SELECT 1 FROM locations WHERE id = ?)`, newLocationID); err != nil {
		return err
	}
	if !exists {
		return domain.Errf(domain.ErrNotFound, "location %s not found", newLocationID)
	}

	now := domain.Now()
	res, err := tx.Exec(`UPDATE inventory_units
		SET location_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status = ? AND version = ?`,
		newLocationID, now, unit.ID, string(domain.StatusAvailable), unit.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		derr := domain.Errf(domain.ErrContention, "unit changed under a concurrent operation, retry the move")
		derr.UnitID = unit.ID
		return derr
	}

	if reason == "" {
		reason = "relocation"
	}
	if err := appendMovement(tx, unit.ID, unit.LocationID, &newLocationID, reason, actorID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	e.log.Info("unit relocated",
		zap.String("unit_id", unit.ID),
		zap.String("location_id", newLocationID))

	return nil
}

// RetireUnit takes an available unit out of circulation permanently.
func (e *Engine) RetireUnit(ctx context.Context, actorID, unitID, reason string) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	unit, err := getUnitForUpdate(tx, unitID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(unit.Status, domain.StatusRetired) {
		derr := domain.Errf(domain.ErrInvalidState, "unit is %s, only available units can be retired", unit.Status)
		derr.Serial = unit.Serial
		derr.UnitID = unit.ID
		return derr
	}

	now := domain.Now()
	res, err := tx.Exec(`UPDATE inventory_units
		SET status = ?, location_id = NULL, updated_at = ?, version = version + 1
		WHERE id = ? AND status = ? AND version = ?`,
		string(domain.StatusRetired), now, unit.ID, string(unit.Status), unit.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		derr := domain.Errf(domain.ErrContention, "unit changed under a concurrent operation, retry the retirement")
		derr.UnitID = unit.ID
		return derr
	}

	if reason == "" {
		reason = "retired"
	}
	if err := appendMovement(tx, unit.ID, unit.LocationID, nil, reason, actorID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	e.log.Info("unit retired", zap.String("unit_id", unit.ID))
	return nil
}

// ListMovements returns the full movement trail of a unit, oldest first.
func (e *Engine) ListMovements(ctx context.Context, unitID string) ([]domain.MovementRecord, error) {
	var exists bool
	if err := e.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM inventory_units WHERE id = ?)`, unitID); err != nil {
		return nil, err
	}
	if !exists {
		derr := domain.Errf(domain.ErrNotFound, "unit not found")
		derr.UnitID = unitID
		return nil, derr
	}

	records := []domain.MovementRecord{}
	err := e.db.SelectContext(ctx, &records, `SELECT id, unit_id, from_location_id, to_location_id, reason, actor_id, moved_at
		FROM movements WHERE unit_id = ? ORDER BY moved_at ASC, rowid ASC`, unitID)
	if err != nil {
		return nil, err
	}
	return records, nil
}
