package engine

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"almacen/m/domain"
)

type placementUnit struct {
	ID         string            `db:"id"`
	Serial     string            `db:"serial"`
	ManifestID string            `db:"manifest_id"`
	Status     domain.UnitStatus `db:"status"`
	Version    int64             `db:"version"`
}

// PlaceUnit verifies a quarantined unit and binds it to a physical location.
// The status guard on the update makes a racing second call for the same
// serial observe an invalid-state rejection instead of a silent double write.
func (e *Engine) PlaceUnit(ctx context.Context, actorID, serial, locationCode string) (string, error) {
	if serial == "" || locationCode == "" {
		return "", domain.Errf(domain.ErrNotFound, "serial and location code are required")
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var unit placementUnit
	err = tx.Get(&unit, `SELECT id, serial, manifest_id, status, version
		FROM inventory_units WHERE serial = ?`, serial)
	if errors.Is(err, sql.ErrNoRows) {
		derr := domain.Errf(domain.ErrNotFound, "unit not found")
		derr.Serial = serial
		return "", derr
	}
	if err != nil {
		return "", err
	}
	if unit.Status != domain.StatusQuarantine {
		derr := domain.Errf(domain.ErrInvalidState, "unit is %s, only quarantined units can be placed", unit.Status)
		derr.Serial = serial
		derr.UnitID = unit.ID
		return "", derr
	}

	var locationID string
	err = tx.Get(&locationID, `SELECT id FROM locations WHERE barcode = ?`, locationCode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.Errf(domain.ErrNotFound, "location with code %q not found", locationCode)
	}
	if err != nil {
		return "", err
	}

	now := domain.Now()
	res, err := tx.Exec(`UPDATE inventory_units
		SET status = ?, location_id = ?, placed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status = ? AND version = ?`,
		string(domain.StatusAvailable), locationID, now, now,
		unit.ID, string(domain.StatusQuarantine), unit.Version)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		derr := domain.Errf(domain.ErrInvalidState, "unit was placed concurrently")
		derr.Serial = serial
		derr.UnitID = unit.ID
		return "", derr
	}

	if err := appendMovement(tx, unit.ID, nil, &locationID, "placement", actorID); err != nil {
		return "", err
	}
	if err := refreshManifestStatus(tx, unit.ManifestID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	e.log.Info("unit placed",
		zap.String("unit_id", unit.ID),
		zap.String("serial", serial),
		zap.String("location_id", locationID))

	return unit.ID, nil
}
