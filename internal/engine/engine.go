// Package engine implements the inventory lifecycle: manifest ingestion,
// verification and placement, allocation and dispatch, and the movement
// ledger. Every operation runs inside one database transaction and either
// commits all of its effects or none of them.
package engine

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"almacen/m/domain"
)

type Engine struct {
	db  *sqlx.DB
	log *zap.Logger
}

func New(db *sqlx.DB, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, log: log}
}

func newID() string {
	return uuid.NewString()
}

func nullIfEmpty(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

// appendMovement writes one ledger row inside the caller's transaction.
func appendMovement(tx *sqlx.Tx, unitID string, from, to *string, reason, actorID string) error {
	_, err := tx.Exec(`INSERT INTO movements
		(id, unit_id, from_location_id, to_location_id, reason, actor_id, moved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newID(), unitID, from, to, nullIfEmpty(reason), nullIfEmpty(actorID), domain.Now())
	return err
}

// refreshManifestStatus recomputes the aggregate status from the manifest's
// units: pending while none have been placed, processing while some have,
// complete once none remain in quarantine.
func refreshManifestStatus(tx *sqlx.Tx, manifestID string) error {
	var counts struct {
		Total      int `db:"total"`
		Quarantine int `db:"quarantine"`
	}
	err := tx.Get(&counts, `SELECT COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS quarantine
		FROM inventory_units WHERE manifest_id = ?`,
		string(domain.StatusQuarantine), manifestID)
	if err != nil {
		return err
	}

	status := domain.ManifestProcessing
	switch counts.Quarantine {
	case counts.Total:
		status = domain.ManifestPending
	case 0:
		status = domain.ManifestComplete
	}

	_, err = tx.Exec(`UPDATE manifests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), domain.Now(), manifestID)
	return err
}
