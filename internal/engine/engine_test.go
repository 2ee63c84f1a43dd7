package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"almacen/m/domain"
	"almacen/m/internal/migrations"
)

func newTestEngine(t *testing.T) (*Engine, *sqlx.DB) {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	migrations.Run(db)
	t.Cleanup(func() { db.Close() })
	return New(db, nil), db
}

func dec(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return &d
}

func createProduct(t *testing.T, db *sqlx.DB, sku string, kind domain.UnitKind) string {
	t.Helper()
	id := uuid.NewString()
	now := domain.Now()
	_, err := db.Exec(`INSERT INTO products (id, sku, name, kind, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`, id, sku, "product "+sku, string(kind), now, now)
	if err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return id
}

func createLocation(t *testing.T, db *sqlx.DB, barcode string) string {
	t.Helper()
	id := uuid.NewString()
	now := domain.Now()
	_, err := db.Exec(`INSERT INTO locations (id, aisle, rack, level, position, barcode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, id, "A", "R", "1", barcode, barcode, now, now)
	if err != nil {
		t.Fatalf("create location %s: %v", barcode, err)
	}
	return id
}

func createCustomer(t *testing.T, db *sqlx.DB, name string) string {
	t.Helper()
	id := uuid.NewString()
	now := domain.Now()
	_, err := db.Exec(`INSERT INTO customers (id, name, is_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)`, id, name, now, now)
	if err != nil {
		t.Fatalf("create customer %s: %v", name, err)
	}
	return id
}

func mustIngest(t *testing.T, e *Engine, lines []ManifestLine) *IngestResult {
	t.Helper()
	res, err := e.IngestManifest(context.Background(), "", "Proveedor Sur", "", lines)
	if err != nil {
		t.Fatalf("ingest manifest: %v", err)
	}
	return res
}

func mustPlace(t *testing.T, e *Engine, serial, locationCode string) string {
	t.Helper()
	unitID, err := e.PlaceUnit(context.Background(), "", serial, locationCode)
	if err != nil {
		t.Fatalf("place %s at %s: %v", serial, locationCode, err)
	}
	return unitID
}

func getUnit(t *testing.T, db *sqlx.DB, serial string) domain.InventoryUnit {
	t.Helper()
	var unit domain.InventoryUnit
	err := db.Get(&unit, `SELECT id, serial, product_id, manifest_id, status, location_id,
		original_meterage, remaining_meterage, weight_kg, notes, version,
		admitted_at, placed_at, dispatched_at, created_at, updated_at
		FROM inventory_units WHERE serial = ?`, serial)
	if err != nil {
		t.Fatalf("load unit %s: %v", serial, err)
	}
	return unit
}

func codeOf(t *testing.T, err error) domain.ErrorCode {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a domain error, got nil")
	}
	code := domain.CodeOf(err)
	if code == "" {
		t.Fatalf("expected a domain error, got %v", err)
	}
	return code
}

// mustSetup admits and places one measured and one discrete unit, returning
// their serials along with a customer id.
func mustSetup(t *testing.T, e *Engine, db *sqlx.DB) (measured, discrete, customerID string) {
	t.Helper()
	createProduct(t, db, "TELA-1", domain.KindMeasured)
	createProduct(t, db, "IBC-1", domain.KindDiscrete)
	createLocation(t, db, "LOC-A1")
	createLocation(t, db, "LOC-B2")
	mustIngest(t, e, []ManifestLine{
		{Serial: "ROLL-001", SKU: "TELA-1", Meterage: dec(t, "10")},
		{Serial: "TANK-001", SKU: "IBC-1"},
	})
	mustPlace(t, e, "ROLL-001", "LOC-A1")
	mustPlace(t, e, "TANK-001", "LOC-B2")
	return "ROLL-001", "TANK-001", createCustomer(t, db, "Textiles Norte")
}
