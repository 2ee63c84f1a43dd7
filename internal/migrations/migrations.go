package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the database schema required for the warehouse backend.
func Run(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			city TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			category TEXT,
			description TEXT,
			default_meterage TEXT,
			default_weight_kg REAL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS locations (
			id TEXT PRIMARY KEY,
			aisle TEXT NOT NULL,
			rack TEXT NOT NULL,
			level TEXT NOT NULL,
			position TEXT NOT NULL,
			barcode TEXT UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(aisle, rack, level, position)
		);`,
		`CREATE TABLE IF NOT EXISTS manifests (
			id TEXT PRIMARY KEY,
			supplier_name TEXT,
			arrival_date TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS inventory_units (
			id TEXT PRIMARY KEY,
			serial TEXT NOT NULL UNIQUE,
			product_id TEXT NOT NULL REFERENCES products(id),
			manifest_id TEXT NOT NULL REFERENCES manifests(id),
			status TEXT NOT NULL DEFAULT 'quarantine',
			location_id TEXT REFERENCES locations(id),
			original_meterage TEXT,
			remaining_meterage TEXT,
			weight_kg REAL,
			notes TEXT,
			version INTEGER NOT NULL DEFAULT 0,
			admitted_at TEXT NOT NULL,
			placed_at TEXT,
			dispatched_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_units_eligibility
			ON inventory_units(product_id, status, admitted_at);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			notes TEXT,
			status TEXT NOT NULL DEFAULT 'completed',
			dispatch_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id),
			unit_id TEXT NOT NULL REFERENCES inventory_units(id),
			dispatched_meterage TEXT,
			notes TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS movements (
			id TEXT PRIMARY KEY,
			unit_id TEXT NOT NULL REFERENCES inventory_units(id),
			from_location_id TEXT REFERENCES locations(id),
			to_location_id TEXT REFERENCES locations(id),
			reason TEXT,
			actor_id TEXT,
			moved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_movements_unit ON movements(unit_id, moved_at);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
