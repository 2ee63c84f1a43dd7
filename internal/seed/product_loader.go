package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"almacen/m/domain"
)

// LoadProducts ingests the CSV into the products table, ignoring duplicates.
// Expected columns: sku, name, kind, category, default_meterage, default_weight_kg.
func LoadProducts(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load product catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read product header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start product transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO products
		(id, sku, name, kind, category, default_meterage, default_weight_kg, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare product insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read product row: %v", err)
			continue
		}
		if len(record) < 6 {
			continue
		}
		sku := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		kind := domain.UnitKind(strings.TrimSpace(record[2]))
		category := strings.TrimSpace(record[3])

		if sku == "" || name == "" || !kind.Valid() {
			continue
		}

		var meterage *string
		if m := strings.TrimSpace(record[4]); m != "" {
			meterage = &m
		}
		var weight *float64
		if w := strings.TrimSpace(record[5]); w != "" {
			if parsed, err := strconv.ParseFloat(w, 64); err == nil {
				weight = &parsed
			}
		}
		var cat *string
		if category != "" {
			cat = &category
		}

		now := domain.Now()
		if _, err := stmt.Exec(uuid.NewString(), sku, name, string(kind), cat, meterage, weight, now, now); err != nil {
			log.Printf("unable to insert product %s: %v", sku, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit product seed: %v", err)
	} else {
		log.Printf("seeded product catalog with %d rows", rows)
	}
}
