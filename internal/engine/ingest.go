package engine

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"almacen/m/domain"
)

// ManifestLine is one parsed row of a supplier manifest. Meterage applies to
// measured products only; when omitted the product's default is used.
type ManifestLine struct {
	Serial   string           `json:"serial"`
	SKU      string           `json:"sku"`
	Meterage *decimal.Decimal `json:"meterage,omitempty"`
	WeightKg *float64         `json:"weight_kg,omitempty"`
}

type IngestResult struct {
	ManifestID    string   `json:"manifest_id"`
	AdmittedCount int      `json:"admitted_count"`
	SkippedSKUs   []string `json:"skipped_skus"`
}

type ingestProduct struct {
	ID              string           `db:"id"`
	SKU             string           `db:"sku"`
	Kind            domain.UnitKind  `db:"kind"`
	DefaultMeterage *decimal.Decimal `db:"default_meterage"`
	DefaultWeightKg *float64         `db:"default_weight_kg"`
}

// IngestManifest admits the lines of one supplier manifest as quarantined
// inventory units. Lines whose SKU is unknown are skipped and reported back;
// the whole call fails only when nothing remains admissible, when a serial
// repeats within the manifest, or when a serial collides with existing stock.
// Manifest and units are created in one transaction so no caller can ever
// observe a manifest without its units.
func (e *Engine) IngestManifest(ctx context.Context, actorID, supplier, arrivalDate string, lines []ManifestLine) (*IngestResult, error) {
	if len(lines) == 0 {
		return nil, domain.Errf(domain.ErrEmptyManifest, "manifest has no lines")
	}

	seen := make(map[string]bool, len(lines))
	skus := make([]string, 0, len(lines))
	skuSeen := make(map[string]bool, len(lines))
	serials := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Serial == "" || line.SKU == "" {
			return nil, domain.Errf(domain.ErrEmptyManifest, "manifest line is missing serial or sku")
		}
		if seen[line.Serial] {
			err := domain.Errf(domain.ErrDuplicateSerial, "serial appears more than once in manifest")
			err.Serial = line.Serial
			return nil, err
		}
		seen[line.Serial] = true
		serials = append(serials, line.Serial)
		if !skuSeen[line.SKU] {
			skuSeen[line.SKU] = true
			skus = append(skus, line.SKU)
		}
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Resolve every SKU in one batch lookup.
	query, args, err := sqlx.In(`SELECT id, sku, kind, default_meterage, default_weight_kg
		FROM products WHERE sku IN (?)`, skus)
	if err != nil {
		return nil, err
	}
	var products []ingestProduct
	if err := tx.Select(&products, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	bySKU := make(map[string]ingestProduct, len(products))
	for _, p := range products {
		bySKU[p.SKU] = p
	}

	admissible := make([]ManifestLine, 0, len(lines))
	skipped := []string{}
	skippedSeen := map[string]bool{}
	for _, line := range lines {
		if _, ok := bySKU[line.SKU]; ok {
			admissible = append(admissible, line)
		} else if !skippedSeen[line.SKU] {
			skippedSeen[line.SKU] = true
			skipped = append(skipped, line.SKU)
		}
	}
	if len(admissible) == 0 {
		return nil, domain.Errf(domain.ErrEmptyManifest, "no manifest line resolved to a known product")
	}

	// Serials colliding with units already in the system fail the whole call.
	query, args, err = sqlx.In(`SELECT serial FROM inventory_units WHERE serial IN (?)`, serials)
	if err != nil {
		return nil, err
	}
	var existing []string
	if err := tx.Select(&existing, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		derr := domain.Errf(domain.ErrDuplicateSerial, "serial already tracked by another unit")
		derr.Serial = existing[0]
		return nil, derr
	}

	now := domain.Now()
	if arrivalDate == "" {
		arrivalDate = now
	}
	manifestID := newID()
	_, err = tx.Exec(`INSERT INTO manifests (id, supplier_name, arrival_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		manifestID, nullIfEmpty(supplier), arrivalDate, string(domain.ManifestPending), now, now)
	if err != nil {
		return nil, err
	}

	for _, line := range admissible {
		product := bySKU[line.SKU]

		var original, remaining *decimal.Decimal
		if product.Kind == domain.KindMeasured {
			qty := decimal.Zero
			switch {
			case line.Meterage != nil:
				qty = *line.Meterage
			case product.DefaultMeterage != nil:
				qty = *product.DefaultMeterage
			}
			if qty.IsNegative() {
				derr := domain.Errf(domain.ErrEmptyManifest, "meterage must not be negative")
				derr.Serial = line.Serial
				derr.SKU = line.SKU
				return nil, derr
			}
			original, remaining = &qty, &qty
		}

		weight := line.WeightKg
		if weight == nil {
			weight = product.DefaultWeightKg
		}

		note := "admitted from manifest, sku " + line.SKU
		_, err = tx.Exec(`INSERT INTO inventory_units
			(id, serial, product_id, manifest_id, status, location_id,
			 original_meterage, remaining_meterage, weight_kg, notes, version,
			 admitted_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, 0, ?, ?, ?)`,
			newID(), line.Serial, product.ID, manifestID, string(domain.StatusQuarantine),
			original, remaining, weight, note, now, now, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.log.Info("manifest ingested",
		zap.String("manifest_id", manifestID),
		zap.Int("admitted", len(admissible)),
		zap.Int("skipped_skus", len(skipped)))

	return &IngestResult{ManifestID: manifestID, AdmittedCount: len(admissible), SkippedSKUs: skipped}, nil
}
