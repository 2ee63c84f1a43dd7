// Package catalog manages the reference data the engine depends on: products,
// locations and customers, plus manifest deletion. Writes are guarded by the
// referential invariants, so nothing a live unit depends on can disappear.
package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"almacen/m/domain"
)

type Service struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Products

type ProductInput struct {
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Kind            domain.UnitKind  `json:"kind"`
	Category        *string          `json:"category,omitempty"`
	Description     *string          `json:"description,omitempty"`
	DefaultMeterage *decimal.Decimal `json:"default_meterage,omitempty"`
	DefaultWeightKg *float64         `json:"default_weight_kg,omitempty"`
}

func (in *ProductInput) validate() error {
	if in.SKU == "" || in.Name == "" {
		return domain.Errf(domain.ErrInvalidState, "sku and name are required")
	}
	if !in.Kind.Valid() {
		return domain.Errf(domain.ErrInvalidState, "kind must be measured or discrete")
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	err := s.db.SelectContext(ctx, &products, `SELECT id, sku, name, kind, category, description,
		default_meterage, default_weight_kg, is_active, created_at, updated_at
		FROM products ORDER BY sku`)
	return products, err
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE sku = ?)`, in.SKU); err != nil {
		return nil, err
	}
	if exists {
		derr := domain.Errf(domain.ErrInvalidState, "sku already exists")
		derr.SKU = in.SKU
		return nil, derr
	}

	now := domain.Now()
	p := domain.Product{
		ID:              uuid.NewString(),
		SKU:             in.SKU,
		Name:            in.Name,
		Kind:            in.Kind,
		Category:        in.Category,
		Description:     in.Description,
		DefaultMeterage: in.DefaultMeterage,
		DefaultWeightKg: in.DefaultWeightKg,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO products
		(id, sku, name, kind, category, description, default_meterage, default_weight_kg, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		p.ID, p.SKU, p.Name, string(p.Kind), p.Category, p.Description,
		p.DefaultMeterage, p.DefaultWeightKg, now, now)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct edits display fields. SKU and kind are immutable once created:
// units already admitted under them depend on both.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) error {
	if in.Name == "" {
		return domain.Errf(domain.ErrInvalidState, "name is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products
		SET name = ?, category = ?, description = ?, default_meterage = ?, default_weight_kg = ?, updated_at = ?
		WHERE id = ?`,
		in.Name, in.Category, in.Description, in.DefaultMeterage, in.DefaultWeightKg, domain.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errf(domain.ErrNotFound, "product %s not found", id)
	}
	return nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	var units int
	if err := s.db.GetContext(ctx, &units, `SELECT COUNT(*) FROM inventory_units WHERE product_id = ?`, id); err != nil {
		return err
	}
	if units > 0 {
		return domain.Errf(domain.ErrReferencedEntity, "product is referenced by %d inventory units", units)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errf(domain.ErrNotFound, "product %s not found", id)
	}
	return nil
}

// Locations

type LocationInput struct {
	Aisle    string  `json:"aisle"`
	Rack     string  `json:"rack"`
	Level    string  `json:"level"`
	Position string  `json:"position"`
	Barcode  *string `json:"barcode,omitempty"`
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	locations := []domain.Location{}
	err := s.db.SelectContext(ctx, &locations, `SELECT id, aisle, rack, level, position, barcode, created_at, updated_at
		FROM locations ORDER BY aisle, rack, level, position`)
	return locations, err
}

func (s *Service) CreateLocation(ctx context.Context, in LocationInput) (*domain.Location, error) {
	if in.Aisle == "" || in.Rack == "" || in.Level == "" || in.Position == "" {
		return nil, domain.Errf(domain.ErrInvalidState, "aisle, rack, level and position are required")
	}
	now := domain.Now()
	loc := domain.Location{
		ID:        uuid.NewString(),
		Aisle:     in.Aisle,
		Rack:      in.Rack,
		Level:     in.Level,
		Position:  in.Position,
		Barcode:   in.Barcode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO locations (id, aisle, rack, level, position, barcode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		loc.ID, loc.Aisle, loc.Rack, loc.Level, loc.Position, loc.Barcode, now, now)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id string, in LocationInput) error {
	if in.Aisle == "" || in.Rack == "" || in.Level == "" || in.Position == "" {
		return domain.Errf(domain.ErrInvalidState, "aisle, rack, level and position are required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE locations
		SET aisle = ?, rack = ?, level = ?, position = ?, barcode = ?, updated_at = ?
		WHERE id = ?`,
		in.Aisle, in.Rack, in.Level, in.Position, in.Barcode, domain.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errf(domain.ErrNotFound, "location %s not found", id)
	}
	return nil
}

func (s *Service) DeleteLocation(ctx context.Context, id string) error {
	var occupied int
	if err := s.db.GetContext(ctx, &occupied, `SELECT COUNT(*) FROM inventory_units WHERE location_id = ?`, id); err != nil {
		return err
	}
	if occupied > 0 {
		return domain.Errf(domain.ErrReferencedEntity, "location is occupied by %d inventory units", occupied)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errf(domain.ErrNotFound, "location %s not found", id)
	}
	return nil
}

// Customers

type CustomerInput struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	City  *string `json:"city,omitempty"`
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	err := s.db.SelectContext(ctx, &customers, `SELECT id, name, email, phone, city, is_active, created_at, updated_at
		FROM customers WHERE is_active = 1 ORDER BY name`)
	return customers, err
}

func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*domain.Customer, error) {
	if in.Name == "" {
		return nil, domain.Errf(domain.ErrInvalidState, "name is required")
	}
	now := domain.Now()
	c := domain.Customer{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		City:      in.City,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO customers (id, name, email, phone, city, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.City, now, now)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Manifests

func (s *Service) ListManifests(ctx context.Context) ([]domain.Manifest, error) {
	manifests := []domain.Manifest{}
	err := s.db.SelectContext(ctx, &manifests, `SELECT id, supplier_name, arrival_date, status, created_at, updated_at
		FROM manifests ORDER BY created_at DESC`)
	return manifests, err
}

// DeleteManifest removes a manifest and its units, but only while every unit
// is still quarantined. Once any unit has been placed or progressed further
// the manifest is part of the audit trail and deletion is refused.
func (s *Service) DeleteManifest(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.Get(&exists, `SELECT EXISTS(SELECT 1 FROM manifests WHERE id = ?)`, id); err != nil {
		return err
	}
	if !exists {
		return domain.Errf(domain.ErrNotFound, "manifest %s not found", id)
	}

	var progressed int
	err = tx.Get(&progressed, `SELECT COUNT(*) FROM inventory_units
		WHERE manifest_id = ? AND status != ?`, id, string(domain.StatusQuarantine))
	if err != nil {
		return err
	}
	if progressed > 0 {
		return domain.Errf(domain.ErrReferencedEntity,
			"%d units of this manifest have progressed past quarantine", progressed)
	}

	if _, err := tx.Exec(`DELETE FROM inventory_units WHERE manifest_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM manifests WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetManifest returns one manifest with its unit count.
func (s *Service) GetManifest(ctx context.Context, id string) (*domain.Manifest, error) {
	var m domain.Manifest
	err := s.db.GetContext(ctx, &m, `SELECT id, supplier_name, arrival_date, status, created_at, updated_at
		FROM manifests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errf(domain.ErrNotFound, "manifest %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
