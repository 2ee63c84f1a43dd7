package domain

import "fmt"

// Location is a warehouse coordinate: aisle, rack, level and position,
// optionally labelled with a scannable barcode.
type Location struct {
	ID        string  `db:"id" json:"id"`
	Aisle     string  `db:"aisle" json:"aisle"`
	Rack      string  `db:"rack" json:"rack"`
	Level     string  `db:"level" json:"level"`
	Position  string  `db:"position" json:"position"`
	Barcode   *string `db:"barcode" json:"barcode,omitempty"`
	CreatedAt string  `db:"created_at" json:"created_at"`
	UpdatedAt string  `db:"updated_at" json:"updated_at"`
}

// Label renders the coordinate in the A-R-L-P form used on warehouse signs.
func (l Location) Label() string {
	return fmt.Sprintf("%s-%s-%s-%s", l.Aisle, l.Rack, l.Level, l.Position)
}
