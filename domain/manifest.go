package domain

// ManifestStatus is derived from the states of the manifest's units.
type ManifestStatus string

const (
	ManifestPending     ManifestStatus = "pending"
	ManifestProcessing  ManifestStatus = "processing"
	ManifestComplete    ManifestStatus = "complete"
	ManifestDiscrepancy ManifestStatus = "discrepancy"
)

// Manifest groups the units admitted from one supplier delivery.
type Manifest struct {
	ID           string         `db:"id" json:"id"`
	SupplierName *string        `db:"supplier_name" json:"supplier_name,omitempty"`
	ArrivalDate  string         `db:"arrival_date" json:"arrival_date"`
	Status       ManifestStatus `db:"status" json:"status"`
	CreatedAt    string         `db:"created_at" json:"created_at"`
	UpdatedAt    string         `db:"updated_at" json:"updated_at"`
}
