package domain

// MovementRecord is one entry in the append-only movement ledger. Placement
// writes from=nil, dispatch writes to=nil, relocation writes both sides.
// Records are never updated or deleted.
type MovementRecord struct {
	ID             string  `db:"id" json:"id"`
	UnitID         string  `db:"unit_id" json:"unit_id"`
	FromLocationID *string `db:"from_location_id" json:"from_location_id,omitempty"`
	ToLocationID   *string `db:"to_location_id" json:"to_location_id,omitempty"`
	Reason         *string `db:"reason" json:"reason,omitempty"`
	ActorID        *string `db:"actor_id" json:"actor_id,omitempty"`
	MovedAt        string  `db:"moved_at" json:"moved_at"`
}
