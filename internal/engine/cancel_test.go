package engine

import (
	"context"
	"testing"

	"almacen/m/domain"
)

func TestCancelDiscreteOrder(t *testing.T) {
	e, db := newTestEngine(t)
	_, discrete, customerID := mustSetup(t, e, db)
	unit := getUnit(t, db, discrete)

	ctx := context.Background()
	orderID, err := e.Allocate(ctx, "", customerID, "", []AllocationLine{{UnitID: unit.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelOrder(ctx, "", orderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	unit = getUnit(t, db, discrete)
	if unit.Status != domain.StatusAvailable {
		t.Errorf("status = %s, want available after cancel", unit.Status)
	}
	if unit.LocationID != nil {
		t.Errorf("cancelled unit must come back without a location, got %v", *unit.LocationID)
	}
	if unit.DispatchedAt != nil {
		t.Errorf("dispatched_at must be cleared")
	}

	var status string
	if err := db.Get(&status, `SELECT status FROM orders WHERE id = ?`, orderID); err != nil {
		t.Fatal(err)
	}
	if status != string(domain.OrderCancelled) {
		t.Errorf("order status = %s, want cancelled", status)
	}
}

func TestCancelMeasuredRestoresMeterage(t *testing.T) {
	e, db := newTestEngine(t)
	measured, _, customerID := mustSetup(t, e, db)
	unit := getUnit(t, db, measured)

	ctx := context.Background()
	orderID, err := e.Allocate(ctx, "", customerID, "", []AllocationLine{
		{UnitID: unit.ID, Meterage: dec(t, "4")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelOrder(ctx, "", orderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	unit = getUnit(t, db, measured)
	if !unit.RemainingMeterage.Equal(*dec(t, "10")) {
		t.Errorf("remaining = %s, want 10 restored", unit.RemainingMeterage)
	}
	if unit.Status != domain.StatusAvailable {
		t.Errorf("status = %s, want available", unit.Status)
	}
	// Partial consumption never cleared the location, so cancel keeps it.
	if unit.LocationID == nil {
		t.Errorf("partially consumed unit should keep its location through cancel")
	}
}

func TestCancelFullyConsumedMeasured(t *testing.T) {
	e, db := newTestEngine(t)
	measured, _, customerID := mustSetup(t, e, db)
	unit := getUnit(t, db, measured)

	ctx := context.Background()
	orderID, err := e.Allocate(ctx, "", customerID, "", []AllocationLine{
		{UnitID: unit.ID, Meterage: dec(t, "10")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelOrder(ctx, "", orderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	unit = getUnit(t, db, measured)
	if unit.Status != domain.StatusAvailable {
		t.Errorf("status = %s, want available", unit.Status)
	}
	if !unit.RemainingMeterage.Equal(*dec(t, "10")) {
		t.Errorf("remaining = %s, want 10", unit.RemainingMeterage)
	}
	if unit.LocationID != nil {
		t.Errorf("a unit that was dispatched must be re-placed after cancel")
	}

	moves, err := e.ListMovements(ctx, unit.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := moves[len(moves)-1]
	if last.Reason == nil || *last.Reason != "dispatch cancelled" {
		t.Errorf("last movement reason = %v, want dispatch cancelled", last.Reason)
	}
}

func TestCancelTwiceFails(t *testing.T) {
	e, db := newTestEngine(t)
	_, discrete, customerID := mustSetup(t, e, db)
	unit := getUnit(t, db, discrete)

	ctx := context.Background()
	orderID, err := e.Allocate(ctx, "", customerID, "", []AllocationLine{{UnitID: unit.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelOrder(ctx, "", orderID); err != nil {
		t.Fatal(err)
	}
	err = e.CancelOrder(ctx, "", orderID)
	if codeOf(t, err) != domain.ErrInvalidState {
		t.Errorf("error code = %s, want invalid_state", domain.CodeOf(err))
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	e, db := newTestEngine(t)
	mustSetup(t, e, db)

	err := e.CancelOrder(context.Background(), "", "no-such-order")
	if codeOf(t, err) != domain.ErrNotFound {
		t.Errorf("error code = %s, want not_found", domain.CodeOf(err))
	}
}

func TestCancelFlagsRetiredUnitForManualReview(t *testing.T) {
	e, db := newTestEngine(t)
	_, discrete, customerID := mustSetup(t, e, db)
	unit := getUnit(t, db, discrete)

	ctx := context.Background()
	orderID, err := e.Allocate(ctx, "", customerID, "", []AllocationLine{{UnitID: unit.ID}})
	if err != nil {
		t.Fatal(err)
	}
	// The unit was written off out of band after dispatch, so the reversal
	// no longer applies.
	if _, err := db.Exec(`UPDATE inventory_units SET status = 'retired', version = version + 1 WHERE id = ?`, unit.ID); err != nil {
		t.Fatal(err)
	}

	err = e.CancelOrder(ctx, "", orderID)
	if codeOf(t, err) != domain.ErrInvalidState {
		t.Errorf("error code = %s, want invalid_state", domain.CodeOf(err))
	}

	unit = getUnit(t, db, discrete)
	if unit.Status != domain.StatusRetired {
		t.Errorf("status = %s, want retired untouched by the failed cancel", unit.Status)
	}
	var status string
	if err := db.Get(&status, `SELECT status FROM orders WHERE id = ?`, orderID); err != nil {
		t.Fatal(err)
	}
	if status != string(domain.OrderCancelled) {
		// Failed cancel leaves the order in its previous state.
		if status != string(domain.OrderCompleted) {
			t.Errorf("order status = %s, want completed", status)
		}
	}
}

func TestCancelRefusesOverRestore(t *testing.T) {
	e, db := newTestEngine(t)
	measured, _, customerID := mustSetup(t, e, db)
	unit := getUnit(t, db, measured)

	ctx := context.Background()
	orderID, err := e.Allocate(ctx, "", customerID, "", []AllocationLine{
		{UnitID: unit.ID, Meterage: dec(t, "4")},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a correction that already bumped the remaining quantity back up.
	if _, err := db.Exec(`UPDATE inventory_units SET remaining_meterage = '9' WHERE id = ?`, unit.ID); err != nil {
		t.Fatal(err)
	}

	err = e.CancelOrder(ctx, "", orderID)
	if codeOf(t, err) != domain.ErrInvalidState {
		t.Errorf("error code = %s, want invalid_state for manual review", domain.CodeOf(err))
	}
}
