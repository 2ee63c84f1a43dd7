package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"almacen/m/internal/catalog"
	"almacen/m/internal/engine"
	"almacen/m/internal/migrations"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		t.Fatal(err)
	}
	migrations.Run(db)

	h := New(db, engine.New(db, nil), catalog.New(db), "test-secret")
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func doJSONList(t *testing.T, url, token string) (*http.Response, []map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func registerOperator(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]string{
		"username": "ana",
		"email":    "ana@almacen.test",
		"password": "secreto123",
		"role":     "operator",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("register returned no token")
	}
	return token
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/products/", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/products/", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	registerOperator(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email":    "ANA@almacen.test",
		"password": "secreto123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body %v", resp.StatusCode, body)
	}
	if body["token"] == "" {
		t.Error("login returned no token")
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email":    "ana@almacen.test",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	registerOperator(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]string{
		"username": "otra",
		"email":    "ana@almacen.test",
		"password": "secreto123",
		"role":     "operator",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestInventoryLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := registerOperator(t, srv)

	// Catalog setup.
	resp, product := doJSON(t, http.MethodPost, srv.URL+"/products/", token, map[string]any{
		"sku": "TELA-1", "name": "Lona impermeable", "kind": "measured",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product status = %d, body %v", resp.StatusCode, product)
	}
	productID := product["id"].(string)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/locations/", token, map[string]any{
		"aisle": "A", "rack": "1", "level": "2", "position": "3", "barcode": "LOC-A1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create location status = %d", resp.StatusCode)
	}

	resp, customer := doJSON(t, http.MethodPost, srv.URL+"/customers/", token, map[string]any{
		"name": "Textiles Norte",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create customer status = %d", resp.StatusCode)
	}
	customerID := customer["id"].(string)

	// Ingest: one known SKU, one unknown that must be skipped.
	resp, ingest := doJSON(t, http.MethodPost, srv.URL+"/manifests/", token, map[string]any{
		"supplier":     "Proveedor Sur",
		"arrival_date": "2026-08-30",
		"lines": []map[string]any{
			{"serial": "ROLL-001", "sku": "TELA-1", "meterage": "10"},
			{"serial": "ROLL-XXX", "sku": "NO-SUCH", "meterage": "5"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %v", resp.StatusCode, ingest)
	}
	if got := ingest["admitted_count"].(float64); got != 1 {
		t.Errorf("admitted_count = %v, want 1", got)
	}
	skipped := ingest["skipped_skus"].([]any)
	if len(skipped) != 1 || skipped[0] != "NO-SUCH" {
		t.Errorf("skipped_skus = %v, want [NO-SUCH]", skipped)
	}

	// Place the admitted roll.
	resp, placed := doJSON(t, http.MethodPost, srv.URL+"/units/place", token, map[string]any{
		"serial": "ROLL-001", "location_code": "LOC-A1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place status = %d, body %v", resp.StatusCode, placed)
	}
	unitID := placed["unit_id"].(string)

	// The unit is now eligible for the product.
	resp, eligible := doJSONList(t, srv.URL+"/units/eligible?product_id="+productID, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("eligible status = %d", resp.StatusCode)
	}
	if len(eligible) != 1 || eligible[0]["serial"] != "ROLL-001" {
		t.Fatalf("eligible = %v, want ROLL-001", eligible)
	}

	// Allocate part of the roll.
	resp, order := doJSON(t, http.MethodPost, srv.URL+"/orders/", token, map[string]any{
		"customer_id": customerID,
		"lines": []map[string]any{
			{"unit_id": unitID, "meterage": "4"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("allocate status = %d, body %v", resp.StatusCode, order)
	}
	orderID := order["order_id"].(string)

	// Over-allocation is rejected as unprocessable.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/orders/", token, map[string]any{
		"customer_id": customerID,
		"lines": []map[string]any{
			{"unit_id": unitID, "meterage": "100"},
		},
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("over-allocation status = %d, want 422", resp.StatusCode)
	}

	// Cancel restores the consumed meterage.
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/orders/%s/cancel", srv.URL, orderID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/orders/%s/cancel", srv.URL, orderID), token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", resp.StatusCode)
	}

	// The movement trail is visible per unit.
	resp, moves := doJSONList(t, fmt.Sprintf("%s/units/%s/movements", srv.URL, unitID), token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("movements status = %d", resp.StatusCode)
	}
	if len(moves) == 0 {
		t.Error("expected at least the placement movement")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	token := registerOperator(t, srv)

	// Unknown unit in placement: 404.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/units/place", token, map[string]any{
		"serial": "NOPE", "location_code": "LOC-A1",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown serial status = %d, want 404", resp.StatusCode)
	}

	// Manifest with only unknown SKUs: 422.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/manifests/", token, map[string]any{
		"supplier":     "Proveedor",
		"arrival_date": "2026-08-30",
		"lines": []map[string]any{
			{"serial": "X-1", "sku": "NO-SUCH"},
		},
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty manifest status = %d, want 422", resp.StatusCode)
	}

	// Cancelling an unknown order: 404.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/orders/no-such/cancel", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown order status = %d, want 404", resp.StatusCode)
	}

	// Eligible listing without product_id: 400.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/units/eligible", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing product_id status = %d, want 400", resp.StatusCode)
	}
}
