package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-bom/internal/bom/entity"
	"github.com/bitfantasy/nimo-bom/internal/bom/repository"
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/testutil"
)

const fixtureJSON = `{
  "items": [
    {"id": 1, "sku": "PART-A", "name": "Part A", "unit": "pcs"},
    {"id": 2, "sku": "WIDGET", "name": "Widget", "unit": "pcs", "list_price": "35", "list_currency": "USD"}
  ],
  "suppliers": [{"id": 10, "code": "ACME", "name": "Acme", "currency": "EUR"}],
  "boms": [{"id": 20, "name": "WIDGET"}],
  "bom_lines": [{"bom_id": 20, "item_id": 1, "quantity": "2"}],
  "vendor_links": [{"item_id": 1, "supplier_id": 10, "preferred": true}],
  "vendor_prices": [{"item_id": 1, "price": "10.00", "effective_at": "2024-01-01T00:00:00Z"}],
  "fx_rates": [{"base_currency": "USD", "quote_currency": "EUR", "rate": "0.8", "effective_at": "2024-01-01T00:00:00Z"}]
}`

func TestLoadFixture(t *testing.T) {
	store, err := repository.LoadFixture(strings.NewReader(fixtureJSON))
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}
	ctx := context.Background()

	lines, err := store.GetBOMLines(ctx, 20)
	if err != nil || len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %v (%v)", lines, err)
	}
	if lines[0].SKU != "PART-A" || !lines[0].Quantity.Equal(testutil.D("2")) {
		t.Errorf("Unexpected line %+v", lines[0])
	}

	cur, err := store.GetPreferredVendorCurrency(ctx, 1)
	if err != nil || cur != "EUR" {
		t.Errorf("Expected EUR, got %q (%v)", cur, err)
	}

	lp, err := store.GetListPrice(ctx, "widget")
	if err != nil || !lp.Price.Equal(testutil.D("35")) {
		t.Errorf("Expected list price 35, got %v (%v)", lp, err)
	}

	// 价格无币种，按供应商 EUR 计，10 EUR * 2 / 0.8
	svc := costing.NewService(store, costing.Settings{BaseCurrency: "USD"}, nil)
	total, err := svc.ComputeTotalCost(ctx, 20)
	if err != nil {
		t.Fatalf("ComputeTotalCost failed: %v", err)
	}
	if !total.Total.Equal(testutil.D("25")) {
		t.Errorf("Expected 25, got %s", total.Total)
	}
}

func TestLoadFixtureRejectsInvalidJSON(t *testing.T) {
	if _, err := repository.LoadFixture(strings.NewReader("{")); err == nil {
		t.Error("Expected decode error")
	}
}

func TestLoadFixtureWithoutFX(t *testing.T) {
	store, err := repository.LoadFixture(strings.NewReader(`{"fx_provisioned": false}`))
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}
	ok, err := store.FXRatesAvailable(context.Background())
	if err != nil || ok {
		t.Errorf("Expected fx rates unavailable, got %v (%v)", ok, err)
	}
}

func TestMemoryFindBOMsByName(t *testing.T) {
	store := repository.NewMemoryStore()
	a := store.AddBOM(entity.BOM{Name: "Straße"})
	b := store.AddBOM(entity.BOM{Name: "STRASSE"})
	store.AddBOM(entity.BOM{Name: "OTHER"})

	refs, err := store.FindBOMsByName(context.Background(), " strasse ")
	if err != nil {
		t.Fatalf("FindBOMsByName failed: %v", err)
	}
	if len(refs) != 2 || refs[0].ID != a || refs[1].ID != b {
		t.Errorf("Expected both case-folded matches, got %v", refs)
	}
}

func TestMemoryNotFound(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetBOM(ctx, 1); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetBOM: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLatestVendorPrice(ctx, 1); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetLatestVendorPrice: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLatestFXRate(ctx, "USD", "EUR"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetLatestFXRate: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetListPrice(ctx, "X"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetListPrice: expected ErrNotFound, got %v", err)
	}
	if cur, err := store.GetPreferredVendorCurrency(ctx, 1); err != nil || cur != "" {
		t.Errorf("GetPreferredVendorCurrency: expected empty, got %q (%v)", cur, err)
	}
}
