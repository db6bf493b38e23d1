package costing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-bom/internal/bom/entity"
	"github.com/bitfantasy/nimo-bom/internal/bom/repository"
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/testutil"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T, store costing.Repository) *costing.Service {
	t.Helper()
	return costing.NewService(store, costing.Settings{
		BaseCurrency: "USD",
		DefaultDepth: 8,
		MaxDepth:     8,
	}, zaptest.NewLogger(t))
}

func explode(t *testing.T, svc *costing.Service, bomID uint, depth int) *costing.Explosion {
	t.Helper()
	e, err := svc.Explode(context.Background(), costing.ExplodeRequest{BOMID: bomID, Depth: depth, Aggregate: true})
	if err != nil {
		t.Fatalf("Explode(%d, %d) failed: %v", bomID, depth, err)
	}
	return e
}

func TestExplodeDirectLinesAtDepthOne(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := store.AddBOM(entity.BOM{Name: "FLAT"})
	testutil.Line(store, bomID, testutil.Item(store, "C-3", "1.00", "USD"), "7")
	testutil.Line(store, bomID, testutil.Item(store, "A-1", "2.00", "USD"), "1.5")
	testutil.Line(store, bomID, testutil.Item(store, "B-2", "3.00", "USD"), "4")

	e := explode(t, newService(t, store), bomID, 1)

	if len(e.Lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(e.Lines))
	}
	wantSKUs := []string{"A-1", "B-2", "C-3"}
	for i, l := range e.Lines {
		if l.SKU != wantSKUs[i] {
			t.Errorf("line %d: expected sku %s, got %s", i, wantSKUs[i], l.SKU)
		}
		if l.Level != 1 {
			t.Errorf("line %d: expected level 1, got %d", i, l.Level)
		}
		if !l.ExtendedQuantity.Equal(l.Quantity) {
			t.Errorf("line %d: extended %s != quantity %s", i, l.ExtendedQuantity, l.Quantity)
		}
	}
	// 3 + 12 + 7
	if !e.TotalPrice.Equal(testutil.D("22")) {
		t.Errorf("Expected total 22, got %s", e.TotalPrice)
	}
}

func TestExplodeByNameSingleLevel(t *testing.T) {
	store := repository.NewMemoryStore()
	testutil.SeedWidget(store)
	svc := newService(t, store)

	e, err := svc.ExplodeByName(context.Background(), costing.ExplodeRequest{Name: "widget", Depth: 1})
	if err != nil {
		t.Fatalf("ExplodeByName failed: %v", err)
	}
	if len(e.Lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(e.Lines))
	}
	l := e.Lines[0]
	if !l.ExtendedQuantity.Equal(testutil.D("2")) {
		t.Errorf("Expected extended quantity 2, got %s", l.ExtendedQuantity)
	}
	if !l.UnitPrice.Valid || !l.UnitPrice.Decimal.Equal(testutil.D("10")) {
		t.Errorf("Expected unit price 10, got %v", l.UnitPrice)
	}
	if !l.LineTotal.Valid || !l.LineTotal.Decimal.Equal(testutil.D("20")) {
		t.Errorf("Expected line total 20, got %v", l.LineTotal)
	}
	if !e.TotalPrice.Equal(testutil.D("20")) || e.TotalCurrency != "USD" {
		t.Errorf("Expected total 20 USD, got %s %s", e.TotalPrice, e.TotalCurrency)
	}
	if e.Aggregate != nil {
		t.Errorf("Expected no aggregate without the flag, got %v", e.Aggregate)
	}
}

func TestExplodeSubAssemblyConvertsToBase(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := testutil.SeedWidgetWithSub(store, true)

	e := explode(t, newService(t, store), bomID, 2)

	if len(e.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(e.Lines))
	}
	sub, part := e.Lines[0], e.Lines[1]
	if sub.SKU != "SUB-1" || !sub.HasSubBOM || sub.UnitPrice.Valid || sub.LineTotal.Valid {
		t.Errorf("Unexpected sub-assembly line: %+v", sub)
	}
	if part.SKU != "PART-B" || part.Level != 2 {
		t.Fatalf("Unexpected level-2 line: %+v", part)
	}
	if !part.ExtendedQuantity.Equal(testutil.D("6")) {
		t.Errorf("Expected extended quantity 6, got %s", part.ExtendedQuantity)
	}
	if part.Currency != "EUR" {
		t.Errorf("Expected EUR, got %s", part.Currency)
	}
	if !part.UnitPriceBase.Valid || !part.UnitPriceBase.Decimal.Round(2).Equal(testutil.D("5.56")) {
		t.Errorf("Expected unit price base ~5.56, got %v", part.UnitPriceBase)
	}
	if !part.LineTotalBase.Valid || !part.LineTotalBase.Decimal.Round(2).Equal(testutil.D("33.33")) {
		t.Errorf("Expected line total base ~33.33, got %v", part.LineTotalBase)
	}
	if !e.TotalPrice.Equal(testutil.D("33.3333")) {
		t.Errorf("Expected total 33.3333, got %s", e.TotalPrice)
	}
	if e.FXDegraded {
		t.Error("Expected fx_degraded=false")
	}
}

func TestExplodeWithoutFXSource(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := testutil.SeedMixedCurrency(store)
	store.SetFXAvailable(false)

	e := explode(t, newService(t, store), bomID, 1)

	if !e.FXDegraded {
		t.Error("Expected fx_degraded=true")
	}
	if !e.TotalPrice.Equal(testutil.D("4")) {
		t.Errorf("Expected total 4 (USD lines only), got %s", e.TotalPrice)
	}
	if len(e.TotalsByCurrency) != 2 {
		t.Fatalf("Expected 2 currency totals, got %v", e.TotalsByCurrency)
	}
	if ct := e.TotalsByCurrency[0]; ct.Currency != "EUR" || !ct.Total.Equal(testutil.D("6")) {
		t.Errorf("Expected EUR 6, got %s %s", ct.Currency, ct.Total)
	}
	if ct := e.TotalsByCurrency[1]; ct.Currency != "USD" || !ct.Total.Equal(testutil.D("4")) {
		t.Errorf("Expected USD 4, got %s %s", ct.Currency, ct.Total)
	}
	for _, l := range e.Lines {
		if l.SKU == "EUR-PART" && (!l.Unconvertible || l.LineTotalBase.Valid) {
			t.Errorf("Expected EUR line to be unconvertible: %+v", l)
		}
	}
	if e.Unconvertible != 1 {
		t.Errorf("Expected 1 unconvertible line, got %d", e.Unconvertible)
	}
}

func TestExplodeClampsDepth(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := testutil.SeedChain(store, 10)
	svc := newService(t, store)

	tests := []struct {
		depth    int
		want     int
		maxLevel int
	}{
		{0, 1, 1},
		{-3, 1, 1},
		{3, 3, 3},
		{99, 8, 8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth=%d", tt.depth), func(t *testing.T) {
			e := explode(t, svc, rootID, tt.depth)
			if e.Depth != tt.want {
				t.Errorf("Expected depth %d, got %d", tt.want, e.Depth)
			}
			maxLevel := 0
			for _, l := range e.Lines {
				if l.Level > maxLevel {
					maxLevel = l.Level
				}
			}
			if maxLevel != tt.maxLevel {
				t.Errorf("Expected deepest level %d, got %d", tt.maxLevel, maxLevel)
			}
		})
	}
}

func TestExplodePrefixProperty(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := testutil.SeedChain(store, 4)
	// 根上再挂一个普通叶子
	testutil.Line(store, rootID, testutil.Item(store, "WASHER", "0.10", "USD"), "3")
	svc := newService(t, store)

	for n := 1; n < 5; n++ {
		shallow := explode(t, svc, rootID, n)
		deep := explode(t, svc, rootID, n+1)

		var prefix []costing.Line
		for _, l := range deep.Lines {
			if l.Level <= n {
				prefix = append(prefix, l)
			}
		}
		if len(prefix) != len(shallow.Lines) {
			t.Fatalf("depth %d: expected %d lines at level <= %d, got %d", n, len(shallow.Lines), n, len(prefix))
		}
		for i := range prefix {
			a, b := shallow.Lines[i], prefix[i]
			if a.SKU != b.SKU || a.Level != b.Level || !a.ExtendedQuantity.Equal(b.ExtendedQuantity) ||
				a.HasSubBOM != b.HasSubBOM || a.UnitPrice.Valid != b.UnitPrice.Valid {
				t.Errorf("depth %d line %d differs: %+v vs %+v", n, i, a, b)
			}
		}
	}
}

func TestAggregateSumsSKUAcrossLevels(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := store.AddBOM(entity.BOM{Name: "FRAME"})
	bolt := testutil.Item(store, "BOLT", "0.25", "USD")
	testutil.Line(store, rootID, bolt, "2")
	testutil.Line(store, rootID, testutil.Item(store, "BRACKET", "", ""), "3")

	bracket := store.AddBOM(entity.BOM{Name: "bracket"})
	testutil.Line(store, bracket, bolt, "4")
	testutil.Line(store, bracket, testutil.Item(store, "PLATE", "", ""), "1")

	e := explode(t, newService(t, store), rootID, 8)

	totals := map[string]string{}
	for _, a := range e.Aggregate {
		totals[a.SKU] = a.Quantity.String()
	}
	if totals["BOLT"] != "14" {
		t.Errorf("Expected BOLT 14, got %s", totals["BOLT"])
	}
	// 无价格的物料数量照样汇总
	if totals["PLATE"] != "3" {
		t.Errorf("Expected PLATE 3, got %s", totals["PLATE"])
	}
	if totals["BRACKET"] != "3" {
		t.Errorf("Expected BRACKET 3, got %s", totals["BRACKET"])
	}
	// 14 * 0.25
	if !e.TotalPrice.Equal(testutil.D("3.5")) {
		t.Errorf("Expected total 3.5, got %s", e.TotalPrice)
	}
}

func TestAggregateMergesCaseVariantSKUs(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := store.AddBOM(entity.BOM{Name: "MIXCASE"})
	testutil.Line(store, rootID, testutil.Item(store, "C", "1", "USD"), "1")
	testutil.Line(store, rootID, testutil.Item(store, "b", "1", "USD"), "1")
	lower := testutil.Item(store, "abc", "1", "USD")
	upper := testutil.Item(store, "ABC", "1", "USD")
	testutil.Line(store, rootID, lower, "2")
	testutil.Line(store, rootID, upper, "3")

	e := explode(t, newService(t, store), rootID, 1)

	var lineSKUs, aggSKUs []string
	for _, l := range e.Lines {
		lineSKUs = append(lineSKUs, l.SKU)
	}
	for _, a := range e.Aggregate {
		aggSKUs = append(aggSKUs, a.SKU)
	}
	// 行与汇总使用同一种不区分大小写的顺序，同键按仓库返回顺序
	if got := fmt.Sprint(lineSKUs); got != "[ABC abc b C]" {
		t.Errorf("Unexpected line order %s", got)
	}
	if got := fmt.Sprint(aggSKUs); got != "[ABC b C]" {
		t.Errorf("Unexpected aggregate order %s", got)
	}

	merged := e.Aggregate[0]
	if !merged.Quantity.Equal(testutil.D("5")) {
		t.Errorf("Expected merged quantity 5, got %s", merged.Quantity)
	}
	if merged.ItemID != 0 || fmt.Sprint(merged.ItemIDs) != fmt.Sprint([]uint{lower, upper}) {
		t.Errorf("Expected item ids %v without a single item id, got %d %v", []uint{lower, upper}, merged.ItemID, merged.ItemIDs)
	}
	if single := e.Aggregate[1]; single.ItemID == 0 || len(single.ItemIDs) != 1 {
		t.Errorf("Expected single-item row to keep its item id, got %+v", single)
	}
}

func TestExplodeCutoffExcludesAssemblyCost(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := testutil.SeedChain(store, 3)
	svc := newService(t, store)

	e := explode(t, svc, rootID, 2)
	last := e.Lines[len(e.Lines)-1]
	if last.Level != 2 || !last.HasSubBOM {
		t.Fatalf("Expected cut-off assembly at level 2, got %+v", last)
	}

	// 装配件本身有价格也不计入
	store.AddVendorPrice(entity.VendorPrice{ItemID: last.ItemID, Price: testutil.D("100"), Currency: testutil.Str("USD"), EffectiveAt: testutil.Epoch})
	e = explode(t, svc, rootID, 2)
	last = e.Lines[len(e.Lines)-1]
	if last.UnitPrice.Valid || last.LineTotal.Valid || last.LineTotalBase.Valid {
		t.Errorf("Expected null prices on cut-off assembly, got %+v", last)
	}
	if !e.TotalPrice.IsZero() || len(e.TotalsByCurrency) != 0 {
		t.Errorf("Expected zero totals, got %s %v", e.TotalPrice, e.TotalsByCurrency)
	}

	full := explode(t, svc, rootID, 3)
	if !full.TotalPrice.Equal(testutil.D("8")) {
		t.Errorf("Expected full total 8, got %s", full.TotalPrice)
	}
}

func TestExplodeDetectsCycles(t *testing.T) {
	store := repository.NewMemoryStore()
	a := store.AddBOM(entity.BOM{Name: "ASM-A"})
	b := store.AddBOM(entity.BOM{Name: "ASM-B"})
	testutil.Line(store, a, testutil.Item(store, "ASM-B", "", ""), "1")
	testutil.Line(store, b, testutil.Item(store, "asm-a", "", ""), "1")
	svc := newService(t, store)

	_, err := svc.Explode(context.Background(), costing.ExplodeRequest{BOMID: a, Depth: 8})
	if !costing.IsKind(err, costing.KindCycleDetected) {
		t.Fatalf("Expected CYCLE_DETECTED, got %v", err)
	}

	// 深度不足以重新进入时不报错
	e := explode(t, svc, a, 2)
	if len(e.Lines) != 2 {
		t.Errorf("Expected 2 lines at depth 2, got %d", len(e.Lines))
	}
}

func TestExplodeDetectsSelfReference(t *testing.T) {
	store := repository.NewMemoryStore()
	self := store.AddBOM(entity.BOM{Name: "LOOP"})
	testutil.Line(store, self, testutil.Item(store, "LOOP", "", ""), "2")

	_, err := newService(t, store).Explode(context.Background(), costing.ExplodeRequest{BOMID: self, Depth: 2})
	if !costing.IsKind(err, costing.KindCycleDetected) {
		t.Fatalf("Expected CYCLE_DETECTED, got %v", err)
	}
}

func TestExplodeAmbiguousName(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := store.AddBOM(entity.BOM{Name: "ROOT"})
	testutil.Line(store, rootID, testutil.Item(store, "DUP", "", ""), "1")
	store.AddBOM(entity.BOM{Name: "DUP"})
	store.AddBOM(entity.BOM{Name: "dup"})
	svc := newService(t, store)

	_, err := svc.Explode(context.Background(), costing.ExplodeRequest{BOMID: rootID, Depth: 2})
	if !costing.IsKind(err, costing.KindAmbiguousBOM) {
		t.Errorf("Expected AMBIGUOUS_BOM from traversal, got %v", err)
	}

	_, err = svc.ExplodeByName(context.Background(), costing.ExplodeRequest{Name: "Dup"})
	if !costing.IsKind(err, costing.KindAmbiguousBOM) {
		t.Errorf("Expected AMBIGUOUS_BOM from name lookup, got %v", err)
	}
}

func TestExplodeUnresolvedPrice(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := store.AddBOM(entity.BOM{Name: "KIT"})
	testutil.Line(store, bomID, testutil.Item(store, "PRICED", "1.50", "USD"), "2")
	testutil.Line(store, bomID, testutil.Item(store, "UNPRICED", "", ""), "5")

	e := explode(t, newService(t, store), bomID, 1)

	var unpriced costing.Line
	for _, l := range e.Lines {
		if l.SKU == "UNPRICED" {
			unpriced = l
		}
	}
	if !unpriced.PriceUnresolved || unpriced.UnitPrice.Valid || unpriced.LineTotal.Valid {
		t.Errorf("Expected unresolved price, got %+v", unpriced)
	}
	if !e.TotalPrice.Equal(testutil.D("3")) {
		t.Errorf("Expected total 3, got %s", e.TotalPrice)
	}
	if len(e.Aggregate) != 2 {
		t.Errorf("Expected both SKUs in aggregate, got %v", e.Aggregate)
	}
}

func TestExplodeFallsBackToPreferredVendorCurrency(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := store.AddBOM(entity.BOM{Name: "KIT"})
	itemID := testutil.Item(store, "SCREW", "", "")
	testutil.Line(store, bomID, itemID, "10")
	store.AddVendorPrice(entity.VendorPrice{ItemID: itemID, Price: testutil.D("2"), EffectiveAt: testutil.Epoch})

	eur := store.AddSupplier(entity.Supplier{Code: "S-EUR", Name: "eur", Currency: testutil.Str("EUR")})
	gbp := store.AddSupplier(entity.Supplier{Code: "S-GBP", Name: "gbp", Currency: testutil.Str("GBP")})
	jpy := store.AddSupplier(entity.Supplier{Code: "S-JPY", Name: "jpy", Currency: testutil.Str("jpy")})
	one, two := 1, 2
	store.AddVendorLink(entity.VendorLink{ItemID: itemID, SupplierID: eur, Priority: &one})
	store.AddVendorLink(entity.VendorLink{ItemID: itemID, SupplierID: gbp, Preferred: true})
	store.AddVendorLink(entity.VendorLink{ItemID: itemID, SupplierID: jpy, Preferred: true, Priority: &two})
	testutil.Rate(store, "USD", "JPY", "100")

	e := explode(t, newService(t, store), bomID, 1)

	l := e.Lines[0]
	if l.Currency != "JPY" {
		t.Fatalf("Expected fallback currency JPY, got %q", l.Currency)
	}
	// 20 JPY / 100
	if !e.TotalPrice.Equal(testutil.D("0.2")) {
		t.Errorf("Expected total 0.2, got %s", e.TotalPrice)
	}
}

func TestExplodeLatestPriceTieBreak(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := store.AddBOM(entity.BOM{Name: "KIT"})
	itemID := testutil.Item(store, "NUT", "", "")
	testutil.Line(store, bomID, itemID, "1")

	store.AddVendorPrice(entity.VendorPrice{ItemID: itemID, Price: testutil.D("9"), Currency: testutil.Str("USD"), EffectiveAt: testutil.Epoch.Add(48 * time.Hour)})
	store.AddVendorPrice(entity.VendorPrice{ItemID: itemID, Price: testutil.D("1"), Currency: testutil.Str("USD"), EffectiveAt: testutil.Epoch})
	store.AddVendorPrice(entity.VendorPrice{ItemID: itemID, Price: testutil.D("3"), Currency: testutil.Str("USD"), EffectiveAt: testutil.Epoch.Add(72 * time.Hour)})
	store.AddVendorPrice(entity.VendorPrice{ItemID: itemID, Price: testutil.D("4"), Currency: testutil.Str("USD"), EffectiveAt: testutil.Epoch.Add(72 * time.Hour)})

	e := explode(t, newService(t, store), bomID, 1)
	if !e.Lines[0].UnitPrice.Decimal.Equal(testutil.D("4")) {
		t.Errorf("Expected latest price with highest id (4), got %s", e.Lines[0].UnitPrice.Decimal)
	}
}

func TestExplodeBaseCurrencyOverride(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := testutil.SeedMixedCurrency(store)
	testutil.Rate(store, "EUR", "USD", "1.25")
	svc := newService(t, store)

	e, err := svc.Explode(context.Background(), costing.ExplodeRequest{BOMID: bomID, Depth: 1, BaseCurrency: "eur"})
	if err != nil {
		t.Fatalf("Explode failed: %v", err)
	}
	if e.BaseCurrency != "EUR" || e.TotalCurrency != "EUR" {
		t.Errorf("Expected EUR base, got %s/%s", e.BaseCurrency, e.TotalCurrency)
	}
	// 4 USD / 1.25 + 6 EUR
	if !e.TotalPrice.Equal(testutil.D("9.2")) {
		t.Errorf("Expected total 9.2, got %s", e.TotalPrice)
	}
}

func TestExplodeErrors(t *testing.T) {
	store := repository.NewMemoryStore()
	testutil.SeedWidget(store)
	svc := newService(t, store)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want costing.Kind
	}{
		{"zero id", func() error {
			_, err := svc.Explode(ctx, costing.ExplodeRequest{})
			return err
		}, costing.KindInvalidInput},
		{"unknown id", func() error {
			_, err := svc.Explode(ctx, costing.ExplodeRequest{BOMID: 999})
			return err
		}, costing.KindNotFound},
		{"empty name", func() error {
			_, err := svc.ExplodeByName(ctx, costing.ExplodeRequest{Name: "  "})
			return err
		}, costing.KindInvalidInput},
		{"unknown name", func() error {
			_, err := svc.ExplodeByName(ctx, costing.ExplodeRequest{Name: "GADGET"})
			return err
		}, costing.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); costing.KindOf(err) != tt.want {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestExplodeUnavailableStore(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := testutil.SeedWidget(store)
	store.FailWith(fmt.Errorf("%w: connection refused", repository.ErrUnavailable))

	_, err := newService(t, store).Explode(context.Background(), costing.ExplodeRequest{BOMID: bomID})
	if !costing.IsKind(err, costing.KindUnavailable) {
		t.Fatalf("Expected UNAVAILABLE, got %v", err)
	}
}

func TestComputeTotalCostMatchesExplode(t *testing.T) {
	store := repository.NewMemoryStore()
	bomID := testutil.SeedWidgetWithSub(store, true)
	svc := newService(t, store)

	total, err := svc.ComputeTotalCost(context.Background(), bomID)
	if err != nil {
		t.Fatalf("ComputeTotalCost failed: %v", err)
	}
	e := explode(t, svc, bomID, svc.Settings().DefaultDepth)
	if !total.Total.Equal(e.TotalPrice) || total.Currency != e.TotalCurrency {
		t.Errorf("ComputeTotalCost %s %s != Explode %s %s", total.Total, total.Currency, e.TotalPrice, e.TotalCurrency)
	}
}

func TestExplodeHonoursCancelledContext(t *testing.T) {
	store := repository.NewMemoryStore()
	rootID := testutil.SeedChain(store, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(t, store).Explode(ctx, costing.ExplodeRequest{BOMID: rootID, Depth: 3})
	if !costing.IsKind(err, costing.KindUnavailable) {
		t.Fatalf("Expected UNAVAILABLE for cancelled context, got %v", err)
	}
}
