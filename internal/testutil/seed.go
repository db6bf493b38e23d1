package testutil

import (
	"strconv"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-bom/internal/bom/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store 测试数据写入，MemoryStore 与 GormStore 都实现
type Store interface {
	AddItem(entity.Item) uint
	AddSupplier(entity.Supplier) uint
	AddBOM(entity.BOM) uint
	AddBOMLine(entity.BOMLine) uint
	AddVendorLink(entity.VendorLink) uint
	AddVendorPrice(entity.VendorPrice) uint
	AddFXRate(entity.FXRate) uint
}

// GormStore 写入 postgres 测试 schema
type GormStore struct {
	t  *testing.T
	db *gorm.DB
}

func NewGormStore(t *testing.T, db *gorm.DB) *GormStore {
	return &GormStore{t: t, db: db}
}

func (s *GormStore) create(v interface{}) {
	s.t.Helper()
	if err := s.db.Create(v).Error; err != nil {
		s.t.Fatalf("Failed to seed %T: %v", v, err)
	}
}

func (s *GormStore) AddItem(v entity.Item) uint { s.create(&v); return v.ID }
func (s *GormStore) AddSupplier(v entity.Supplier) uint { s.create(&v); return v.ID }
func (s *GormStore) AddBOM(v entity.BOM) uint { s.create(&v); return v.ID }
func (s *GormStore) AddBOMLine(v entity.BOMLine) uint { s.create(&v); return v.ID }
func (s *GormStore) AddVendorLink(v entity.VendorLink) uint { s.create(&v); return v.ID }
func (s *GormStore) AddFXRate(v entity.FXRate) uint { s.create(&v); return v.ID }
func (s *GormStore) AddVendorPrice(v entity.VendorPrice) uint { s.create(&v); return v.ID }

// Epoch 固定的价格生效时间基准
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Str 返回字符串指针
func Str(s string) *string { return &s }

// Item 新增物料，price 为空时不写价格
func Item(s Store, sku, price, currency string) uint {
	id := s.AddItem(entity.Item{SKU: sku, Name: sku + " name", Unit: "pcs"})
	if price != "" {
		p := entity.VendorPrice{ItemID: id, Price: decimal.RequireFromString(price), EffectiveAt: Epoch}
		if currency != "" {
			p.Currency = Str(currency)
		}
		s.AddVendorPrice(p)
	}
	return id
}

// Line 新增BOM行
func Line(s Store, bomID, itemID uint, qty string) uint {
	return s.AddBOMLine(entity.BOMLine{BOMID: bomID, ItemID: itemID, Quantity: decimal.RequireFromString(qty)})
}

// Rate 新增汇率 1 base = rate quote
func Rate(s Store, base, quote, rate string) uint {
	return s.AddFXRate(entity.FXRate{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		Rate:          decimal.RequireFromString(rate),
		EffectiveAt:   Epoch,
	})
}

// SeedWidget WIDGET 包含 PART-A x2，单价 10.00 USD
func SeedWidget(s Store) uint {
	bomID := s.AddBOM(entity.BOM{Name: "WIDGET"})
	partA := Item(s, "PART-A", "10.00", "USD")
	Line(s, bomID, partA, "2")
	return bomID
}

// SeedWidgetWithSub WIDGET 包含 SUB-1 x3，SUB-1 包含 PART-B x2（5.00 EUR），USD→EUR 0.9
func SeedWidgetWithSub(s Store, withRate bool) uint {
	bomID := s.AddBOM(entity.BOM{Name: "WIDGET"})
	sub := Item(s, "SUB-1", "", "")
	Line(s, bomID, sub, "3")

	subBOM := s.AddBOM(entity.BOM{Name: "SUB-1"})
	partB := Item(s, "PART-B", "5.00", "EUR")
	Line(s, subBOM, partB, "2")

	if withRate {
		Rate(s, "USD", "EUR", "0.9")
	}
	return bomID
}

// SeedMixedCurrency ROOT 包含 USD-PART x1 (4.00 USD) 与 EUR-PART x2 (3.00 EUR)
func SeedMixedCurrency(s Store) uint {
	bomID := s.AddBOM(entity.BOM{Name: "MIXED"})
	Line(s, bomID, Item(s, "USD-PART", "4.00", "USD"), "1")
	Line(s, bomID, Item(s, "EUR-PART", "3.00", "EUR"), "2")
	return bomID
}

// SeedChain 生成 depth 层的链式 BOM：ASM-1 -> ASM-2 -> ... -> 叶子 LEAF（1.00 USD），每层用量 2
func SeedChain(s Store, depth int) uint {
	var rootID uint
	var prevBOM uint
	for level := 1; level <= depth; level++ {
		name := chainName(level)
		bomID := s.AddBOM(entity.BOM{Name: name})
		if level == 1 {
			rootID = bomID
		} else {
			Line(s, prevBOM, Item(s, name, "", ""), "2")
		}
		prevBOM = bomID
	}
	Line(s, prevBOM, Item(s, "LEAF", "1.00", "USD"), "2")
	return rootID
}

func chainName(level int) string {
	return "ASM-" + strconv.Itoa(level)
}
