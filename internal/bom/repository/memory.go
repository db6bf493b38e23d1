package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-bom/internal/bom/entity"
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/margin"
	"golang.org/x/text/cases"
)

var (
	_ costing.Repository = (*MemoryStore)(nil)
	_ margin.Catalog     = (*MemoryStore)(nil)
)

// Fixture 内存仓库的数据文件格式
type Fixture struct {
	Items        []entity.Item        `json:"items"`
	Suppliers    []entity.Supplier    `json:"suppliers"`
	BOMs         []entity.BOM         `json:"boms"`
	BOMLines     []entity.BOMLine     `json:"bom_lines"`
	VendorLinks  []entity.VendorLink  `json:"vendor_links"`
	VendorPrices []entity.VendorPrice `json:"vendor_prices"`
	FXRates      []entity.FXRate      `json:"fx_rates"`
	// FXProvisioned 为 false 时模拟汇率表不存在
	FXProvisioned *bool `json:"fx_provisioned,omitempty"`
}

// MemoryStore 内存仓库，用于CLI离线计算与测试
type MemoryStore struct {
	mu sync.RWMutex

	items       map[uint]entity.Item
	suppliers   map[uint]entity.Supplier
	boms        map[uint]entity.BOM
	lines       []entity.BOMLine
	links       []entity.VendorLink
	prices      []entity.VendorPrice
	rates       []entity.FXRate
	fxAvailable bool
	failure     error
	nextID      uint
}

// NewMemoryStore 创建空的内存仓库，汇率表默认可用
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:       make(map[uint]entity.Item),
		suppliers:   make(map[uint]entity.Supplier),
		boms:        make(map[uint]entity.BOM),
		fxAvailable: true,
	}
}

// LoadFixture 从 JSON 读取数据
func LoadFixture(r io.Reader) (*MemoryStore, error) {
	var fx Fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	s := NewMemoryStore()
	for _, v := range fx.Items {
		s.AddItem(v)
	}
	for _, v := range fx.Suppliers {
		s.AddSupplier(v)
	}
	for _, v := range fx.BOMs {
		s.AddBOM(v)
	}
	for _, v := range fx.BOMLines {
		s.AddBOMLine(v)
	}
	for _, v := range fx.VendorLinks {
		s.AddVendorLink(v)
	}
	for _, v := range fx.VendorPrices {
		s.AddVendorPrice(v)
	}
	for _, v := range fx.FXRates {
		s.AddFXRate(v)
	}
	if fx.FXProvisioned != nil {
		s.SetFXAvailable(*fx.FXProvisioned)
	}
	return s, nil
}

func (s *MemoryStore) assignID(id uint) uint {
	if id == 0 {
		s.nextID++
		return s.nextID
	}
	if id > s.nextID {
		s.nextID = id
	}
	return id
}

// AddItem 新增物料，返回ID
func (s *MemoryStore) AddItem(item entity.Item) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.assignID(item.ID)
	s.items[item.ID] = item
	return item.ID
}

// AddSupplier 新增供应商
func (s *MemoryStore) AddSupplier(sup entity.Supplier) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup.ID = s.assignID(sup.ID)
	s.suppliers[sup.ID] = sup
	return sup.ID
}

// AddBOM 新增BOM头
func (s *MemoryStore) AddBOM(bom entity.BOM) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	bom.ID = s.assignID(bom.ID)
	bom.Lines = nil
	s.boms[bom.ID] = bom
	return bom.ID
}

// AddBOMLine 新增BOM行
func (s *MemoryStore) AddBOMLine(line entity.BOMLine) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	line.ID = s.assignID(line.ID)
	line.Item = nil
	s.lines = append(s.lines, line)
	return line.ID
}

// AddVendorLink 新增物料-供应商关联
func (s *MemoryStore) AddVendorLink(link entity.VendorLink) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	link.ID = s.assignID(link.ID)
	link.Supplier = nil
	s.links = append(s.links, link)
	return link.ID
}

// AddVendorPrice 新增价格
func (s *MemoryStore) AddVendorPrice(p entity.VendorPrice) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.assignID(p.ID)
	s.prices = append(s.prices, p)
	return p.ID
}

// AddFXRate 新增汇率
func (s *MemoryStore) AddFXRate(rate entity.FXRate) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate.ID = s.assignID(rate.ID)
	s.rates = append(s.rates, rate)
	return rate.ID
}

// SetFXAvailable 模拟汇率表是否存在
func (s *MemoryStore) SetFXAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fxAvailable = ok
}

// FailWith 之后所有读取返回 err，nil 恢复
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// ReadSnapshot 持有读锁执行 fn
func (s *MemoryStore) ReadSnapshot(ctx context.Context, fn func(costing.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return s.failure
	}
	return fn(memoryView{s: s})
}

func (s *MemoryStore) GetBOM(ctx context.Context, id uint) (*costing.BOMRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.GetBOM(ctx, id)
}

func (s *MemoryStore) FindBOMsByName(ctx context.Context, name string) ([]costing.BOMRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.FindBOMsByName(ctx, name)
}

func (s *MemoryStore) GetBOMLines(ctx context.Context, bomID uint) ([]costing.BOMLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.GetBOMLines(ctx, bomID)
}

func (s *MemoryStore) GetLatestVendorPrice(ctx context.Context, itemID uint) (*costing.VendorPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.GetLatestVendorPrice(ctx, itemID)
}

func (s *MemoryStore) GetPreferredVendorCurrency(ctx context.Context, itemID uint) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.GetPreferredVendorCurrency(ctx, itemID)
}

func (s *MemoryStore) GetLatestFXRate(ctx context.Context, base, quote string) (*costing.FXRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.GetLatestFXRate(ctx, base, quote)
}

func (s *MemoryStore) FXRatesAvailable(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoryView{s: s}.FXRatesAvailable(ctx)
}

// ListBOMs 全部BOM，按名称排序
func (s *MemoryStore) ListBOMs(ctx context.Context) ([]costing.BOMRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	refs := make([]costing.BOMRef, 0, len(s.boms))
	for _, b := range s.boms {
		refs = append(refs, costing.BOMRef{ID: b.ID, Name: b.Name})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}

// GetListPrice 成品物料的销售价
func (s *MemoryStore) GetListPrice(ctx context.Context, sku string) (*margin.ListPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	fold := cases.Fold()
	key := fold.String(strings.TrimSpace(sku))

	var best *entity.Item
	for id := range s.items {
		item := s.items[id]
		if !item.ListPrice.Valid || fold.String(strings.TrimSpace(item.SKU)) != key {
			continue
		}
		if best == nil || item.ID < best.ID {
			best = &item
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return &margin.ListPrice{
		ItemID:   best.ID,
		SKU:      best.SKU,
		Price:    best.ListPrice.Decimal,
		Currency: best.ListCurrency,
	}, nil
}

// memoryView 调用方已持有读锁
type memoryView struct {
	s *MemoryStore
}

func (v memoryView) GetBOM(ctx context.Context, id uint) (*costing.BOMRef, error) {
	if v.s.failure != nil {
		return nil, v.s.failure
	}
	b, ok := v.s.boms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &costing.BOMRef{ID: b.ID, Name: b.Name}, nil
}

func (v memoryView) FindBOMsByName(ctx context.Context, name string) ([]costing.BOMRef, error) {
	if v.s.failure != nil {
		return nil, v.s.failure
	}
	fold := cases.Fold()
	key := fold.String(strings.TrimSpace(name))

	var refs []costing.BOMRef
	for _, b := range v.s.boms {
		if fold.String(strings.TrimSpace(b.Name)) == key {
			refs = append(refs, costing.BOMRef{ID: b.ID, Name: b.Name})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (v memoryView) GetBOMLines(ctx context.Context, bomID uint) ([]costing.BOMLine, error) {
	if v.s.failure != nil {
		return nil, v.s.failure
	}
	var lines []costing.BOMLine
	for _, l := range v.s.lines {
		if l.BOMID != bomID {
			continue
		}
		item, ok := v.s.items[l.ItemID]
		if !ok {
			return nil, fmt.Errorf("bom line %d references missing item %d", l.ID, l.ItemID)
		}
		lines = append(lines, costing.BOMLine{
			ID:       l.ID,
			BOMID:    l.BOMID,
			ItemID:   l.ItemID,
			SKU:      item.SKU,
			Name:     item.Name,
			Unit:     item.Unit,
			Quantity: l.Quantity,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].SKU != lines[j].SKU {
			return lines[i].SKU < lines[j].SKU
		}
		return lines[i].ID < lines[j].ID
	})
	return lines, nil
}

func (v memoryView) GetLatestVendorPrice(ctx context.Context, itemID uint) (*costing.VendorPrice, error) {
	if v.s.failure != nil {
		return nil, v.s.failure
	}
	var best *entity.VendorPrice
	for i := range v.s.prices {
		p := &v.s.prices[i]
		if p.ItemID != itemID {
			continue
		}
		if best == nil || newer(p.EffectiveAt, p.ID, best.EffectiveAt, best.ID) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	vp := &costing.VendorPrice{
		ID:          best.ID,
		ItemID:      best.ItemID,
		SupplierID:  best.SupplierID,
		Price:       best.Price,
		EffectiveAt: best.EffectiveAt,
	}
	if best.Currency != nil {
		vp.Currency = *best.Currency
	}
	return vp, nil
}

func (v memoryView) GetPreferredVendorCurrency(ctx context.Context, itemID uint) (string, error) {
	if v.s.failure != nil {
		return "", v.s.failure
	}
	var links []entity.VendorLink
	for _, l := range v.s.links {
		if l.ItemID == itemID {
			links = append(links, l)
		}
	}
	if len(links) == 0 {
		return "", nil
	}
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.Preferred != b.Preferred {
			return a.Preferred
		}
		// 优先级为空的排在最后
		switch {
		case a.Priority != nil && b.Priority == nil:
			return true
		case a.Priority == nil && b.Priority != nil:
			return false
		case a.Priority != nil && b.Priority != nil && *a.Priority != *b.Priority:
			return *a.Priority < *b.Priority
		}
		return a.ID < b.ID
	})

	sup, ok := v.s.suppliers[links[0].SupplierID]
	if !ok || sup.Currency == nil {
		return "", nil
	}
	return *sup.Currency, nil
}

func (v memoryView) GetLatestFXRate(ctx context.Context, base, quote string) (*costing.FXRate, error) {
	if v.s.failure != nil {
		return nil, v.s.failure
	}
	if !v.s.fxAvailable {
		return nil, fmt.Errorf("%w: relation \"fx_rates\" does not exist", ErrUnavailable)
	}
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)

	var best *entity.FXRate
	for i := range v.s.rates {
		r := &v.s.rates[i]
		if strings.ToUpper(r.BaseCurrency) != base || strings.ToUpper(r.QuoteCurrency) != quote {
			continue
		}
		if best == nil || newer(r.EffectiveAt, r.ID, best.EffectiveAt, best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return &costing.FXRate{
		ID:          best.ID,
		Base:        best.BaseCurrency,
		Quote:       best.QuoteCurrency,
		Rate:        best.Rate,
		EffectiveAt: best.EffectiveAt,
	}, nil
}

func (v memoryView) FXRatesAvailable(ctx context.Context) (bool, error) {
	if v.s.failure != nil {
		return false, v.s.failure
	}
	return v.s.fxAvailable, nil
}

// newer effective_at 更晚，或相同且 id 更大
func newer(at time.Time, id uint, otherAt time.Time, otherID uint) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id > otherID
}
