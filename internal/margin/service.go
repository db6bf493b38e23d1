package margin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TotalCoster 由 *costing.Service 实现
type TotalCoster interface {
	ComputeTotalCost(ctx context.Context, bomID uint) (*costing.CostTotal, error)
	ConvertToBase(ctx context.Context, amount decimal.Decimal, currency string) (decimal.NullDecimal, bool, error)
}

// ListPrice 成品物料的销售价
type ListPrice struct {
	ItemID   uint
	SKU      string
	Price    decimal.Decimal
	Currency string
}

// Catalog 毛利计算所需的目录查询
type Catalog interface {
	ListBOMs(ctx context.Context) ([]costing.BOMRef, error)
	GetBOM(ctx context.Context, id uint) (*costing.BOMRef, error)
	// GetListPrice 按 SKU（不区分大小写）查找有销售价的物料，没有时返回 costing.ErrNotFound
	GetListPrice(ctx context.Context, sku string) (*ListPrice, error)
}

// BOMMargin 单个BOM的毛利
type BOMMargin struct {
	BOMID      uint                `json:"bom_id"`
	BOMName    string              `json:"bom_name"`
	Currency   string              `json:"currency"`
	Cost       decimal.Decimal     `json:"cost"`
	ListPrice  decimal.NullDecimal `json:"list_price"`
	Margin     decimal.NullDecimal `json:"margin"`
	MarginPct  decimal.NullDecimal `json:"margin_pct"`
	FXDegraded bool                `json:"fx_degraded"`
	// Error 报表中该BOM无法计算的原因，其余列为空
	Error string `json:"error,omitempty"`
}

// Report 毛利报表
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Currency    string      `json:"currency"`
	Items       []BOMMargin `json:"items"`
	Cached      bool        `json:"cached"`
}

// Service 毛利报表服务
type Service struct {
	coster   TotalCoster
	catalog  Catalog
	cache    Cache
	ttl      time.Duration
	currency string
	logger   *zap.Logger
}

// NewService cache 为 nil 或 ttl 非正时不缓存
func NewService(coster TotalCoster, catalog Catalog, cache Cache, ttl time.Duration, currency string, logger *zap.Logger) *Service {
	if cache == nil || ttl <= 0 {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		coster:   coster,
		catalog:  catalog,
		cache:    cache,
		ttl:      ttl,
		currency: currency,
		logger:   logger,
	}
}

// BOMMargin 计算单个BOM的毛利
func (s *Service) BOMMargin(ctx context.Context, bomID uint) (*BOMMargin, error) {
	if bomID == 0 {
		return nil, &costing.Error{Kind: costing.KindInvalidInput, Message: "bom id is required"}
	}
	bom, err := s.catalog.GetBOM(ctx, bomID)
	if err != nil {
		return nil, costing.Classify(err, fmt.Sprintf("get BOM %d", bomID))
	}
	return s.compute(ctx, *bom)
}

// Report 所有BOM的毛利报表，命中缓存时直接返回
func (s *Service) Report(ctx context.Context) (*Report, error) {
	key := s.cacheKey()
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Margin report cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var r Report
		if err := json.Unmarshal(data, &r); err == nil {
			r.Cached = true
			return &r, nil
		}
		s.logger.Warn("Margin report cache entry corrupt", zap.String("key", key))
	}

	boms, err := s.catalog.ListBOMs(ctx)
	if err != nil {
		return nil, costing.Classify(err, "list BOMs")
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Currency:    s.currency,
		Items:       make([]BOMMargin, 0, len(boms)),
	}
	for _, bom := range boms {
		m, err := s.compute(ctx, bom)
		if err != nil {
			if !rowError(err) {
				return nil, err
			}
			// 单个BOM结构问题不影响整张报表
			s.logger.Warn("Margin report row failed", zap.Uint("bom_id", bom.ID), zap.Error(err))
			m = &BOMMargin{BOMID: bom.ID, BOMName: bom.Name, Currency: s.currency, Error: err.Error()}
		}
		report.Items = append(report.Items, *m)
	}

	if data, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("Margin report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return report, nil
}

func (s *Service) compute(ctx context.Context, bom costing.BOMRef) (*BOMMargin, error) {
	cost, err := s.coster.ComputeTotalCost(ctx, bom.ID)
	if err != nil {
		return nil, err
	}

	m := &BOMMargin{
		BOMID:      bom.ID,
		BOMName:    bom.Name,
		Currency:   cost.Currency,
		Cost:       cost.Total,
		FXDegraded: cost.FXDegraded,
	}

	lp, err := s.catalog.GetListPrice(ctx, bom.Name)
	if errors.Is(err, costing.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return nil, costing.Classify(err, "get list price for "+bom.Name)
	}

	list, degraded, err := s.coster.ConvertToBase(ctx, lp.Price, lp.Currency)
	if err != nil {
		return nil, err
	}
	m.FXDegraded = m.FXDegraded || degraded
	if !list.Valid {
		return m, nil
	}

	listPrice := list.Decimal.Round(costing.TotalScale)
	margin := listPrice.Sub(cost.Total)
	m.ListPrice = decimal.NewNullDecimal(listPrice)
	m.Margin = decimal.NewNullDecimal(margin)
	if !listPrice.IsZero() {
		m.MarginPct = decimal.NewNullDecimal(margin.Div(listPrice).Round(costing.TotalScale))
	}
	return m, nil
}

// rowError BOM自身的数据问题记在行上，存储不可用等错误仍使整张报表失败
func rowError(err error) bool {
	switch costing.KindOf(err) {
	case costing.KindNotFound, costing.KindCycleDetected, costing.KindAmbiguousBOM:
		return true
	}
	return false
}

func (s *Service) cacheKey() string {
	return "nimo-bom:margin-report:" + s.currency
}
