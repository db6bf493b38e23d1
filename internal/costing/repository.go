package costing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BOMRef BOM头
type BOMRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// BOMLine BOM行（已关联物料）
type BOMLine struct {
	ID       uint
	BOMID    uint
	ItemID   uint
	SKU      string
	Name     string
	Unit     string
	Quantity decimal.Decimal
}

// VendorPrice 价格行，Currency 可能为空
type VendorPrice struct {
	ID          uint
	ItemID      uint
	SupplierID  *uint
	Price       decimal.Decimal
	Currency    string
	EffectiveAt time.Time
}

// FXRate 1 Base = Rate Quote
type FXRate struct {
	ID          uint
	Base        string
	Quote       string
	Rate        decimal.Decimal
	EffectiveAt time.Time
}

// Reader 成本计算所需的只读查询。
// 记录不存在时返回包装了 ErrNotFound 的错误，存储不可达时包装 ErrUnavailable。
type Reader interface {
	GetBOM(ctx context.Context, id uint) (*BOMRef, error)
	// FindBOMsByName 不区分大小写匹配，返回全部命中
	FindBOMsByName(ctx context.Context, name string) ([]BOMRef, error)
	// GetBOMLines 按 sku、id 升序
	GetBOMLines(ctx context.Context, bomID uint) ([]BOMLine, error)
	GetLatestVendorPrice(ctx context.Context, itemID uint) (*VendorPrice, error)
	// GetPreferredVendorCurrency 无关联或供应商无币种时返回 ""
	GetPreferredVendorCurrency(ctx context.Context, itemID uint) (string, error)
	GetLatestFXRate(ctx context.Context, base, quote string) (*FXRate, error)
	FXRatesAvailable(ctx context.Context) (bool, error)
}

// Repository 在一致性快照内执行 fn
type Repository interface {
	Reader
	ReadSnapshot(ctx context.Context, fn func(r Reader) error) error
}
