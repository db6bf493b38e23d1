package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item 物料
type Item struct {
	ID           uint                `json:"id" gorm:"primaryKey"`
	SKU          string              `json:"sku" gorm:"column:sku;size:64;not null;index"`
	Name         string              `json:"name" gorm:"size:200;not null"`
	Unit         string              `json:"unit" gorm:"size:16;not null;default:pcs"`
	ListPrice    decimal.NullDecimal `json:"list_price" gorm:"type:decimal(15,4)"`
	ListCurrency string              `json:"list_currency" gorm:"size:3"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (Item) TableName() string {
	return "items"
}

// Supplier 供应商
type Supplier struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Currency  *string   `json:"currency" gorm:"size:3"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "suppliers"
}

// VendorLink 物料-供应商关联，仅用于币种兜底
type VendorLink struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ItemID     uint      `json:"item_id" gorm:"column:item_id;not null;index"`
	SupplierID uint      `json:"supplier_id" gorm:"column:supplier_id;not null;index"`
	Preferred  bool      `json:"preferred" gorm:"not null;default:false"`
	Priority   *int      `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`

	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (VendorLink) TableName() string {
	return "item_vendors"
}

// VendorPrice 供应商价格（时间序列，只增不改）
type VendorPrice struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	ItemID      uint            `json:"item_id" gorm:"column:item_id;not null;index:idx_vendor_prices_item_effective,priority:1"`
	SupplierID  *uint           `json:"supplier_id" gorm:"column:supplier_id;index"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(15,4);not null"`
	Currency    *string         `json:"currency" gorm:"size:3"`
	EffectiveAt time.Time       `json:"effective_at" gorm:"not null;index:idx_vendor_prices_item_effective,priority:2"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (VendorPrice) TableName() string {
	return "vendor_prices"
}
