package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BOM BOM头表
// Name 与 Item.SKU 不区分大小写匹配时，该物料视为子装配件（无外键约束）
type BOM struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:128;not null;index"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Lines []BOMLine `json:"lines,omitempty" gorm:"foreignKey:BOMID"`
}

func (BOM) TableName() string {
	return "boms"
}

// BOMLine BOM行项
type BOMLine struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	BOMID     uint            `json:"bom_id" gorm:"column:bom_id;not null;index"`
	ItemID    uint            `json:"item_id" gorm:"column:item_id;not null;index"`
	Quantity  decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Item *Item `json:"item,omitempty" gorm:"foreignKey:ItemID"`
}

func (BOMLine) TableName() string {
	return "bom_lines"
}

// FXRate 汇率：1 个 BaseCurrency = Rate 个 QuoteCurrency
type FXRate struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	BaseCurrency  string          `json:"base_currency" gorm:"size:3;not null;index:idx_fx_rates_pair,priority:1"`
	QuoteCurrency string          `json:"quote_currency" gorm:"size:3;not null;index:idx_fx_rates_pair,priority:2"`
	Rate          decimal.Decimal `json:"rate" gorm:"type:decimal(20,10);not null"`
	EffectiveAt   time.Time       `json:"effective_at" gorm:"not null;index:idx_fx_rates_pair,priority:3"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (FXRate) TableName() string {
	return "fx_rates"
}
