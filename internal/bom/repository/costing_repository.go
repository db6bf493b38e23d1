package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/bitfantasy/nimo-bom/internal/bom/entity"
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/margin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	_ costing.Repository = (*CostingRepository)(nil)
	_ margin.Catalog     = (*CostingRepository)(nil)
)

// CostingRepository 成本计算仓库
type CostingRepository struct {
	db *gorm.DB
}

// NewCostingRepository 创建成本计算仓库
func NewCostingRepository(db *gorm.DB) *CostingRepository {
	return &CostingRepository{db: db}
}

// ReadSnapshot 在只读 REPEATABLE READ 事务中执行 fn，保证价格与汇率一致
func (r *CostingRepository) ReadSnapshot(ctx context.Context, fn func(costing.Reader) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&CostingRepository{db: tx})
		return fnErr
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if fnErr != nil {
		return fnErr
	}
	return translate(err)
}

// GetBOM 根据ID获取BOM
func (r *CostingRepository) GetBOM(ctx context.Context, id uint) (*costing.BOMRef, error) {
	var bom entity.BOM
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&bom).Error; err != nil {
		return nil, translate(err)
	}
	return &costing.BOMRef{ID: bom.ID, Name: bom.Name}, nil
}

// FindBOMsByName 不区分大小写按名称查找
func (r *CostingRepository) FindBOMsByName(ctx context.Context, name string) ([]costing.BOMRef, error) {
	var boms []entity.BOM
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		Order("id ASC").
		Find(&boms).Error
	if err != nil {
		return nil, translate(err)
	}
	return toRefs(boms), nil
}

// ListBOMs 全部BOM，按名称排序
func (r *CostingRepository) ListBOMs(ctx context.Context) ([]costing.BOMRef, error) {
	var boms []entity.BOM
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&boms).Error; err != nil {
		return nil, translate(err)
	}
	return toRefs(boms), nil
}

type bomLineRow struct {
	ID       uint            `gorm:"column:id"`
	BOMID    uint            `gorm:"column:bom_id"`
	ItemID   uint            `gorm:"column:item_id"`
	SKU      string          `gorm:"column:sku"`
	Name     string          `gorm:"column:name"`
	Unit     string          `gorm:"column:unit"`
	Quantity decimal.Decimal `gorm:"column:quantity"`
}

// GetBOMLines BOM行及物料信息
func (r *CostingRepository) GetBOMLines(ctx context.Context, bomID uint) ([]costing.BOMLine, error) {
	var rows []bomLineRow
	err := r.db.WithContext(ctx).
		Table("bom_lines AS l").
		Select("l.id, l.bom_id, l.item_id, i.sku, i.name, i.unit, l.quantity").
		Joins("JOIN items AS i ON i.id = l.item_id").
		Where("l.bom_id = ?", bomID).
		Order("i.sku ASC, l.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	lines := make([]costing.BOMLine, len(rows))
	for i, row := range rows {
		lines[i] = costing.BOMLine{
			ID:       row.ID,
			BOMID:    row.BOMID,
			ItemID:   row.ItemID,
			SKU:      row.SKU,
			Name:     row.Name,
			Unit:     row.Unit,
			Quantity: row.Quantity,
		}
	}
	return lines, nil
}

// GetLatestVendorPrice 最新价格，effective_at 相同时取 id 最大
func (r *CostingRepository) GetLatestVendorPrice(ctx context.Context, itemID uint) (*costing.VendorPrice, error) {
	var p entity.VendorPrice
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("effective_at DESC, id DESC").
		Take(&p).Error
	if err != nil {
		return nil, translate(err)
	}

	vp := &costing.VendorPrice{
		ID:          p.ID,
		ItemID:      p.ItemID,
		SupplierID:  p.SupplierID,
		Price:       p.Price,
		EffectiveAt: p.EffectiveAt,
	}
	if p.Currency != nil {
		vp.Currency = *p.Currency
	}
	return vp, nil
}

// GetPreferredVendorCurrency 首选 > 优先级（空值最后）> id
func (r *CostingRepository) GetPreferredVendorCurrency(ctx context.Context, itemID uint) (string, error) {
	var row struct {
		Currency *string `gorm:"column:currency"`
	}
	res := r.db.WithContext(ctx).
		Table("item_vendors AS v").
		Select("s.currency").
		Joins("JOIN suppliers AS s ON s.id = v.supplier_id").
		Where("v.item_id = ?", itemID).
		Order("v.preferred DESC, v.priority ASC NULLS LAST, v.id ASC").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return "", translate(res.Error)
	}
	if res.RowsAffected == 0 || row.Currency == nil {
		return "", nil
	}
	return *row.Currency, nil
}

// GetLatestFXRate 指定币种对的最新汇率。
// 查询放在嵌套事务（SAVEPOINT）中，失败时回滚到保存点，外层快照事务仍可继续使用。
func (r *CostingRepository) GetLatestFXRate(ctx context.Context, base, quote string) (*costing.FXRate, error) {
	var rate entity.FXRate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("UPPER(base_currency) = ? AND UPPER(quote_currency) = ?",
			strings.ToUpper(base), strings.ToUpper(quote)).
			Order("effective_at DESC, id DESC").
			Take(&rate).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &costing.FXRate{
		ID:          rate.ID,
		Base:        rate.BaseCurrency,
		Quote:       rate.QuoteCurrency,
		Rate:        rate.Rate,
		EffectiveAt: rate.EffectiveAt,
	}, nil
}

// FXRatesAvailable 汇率表是否存在，同样在保存点内探测
func (r *CostingRepository) FXRatesAvailable(ctx context.Context) (bool, error) {
	var ok bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok = tx.Migrator().HasTable(&entity.FXRate{})
		return nil
	})
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

// GetListPrice 成品物料的销售价
func (r *CostingRepository) GetListPrice(ctx context.Context, sku string) (*margin.ListPrice, error) {
	var item entity.Item
	err := r.db.WithContext(ctx).
		Where("LOWER(sku) = LOWER(?) AND list_price IS NOT NULL", strings.TrimSpace(sku)).
		Order("id ASC").
		Take(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &margin.ListPrice{
		ItemID:   item.ID,
		SKU:      item.SKU,
		Price:    item.ListPrice.Decimal,
		Currency: item.ListCurrency,
	}, nil
}

// Ping 就绪检查
func (r *CostingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return translate(sqlDB.PingContext(ctx))
}

func toRefs(boms []entity.BOM) []costing.BOMRef {
	refs := make([]costing.BOMRef, len(boms))
	for i, b := range boms {
		refs[i] = costing.BOMRef{ID: b.ID, Name: b.Name}
	}
	return refs
}
