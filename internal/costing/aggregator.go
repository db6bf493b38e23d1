package costing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// TotalScale 汇总金额保留小数位
const TotalScale = 4

// SKUTotal 按 SKU（不区分大小写）汇总的数量。
// 多个物料的 SKU 仅大小写不同时合并为一行，ItemIDs 列出全部物料，ItemID 置空。
type SKUTotal struct {
	SKU      string          `json:"sku"`
	ItemID   uint            `json:"item_id,omitempty"`
	ItemIDs  []uint          `json:"item_ids"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Quantity decimal.Decimal `json:"quantity"`
}

// skuKey 行排序与按 SKU 汇总共用的比较键
func skuKey(fold cases.Caser, sku string) string {
	return fold.String(strings.TrimSpace(sku))
}

// CurrencyTotal 按原币种汇总的金额
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

// Totals 汇总结果
type Totals struct {
	BySKU         []SKUTotal
	ByCurrency    []CurrencyTotal
	Total         decimal.Decimal
	Currency      string
	FXDegraded    bool
	Unconvertible int
}

// Aggregate 汇总展开行，并回填每行的本位币单价与小计。
// 无法折算的行计 0 并标记 unconvertible。
func Aggregate(ctx context.Context, lines []Line, base string, conv Converter) (*Totals, error) {
	base = normalizeCurrency(base)
	fold := cases.Fold()

	bySKU := make(map[string]*SKUTotal)
	byCurrency := make(map[string]decimal.Decimal)
	total := decimal.Zero
	unconvertible := 0

	for i := range lines {
		l := &lines[i]

		key := skuKey(fold, l.SKU)
		if key == "" {
			key = fmt.Sprintf("#%d", l.ItemID)
		}
		if agg, ok := bySKU[key]; ok {
			agg.Quantity = agg.Quantity.Add(l.ExtendedQuantity)
			if !containsID(agg.ItemIDs, l.ItemID) {
				agg.ItemIDs = append(agg.ItemIDs, l.ItemID)
				agg.ItemID = 0
			}
		} else {
			bySKU[key] = &SKUTotal{
				SKU:      l.SKU,
				ItemID:   l.ItemID,
				ItemIDs:  []uint{l.ItemID},
				Name:     l.Name,
				Unit:     l.Unit,
				Quantity: l.ExtendedQuantity,
			}
		}

		if !l.UnitPrice.Valid {
			continue
		}

		cur := l.Currency
		if cur == "" {
			cur = base
		}
		byCurrency[cur] = byCurrency[cur].Add(l.UnitPrice.Decimal.Mul(l.ExtendedQuantity))

		unitBase, err := conv.Convert(ctx, l.UnitPrice.Decimal, l.Currency, base)
		if err != nil {
			return nil, err
		}
		if !unitBase.Valid {
			l.Unconvertible = true
			unconvertible++
			continue
		}
		lineBase := unitBase.Decimal.Mul(l.ExtendedQuantity)
		total = total.Add(lineBase)
		l.UnitPriceBase = decimal.NewNullDecimal(unitBase.Decimal.Round(TotalScale))
		l.LineTotalBase = decimal.NewNullDecimal(lineBase.Round(TotalScale))
	}

	keys := make([]string, 0, len(bySKU))
	for k := range bySKU {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	skuTotals := make([]SKUTotal, 0, len(keys))
	for _, k := range keys {
		agg := bySKU[k]
		sort.Slice(agg.ItemIDs, func(i, j int) bool { return agg.ItemIDs[i] < agg.ItemIDs[j] })
		skuTotals = append(skuTotals, *agg)
	}

	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	currencyTotals := make([]CurrencyTotal, 0, len(currencies))
	for _, c := range currencies {
		currencyTotals = append(currencyTotals, CurrencyTotal{Currency: c, Total: byCurrency[c].Round(TotalScale)})
	}

	return &Totals{
		BySKU:         skuTotals,
		ByCurrency:    currencyTotals,
		Total:         total.Round(TotalScale),
		Currency:      base,
		FXDegraded:    conv.Degraded(),
		Unconvertible: unconvertible,
	}, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
