package costing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Line 展开后的一行
type Line struct {
	Level            int                 `json:"level"`
	BOMID            uint                `json:"bom_id"`
	ItemID           uint                `json:"item_id"`
	SKU              string              `json:"sku"`
	Name             string              `json:"name"`
	Unit             string              `json:"unit"`
	Quantity         decimal.Decimal     `json:"quantity"`
	ExtendedQuantity decimal.Decimal     `json:"extended_quantity"`
	UnitPrice        decimal.NullDecimal `json:"unit_price"`
	Currency         string              `json:"currency,omitempty"`
	LineTotal        decimal.NullDecimal `json:"line_total"`
	UnitPriceBase    decimal.NullDecimal `json:"unit_price_base"`
	LineTotalBase    decimal.NullDecimal `json:"line_total_base"`
	HasSubBOM        bool                `json:"has_sub_bom"`
	PriceUnresolved  bool                `json:"price_unresolved"`
	Unconvertible    bool                `json:"unconvertible"`
}

// node 展开树节点，parent 为父节点在 arena 中的下标，-1 表示根 BOM 的直接行
type node struct {
	line   Line
	parent int
	subBOM uint
}

type subBOMEntry struct {
	id    uint
	found bool
}

// Expander 单次调用内的 BOM 展开器，不可并发复用
type Expander struct {
	r      Reader
	prices *PriceResolver
	fold   cases.Caser

	linesByBOM map[uint][]BOMLine
	bomBySKU   map[string]subBOMEntry
}

func NewExpander(r Reader) *Expander {
	return &Expander{
		r:          r,
		prices:     NewPriceResolver(r),
		fold:       cases.Fold(),
		linesByBOM: make(map[uint][]BOMLine),
		bomBySKU:   make(map[string]subBOMEntry),
	}
}

// Expand 逐层展开 rootID，maxDepth 需已在 [1, MaxDepth] 内。
// 结果按 (level, sku) 升序，sku 不区分大小写，同键保持遍历顺序。
func (e *Expander) Expand(ctx context.Context, rootID uint, maxDepth int) ([]Line, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}

	roots, err := e.bomLines(ctx, rootID)
	if err != nil {
		return nil, err
	}

	arena := make([]node, 0, len(roots))
	frontier := make([]int, 0, len(roots))
	for _, bl := range roots {
		n, err := e.newNode(ctx, bl, 1, bl.Quantity, -1)
		if err != nil {
			return nil, err
		}
		arena = append(arena, n)
		frontier = append(frontier, len(arena)-1)
	}

	for level := 1; level < maxDepth && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []int
		for _, idx := range frontier {
			parent := arena[idx]
			if !parent.line.HasSubBOM {
				continue
			}
			if onPath(arena, idx, parent.subBOM) >= 0 {
				return nil, newError(KindCycleDetected,
					"BOM %d is reached again through item %s at level %d", parent.subBOM, parent.line.SKU, parent.line.Level)
			}

			children, err := e.bomLines(ctx, parent.subBOM)
			if err != nil {
				return nil, err
			}
			for _, bl := range children {
				ext := parent.line.ExtendedQuantity.Mul(bl.Quantity)
				n, err := e.newNode(ctx, bl, level+1, ext, idx)
				if err != nil {
					return nil, err
				}
				arena = append(arena, n)
				next = append(next, len(arena)-1)
			}
		}
		frontier = next
	}

	// SKU 按与汇总相同的折叠键比较，同键保持遍历顺序
	keys := make([]string, len(arena))
	order := make([]int, len(arena))
	for i := range arena {
		keys[i] = skuKey(e.fold, arena[i].line.SKU)
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if arena[a].line.Level != arena[b].line.Level {
			return arena[a].line.Level < arena[b].line.Level
		}
		return keys[a] < keys[b]
	})

	lines := make([]Line, len(order))
	for i, idx := range order {
		lines[i] = arena[idx].line
	}
	return lines, nil
}

func (e *Expander) newNode(ctx context.Context, bl BOMLine, level int, ext decimal.Decimal, parent int) (node, error) {
	n := node{
		parent: parent,
		line: Line{
			Level:            level,
			BOMID:            bl.BOMID,
			ItemID:           bl.ItemID,
			SKU:              bl.SKU,
			Name:             bl.Name,
			Unit:             bl.Unit,
			Quantity:         bl.Quantity,
			ExtendedQuantity: ext,
		},
	}

	subID, ok, err := e.subBOM(ctx, bl.SKU)
	if err != nil {
		return node{}, err
	}
	if ok {
		// 装配件本身不计价，成本只在叶子层归集
		n.subBOM = subID
		n.line.HasSubBOM = true
		return n, nil
	}

	quote, found, err := e.prices.Resolve(ctx, bl.ItemID)
	if err != nil {
		return node{}, err
	}
	if !found {
		n.line.PriceUnresolved = true
		return n, nil
	}
	n.line.UnitPrice = decimal.NewNullDecimal(quote.Price)
	n.line.Currency = quote.Currency
	n.line.LineTotal = decimal.NewNullDecimal(quote.Price.Mul(ext))
	return n, nil
}

// onPath 返回祖先路径上所属 BOM 为 bomID 的节点下标，没有时返回 -1
func onPath(arena []node, idx int, bomID uint) int {
	for i := idx; i >= 0; i = arena[i].parent {
		if arena[i].line.BOMID == bomID {
			return i
		}
	}
	return -1
}

func (e *Expander) bomLines(ctx context.Context, bomID uint) ([]BOMLine, error) {
	if lines, ok := e.linesByBOM[bomID]; ok {
		return lines, nil
	}
	lines, err := e.r.GetBOMLines(ctx, bomID)
	if err != nil {
		return nil, fmt.Errorf("get lines of BOM %d: %w", bomID, err)
	}
	e.linesByBOM[bomID] = lines
	return lines, nil
}

// subBOM 按 SKU 查找同名 BOM，每个 SKU 只查询一次
func (e *Expander) subBOM(ctx context.Context, sku string) (uint, bool, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return 0, false, nil
	}
	key := skuKey(e.fold, sku)
	if entry, ok := e.bomBySKU[key]; ok {
		return entry.id, entry.found, nil
	}

	refs, err := e.r.FindBOMsByName(ctx, sku)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, false, fmt.Errorf("find BOM for sku %s: %w", sku, err)
	}
	switch len(refs) {
	case 0:
		e.bomBySKU[key] = subBOMEntry{}
		return 0, false, nil
	case 1:
		e.bomBySKU[key] = subBOMEntry{id: refs[0].ID, found: true}
		return refs[0].ID, true, nil
	default:
		return 0, false, ambiguous(sku, refs)
	}
}

func ambiguous(name string, refs []BOMRef) *Error {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = fmt.Sprint(ref.ID)
	}
	return newError(KindAmbiguousBOM, "name %q matches %d BOMs (ids %s)", name, len(refs), strings.Join(ids, ", "))
}
