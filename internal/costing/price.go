package costing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrPriceNotFound 物料没有任何价格记录，成本未知而非零
var ErrPriceNotFound = errors.New("no vendor price for item")

// PriceQuote 单价
type PriceQuote struct {
	Price    decimal.Decimal
	Currency string
}

type priceEntry struct {
	quote PriceQuote
	found bool
}

// PriceResolver 单次计算内按物料缓存价格
type PriceResolver struct {
	r     Reader
	cache map[uint]priceEntry
}

func NewPriceResolver(r Reader) *PriceResolver {
	return &PriceResolver{r: r, cache: make(map[uint]priceEntry)}
}

// ResolveLatestPrice 取所有供应商中 effective_at 最新的价格，相同时取 id 最大
func (p *PriceResolver) ResolveLatestPrice(ctx context.Context, itemID uint) (PriceQuote, error) {
	vp, err := p.r.GetLatestVendorPrice(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PriceQuote{}, ErrPriceNotFound
		}
		return PriceQuote{}, fmt.Errorf("get latest price for item %d: %w", itemID, err)
	}
	return PriceQuote{Price: vp.Price, Currency: normalizeCurrency(vp.Currency)}, nil
}

// ResolveFallbackCurrency 价格行无币种时，取首选供应商的币种
func (p *PriceResolver) ResolveFallbackCurrency(ctx context.Context, itemID uint) (string, error) {
	cur, err := p.r.GetPreferredVendorCurrency(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("get preferred vendor currency for item %d: %w", itemID, err)
	}
	return normalizeCurrency(cur), nil
}

// Resolve 价格加币种兜底，found=false 表示没有价格
func (p *PriceResolver) Resolve(ctx context.Context, itemID uint) (PriceQuote, bool, error) {
	if e, ok := p.cache[itemID]; ok {
		return e.quote, e.found, nil
	}

	quote, err := p.ResolveLatestPrice(ctx, itemID)
	if errors.Is(err, ErrPriceNotFound) {
		p.cache[itemID] = priceEntry{}
		return PriceQuote{}, false, nil
	}
	if err != nil {
		return PriceQuote{}, false, err
	}

	if quote.Currency == "" {
		cur, err := p.ResolveFallbackCurrency(ctx, itemID)
		if err != nil {
			return PriceQuote{}, false, err
		}
		quote.Currency = cur
	}

	p.cache[itemID] = priceEntry{quote: quote, found: true}
	return quote, true, nil
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
