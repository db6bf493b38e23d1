package costing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Converter 金额折算为本位币
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, base string) (decimal.NullDecimal, error)
	Degraded() bool
}

type rateEntry struct {
	rate  decimal.Decimal
	found bool
}

// FXConverter 基于汇率表的折算。
// 汇率表不存在或查询失败时进入降级模式：只有本位币金额可折算。
type FXConverter struct {
	r        Reader
	logger   *zap.Logger
	probed   bool
	degraded bool
	rates    map[string]rateEntry
}

func NewFXConverter(r Reader, logger *zap.Logger) *FXConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FXConverter{r: r, logger: logger, rates: make(map[string]rateEntry)}
}

// Degraded 是否处于降级模式
func (c *FXConverter) Degraded() bool {
	return c.degraded
}

// ResolveRate 取 (base, quote) 最新汇率
func (c *FXConverter) ResolveRate(ctx context.Context, base, quote string) (decimal.Decimal, bool, error) {
	base, quote = normalizeCurrency(base), normalizeCurrency(quote)
	key := base + "/" + quote
	if e, ok := c.rates[key]; ok {
		return e.rate, e.found, nil
	}

	row, err := c.r.GetLatestFXRate(ctx, base, quote)
	if errors.Is(err, ErrNotFound) {
		c.rates[key] = rateEntry{}
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	// 零或负汇率无法折算
	if !row.Rate.IsPositive() {
		c.rates[key] = rateEntry{}
		return decimal.Zero, false, nil
	}

	c.rates[key] = rateEntry{rate: row.Rate, found: true}
	return row.Rate, true, nil
}

// Convert from 为空或等于 base 时原值返回；有汇率时 amount / rate；否则为 null
func (c *FXConverter) Convert(ctx context.Context, amount decimal.Decimal, from, base string) (decimal.NullDecimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.NullDecimal{}, err
	}

	from, base = normalizeCurrency(from), normalizeCurrency(base)
	if from == "" || from == base {
		return decimal.NewNullDecimal(amount), nil
	}

	c.probe(ctx)
	if c.degraded {
		return decimal.NullDecimal{}, nil
	}

	rate, ok, err := c.ResolveRate(ctx, base, from)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.NullDecimal{}, ctxErr
		}
		c.degrade("fx rate lookup failed", err)
		return decimal.NullDecimal{}, nil
	}
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(amount.Div(rate)), nil
}

func (c *FXConverter) probe(ctx context.Context) {
	if c.probed {
		return
	}
	c.probed = true

	ok, err := c.r.FXRatesAvailable(ctx)
	if err != nil {
		c.degrade("fx rates probe failed", err)
		return
	}
	if !ok {
		c.degrade("fx rates not provisioned", nil)
	}
}

func (c *FXConverter) degrade(reason string, err error) {
	if c.degraded {
		return
	}
	c.degraded = true

	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Warn("FX conversion degraded, totals restricted to base currency", fields...)
}
