package costing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultBaseCurrency = "USD"
	DefaultMaxDepth     = 8
)

// Settings 成本计算参数，由调用方显式传入
type Settings struct {
	BaseCurrency string
	DefaultDepth int
	MaxDepth     int
}

func (s Settings) normalized() Settings {
	s.BaseCurrency = normalizeCurrency(s.BaseCurrency)
	if s.BaseCurrency == "" {
		s.BaseCurrency = DefaultBaseCurrency
	}
	if s.MaxDepth < 1 {
		s.MaxDepth = DefaultMaxDepth
	}
	if s.DefaultDepth < 1 || s.DefaultDepth > s.MaxDepth {
		s.DefaultDepth = s.MaxDepth
	}
	return s
}

// ExplodeRequest 展开请求
type ExplodeRequest struct {
	BOMID uint
	// Name 仅 ExplodeByName 使用
	Name      string
	Depth     int
	Aggregate bool
	// BaseCurrency 为空时使用配置的本位币
	BaseCurrency string
}

// Explosion 展开结果
type Explosion struct {
	BOMID            uint            `json:"bom_id"`
	BOMName          string          `json:"bom_name"`
	Depth            int             `json:"depth"`
	BaseCurrency     string          `json:"base_currency"`
	Lines            []Line          `json:"lines"`
	Aggregate        []SKUTotal      `json:"aggregate,omitempty"`
	TotalsByCurrency []CurrencyTotal `json:"totals_by_currency"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	TotalCurrency    string          `json:"total_currency"`
	FXDegraded       bool            `json:"fx_degraded"`
	Unconvertible    int             `json:"unconvertible_lines"`
}

// CostTotal BOM总成本
type CostTotal struct {
	BOMID      uint            `json:"bom_id"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	FXDegraded bool            `json:"fx_degraded"`
}

// Service BOM展开与成本计算
type Service struct {
	repo     Repository
	settings Settings
	logger   *zap.Logger
}

func NewService(repo Repository, settings Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		settings: settings.normalized(),
		logger:   logger,
	}
}

// Settings 返回规范化后的参数
func (s *Service) Settings() Settings {
	return s.settings
}

// ClampDepth 将深度限制在 [1, MaxDepth]
func (s *Service) ClampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > s.settings.MaxDepth {
		return s.settings.MaxDepth
	}
	return depth
}

// Explode 按 BOM ID 展开并计价
func (s *Service) Explode(ctx context.Context, req ExplodeRequest) (*Explosion, error) {
	if req.BOMID == 0 {
		return nil, newError(KindInvalidInput, "bom id is required")
	}

	var result *Explosion
	err := s.repo.ReadSnapshot(ctx, func(r Reader) error {
		bom, err := r.GetBOM(ctx, req.BOMID)
		if err != nil {
			return Classify(err, "get BOM")
		}
		result, err = s.explode(ctx, r, *bom, req)
		return err
	})
	if err != nil {
		return nil, s.fail(err, req.BOMID, req.Depth)
	}
	return result, nil
}

// ExplodeByName 按名称（不区分大小写）定位 BOM 后展开
func (s *Service) ExplodeByName(ctx context.Context, req ExplodeRequest) (*Explosion, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, newError(KindInvalidInput, "bom name is required")
	}

	var result *Explosion
	err := s.repo.ReadSnapshot(ctx, func(r Reader) error {
		refs, err := r.FindBOMsByName(ctx, name)
		if err != nil {
			return Classify(err, "find BOM by name")
		}
		switch len(refs) {
		case 0:
			return newError(KindNotFound, "no BOM named %q", name)
		case 1:
		default:
			return ambiguous(name, refs)
		}
		result, err = s.explode(ctx, r, refs[0], req)
		return err
	})
	if err != nil {
		return nil, s.fail(err, 0, req.Depth)
	}
	return result, nil
}

// ComputeTotalCost 以默认深度展开后的本位币总成本
func (s *Service) ComputeTotalCost(ctx context.Context, bomID uint) (*CostTotal, error) {
	e, err := s.Explode(ctx, ExplodeRequest{
		BOMID:     bomID,
		Depth:     s.settings.DefaultDepth,
		Aggregate: true,
	})
	if err != nil {
		return nil, err
	}
	return &CostTotal{
		BOMID:      e.BOMID,
		Total:      e.TotalPrice,
		Currency:   e.TotalCurrency,
		FXDegraded: e.FXDegraded,
	}, nil
}

// ConvertToBase 在一次快照内将金额折算为本位币，无法折算时返回 null
func (s *Service) ConvertToBase(ctx context.Context, amount decimal.Decimal, currency string) (decimal.NullDecimal, bool, error) {
	var (
		out      decimal.NullDecimal
		degraded bool
	)
	err := s.repo.ReadSnapshot(ctx, func(r Reader) error {
		conv := NewFXConverter(r, s.logger)
		v, err := conv.Convert(ctx, amount, currency, s.settings.BaseCurrency)
		if err != nil {
			return Classify(err, "convert currency")
		}
		out, degraded = v, conv.Degraded()
		return nil
	})
	if err != nil {
		return decimal.NullDecimal{}, false, Classify(err, "convert currency")
	}
	return out, degraded, nil
}

func (s *Service) explode(ctx context.Context, r Reader, bom BOMRef, req ExplodeRequest) (*Explosion, error) {
	depth := s.ClampDepth(req.Depth)
	base := normalizeCurrency(req.BaseCurrency)
	if base == "" {
		base = s.settings.BaseCurrency
	}

	lines, err := NewExpander(r).Expand(ctx, bom.ID, depth)
	if err != nil {
		return nil, Classify(err, "expand BOM")
	}

	conv := NewFXConverter(r, s.logger.With(zap.Uint("bom_id", bom.ID)))
	totals, err := Aggregate(ctx, lines, base, conv)
	if err != nil {
		return nil, Classify(err, "aggregate BOM")
	}

	if lines == nil {
		lines = []Line{}
	}
	e := &Explosion{
		BOMID:            bom.ID,
		BOMName:          bom.Name,
		Depth:            depth,
		BaseCurrency:     base,
		Lines:            lines,
		TotalsByCurrency: totals.ByCurrency,
		TotalPrice:       totals.Total,
		TotalCurrency:    totals.Currency,
		FXDegraded:       totals.FXDegraded,
		Unconvertible:    totals.Unconvertible,
	}
	if req.Aggregate {
		e.Aggregate = totals.BySKU
	}

	s.logger.Debug("BOM exploded",
		zap.Uint("bom_id", bom.ID),
		zap.Int("depth", depth),
		zap.Int("lines", len(lines)),
		zap.String("total", e.TotalPrice.String()),
		zap.String("currency", base),
	)
	return e, nil
}

func (s *Service) fail(err error, bomID uint, depth int) error {
	err = Classify(err, "explode BOM")
	fields := []zap.Field{zap.Uint("bom_id", bomID), zap.Int("depth", depth), zap.Error(err)}
	switch KindOf(err) {
	case KindUnavailable, KindInternal:
		s.logger.Error("BOM explosion failed", fields...)
	default:
		s.logger.Debug("BOM explosion rejected", fields...)
	}
	return err
}
