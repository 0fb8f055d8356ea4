package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/types"
)

// Quoter prices a request without executing it
type Quoter interface {
	CalculateProfit(ctx context.Context, req *types.ArbitrageRequest) (*engine.Quote, error)
}

// Route represents a priced buy/sell pair of venues
type Route struct {
	Request *types.ArbitrageRequest
	Quote   *engine.Quote
}

// Profit returns the quoted profit net of the loan premium
func (r *Route) Profit() *big.Int {
	return r.Quote.Profit
}

// Config bounds what the detector looks for
type Config struct {
	// Tokens are borrowed in turn; every other token is tried as the middle leg
	Tokens       []common.Address
	DEXes        []common.Address
	AmountIn     *big.Int
	MinProfitBps uint64
	TTL          time.Duration
}

// Detector handles arbitrage detection
type Detector struct {
	quoter Quoter
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewDetector creates a new arbitrage detector
func NewDetector(quoter Quoter, cfg Config, logger *zap.Logger) (*Detector, error) {
	if quoter == nil {
		return nil, fmt.Errorf("quoter cannot be nil")
	}
	if cfg.AmountIn == nil || cfg.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		quoter: quoter,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("detector"),
	}, nil
}

// FindArbitrage quotes every token pair across every ordered pair of
// distinct venues and returns the profitable routes the gateway can fund,
// best first. Venues that
// cannot price a leg are skipped.
func (d *Detector) FindArbitrage(ctx context.Context) ([]*Route, error) {
	deadline := d.now().Add(d.cfg.TTL)

	var routes []*Route
	for _, tokenA := range d.cfg.Tokens {
		for _, tokenB := range d.cfg.Tokens {
			if tokenA == tokenB {
				continue
			}

			for i, buy := range d.cfg.DEXes {
				for j, sell := range d.cfg.DEXes {
					if i == j {
						continue
					}
					if err := ctx.Err(); err != nil {
						return nil, err
					}

					req := &types.ArbitrageRequest{
						TokenA:       tokenA,
						TokenB:       tokenB,
						DexBuy:       buy,
						DexSell:      sell,
						AmountIn:     new(big.Int).Set(d.cfg.AmountIn),
						MinProfitBps: d.cfg.MinProfitBps,
						Deadline:     deadline,
					}

					quote, err := d.quoter.CalculateProfit(ctx, req)
					if err != nil {
						d.logger.Debug("Route not priceable",
							zap.String("token_a", tokenA.Hex()),
							zap.String("token_b", tokenB.Hex()),
							zap.String("dex_buy", buy.Hex()),
							zap.String("dex_sell", sell.Hex()),
							zap.Error(err))
						continue
					}
					if !quote.Profitable || !quote.Fundable {
						continue
					}

					routes = append(routes, &Route{Request: req, Quote: quote})
				}
			}
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Profit().Cmp(routes[j].Profit()) > 0
	})

	d.logger.Info("Scan complete", zap.Int("routes", len(routes)))
	return routes, nil
}
