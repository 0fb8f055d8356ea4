package aave

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/ledger"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// DefaultPremiumBps is Aave V3's flashLoanSimple premium (0.09%)
const DefaultPremiumBps = 9

// Pool implements flashloan.Gateway the way an Aave V3 pool serves
// flashLoanSimple: premium in basis points, repayment pulled via allowance.
type Pool struct {
	*flashloan.Lender
	premiumBps uint64
	logger     *zap.Logger
}

var _ flashloan.Gateway = (*Pool)(nil)

// NewPool creates a new Aave-style flash loan pool
func NewPool(cfg *flashloan.ProviderConfig, l *ledger.Ledger, m *metrics.LoanMetrics, logger *zap.Logger) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.PremiumBps > 10000 {
		return nil, fmt.Errorf("premium %d bps exceeds 100%%", cfg.PremiumBps)
	}
	if cfg.Name == "" {
		cfg.Name = flashloan.KindAave.String()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lender, err := flashloan.NewLender(cfg, l, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lender: %w", err)
	}

	return &Pool{
		Lender:     lender,
		premiumBps: cfg.PremiumBps,
		logger:     logger,
	}, nil
}

// Premium calculates the fee for a flash loan
func (p *Pool) Premium(_ context.Context, _ common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid loan amount")
	}
	return arbmath.BpsOf(amount, p.premiumBps), nil
}

func (p *Pool) Liquidity(_ context.Context, asset common.Address) (*big.Int, error) {
	return p.Lender.Liquidity(asset), nil
}

// FlashLoanSimple executes a single-asset flash loan
func (p *Pool) FlashLoanSimple(ctx context.Context, initiator common.Address, receiver flashloan.Receiver, asset common.Address, amount *big.Int, payload []byte) error {
	premium, err := p.Premium(ctx, asset, amount)
	if err != nil {
		return fmt.Errorf("failed to get premium: %w", err)
	}

	p.logger.Debug("Executing Aave flash loan",
		zap.String("initiator", initiator.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("premium", premium.String()))

	return p.Lend(ctx, initiator, receiver, asset, amount, premium, payload)
}
