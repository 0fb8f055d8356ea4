package flashloan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// Lender holds the loan mechanics shared by every gateway: the pool's
// reserves live in the ledger under Address.
type Lender struct {
	name              string
	address           common.Address
	maxLoanPercentage uint8
	ledger            *ledger.Ledger
	metrics           *metrics.LoanMetrics
	logger            *zap.Logger
}

// NewLender creates the loan core for a gateway
func NewLender(cfg *ProviderConfig, l *ledger.Ledger, m *metrics.LoanMetrics, logger *zap.Logger) (*Lender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("gateway address cannot be the zero address")
	}
	if cfg.MaxLoanPercentage > 100 {
		return nil, fmt.Errorf("max loan percentage %d exceeds 100", cfg.MaxLoanPercentage)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewLoanMetrics(nil, metrics.Namespace)
	}
	return &Lender{
		name:              cfg.Name,
		address:           cfg.Address,
		maxLoanPercentage: cfg.MaxLoanPercentage,
		ledger:            l,
		metrics:           m,
		logger:            logger.With(zap.String("gateway", cfg.Name)),
	}, nil
}

func (l *Lender) Address() common.Address { return l.address }

func (l *Lender) String() string { return l.name }

// Liquidity returns the largest loan the pool will currently grant
func (l *Lender) Liquidity(asset common.Address) *big.Int {
	available := l.ledger.BalanceOf(asset, l.address)
	if l.maxLoanPercentage == 0 || l.maxLoanPercentage == 100 {
		return available
	}
	available.Mul(available, big.NewInt(int64(l.maxLoanPercentage)))
	return available.Div(available, big.NewInt(100))
}

// Lend transfers amount to the receiver, runs its callback and pulls
// amount + premium back through the receiver's allowance.
func (l *Lender) Lend(ctx context.Context, initiator common.Address, receiver Receiver, asset common.Address, amount, premium *big.Int, payload []byte) error {
	if receiver == nil {
		return fmt.Errorf("%w: receiver cannot be nil", types.ErrInvalidRequest)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: loan amount must be positive", types.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	available := l.Liquidity(asset)
	if available.Cmp(amount) < 0 {
		l.metrics.Errors.WithLabelValues(l.name, types.Reason(types.ErrLoanUnavailable)).Inc()
		return fmt.Errorf("%w: %s can lend %s of %s, requested %s",
			types.ErrLoanUnavailable, l.name, available, asset.Hex(), amount)
	}

	snap := l.ledger.Snapshot()
	fail := func(err error) error {
		if rerr := l.ledger.RevertToSnapshot(snap); rerr != nil {
			l.logger.Error("Failed to revert loan", zap.Error(rerr))
		}
		l.metrics.Errors.WithLabelValues(l.name, types.Reason(err)).Inc()
		return err
	}

	if err := l.ledger.Transfer(asset, l.address, receiver.Address(), amount); err != nil {
		return fail(fmt.Errorf("%w: %v", types.ErrLoanUnavailable, err))
	}

	if err := receiver.ExecuteOperation(ctx, l.address, asset, amount, premium, initiator, payload); err != nil {
		return fail(err)
	}

	repayment := new(big.Int).Add(amount, premium)
	if err := l.ledger.TransferFrom(asset, l.address, receiver.Address(), l.address, repayment); err != nil {
		return fail(fmt.Errorf("%w: %v", types.ErrRepaymentFailed, err))
	}

	if err := l.ledger.Commit(snap); err != nil {
		return fail(fmt.Errorf("failed to commit loan: %w", err))
	}

	l.metrics.Loans.WithLabelValues(l.name).Inc()
	l.metrics.Volume.WithLabelValues(l.name).Add(toFloat(amount))
	l.metrics.Premiums.WithLabelValues(l.name).Add(toFloat(premium))

	l.logger.Debug("Flash loan repaid",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("premium", premium.String()))
	return nil
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
