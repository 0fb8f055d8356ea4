package balancer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const (
	// Mainnet addresses
	VaultAddress = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
)

// Vault implements flashloan.Gateway for a Balancer-style vault, which
// charges no flash loan fee
type Vault struct {
	*flashloan.Lender
	logger *zap.Logger
}

var _ flashloan.Gateway = (*Vault)(nil)

// NewVault creates a new Balancer flash loan vault. A zero address in cfg
// falls back to the mainnet vault address.
func NewVault(cfg *flashloan.ProviderConfig, l *ledger.Ledger, m *metrics.LoanMetrics, logger *zap.Logger) (*Vault, error) {
	if cfg == nil {
		cfg = &flashloan.ProviderConfig{}
	}
	if cfg.Address == (common.Address{}) {
		cfg.Address = common.HexToAddress(VaultAddress)
	}
	if cfg.Name == "" {
		cfg.Name = flashloan.KindBalancer.String()
	}
	if cfg.PremiumBps != 0 {
		return nil, fmt.Errorf("balancer vault does not charge a premium, got %d bps", cfg.PremiumBps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lender, err := flashloan.NewLender(cfg, l, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lender: %w", err)
	}
	return &Vault{Lender: lender, logger: logger}, nil
}

func (v *Vault) Premium(_ context.Context, _ common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid loan amount")
	}
	return new(big.Int), nil
}

func (v *Vault) Liquidity(_ context.Context, asset common.Address) (*big.Int, error) {
	return v.Lender.Liquidity(asset), nil
}

// FlashLoanSimple executes a flash loan through the vault
func (v *Vault) FlashLoanSimple(ctx context.Context, initiator common.Address, receiver flashloan.Receiver, asset common.Address, amount *big.Int, payload []byte) error {
	v.logger.Debug("Executing Balancer flash loan",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()))

	return v.Lend(ctx, initiator, receiver, asset, amount, new(big.Int), payload)
}
