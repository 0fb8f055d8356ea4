package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// Manager coordinates gateway selection across providers
type Manager struct {
	mu       sync.RWMutex
	gateways []Gateway
	metrics  *metrics.LoanMetrics
	logger   *zap.Logger
}

// NewManager creates a new flash loan manager
func NewManager(m *metrics.LoanMetrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewLoanMetrics(nil, metrics.Namespace)
	}
	return &Manager{
		metrics: m,
		logger:  logger,
	}
}

// AddGateway adds a new flash loan gateway. A gateway whose address is
// already registered is rejected.
func (m *Manager) AddGateway(g Gateway) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.gateways {
		if existing.Address() == g.Address() {
			return fmt.Errorf("gateway %s already registered at %s", existing, g.Address().Hex())
		}
	}
	m.gateways = append(m.gateways, g)
	return nil
}

// Gateways returns the registered gateways in insertion order
func (m *Manager) Gateways() []Gateway {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Gateway(nil), m.gateways...)
}

// SelectGateway selects the gateway with the lowest premium among those
// that can lend amount of asset. Ties keep the earlier registration.
func (m *Manager) SelectGateway(ctx context.Context, asset common.Address, amount *big.Int) (Gateway, *big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.gateways) == 0 {
		return nil, nil, ErrNoGateway
	}

	var (
		best    Gateway
		bestFee *big.Int
	)

	for _, g := range m.gateways {
		liquidity, err := g.Liquidity(ctx, asset)
		if err != nil {
			m.logger.Warn("Failed to get gateway liquidity", zap.Stringer("gateway", g), zap.Error(err))
			continue
		}
		if liquidity.Cmp(amount) < 0 {
			continue
		}

		fee, err := g.Premium(ctx, asset, amount)
		if err != nil {
			m.logger.Warn("Failed to get gateway premium", zap.Stringer("gateway", g), zap.Error(err))
			continue
		}

		if bestFee == nil || fee.Cmp(bestFee) < 0 {
			best = g
			bestFee = fee
		}
	}

	if best == nil {
		return nil, nil, fmt.Errorf("%w: no gateway can lend %s of %s", types.ErrLoanUnavailable, amount, asset.Hex())
	}

	m.metrics.Selections.WithLabelValues(best.String()).Inc()
	return best, bestFee, nil
}

// AddressesProvider pins the gateway chosen for asset and amount
func (m *Manager) AddressesProvider(ctx context.Context, asset common.Address, amount *big.Int) (AddressesProvider, error) {
	g, fee, err := m.SelectGateway(ctx, asset, amount)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Selected flash loan gateway",
		zap.Stringer("gateway", g),
		zap.String("address", g.Address().Hex()),
		zap.String("premium", fee.String()))
	return StaticAddressesProvider{Pool: g}, nil
}
