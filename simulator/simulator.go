package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/types"
)

// Runner is the part of the engine a dry run needs
type Runner interface {
	Simulate(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*types.ArbitrageResult, error)
	CalculateProfit(ctx context.Context, req *types.ArbitrageRequest) (*engine.Quote, error)
}

// SimulationResult represents the outcome of a dry run
type SimulationResult struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason"`
	Profit  *big.Int      `json:"profit,omitempty"`
	Premium *big.Int      `json:"premium,omitempty"`
	Quote   *engine.Quote `json:"quote,omitempty"`
	Message string        `json:"error,omitempty"`
	Error   error         `json:"-"`
}

// Simulator handles dry runs against the live engine state
type Simulator struct {
	runner Runner
	logger *zap.Logger
}

// NewSimulator creates a new simulator
func NewSimulator(runner Runner, logger *zap.Logger) (*Simulator, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{runner: runner, logger: logger}, nil
}

// SimulateRequest executes req end to end and discards the effects. A
// failing execution is reported in the result, not as an error; the error
// return is reserved for a cancelled context.
func (s *Simulator) SimulateRequest(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &SimulationResult{}
	if quote, err := s.runner.CalculateProfit(ctx, req); err == nil {
		out.Quote = quote
	}

	res, err := s.runner.Simulate(ctx, caller, req)
	out.Reason = types.Reason(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		out.Error = err
		out.Message = err.Error()
		s.logger.Debug("Simulation reverted", zap.String("reason", out.Reason), zap.Error(err))
		return out, nil
	}

	out.Success = true
	out.Profit = res.Profit
	out.Premium = res.Premium
	return out, nil
}

// SimulateBatch dry-runs each request in order
func (s *Simulator) SimulateBatch(ctx context.Context, caller common.Address, reqs []*types.ArbitrageRequest) ([]*SimulationResult, error) {
	results := make([]*SimulationResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := s.SimulateRequest(ctx, caller, req)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Best returns the index of the most profitable successful result, or -1
func Best(results []*SimulationResult) int {
	best := -1
	for i, res := range results {
		if !res.Success {
			continue
		}
		if best < 0 || res.Profit.Cmp(results[best].Profit) > 0 {
			best = i
		}
	}
	return best
}
