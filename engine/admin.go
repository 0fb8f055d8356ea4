package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/access"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"
)

func (e *Engine) AddSupportedDEX(sender, dex common.Address) error {
	return e.registry.AddSupportedDEX(sender, dex)
}

func (e *Engine) RemoveSupportedDEX(sender, dex common.Address) error {
	return e.registry.RemoveSupportedDEX(sender, dex)
}

func (e *Engine) AddAuthorizedCaller(sender, caller common.Address) error {
	return e.registry.AddAuthorizedCaller(sender, caller)
}

func (e *Engine) RemoveAuthorizedCaller(sender, caller common.Address) error {
	return e.registry.RemoveAuthorizedCaller(sender, caller)
}

func (e *Engine) TransferOwnership(sender, newOwner common.Address) error {
	return e.registry.TransferOwnership(sender, newOwner)
}

// Pause stops new executions; the one in flight, if any, finishes
func (e *Engine) Pause(sender common.Address) error {
	return e.registry.Pause(sender)
}

func (e *Engine) Unpause(sender common.Address) error {
	return e.registry.Unpause(sender)
}

// Withdraw moves retained profit out of the engine. It fails with
// ErrReentrancyDetected while an execution is in flight.
func (e *Engine) Withdraw(ctx context.Context, sender, token, to common.Address, amount *big.Int) error {
	if e.inFlight(ctx) {
		return fmt.Errorf("%w: withdraw from inside an execution", types.ErrReentrancyDetected)
	}
	if err := e.registry.RequireOwner(sender); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: cannot withdraw to the zero address", types.ErrInvalidRequest)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdraw amount must be positive", types.ErrInvalidRequest)
	}

	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if err := e.ledger.Transfer(token, e.address, to, amount); err != nil {
		return fmt.Errorf("failed to withdraw: %w", err)
	}
	e.logger.Info("Withdrawn",
		zap.String("token", token.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

func (e *Engine) Owner() common.Address {
	return e.registry.Owner()
}

func (e *Engine) IsSupportedDEX(dex common.Address) bool {
	return e.registry.IsSupportedDEX(dex)
}

func (e *Engine) IsAuthorizedCaller(caller common.Address) bool {
	return e.registry.IsAuthorizedCaller(caller)
}

func (e *Engine) Paused() bool {
	return e.registry.Paused()
}

// Registry exposes the access registry for read-only inspection
func (e *Engine) Registry() *access.Registry {
	return e.registry
}

func (e *Engine) Gateway() flashloan.Gateway {
	return e.gateway
}

func (e *Engine) ProfitPolicy() ProfitPolicy {
	return e.policy
}

// State reports the phase of the execution in flight, StateIdle when none is
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Balance returns the engine's holding of token
func (e *Engine) Balance(token common.Address) *big.Int {
	return e.ledger.BalanceOf(token, e.address)
}

// Results lists the retained results, oldest first
func (e *Engine) Results() []*types.ArbitrageResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := e.results.Keys()
	out := make([]*types.ArbitrageResult, 0, len(keys))
	for _, k := range keys {
		if v, ok := e.results.Peek(k); ok {
			out = append(out, v.(*types.ArbitrageResult).Clone())
		}
	}
	return out
}

// Result looks up a retained result by id
func (e *Engine) Result(id string) (*types.ArbitrageResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.results.Peek(id)
	if !ok {
		return nil, false
	}
	return v.(*types.ArbitrageResult).Clone(), true
}

// Events returns the ArbitrageExecuted logs emitted so far, oldest first
func (e *Engine) Events() []*gethtypes.Log {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*gethtypes.Log(nil), e.events...)
}
