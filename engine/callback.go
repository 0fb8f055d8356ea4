package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"
)

var _ flashloan.Receiver = (*Engine)(nil)

// Address is the engine's identity in the ledger and the initiator of its loans
func (e *Engine) Address() common.Address {
	return e.address
}

// ExecuteOperation is the flash loan callback. It accepts only the
// configured gateway, only for a loan this engine initiated, and only once
// per loan. The swaps, profit check and repayment approval happen here.
func (e *Engine) ExecuteOperation(ctx context.Context, sender, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
	if sender != e.gateway.Address() {
		e.logger.Warn("Rejected callback from untrusted sender", zap.String("sender", sender.Hex()))
		return fmt.Errorf("%w: callback from %s, gateway is %s", types.ErrUntrustedCaller, sender.Hex(), e.gateway.Address().Hex())
	}
	if initiator != e.address {
		return fmt.Errorf("%w: loan initiated by %s", types.ErrUntrustedCaller, initiator.Hex())
	}

	f, _ := ctx.Value(frameKey{e}).(*frame)

	e.mu.Lock()
	if e.active == nil || f != e.active {
		e.mu.Unlock()
		return fmt.Errorf("%w: no loan in flight for this call", types.ErrUntrustedCaller)
	}
	f.callbacks++
	repeated := f.callbacks > 1
	e.mu.Unlock()

	if repeated {
		return fmt.Errorf("%w: callback invoked %d times", types.ErrReentrancyDetected, f.callbacks)
	}

	req, err := types.DecodeRequest(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	if !sameRequest(req, f.req) || asset != req.TokenA || amount == nil || amount.Cmp(req.AmountIn) != 0 {
		return fmt.Errorf("%w: callback does not match the requested loan", types.ErrInvalidRequest)
	}
	if premium == nil || premium.Sign() < 0 {
		return fmt.Errorf("%w: invalid premium", types.ErrInvalidRequest)
	}
	loan := types.NewLoanContext(f.req, asset, amount, premium)

	e.setState(StateBuySwap)
	amountB, err := e.swapper.Swap(ctx, e.address, req.DexBuy, req.TokenA, req.TokenB, loan.Amount, e.address)
	if err != nil {
		return fmt.Errorf("failed to buy on %s: %w", req.DexBuy.Hex(), err)
	}

	e.setState(StateSellSwap)
	amountA, err := e.swapper.Swap(ctx, e.address, req.DexSell, req.TokenB, req.TokenA, amountB, e.address)
	if err != nil {
		return fmt.Errorf("failed to sell on %s: %w", req.DexSell.Hex(), err)
	}

	e.setState(StateProfitCheck)
	profit := new(big.Int).Sub(amountA, loan.Repayment)
	required := req.RequiredProfit()
	if profit.Cmp(required) < 0 {
		return fmt.Errorf("%w: profit %s below required %s", types.ErrInsufficientProfit, profit, required)
	}

	e.setState(StateRepaying)
	balance := e.ledger.BalanceOf(asset, e.address)
	if balance.Cmp(loan.Repayment) < 0 {
		return fmt.Errorf("%w: holding %s, owe %s", types.ErrRepaymentFailed, balance, loan.Repayment)
	}
	if err := e.ledger.Approve(asset, e.address, sender, loan.Repayment); err != nil {
		return fmt.Errorf("%w: %v", types.ErrRepaymentFailed, err)
	}

	f.loan = loan
	f.amountOut = amountA
	f.profit = profit
	return nil
}

func sameRequest(a, b *types.ArbitrageRequest) bool {
	return a.TokenA == b.TokenA &&
		a.TokenB == b.TokenB &&
		a.DexBuy == b.DexBuy &&
		a.DexSell == b.DexSell &&
		a.AmountIn.Cmp(b.AmountIn) == 0 &&
		a.MinProfitBps == b.MinProfitBps &&
		a.Deadline.Unix() == b.Deadline.Unix()
}
