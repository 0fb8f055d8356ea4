package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ArbitrageRequest describes one buy-on-A / sell-on-B round trip funded by a flash loan
type ArbitrageRequest struct {
	TokenA       common.Address // borrowed asset, profit is denominated in it
	TokenB       common.Address
	DexBuy       common.Address // swaps TokenA -> TokenB
	DexSell      common.Address // swaps TokenB -> TokenA
	AmountIn     *big.Int
	MinProfitBps uint64
	Deadline     time.Time
}

// RequiredProfit returns AmountIn * MinProfitBps / 10000
func (r *ArbitrageRequest) RequiredProfit() *big.Int {
	if r.AmountIn == nil {
		return new(big.Int)
	}
	required := new(big.Int).Mul(r.AmountIn, new(big.Int).SetUint64(r.MinProfitBps))
	return required.Div(required, big.NewInt(10000))
}

// LoanContext exists only for the duration of one flash loan callback
type LoanContext struct {
	Asset     common.Address
	Amount    *big.Int
	Premium   *big.Int
	Repayment *big.Int
	Request   *ArbitrageRequest
}

// NewLoanContext builds the context for a loan of amount with the given premium
func NewLoanContext(req *ArbitrageRequest, asset common.Address, amount, premium *big.Int) *LoanContext {
	return &LoanContext{
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
		Premium:   new(big.Int).Set(premium),
		Repayment: new(big.Int).Add(amount, premium),
		Request:   req,
	}
}

// ArbitrageResult is emitted once per settled arbitrage and never mutated
type ArbitrageResult struct {
	ID        string         `json:"id"`
	Caller    common.Address `json:"caller"`
	TokenA    common.Address `json:"token_a"`
	TokenB    common.Address `json:"token_b"`
	DexBuy    common.Address `json:"dex_buy"`
	DexSell   common.Address `json:"dex_sell"`
	AmountIn  *big.Int       `json:"amount_in"`
	Premium   *big.Int       `json:"premium"`
	Profit    *big.Int       `json:"profit"`
	Forwarded bool           `json:"forwarded"`
	Timestamp time.Time      `json:"timestamp"`
}

// Clone returns a copy that shares no amounts with r
func (r *ArbitrageResult) Clone() *ArbitrageResult {
	if r == nil {
		return nil
	}
	c := *r
	c.AmountIn = cloneInt(r.AmountIn)
	c.Premium = cloneInt(r.Premium)
	c.Profit = cloneInt(r.Profit)
	return &c
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
