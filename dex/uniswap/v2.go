package uniswap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/ledger"
)

// Contract addresses
var (
	MainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	pairInitCode   = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

// DefaultFeeBps is the 0.3% Uniswap V2 swap fee
const DefaultFeeBps = 30

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrUnknownToken          = errors.New("token not in pair")
)

// PairConfig describes one constant-product pair
type PairConfig struct {
	Name    string
	Address common.Address // zero derives the CREATE2 address from Factory
	Factory common.Address // zero means MainnetFactory
	TokenA  common.Address
	TokenB  common.Address
	FeeBps  uint64
}

// UniswapV2Pair implements dex.Exchange as an x*y=k pool whose reserves are
// its ledger balances
type UniswapV2Pair struct {
	mu      sync.Mutex
	name    string
	address common.Address
	token0  common.Address
	token1  common.Address
	feeBps  uint64
	ledger  *ledger.Ledger
	logger  *zap.Logger
}

var _ dex.Exchange = (*UniswapV2Pair)(nil)

// NewUniswapV2Pair creates a new Uniswap V2 pair
func NewUniswapV2Pair(cfg PairConfig, l *ledger.Ledger, logger *zap.Logger) (*UniswapV2Pair, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.TokenA == cfg.TokenB {
		return nil, fmt.Errorf("identical pair tokens %s", cfg.TokenA.Hex())
	}
	if cfg.FeeBps >= 10000 {
		return nil, fmt.Errorf("fee %d bps must be below 100%%", cfg.FeeBps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	token0, token1 := SortTokens(cfg.TokenA, cfg.TokenB)
	address := cfg.Address
	if address == (common.Address{}) {
		factory := cfg.Factory
		if factory == (common.Address{}) {
			factory = MainnetFactory
		}
		address = PairFor(factory, token0, token1)
	}
	name := cfg.Name
	if name == "" {
		name = "UniswapV2"
	}

	return &UniswapV2Pair{
		name:    name,
		address: address,
		token0:  token0,
		token1:  token1,
		feeBps:  cfg.FeeBps,
		ledger:  l,
		logger:  logger,
	}, nil
}

// GetName returns the exchange name
func (p *UniswapV2Pair) GetName() string {
	return p.name
}

func (p *UniswapV2Pair) Address() common.Address {
	return p.address
}

// Tokens returns the pair's tokens in sorted order
func (p *UniswapV2Pair) Tokens() (common.Address, common.Address) {
	return p.token0, p.token1
}

// GetReserves returns the reserves of the pair
func (p *UniswapV2Pair) GetReserves(_ context.Context) (*dex.Reserves, error) {
	return &dex.Reserves{
		Reserve0: p.ledger.BalanceOf(p.token0, p.address),
		Reserve1: p.ledger.BalanceOf(p.token1, p.address),
	}, nil
}

// GetAmountOut quotes amountIn of tokenIn against the current reserves
func (p *UniswapV2Pair) GetAmountOut(_ context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := p.checkTokens(tokenIn, tokenOut); err != nil {
		return nil, err
	}
	reserveIn := p.ledger.BalanceOf(tokenIn, p.address)
	reserveOut := p.ledger.BalanceOf(tokenOut, p.address)
	return p.getAmountOut(amountIn, reserveIn, reserveOut)
}

// GetAmountIn calculates required input amount for desired output
func (p *UniswapV2Pair) GetAmountIn(_ context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	if err := p.checkTokens(tokenIn, tokenOut); err != nil {
		return nil, err
	}
	reserveIn := p.ledger.BalanceOf(tokenIn, p.address)
	reserveOut := p.ledger.BalanceOf(tokenOut, p.address)
	if amountOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), big.NewInt(10000))
	denominator := new(big.Int).Mul(
		new(big.Int).Sub(reserveOut, amountOut),
		big.NewInt(int64(10000-p.feeBps)),
	)
	return new(big.Int).Add(new(big.Int).Div(numerator, denominator), big.NewInt(1)), nil
}

// Swap prices amountIn against the reserves it held before the input
// arrived, then pays the output to recipient
func (p *UniswapV2Pair) Swap(_ context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, recipient common.Address) (*big.Int, error) {
	if err := p.checkTokens(tokenIn, tokenOut); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	balanceIn := p.ledger.BalanceOf(tokenIn, p.address)
	reserveIn := new(big.Int).Sub(balanceIn, amountIn)
	if reserveIn.Sign() < 0 {
		return nil, fmt.Errorf("input of %s not received", amountIn)
	}
	reserveOut := p.ledger.BalanceOf(tokenOut, p.address)

	amountOut, err := p.getAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if err := p.ledger.Transfer(tokenOut, p.address, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("failed to pay out: %w", err)
	}

	p.logger.Debug("Pair swap",
		zap.String("pair", p.name),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()))
	return amountOut, nil
}

func (p *UniswapV2Pair) checkTokens(tokenIn, tokenOut common.Address) error {
	if tokenIn == tokenOut {
		return fmt.Errorf("%w: identical tokens", ErrUnknownToken)
	}
	for _, tok := range []common.Address{tokenIn, tokenOut} {
		if tok != p.token0 && tok != p.token1 {
			return fmt.Errorf("%w: %s", ErrUnknownToken, tok.Hex())
		}
	}
	return nil
}

// getAmountOut calculates output amount for an input amount
func (p *UniswapV2Pair) getAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("invalid input amount")
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-p.feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(10000)),
		amountInWithFee,
	)
	return new(big.Int).Div(numerator, denominator), nil
}

// SortTokens orders two token addresses the way the factory does
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA[:], tokenB[:]) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PairFor calculates the CREATE2 pair address for two tokens
func PairFor(factory, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{0xff}, factory.Bytes(), salt, pairInitCode))
}
