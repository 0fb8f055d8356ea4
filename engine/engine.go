package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/access"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/types"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const DefaultResultCacheSize = 1024

// Config contains the engine's deployment parameters
type Config struct {
	Owner common.Address
	// Address is the engine's identity in the ledger. Zero derives the
	// address the owner's first contract deployment would get.
	Address         common.Address
	ProfitPolicy    ProfitPolicy
	ResultCacheSize int
}

// Swapper performs and prices single swaps on whitelisted exchanges
type Swapper interface {
	Swap(ctx context.Context, caller, dex, tokenIn, tokenOut common.Address, amountIn *big.Int, recipient common.Address) (*big.Int, error)
	Quote(ctx context.Context, dex, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// Engine borrows through a flash loan gateway, buys on one exchange, sells
// on another and keeps the result only if it clears the caller's profit
// threshold. Every failure after validation rolls the ledger back to the
// state before the call.
type Engine struct {
	address  common.Address
	registry *access.Registry
	gateway  flashloan.Gateway
	swapper  Swapper
	ledger   *ledger.Ledger
	policy   ProfitPolicy

	// slot serializes top-level executions
	slot  chan struct{}
	state atomic.Int32

	mu        sync.Mutex
	active    *frame
	events    []*gethtypes.Log
	maxEvents int
	results   *lru.Cache
	seq       uint64

	now      func() time.Time
	metrics  *metrics.EngineMetrics
	sinks    []ResultSink
	observer func(State)
	logger   *zap.Logger
}

type frameKey struct{ e *Engine }

// frame is one in-flight execution. It travels on the context handed to the
// gateway and exchanges, which is how nested entry is recognized.
type frame struct {
	caller    common.Address
	req       *types.ArbitrageRequest
	callbacks int
	loan      *types.LoanContext
	amountOut *big.Int
	profit    *big.Int
}

// New creates an engine owned by cfg.Owner that borrows from the pool the
// provider resolves to
func New(ctx context.Context, cfg Config, provider flashloan.AddressesProvider, swapper Swapper, l *ledger.Ledger, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("addresses provider cannot be nil")
	}
	if swapper == nil {
		return nil, fmt.Errorf("swapper cannot be nil")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy, err := ParseProfitPolicy(string(cfg.ProfitPolicy))
	if err != nil {
		return nil, err
	}

	registry, err := access.NewRegistry(cfg.Owner, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	gateway, err := provider.GetPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve flash loan pool: %w", err)
	}

	address := cfg.Address
	if address == (common.Address{}) {
		address = crypto.CreateAddress(cfg.Owner, 0)
	}

	size := cfg.ResultCacheSize
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	results, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	e := &Engine{
		address:   address,
		registry:  registry,
		gateway:   gateway,
		swapper:   swapper,
		ledger:    l,
		policy:    policy,
		slot:      make(chan struct{}, 1),
		maxEvents: size,
		results:   results,
		now:       time.Now,
		logger:    logger.With(zap.String("engine", address.Hex())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewEngineMetrics(nil, metrics.Namespace)
	}

	e.logger.Info("Engine deployed",
		zap.String("owner", cfg.Owner.Hex()),
		zap.String("gateway", gateway.String()),
		zap.String("gateway_address", gateway.Address().Hex()),
		zap.String("profit_policy", string(policy)))
	return e, nil
}

// ExecuteArbitrage runs one borrow, buy, sell, repay round trip for caller.
// On error no balance the call touched has changed.
func (e *Engine) ExecuteArbitrage(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	return e.execute(ctx, caller, req, false)
}

// Simulate runs the full execution and then discards every effect. It
// records no result and emits no event.
func (e *Engine) Simulate(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	return e.execute(ctx, caller, req, true)
}

func (e *Engine) execute(ctx context.Context, caller common.Address, req *types.ArbitrageRequest, dryRun bool) (*types.ArbitrageResult, error) {
	if e.inFlight(ctx) {
		err := fmt.Errorf("%w: execution entered from inside an execution", types.ErrReentrancyDetected)
		e.metrics.Reverts.WithLabelValues(types.Reason(err), e.State().String()).Inc()
		e.logger.Warn("Rejected nested execution", zap.String("caller", caller.Hex()))
		return nil, err
	}
	if err := e.acquire(); err != nil {
		e.metrics.Reverts.WithLabelValues(types.Reason(err), e.State().String()).Inc()
		e.logger.Warn("Rejected execution while another is in flight", zap.String("caller", caller.Hex()))
		return nil, err
	}
	defer e.release()

	if !dryRun {
		start := time.Now()
		e.metrics.Attempts.Inc()
		e.metrics.InFlight.Set(1)
		defer func() {
			e.metrics.InFlight.Set(0)
			e.metrics.ExecutionTime.Observe(time.Since(start).Seconds())
		}()
	}

	res, err := e.run(ctx, caller, req, dryRun)
	e.setState(StateIdle)
	return res, err
}

func (e *Engine) run(ctx context.Context, caller common.Address, req *types.ArbitrageRequest, dryRun bool) (*types.ArbitrageResult, error) {
	e.setState(StateValidating)
	if err := e.validate(caller, req); err != nil {
		return nil, e.abort(-1, StateValidating, err, dryRun)
	}

	e.setState(StateBorrowing)
	payload, err := types.EncodeRequest(req)
	if err != nil {
		return nil, e.abort(-1, StateBorrowing, err, dryRun)
	}

	snap := e.ledger.Snapshot()
	f := &frame{caller: caller, req: req}
	e.mu.Lock()
	e.active = f
	e.mu.Unlock()

	loanErr := e.gateway.FlashLoanSimple(context.WithValue(ctx, frameKey{e}, f), e.address, e, req.TokenA, req.AmountIn, payload)

	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()

	if loanErr != nil {
		return nil, e.abort(snap, e.State(), loanErr, dryRun)
	}
	if f.callbacks != 1 || f.loan == nil {
		return nil, e.abort(snap, e.State(), fmt.Errorf("%w: gateway returned without a completed callback", types.ErrLoanUnavailable), dryRun)
	}

	res := &types.ArbitrageResult{
		ID:        uuid.NewString(),
		Caller:    caller,
		TokenA:    req.TokenA,
		TokenB:    req.TokenB,
		DexBuy:    req.DexBuy,
		DexSell:   req.DexSell,
		AmountIn:  new(big.Int).Set(req.AmountIn),
		Premium:   new(big.Int).Set(f.loan.Premium),
		Profit:    new(big.Int).Set(f.profit),
		Timestamp: e.now(),
	}

	if e.policy == PolicyForward && f.profit.Sign() > 0 {
		if err := e.ledger.Transfer(req.TokenA, e.address, caller, f.profit); err != nil {
			return nil, e.abort(snap, StateRepaying, fmt.Errorf("failed to forward profit: %w", err), dryRun)
		}
		res.Forwarded = true
	}

	if dryRun {
		if err := e.ledger.RevertToSnapshot(snap); err != nil {
			return nil, fmt.Errorf("failed to discard simulation: %w", err)
		}
		e.setState(StateSettled)
		return res, nil
	}

	if err := e.ledger.Commit(snap); err != nil {
		return nil, e.abort(snap, StateRepaying, fmt.Errorf("failed to commit execution: %w", err), dryRun)
	}
	e.setState(StateSettled)
	e.record(ctx, res)
	return res, nil
}

// validate runs every check that must pass before funds move
func (e *Engine) validate(caller common.Address, req *types.ArbitrageRequest) error {
	if !e.registry.IsAuthorizedCaller(caller) {
		return fmt.Errorf("%w: %s is not an authorized caller", types.ErrUnauthorized, caller.Hex())
	}
	if e.registry.Paused() {
		return types.ErrPaused
	}
	if req == nil {
		return fmt.Errorf("%w: missing request", types.ErrInvalidRequest)
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount in must be positive", types.ErrInvalidRequest)
	}
	if req.TokenA == req.TokenB {
		return fmt.Errorf("%w: token a and token b are both %s", types.ErrInvalidRequest, req.TokenA.Hex())
	}
	if now := e.now(); !now.Before(req.Deadline) {
		return fmt.Errorf("%w: deadline %s, now %s", types.ErrDeadlineExpired,
			req.Deadline.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	for _, dex := range []common.Address{req.DexBuy, req.DexSell} {
		if !e.registry.IsSupportedDEX(dex) {
			return fmt.Errorf("%w: %s", types.ErrUnsupportedDEX, dex.Hex())
		}
	}
	if req.DexBuy == req.DexSell {
		e.logger.Warn("Buy and sell on the same exchange", zap.String("dex", req.DexBuy.Hex()))
	}
	return nil
}

// abort rolls back to snap (negative when nothing moved yet) and reports err
func (e *Engine) abort(snap int, at State, err error, dryRun bool) error {
	if snap >= 0 {
		if rerr := e.ledger.RevertToSnapshot(snap); rerr != nil {
			e.logger.Error("Failed to revert execution", zap.Int("snapshot", snap), zap.Error(rerr))
		}
	}
	e.setState(StateReverted)

	if !dryRun {
		e.metrics.Reverts.WithLabelValues(types.Reason(err), at.String()).Inc()
		e.logger.Warn("Arbitrage reverted",
			zap.String("state", at.String()),
			zap.String("reason", types.Reason(err)),
			zap.Error(err))
	}
	return err
}

func (e *Engine) record(ctx context.Context, res *types.ArbitrageResult) {
	entry, err := types.NewArbitrageExecutedLog(e.address, res)
	if err != nil {
		e.logger.Error("Failed to encode settlement event", zap.String("id", res.ID), zap.Error(err))
	}

	e.mu.Lock()
	if entry != nil {
		entry.Index = uint(e.seq)
		entry.TxHash = crypto.Keccak256Hash([]byte(res.ID))
		e.events = append(e.events, entry)
		if len(e.events) > e.maxEvents {
			e.events = append([]*gethtypes.Log(nil), e.events[len(e.events)-e.maxEvents:]...)
		}
	}
	e.seq++
	e.results.Add(res.ID, res.Clone())
	e.mu.Unlock()

	profit, _ := new(big.Float).SetInt(res.Profit).Float64()
	e.metrics.Settled.Inc()
	e.metrics.Profit.Add(profit)
	e.metrics.ProfitBps.Observe(float64(arbmath.ProfitBps(res.Profit, res.AmountIn)))

	e.logger.Info("Arbitrage executed",
		zap.String("id", res.ID),
		zap.String("caller", res.Caller.Hex()),
		zap.String("token_a", res.TokenA.Hex()),
		zap.String("token_b", res.TokenB.Hex()),
		zap.String("dex_buy", res.DexBuy.Hex()),
		zap.String("dex_sell", res.DexSell.Hex()),
		zap.String("amount_in", res.AmountIn.String()),
		zap.String("premium", res.Premium.String()),
		zap.String("profit", res.Profit.String()),
		zap.Bool("forwarded", res.Forwarded))

	for _, sink := range e.sinks {
		if err := sink.Record(ctx, res.Clone()); err != nil {
			e.logger.Error("Failed to record result", zap.String("id", res.ID), zap.Error(err))
		}
	}
}

// acquire never waits. A caller that finds an execution in flight is
// either nested inside it or racing it, and both are rejected. Callers
// that need queueing serialize before reaching the engine.
func (e *Engine) acquire() error {
	select {
	case e.slot <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("%w: engine is busy with another execution", types.ErrReentrancyDetected)
	}
}

func (e *Engine) release() {
	<-e.slot
}

func (e *Engine) inFlight(ctx context.Context) bool {
	_, ok := ctx.Value(frameKey{e}).(*frame)
	return ok
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	if e.observer != nil {
		e.observer(s)
	}
}
