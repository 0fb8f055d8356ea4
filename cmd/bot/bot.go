package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/oracle"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/flashloan/balancer"
	"github.com/michaelpento.lv/flasharb/httpserver"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/storage"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// ShutdownTimeout bounds the HTTP server drain on exit
const ShutdownTimeout = 5 * time.Second

// Bot wires one simulated chain: the ledger, the gateways, the DEX pools
// and the engine deployed over them
type Bot struct {
	cfg       *config.Config
	ledger    *ledger.Ledger
	registry  *prometheus.Registry
	loans     *metrics.LoanMetrics
	manager   *flashloan.Manager
	adapter   *dex.SwapAdapter
	engine    *engine.Engine
	simulator *simulator.Simulator
	queue     *queue
	sinks     []storage.Sink
	dexes     map[string]common.Address
	now       func() time.Time
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// Submission is a configured request bound to its caller
type Submission struct {
	Caller  common.Address
	Request *types.ArbitrageRequest
}

// New builds the world described by cfg. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bot{
		cfg:      cfg,
		ledger:   ledger.New(logger.Named("ledger")),
		registry: metrics.NewRegistry(),
		queue:    newQueue(),
		dexes:    make(map[string]common.Address),
		now:      time.Now,
		logger:   logger,
	}

	b.loans = metrics.NewLoanMetrics(b.registry, metrics.Namespace)
	b.manager = flashloan.NewManager(b.loans, logger)
	if err := b.deployGateways(); err != nil {
		return nil, err
	}

	adapter, err := dex.NewSwapAdapter(b.ledger, metrics.NewSwapMetrics(b.registry, metrics.Namespace), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create swap adapter: %w", err)
	}
	b.adapter = adapter
	if err := b.deployDEXes(); err != nil {
		return nil, err
	}

	provider, err := b.addressesProvider(ctx)
	if err != nil {
		return nil, err
	}

	if err := b.openSinks(ctx); err != nil {
		return nil, err
	}
	resultSinks := make([]engine.ResultSink, 0, len(b.sinks))
	for _, s := range b.sinks {
		resultSinks = append(resultSinks, s)
	}

	var engineAddress common.Address
	if cfg.EngineAddress != "" {
		engineAddress = common.HexToAddress(cfg.EngineAddress)
	}
	eng, err := engine.New(ctx, engine.Config{
		Owner:           cfg.OwnerAddress(),
		Address:         engineAddress,
		ProfitPolicy:    engine.ProfitPolicy(cfg.ProfitPolicy),
		ResultCacheSize: cfg.ResultCacheSize,
	}, provider, b.adapter, b.ledger, logger,
		engine.WithMetrics(metrics.NewEngineMetrics(b.registry, metrics.Namespace)),
		engine.WithSinks(resultSinks...),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to deploy engine: %w", err)
	}
	b.engine = eng

	if err := b.configureAccess(); err != nil {
		b.Close()
		return nil, err
	}

	sim, err := simulator.NewSimulator(&queuedRunner{engine: eng, queue: b.queue}, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}
	b.simulator = sim

	return b, nil
}

func (b *Bot) deployGateways() error {
	for _, gc := range b.cfg.Gateways {
		kind, err := flashloan.ParseKind(gc.Kind)
		if err != nil {
			return err
		}

		pc := &flashloan.ProviderConfig{
			Name:              gc.Name,
			PremiumBps:        gc.PremiumBps,
			MaxLoanPercentage: gc.MaxLoanPercentage,
		}
		if gc.Address != "" {
			pc.Address = common.HexToAddress(gc.Address)
		}

		var gw flashloan.Gateway
		switch kind {
		case flashloan.KindAave:
			gw, err = aave.NewPool(pc, b.ledger, b.loans, b.logger)
		case flashloan.KindBalancer:
			gw, err = balancer.NewVault(pc, b.ledger, b.loans, b.logger)
		}
		if err != nil {
			return fmt.Errorf("failed to create gateway %s: %w", gc.Name, err)
		}

		if err := b.fund(gw.Address(), gc.Liquidity); err != nil {
			return fmt.Errorf("failed to fund gateway %s: %w", gc.Name, err)
		}
		if err := b.manager.AddGateway(gw); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) deployDEXes() error {
	for _, dc := range b.cfg.DEXes {
		var address common.Address
		if dc.Address != "" {
			address = common.HexToAddress(dc.Address)
		}

		var ex dex.Exchange
		switch dc.Kind {
		case config.DEXKindUniswap:
			tokenA, err := b.cfg.TokenAddress(dc.TokenA)
			if err != nil {
				return err
			}
			tokenB, err := b.cfg.TokenAddress(dc.TokenB)
			if err != nil {
				return err
			}
			pc := uniswap.PairConfig{
				Name:    dc.Name,
				Address: address,
				TokenA:  tokenA,
				TokenB:  tokenB,
				FeeBps:  dc.FeeBps,
			}
			if dc.Factory != "" {
				pc.Factory = common.HexToAddress(dc.Factory)
			}
			pair, err := uniswap.NewUniswapV2Pair(pc, b.ledger, b.logger)
			if err != nil {
				return fmt.Errorf("failed to create pair %s: %w", dc.Name, err)
			}
			ex = pair

		case config.DEXKindOracle:
			pool, err := oracle.NewPool(dc.Name, address, b.ledger, b.logger)
			if err != nil {
				return fmt.Errorf("failed to create pool %s: %w", dc.Name, err)
			}
			for _, rc := range dc.Rates {
				if err := b.setRate(pool, rc); err != nil {
					return fmt.Errorf("failed to price pool %s: %w", dc.Name, err)
				}
			}
			ex = pool

		default:
			return fmt.Errorf("unknown dex kind %q", dc.Kind)
		}

		if err := b.fund(ex.Address(), dc.Balances); err != nil {
			return fmt.Errorf("failed to fund dex %s: %w", dc.Name, err)
		}
		if err := b.adapter.Register(ex); err != nil {
			return err
		}
		b.dexes[dc.Name] = ex.Address()
	}
	return nil
}

func (b *Bot) setRate(pool *oracle.Pool, rc config.RateConfig) error {
	tokenIn, err := b.cfg.TokenAddress(rc.TokenIn)
	if err != nil {
		return err
	}
	tokenOut, err := b.cfg.TokenAddress(rc.TokenOut)
	if err != nil {
		return err
	}
	rate, err := arbmath.ParseUnits(rc.Rate, arbmath.Decimals)
	if err != nil {
		return err
	}
	return pool.SetRate(tokenIn, tokenOut, rate)
}

// fund mints configured balances to holder
func (b *Bot) fund(holder common.Address, amounts map[string]string) error {
	for ref, amount := range amounts {
		token, err := b.cfg.TokenAddress(ref)
		if err != nil {
			return err
		}
		units, err := arbmath.ParseUnits(amount, arbmath.Decimals)
		if err != nil {
			return err
		}
		if err := b.ledger.Mint(token, holder, units); err != nil {
			return err
		}
	}
	return nil
}

// addressesProvider resolves the pinned gateway, or the cheapest one able
// to fund the first configured request
func (b *Bot) addressesProvider(ctx context.Context) (flashloan.AddressesProvider, error) {
	if b.cfg.Gateway != "" {
		for _, gw := range b.manager.Gateways() {
			if gw.String() == b.cfg.Gateway {
				return flashloan.StaticAddressesProvider{Pool: gw}, nil
			}
		}
		return nil, fmt.Errorf("gateway %q is not configured", b.cfg.Gateway)
	}

	if len(b.cfg.Requests) > 0 {
		rc := b.cfg.Requests[0]
		asset, err := b.cfg.TokenAddress(rc.TokenA)
		if err != nil {
			return nil, err
		}
		amount, err := arbmath.ParseUnits(rc.AmountIn, arbmath.Decimals)
		if err != nil {
			return nil, err
		}
		provider, err := b.manager.AddressesProvider(ctx, asset, amount)
		if err == nil {
			return provider, nil
		}
		b.logger.Warn("No gateway can fund the first request, using the first configured gateway",
			zap.Error(err))
	}

	gateways := b.manager.Gateways()
	if len(gateways) == 0 {
		return nil, flashloan.ErrNoGateway
	}
	return flashloan.StaticAddressesProvider{Pool: gateways[0]}, nil
}

func (b *Bot) openSinks(ctx context.Context) error {
	b.sinks = append(b.sinks, storage.NewLogSink(b.logger))
	if b.cfg.PostgresDSN == "" {
		return nil
	}
	pg, err := storage.NewPostgresSink(ctx, &storage.PostgresConfig{
		DSN:    b.cfg.PostgresDSN,
		Logger: b.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open postgres sink: %w", err)
	}
	b.sinks = append(b.sinks, pg)
	return nil
}

func (b *Bot) configureAccess() error {
	owner := b.cfg.OwnerAddress()
	for name, addr := range b.dexes {
		if err := b.engine.AddSupportedDEX(owner, addr); err != nil {
			return fmt.Errorf("failed to whitelist dex %s: %w", name, err)
		}
	}
	for _, caller := range b.cfg.AuthorizedCallers {
		if err := b.engine.AddAuthorizedCaller(owner, common.HexToAddress(caller)); err != nil {
			return fmt.Errorf("failed to authorize caller %s: %w", caller, err)
		}
	}
	return nil
}

// Submissions builds the configured requests with deadlines measured from now
func (b *Bot) Submissions() ([]Submission, error) {
	now := b.now()
	out := make([]Submission, 0, len(b.cfg.Requests))
	for i, rc := range b.cfg.Requests {
		sub, err := b.submission(rc, now)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (b *Bot) submission(rc config.RequestConfig, now time.Time) (Submission, error) {
	tokenA, err := b.cfg.TokenAddress(rc.TokenA)
	if err != nil {
		return Submission{}, err
	}
	tokenB, err := b.cfg.TokenAddress(rc.TokenB)
	if err != nil {
		return Submission{}, err
	}
	dexBuy, err := b.DEXAddress(rc.DexBuy)
	if err != nil {
		return Submission{}, err
	}
	dexSell, err := b.DEXAddress(rc.DexSell)
	if err != nil {
		return Submission{}, err
	}
	amount, err := arbmath.ParseUnits(rc.AmountIn, arbmath.Decimals)
	if err != nil {
		return Submission{}, err
	}
	ttl, err := rc.Lifetime()
	if err != nil {
		return Submission{}, err
	}

	caller := b.cfg.OwnerAddress()
	if rc.Caller != "" {
		caller = common.HexToAddress(rc.Caller)
	}

	return Submission{
		Caller: caller,
		Request: &types.ArbitrageRequest{
			TokenA:       tokenA,
			TokenB:       tokenB,
			DexBuy:       dexBuy,
			DexSell:      dexSell,
			AmountIn:     amount,
			MinProfitBps: rc.MinProfitBps,
			Deadline:     now.Add(ttl),
		},
	}, nil
}

// DEXAddress resolves a DEX name or hex address
func (b *Bot) DEXAddress(ref string) (common.Address, error) {
	if addr, ok := b.dexes[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown dex %q", ref)
}

// Run executes every configured request in order. A failed request does
// not stop the ones after it; all failures are returned joined.
func (b *Bot) Run(ctx context.Context) ([]*types.ArbitrageResult, error) {
	subs, err := b.Submissions()
	if err != nil {
		return nil, err
	}

	var results []*types.ArbitrageResult
	var errs []error
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := b.execute(ctx, sub.Caller, sub.Request)
		if err != nil {
			b.logger.Warn("Arbitrage reverted",
				zap.Int("request", i),
				zap.String("reason", types.Reason(err)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("request %d: %w", i, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Quote dry-runs every configured request
func (b *Bot) Quote(ctx context.Context) ([]*simulator.SimulationResult, error) {
	subs, err := b.Submissions()
	if err != nil {
		return nil, err
	}

	out := make([]*simulator.SimulationResult, 0, len(subs))
	for _, sub := range subs {
		res, err := b.simulator.SimulateRequest(ctx, sub.Caller, sub.Request)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Scan quotes every configured token pair across every pair of deployed
// DEXes for a loan of amountIn whole tokens
func (b *Bot) Scan(ctx context.Context, amountIn string, minProfitBps uint64) ([]*arbitrage.Route, error) {
	amount, err := arbmath.ParseUnits(amountIn, arbmath.Decimals)
	if err != nil {
		return nil, err
	}

	tokens := make([]common.Address, 0, len(b.cfg.Tokens))
	for _, tok := range b.cfg.Tokens {
		tokens = append(tokens, common.HexToAddress(tok.Address))
	}
	exchanges := b.adapter.Exchanges()
	venues := make([]common.Address, 0, len(exchanges))
	for _, ex := range exchanges {
		venues = append(venues, ex.Address())
	}

	detector, err := arbitrage.NewDetector(b.engine, arbitrage.Config{
		Tokens:       tokens,
		DEXes:        venues,
		AmountIn:     amount,
		MinProfitBps: minProfitBps,
		TTL:          config.DefaultRequestTTL,
	}, b.logger)
	if err != nil {
		return nil, err
	}
	return detector.FindArbitrage(ctx)
}

// Execute submits req as the owner
func (b *Bot) Execute(ctx context.Context, req *types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	return b.execute(ctx, b.cfg.OwnerAddress(), req)
}

// Serve runs the HTTP surface until ctx is cancelled
func (b *Bot) Serve(ctx context.Context) error {
	srv := httpserver.New(&httpserver.Config{
		Addr:      b.cfg.HTTPAddr,
		Logger:    b.logger,
		Engine:    b.engine,
		Simulator: b.simulator,
		Gatherer:  b.registry,
	})

	errCh := make(chan error, 1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	b.wg.Wait()
	return nil
}

// Close releases the result sinks
func (b *Bot) Close() error {
	var errs []error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.sinks = nil
	return errors.Join(errs...)
}

func (b *Bot) Engine() *engine.Engine { return b.engine }

func (b *Bot) Ledger() *ledger.Ledger { return b.ledger }

func (b *Bot) Metrics() *prometheus.Registry { return b.registry }

// Balance returns holder's balance of token in whole tokens
func (b *Bot) Balance(token, holder common.Address) string {
	return arbmath.FormatUnits(b.ledger.BalanceOf(token, holder), arbmath.Decimals)
}

// Profit sums the profit of results
func Profit(results []*types.ArbitrageResult) *big.Int {
	total := new(big.Int)
	for _, r := range results {
		total.Add(total, r.Profit)
	}
	return total
}
