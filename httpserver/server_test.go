package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/access"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/balancer"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
)

var (
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	dexBuy  = common.HexToAddress("0x00000000000000000000000000000000000d0001")
	dexSell = common.HexToAddress("0x00000000000000000000000000000000000d0002")
)

type stubEngine struct {
	registry *access.Registry
	gateway  flashloan.Gateway
	results  []*types.ArbitrageResult
	lastReq  *types.ArbitrageRequest
	quoteErr error
}

func (s *stubEngine) Address() common.Address            { return common.HexToAddress("0xe9") }
func (s *stubEngine) Owner() common.Address              { return s.registry.Owner() }
func (s *stubEngine) State() engine.State                { return engine.StateIdle }
func (s *stubEngine) Paused() bool                       { return s.registry.Paused() }
func (s *stubEngine) ProfitPolicy() engine.ProfitPolicy  { return engine.PolicyRetain }
func (s *stubEngine) Gateway() flashloan.Gateway         { return s.gateway }
func (s *stubEngine) Registry() *access.Registry         { return s.registry }
func (s *stubEngine) Results() []*types.ArbitrageResult { return s.results }

func (s *stubEngine) Result(id string) (*types.ArbitrageResult, bool) {
	for _, r := range s.results {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (s *stubEngine) CalculateProfit(_ context.Context, req *types.ArbitrageRequest) (*engine.Quote, error) {
	s.lastReq = req
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return &engine.Quote{
		AmountIn:   req.AmountIn,
		Profit:     big.NewInt(42),
		Profitable: true,
	}, nil
}

type stubSimulator struct{}

func (stubSimulator) SimulateRequest(_ context.Context, _ common.Address, _ *types.ArbitrageRequest) (*simulator.SimulationResult, error) {
	return &simulator.SimulationResult{Success: false, Reason: "insufficient_profit", Message: "insufficient profit"}, nil
}

func newTestServer(t *testing.T) (*stubEngine, http.Handler, time.Time) {
	registry, err := access.NewRegistry(owner, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, registry.AddSupportedDEX(owner, dexBuy))
	require.NoError(t, registry.AddAuthorizedCaller(owner, owner))

	vault, err := balancer.NewVault(nil, ledger.New(nil), nil, nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := &stubEngine{
		registry: registry,
		gateway:  vault,
		results: []*types.ArbitrageResult{{
			ID:       "res-1",
			Caller:   owner,
			TokenA:   tokenA,
			AmountIn: big.NewInt(100),
			Premium:  big.NewInt(0),
			Profit:   big.NewInt(4),
		}},
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "flasharb_test_total", Help: "test"}))

	cfg := &Config{
		Logger:    zaptest.NewLogger(t),
		Engine:    eng,
		Simulator: stubSimulator{},
		Gatherer:  reg,
		Now:       func() time.Time { return now },
	}
	srv := New(cfg)
	return eng, srv.Handler(), now
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "idle", resp.State)
	assert.False(t, resp.Paused)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flasharb_test_total")
}

func TestRegistryEndpoint(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/registry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp registryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, owner, resp.Owner)
	assert.Equal(t, common.HexToAddress(balancer.VaultAddress), resp.GatewayAddress)
	assert.Equal(t, "balancer", resp.Gateway)
	assert.Equal(t, "retain", resp.ProfitPolicy)
	assert.Equal(t, []common.Address{dexBuy}, resp.SupportedDEXs)
	assert.Equal(t, []common.Address{owner}, resp.AuthorizedCallers)
}

func TestResultsEndpoints(t *testing.T) {
	_, h, _ := newTestServer(t)

	t.Run("List", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/v1/results", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []*types.ArbitrageResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "res-1", resp[0].ID)
		assert.Equal(t, "4", resp[0].Profit.String())
	})

	t.Run("Found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/v1/results/res-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"profit":4`)
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/v1/results/missing", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "not_found", resp.Reason)
	})
}

func TestQuoteEndpoint(t *testing.T) {
	eng, h, now := newTestServer(t)

	t.Run("Success", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/v1/quote", RequestBody{
			TokenA:       tokenA,
			TokenB:       tokenB,
			DexBuy:       dexBuy,
			DexSell:      dexSell,
			AmountIn:     "1.5",
			MinProfitBps: 10,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"profitable":true`)

		require.NotNil(t, eng.lastReq)
		assert.Equal(t, "1500000000000000000", eng.lastReq.AmountIn.String())
		assert.Equal(t, now.Add(time.Minute), eng.lastReq.Deadline)
		assert.Equal(t, uint64(10), eng.lastReq.MinProfitBps)
	})

	t.Run("ExplicitDeadline", func(t *testing.T) {
		deadline := now.Add(time.Hour)
		rec := do(t, h, http.MethodPost, "/v1/quote", RequestBody{
			TokenA:   tokenA,
			TokenB:   tokenB,
			AmountIn: "1",
			Deadline: &deadline,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, deadline.Equal(eng.lastReq.Deadline))
	})

	t.Run("BadAmount", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/v1/quote", RequestBody{AmountIn: "abc"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_request")
	})

	t.Run("EngineError", func(t *testing.T) {
		eng.quoteErr = fmt.Errorf("%w: no pool", types.ErrSwapFailed)
		defer func() { eng.quoteErr = nil }()

		rec := do(t, h, http.MethodPost, "/v1/quote", RequestBody{AmountIn: "1"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "swap_failed", resp.Reason)
	})
}

func TestSimulateEndpoint(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/simulate", RequestBody{Caller: owner, AmountIn: "1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp simulator.SimulationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "insufficient_profit", resp.Reason)
	assert.Equal(t, "insufficient profit", resp.Message)
}

func TestServerLifecycle(t *testing.T) {
	srv := New(&Config{Addr: "127.0.0.1:0", Engine: &stubEngine{}})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-errCh)
}
