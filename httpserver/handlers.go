package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
)

type handlers struct {
	engine     Engine
	simulator  Simulator
	logger     *zap.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// RequestBody is the wire form of an arbitrage request. AmountIn is a
// decimal string in whole tokens (18 decimals).
type RequestBody struct {
	Caller       common.Address `json:"caller"`
	TokenA       common.Address `json:"token_a"`
	TokenB       common.Address `json:"token_b"`
	DexBuy       common.Address `json:"dex_buy"`
	DexSell      common.Address `json:"dex_sell"`
	AmountIn     string         `json:"amount_in"`
	MinProfitBps uint64         `json:"min_profit_bps"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Paused bool   `json:"paused"`
}

type registryResponse struct {
	Engine            common.Address   `json:"engine"`
	Owner             common.Address   `json:"owner"`
	Gateway           string           `json:"gateway"`
	GatewayAddress    common.Address   `json:"gateway_address"`
	ProfitPolicy      string           `json:"profit_policy"`
	Paused            bool             `json:"paused"`
	SupportedDEXs     []common.Address `json:"supported_dexs"`
	AuthorizedCallers []common.Address `json:"authorized_callers"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		State:  h.engine.State().String(),
		Paused: h.engine.Paused(),
	})
}

func (h *handlers) registry(w http.ResponseWriter, _ *http.Request) {
	reg := h.engine.Registry()
	gw := h.engine.Gateway()
	h.writeJSON(w, http.StatusOK, registryResponse{
		Engine:            h.engine.Address(),
		Owner:             h.engine.Owner(),
		Gateway:           gw.String(),
		GatewayAddress:    gw.Address(),
		ProfitPolicy:      string(h.engine.ProfitPolicy()),
		Paused:            reg.Paused(),
		SupportedDEXs:     reg.SupportedDEXs(),
		AuthorizedCallers: reg.AuthorizedCallers(),
	})
}

func (h *handlers) results(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Results())
}

func (h *handlers) result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := h.engine.Result(id)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "result " + id + " not found", Reason: "not_found"})
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *handlers) quote(w http.ResponseWriter, r *http.Request) {
	_, req, err := h.decodeRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	q, err := h.engine.CalculateProfit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

func (h *handlers) simulate(w http.ResponseWriter, r *http.Request) {
	caller, req, err := h.decodeRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.simulator.SimulateRequest(r.Context(), caller, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *handlers) decodeRequest(r *http.Request) (common.Address, *types.ArbitrageRequest, error) {
	var body RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return common.Address{}, nil, errors.Join(types.ErrInvalidRequest, err)
	}

	amount, err := arbmath.ParseUnits(body.AmountIn, arbmath.Decimals)
	if err != nil {
		return common.Address{}, nil, errors.Join(types.ErrInvalidRequest, err)
	}

	deadline := h.now().Add(h.defaultTTL)
	if body.Deadline != nil {
		deadline = *body.Deadline
	}

	return body.Caller, &types.ArbitrageRequest{
		TokenA:       body.TokenA,
		TokenB:       body.TokenB,
		DexBuy:       body.DexBuy,
		DexSell:      body.DexSell,
		AmountIn:     amount,
		MinProfitBps: body.MinProfitBps,
		Deadline:     deadline,
	}, nil
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	reason := types.Reason(err)
	status := http.StatusInternalServerError
	switch reason {
	case "invalid_request", "deadline_expired":
		status = http.StatusBadRequest
	case "paused":
		status = http.StatusServiceUnavailable
	case "unsupported_dex", "swap_failed", "loan_unavailable":
		status = http.StatusUnprocessableEntity
	case "unauthorized", "untrusted_caller":
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Reason: reason})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
