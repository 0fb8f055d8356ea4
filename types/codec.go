package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ArbitrageExecutedSig is the canonical signature of the settlement event
const ArbitrageExecutedSig = "ArbitrageExecuted(address,address,address,address,uint256)"

// ArbitrageExecutedTopic is topic[0] of every settlement log
var ArbitrageExecutedTopic = crypto.Keccak256Hash([]byte(ArbitrageExecutedSig))

// ABI types
var (
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiAddress, _ = abi.NewType("address", "", nil)
)

var requestArgs = abi.Arguments{
	{Name: "tokenA", Type: abiAddress},
	{Name: "tokenB", Type: abiAddress},
	{Name: "dexBuy", Type: abiAddress},
	{Name: "dexSell", Type: abiAddress},
	{Name: "amountIn", Type: abiUint256},
	{Name: "minProfitBps", Type: abiUint256},
	{Name: "deadline", Type: abiUint256},
}

var eventDataArgs = abi.Arguments{
	{Name: "dexBuy", Type: abiAddress},
	{Name: "dexSell", Type: abiAddress},
	{Name: "profit", Type: abiUint256},
}

// EncodeRequest packs the request into the opaque flash loan payload
func EncodeRequest(req *ArbitrageRequest) ([]byte, error) {
	if req == nil || req.AmountIn == nil {
		return nil, fmt.Errorf("%w: missing amount", ErrInvalidRequest)
	}
	if req.AmountIn.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	}
	packed, err := requestArgs.Pack(
		req.TokenA,
		req.TokenB,
		req.DexBuy,
		req.DexSell,
		req.AmountIn,
		new(big.Int).SetUint64(req.MinProfitBps),
		big.NewInt(req.Deadline.Unix()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack request: %w", err)
	}
	return packed, nil
}

// DecodeRequest reverses EncodeRequest
func DecodeRequest(payload []byte) (*ArbitrageRequest, error) {
	values, err := requestArgs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack request: %w", err)
	}
	if len(values) != len(requestArgs) {
		return nil, fmt.Errorf("unexpected payload arity %d", len(values))
	}

	addrs := make([]common.Address, 4)
	for i := range addrs {
		a, ok := values[i].(common.Address)
		if !ok {
			return nil, fmt.Errorf("payload field %s is not an address", requestArgs[i].Name)
		}
		addrs[i] = a
	}
	ints := make([]*big.Int, 3)
	for i := range ints {
		v, ok := values[4+i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("payload field %s is not uint256", requestArgs[4+i].Name)
		}
		ints[i] = v
	}
	if !ints[1].IsUint64() || !ints[2].IsInt64() {
		return nil, fmt.Errorf("payload field out of range")
	}

	return &ArbitrageRequest{
		TokenA:       addrs[0],
		TokenB:       addrs[1],
		DexBuy:       addrs[2],
		DexSell:      addrs[3],
		AmountIn:     ints[0],
		MinProfitBps: ints[1].Uint64(),
		Deadline:     time.Unix(ints[2].Int64(), 0),
	}, nil
}

// NewArbitrageExecutedLog renders a result as an EVM-style log emitted by emitter
func NewArbitrageExecutedLog(emitter common.Address, res *ArbitrageResult) (*gethtypes.Log, error) {
	data, err := eventDataArgs.Pack(res.DexBuy, res.DexSell, res.Profit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack event data: %w", err)
	}
	return &gethtypes.Log{
		Address: emitter,
		Topics: []common.Hash{
			ArbitrageExecutedTopic,
			common.BytesToHash(res.TokenA.Bytes()),
			common.BytesToHash(res.TokenB.Bytes()),
		},
		Data: data,
	}, nil
}

// ParseArbitrageExecutedLog extracts the indexed and data fields of a settlement log
func ParseArbitrageExecutedLog(log *gethtypes.Log) (tokenA, tokenB, dexBuy, dexSell common.Address, profit *big.Int, err error) {
	if len(log.Topics) != 3 || log.Topics[0] != ArbitrageExecutedTopic {
		err = fmt.Errorf("not an ArbitrageExecuted log")
		return
	}
	values, err := eventDataArgs.Unpack(log.Data)
	if err != nil {
		err = fmt.Errorf("failed to unpack event data: %w", err)
		return
	}
	tokenA = common.BytesToAddress(log.Topics[1].Bytes())
	tokenB = common.BytesToAddress(log.Topics[2].Bytes())
	dexBuy, _ = values[0].(common.Address)
	dexSell, _ = values[1].(common.Address)
	profit, _ = values[2].(*big.Int)
	return
}
