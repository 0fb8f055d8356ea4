package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receiver is the contract side of a flash loan. The gateway calls
// ExecuteOperation exactly once per loan, after the principal has been
// transferred and before repayment is pulled.
type Receiver interface {
	Address() common.Address
	ExecuteOperation(ctx context.Context, sender, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error
}

// Gateway defines the interface for flash loan pools
type Gateway interface {
	Address() common.Address
	// FlashLoanSimple lends amount of asset to receiver and pulls back
	// amount + premium once the callback returns. Any failure leaves
	// balances as they were before the call.
	FlashLoanSimple(ctx context.Context, initiator common.Address, receiver Receiver, asset common.Address, amount *big.Int, payload []byte) error
	Premium(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error)
	Liquidity(ctx context.Context, asset common.Address) (*big.Int, error)
	String() string
}

// AddressesProvider resolves the current pool, the way Aave's
// PoolAddressesProvider does on chain
type AddressesProvider interface {
	GetPool(ctx context.Context) (Gateway, error)
}

// StaticAddressesProvider always resolves to the same gateway
type StaticAddressesProvider struct {
	Pool Gateway
}

func (p StaticAddressesProvider) GetPool(_ context.Context) (Gateway, error) {
	if p.Pool == nil {
		return nil, ErrNoGateway
	}
	return p.Pool, nil
}
