package flashloan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNoGateway = errors.New("no flash loan gateway available")

// Kind represents different flash loan providers
type Kind int

const (
	KindAave Kind = iota
	KindBalancer
)

func (k Kind) String() string {
	switch k {
	case KindAave:
		return "aave"
	case KindBalancer:
		return "balancer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration string to a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aave", "aave-v3":
		return KindAave, nil
	case "balancer":
		return KindBalancer, nil
	default:
		return 0, fmt.Errorf("unknown flash loan provider %q", s)
	}
}

// ProviderConfig contains configuration for flash loan gateways
type ProviderConfig struct {
	Name    string
	Address common.Address
	// PremiumBps is the loan premium in basis points (1 = 0.01%)
	PremiumBps uint64
	// MaxLoanPercentage caps a single loan as a share of pool liquidity; 0 means 100
	MaxLoanPercentage uint8
}
