package engine

import "fmt"

// State is the phase of the execution currently holding the engine
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateBorrowing
	StateBuySwap
	StateSellSwap
	StateProfitCheck
	StateRepaying
	StateSettled
	StateReverted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateBorrowing:
		return "borrowing"
	case StateBuySwap:
		return "buy_swap"
	case StateSellSwap:
		return "sell_swap"
	case StateProfitCheck:
		return "profit_check"
	case StateRepaying:
		return "repaying"
	case StateSettled:
		return "settled"
	case StateReverted:
		return "reverted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether s ends an execution
func (s State) Terminal() bool {
	return s == StateSettled || s == StateReverted
}

// ProfitPolicy decides where profit goes once the loan is repaid
type ProfitPolicy string

const (
	// PolicyRetain leaves profit in the engine's custody until the owner withdraws it
	PolicyRetain ProfitPolicy = "retain"
	// PolicyForward pays profit to the caller inside the same atomic unit
	PolicyForward ProfitPolicy = "forward"
)

// ParseProfitPolicy maps a configuration string to a policy; empty means retain
func ParseProfitPolicy(s string) (ProfitPolicy, error) {
	switch ProfitPolicy(s) {
	case "", PolicyRetain:
		return PolicyRetain, nil
	case PolicyForward:
		return PolicyForward, nil
	default:
		return "", fmt.Errorf("unknown profit policy %q", s)
	}
}
