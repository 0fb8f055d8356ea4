package types

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUntrustedCaller    = errors.New("untrusted caller")
	ErrUnsupportedDEX     = errors.New("unsupported dex")
	ErrDeadlineExpired    = errors.New("deadline expired")
	ErrLoanUnavailable    = errors.New("loan unavailable")
	ErrSwapFailed         = errors.New("swap failed")
	ErrInsufficientProfit = errors.New("insufficient profit")
	ErrRepaymentFailed    = errors.New("repayment failed")
	ErrReentrancyDetected = errors.New("reentrancy detected")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrPaused             = errors.New("engine paused")
)

var reasons = []struct {
	err   error
	label string
}{
	{ErrReentrancyDetected, "reentrancy_detected"},
	{ErrUnauthorized, "unauthorized"},
	{ErrUntrustedCaller, "untrusted_caller"},
	{ErrPaused, "paused"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrDeadlineExpired, "deadline_expired"},
	{ErrUnsupportedDEX, "unsupported_dex"},
	{ErrLoanUnavailable, "loan_unavailable"},
	{ErrSwapFailed, "swap_failed"},
	{ErrInsufficientProfit, "insufficient_profit"},
	{ErrRepaymentFailed, "repayment_failed"},
}

// Reason maps an error to a stable label, "internal" for unknown errors
func Reason(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "internal"
}
