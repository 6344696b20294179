package engine

import "fmt"

// Code identifies an expected business-rule failure. These are returned as
// typed values so callers must handle them; they are not infrastructure
// faults and never crash the process.
type Code string

const (
	CodeBelowMinBet       Code = "BELOW_MIN_BET"
	CodeAboveMaxBet       Code = "ABOVE_MAX_BET"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeWalletUnavailable Code = "WALLET_UNAVAILABLE"
	CodeRoundNotBetting   Code = "ROUND_NOT_BETTING"
	CodeRoundNotRunning   Code = "ROUND_NOT_RUNNING"
	CodeRoundMismatch     Code = "ROUND_MISMATCH"
	CodeBetNotFound       Code = "BET_NOT_FOUND"
	CodeNotBetOwner       Code = "NOT_BET_OWNER"
	CodeInvalidBet        Code = "INVALID_BET"
)

// Rejection is a business-rule refusal carried as an error value.
type Rejection struct {
	Code    Code
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RejectionCode extracts the business code from an error, or empty if the
// error is not a rejection.
func RejectionCode(err error) Code {
	if r, ok := err.(*Rejection); ok {
		return r.Code
	}
	return ""
}
