package auctionerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrBidNotFound         = errors.New("bid not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNoBids              = errors.New("no bids found for auction")
)

// Business logic errors
var (
	ErrInvalidBid          = errors.New("invalid bid")
	ErrBidTooLow           = errors.New("bid amount too low")
	ErrSelfBid             = errors.New("seller cannot bid on own auction")
	ErrAuctionNotStarted   = errors.New("auction has not started")
	ErrAuctionExpired      = errors.New("auction bidding window has closed")
	ErrAlreadyEnded        = errors.New("auction already ended")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidHold         = errors.New("transaction is not an open bid hold")
	ErrInvalidAmount       = errors.New("amount must be positive")
	// ErrConflict marks a concurrent-claim loss; callers should re-fetch
	// current state before retrying deliberately
	ErrConflict = errors.New("conflicting concurrent update")
)

// BidTooLowError carries the minimum acceptable price so callers can tell
// the bidder exactly what to offer. Unwraps to ErrBidTooLow.
type BidTooLowError struct {
	Minimum decimal.Decimal
	Offered decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%v: minimum acceptable bid is %s, got %s", ErrBidTooLow, e.Minimum, e.Offered)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// InsufficientBalanceError carries the shortfall so callers can suggest a
// top-up amount. Unwraps to ErrInsufficientBalance.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%v: need %s, have %s", ErrInsufficientBalance, e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Shortfall returns how much is missing to cover the required amount.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
