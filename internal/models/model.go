package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a user's money balance on the platform
type Account struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionDeposit           TransactionType = "DEPOSIT"
	TransactionBidHold           TransactionType = "BID_HOLD"
	TransactionBidRelease        TransactionType = "BID_RELEASE"
	TransactionBidDeduction      TransactionType = "BID_DEDUCTION"
	TransactionRefund            TransactionType = "REFUND"
	TransactionCommissionPayment TransactionType = "COMMISSION_PAYMENT"
	TransactionWithdrawal        TransactionType = "WITHDRAWAL"
)

// IsCredit reports whether the type increases the account balance.
// BID_DEDUCTION is neither credit nor debit: the money already left the
// balance when the hold was taken.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionDeposit, TransactionBidRelease, TransactionRefund, TransactionCommissionPayment:
		return true
	}
	return false
}

// IsDebit reports whether the type decreases the account balance.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TransactionBidHold, TransactionWithdrawal:
		return true
	}
	return false
}

// TransactionStatus is the processing state of a ledger entry
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// Transaction is an append-only ledger entry. Rows are never mutated after
// creation except for the IsHeld flag flip when a hold is released or
// converted to a deduction.
type Transaction struct {
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Status        TransactionStatus `json:"status"`
	AuctionID     string            `json:"auction_id,omitempty"`
	BidID         string            `json:"bid_id,omitempty"`
	// SourceTransactionID links a release/deduction back to the hold it settles
	SourceTransactionID string     `json:"source_transaction_id,omitempty"`
	IsHeld              bool       `json:"is_held"`
	HeldUntil           *time.Time `json:"held_until,omitempty"`
	Method              string     `json:"method,omitempty"`
	Description         string     `json:"description,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// AuctionType determines how an auction opens and closes
type AuctionType string

const (
	AuctionLive   AuctionType = "Live"
	AuctionTimed  AuctionType = "Timed"
	AuctionBuyNow AuctionType = "BuyNow"
)

// Reasons recorded on Auction.EndReason when IsSoldout flips
const (
	EndReasonInstantPurchase = "instant_purchase"
	EndReasonTimeExpiry      = "time_expiry"
	EndReasonAdminAction     = "admin_action"
	EndReasonReserveNotMet   = "reserve_not_met"
	EndReasonNoBids          = "no_bids"
)

// Auction represents a listed item and its auction configuration.
// IsSoldout is the single source of truth for "no further bids or closings
// accepted" and only ever transitions false -> true, exactly once.
type Auction struct {
	AuctionID            string          `json:"auction_id"`
	SellerID             string          `json:"seller_id"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	AuctionType          AuctionType     `json:"auction_type"`
	StartingBid          decimal.Decimal `json:"starting_bid"`
	ReservePrice         decimal.Decimal `json:"reserve_price"`          // zero = no reserve
	InstantPurchasePrice decimal.Decimal `json:"instant_purchase_price"` // zero = not offered
	BidIncrement         decimal.Decimal `json:"bid_increment"`
	CommissionPercent    decimal.Decimal `json:"commission_percent"`
	AuctionStartDate     time.Time       `json:"auction_start_date,omitempty"`
	AuctionEndDate       time.Time       `json:"auction_end_date,omitempty"`

	IsSoldout  bool            `json:"is_soldout"`
	SoldTo     string          `json:"sold_to,omitempty"`
	FinalPrice decimal.Decimal `json:"final_price"`
	EndReason  string          `json:"end_reason,omitempty"`

	SettlementCompleted bool            `json:"settlement_completed"`
	SettlementDate      *time.Time      `json:"settlement_date,omitempty"`
	CommissionAmount    decimal.Decimal `json:"commission_amount"`
	SellerAmount        decimal.Decimal `json:"seller_amount"`

	CreatedAt time.Time `json:"created_at"`
}

// HasInstantPurchase reports whether the auction offers an early-close price.
func (a Auction) HasInstantPurchase() bool {
	return a.InstantPurchasePrice.IsPositive()
}

// HasReserve reports whether a minimum acceptable sale price is set.
func (a Auction) HasReserve() bool {
	return a.ReservePrice.IsPositive()
}

// BidType distinguishes manual bids from standing proxy instructions
type BidType string

const (
	BidManual BidType = "Manual"
	BidProxy  BidType = "Proxy"
)

// BidStatus is the lifecycle state of a bid
type BidStatus string

const (
	BidActive  BidStatus = "Active"
	BidOutbid  BidStatus = "Outbid"
	BidWinning BidStatus = "Winning"
	BidWon     BidStatus = "Won"
	BidLost    BidStatus = "Lost"
)

// LossReasonConcurrentInstantPurchase marks a qualifying instant-purchase bid
// that lost the race to a concurrent claim
const LossReasonConcurrentInstantPurchase = "concurrent_instant_purchase_conflict"

// Bid represents a bidder's standing offer on an auction. There is at most
// one Bid per (auction, bidder) pair; re-bidding updates the existing row.
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Price     decimal.Decimal `json:"price"`
	BidType   BidType         `json:"bid_type"`
	MaxBid    decimal.Decimal `json:"max_bid"` // Proxy only, ceiling >= price
	// BidIncrement snapshots the auction increment at bid time
	BidIncrement      decimal.Decimal `json:"bid_increment"`
	IsWinningBid      bool            `json:"is_winning_bid"`
	BidStatus         BidStatus       `json:"bid_status"`
	HoldTransactionID string          `json:"hold_transaction_id,omitempty"`
	LossReason        string          `json:"loss_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
