package repository

import (
	"time"

	model "antique-auction/internal/models"

	"github.com/shopspring/decimal"
)

// LedgerStore is the durable record of money movements. Every balance
// mutation appends exactly one Transaction row; the account balance and the
// row are applied together or not at all.
type LedgerStore interface {
	CreateAccount(account model.Account) error
	GetAccount(accountID string) (model.Account, error)
	// ApplyCredit appends a credit row and increases the balance atomically.
	ApplyCredit(tx model.Transaction) (model.Transaction, error)
	// ApplyDebit appends a debit row and decreases the balance atomically.
	// Fails with InsufficientBalance when the balance cannot cover the amount.
	ApplyDebit(tx model.Transaction) (model.Transaction, error)
	// ReleaseHold credits an open BID_HOLD back and flips its IsHeld flag,
	// appending the release row, all in one atomic step.
	ReleaseHold(holdID string, release model.Transaction) (model.Transaction, error)
	// FinalizeHold converts an open BID_HOLD into a deduction: appends a
	// zero-delta BID_DEDUCTION row pinned to the hold's BalanceAfter and
	// flips IsHeld. The balance does not change; the money already left it
	// at hold time.
	FinalizeHold(holdID string, deduction model.Transaction) (model.Transaction, error)
	GetTransaction(transactionID string) (model.Transaction, error)
	OpenHoldsForAccount(accountID string) ([]model.Transaction, error)
	OpenHoldsForAuction(auctionID string) ([]model.Transaction, error)
	// StaleHolds returns open holds whose HeldUntil expiry has passed.
	StaleHolds(now time.Time) ([]model.Transaction, error)
	TransactionsForAccount(accountID string) ([]model.Transaction, error)
}

// AuctionStore persists auction listings. ClaimAuctionClose is the only way
// IsSoldout flips to true, so the flip is a single conditional update.
type AuctionStore interface {
	AddAuction(auction model.Auction) error
	GetAuction(auctionID string) (model.Auction, error)
	UpdateAuction(auction model.Auction) error
	// ClaimAuctionClose atomically sets IsSoldout/SoldTo/FinalPrice/EndReason
	// only if the auction is still open ("update where isSoldout=false").
	// Returns AlreadyEnded if another claim won.
	ClaimAuctionClose(auctionID, soldTo string, finalPrice decimal.Decimal, reason string) (model.Auction, error)
	// ReopenAuction reverts a claim whose follow-up bid updates failed.
	// Compensating action only; never part of normal flow.
	ReopenAuction(auctionID string) error
	ExpiredAuctions(now time.Time) ([]model.Auction, error)
	OpenAuctions() ([]model.Auction, error)
}

// BidStore persists bids, keyed by (auction, bidder).
type BidStore interface {
	// UpsertBid inserts the bid or updates the bidder's existing row on the
	// auction, preserving the original BidID and CreatedAt. Returns the
	// stored bid.
	UpsertBid(bid model.Bid) (model.Bid, error)
	GetBid(auctionID, bidderID string) (model.Bid, error)
	GetBidByID(bidID string) (model.Bid, error)
	BidsForAuction(auctionID string) ([]model.Bid, error)
	// HighestBid returns the top bid by price, earlier CreatedAt winning
	// ties, then BidID as the final tie-break.
	HighestBid(auctionID string) (model.Bid, error)
	SetBidState(bidID string, status model.BidStatus, isWinning bool) error
	SetBidLost(bidID string, reason string) error
}

// AuctionDB is the full storage surface for the auction system
type AuctionDB interface {
	LedgerStore
	AuctionStore
	BidStore
}
