package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// A single RWMutex makes every multi-row mutation (balance change + ledger
// append, hold flip + new row, conditional close) one atomic unit, which is
// what the balance and closing engines rely on.
type MemoryRepo struct {
	mu           sync.RWMutex
	accounts     map[string]model.Account
	transactions map[string]model.Transaction
	txOrder      []string // transaction IDs in append order
	auctions     map[string]model.Auction
	bids         map[string]model.Bid            // key: bidID
	auctionBids  map[string]map[string]string    // auctionID -> bidderID -> bidID
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		accounts:     make(map[string]model.Account),
		transactions: make(map[string]model.Transaction),
		auctions:     make(map[string]model.Auction),
		bids:         make(map[string]model.Bid),
		auctionBids:  make(map[string]map[string]string),
	}
}

// CreateAccount registers an account; existing balances are preserved.
func (r *MemoryRepo) CreateAccount(account model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.AccountID]; ok {
		return fmt.Errorf("create account %s: already exists", account.AccountID)
	}
	r.accounts[account.AccountID] = account
	return nil
}

// GetAccount returns the account by ID
func (r *MemoryRepo) GetAccount(accountID string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("get account %s: %w", accountID, auctionerrors.ErrAccountNotFound)
	}
	return account, nil
}

// ApplyCredit appends a credit transaction and increases the balance
func (r *MemoryRepo) ApplyCredit(tx model.Transaction) (model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !tx.Type.IsCredit() {
		return model.Transaction{}, fmt.Errorf("apply credit: %s is not a credit type", tx.Type)
	}
	account, ok := r.accounts[tx.AccountID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("apply credit to %s: %w", tx.AccountID, auctionerrors.ErrAccountNotFound)
	}

	tx.BalanceBefore = account.Balance
	tx.BalanceAfter = account.Balance.Add(tx.Amount)
	tx.Status = model.TransactionCompleted

	account.Balance = tx.BalanceAfter
	r.accounts[tx.AccountID] = account
	r.appendTransaction(tx)
	return tx, nil
}

// ApplyDebit appends a debit transaction and decreases the balance
func (r *MemoryRepo) ApplyDebit(tx model.Transaction) (model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !tx.Type.IsDebit() {
		return model.Transaction{}, fmt.Errorf("apply debit: %s is not a debit type", tx.Type)
	}
	account, ok := r.accounts[tx.AccountID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("apply debit to %s: %w", tx.AccountID, auctionerrors.ErrAccountNotFound)
	}
	if account.Balance.LessThan(tx.Amount) {
		return model.Transaction{}, fmt.Errorf("apply debit to %s: %w", tx.AccountID,
			&auctionerrors.InsufficientBalanceError{Required: tx.Amount, Available: account.Balance})
	}

	tx.BalanceBefore = account.Balance
	tx.BalanceAfter = account.Balance.Sub(tx.Amount)
	tx.Status = model.TransactionCompleted

	account.Balance = tx.BalanceAfter
	r.accounts[tx.AccountID] = account
	r.appendTransaction(tx)
	return tx, nil
}

// ReleaseHold credits an open hold back and flips its IsHeld flag
func (r *MemoryRepo) ReleaseHold(holdID string, release model.Transaction) (model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hold, err := r.openHold(holdID)
	if err != nil {
		return model.Transaction{}, err
	}
	account, ok := r.accounts[hold.AccountID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("release hold %s: %w", holdID, auctionerrors.ErrAccountNotFound)
	}

	release.AccountID = hold.AccountID
	release.Amount = hold.Amount
	release.SourceTransactionID = hold.TransactionID
	release.BalanceBefore = account.Balance
	release.BalanceAfter = account.Balance.Add(hold.Amount)
	release.Status = model.TransactionCompleted
	if release.AuctionID == "" {
		release.AuctionID = hold.AuctionID
	}
	if release.BidID == "" {
		release.BidID = hold.BidID
	}

	account.Balance = release.BalanceAfter
	r.accounts[hold.AccountID] = account

	hold.IsHeld = false
	r.transactions[hold.TransactionID] = hold
	r.appendTransaction(release)
	return release, nil
}

// FinalizeHold converts an open hold into a zero-delta deduction row
func (r *MemoryRepo) FinalizeHold(holdID string, deduction model.Transaction) (model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hold, err := r.openHold(holdID)
	if err != nil {
		return model.Transaction{}, err
	}

	deduction.AccountID = hold.AccountID
	deduction.Amount = hold.Amount
	deduction.SourceTransactionID = hold.TransactionID
	// The balance already dropped when the hold was taken, so conversion is
	// recorded against the hold's resulting balance with no further change.
	deduction.BalanceBefore = hold.BalanceAfter
	deduction.BalanceAfter = hold.BalanceAfter
	deduction.Status = model.TransactionCompleted
	if deduction.AuctionID == "" {
		deduction.AuctionID = hold.AuctionID
	}
	if deduction.BidID == "" {
		deduction.BidID = hold.BidID
	}

	hold.IsHeld = false
	r.transactions[hold.TransactionID] = hold
	r.appendTransaction(deduction)
	return deduction, nil
}

// GetTransaction returns a ledger entry by ID
func (r *MemoryRepo) GetTransaction(transactionID string) (model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[transactionID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("get transaction %s: %w", transactionID, auctionerrors.ErrTransactionNotFound)
	}
	return tx, nil
}

// OpenHoldsForAccount returns all un-released holds for an account
func (r *MemoryRepo) OpenHoldsForAccount(accountID string) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectHolds(func(tx model.Transaction) bool {
		return tx.AccountID == accountID
	}), nil
}

// OpenHoldsForAuction returns all un-released holds backing bids on an auction
func (r *MemoryRepo) OpenHoldsForAuction(auctionID string) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectHolds(func(tx model.Transaction) bool {
		return tx.AuctionID == auctionID
	}), nil
}

// StaleHolds returns open holds whose retention window has passed
func (r *MemoryRepo) StaleHolds(now time.Time) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectHolds(func(tx model.Transaction) bool {
		return tx.HeldUntil != nil && tx.HeldUntil.Before(now)
	}), nil
}

// TransactionsForAccount returns the account's ledger history in append order
func (r *MemoryRepo) TransactionsForAccount(accountID string) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var history []model.Transaction
	for _, id := range r.txOrder {
		if tx := r.transactions[id]; tx.AccountID == accountID {
			history = append(history, tx)
		}
	}
	return history, nil
}

// AddAuction registers a new auction listing
func (r *MemoryRepo) AddAuction(auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("add auction %s: already exists", auction.AuctionID)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the auction by ID
func (r *MemoryRepo) GetAuction(auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// UpdateAuction overwrites the stored auction. The terminal-state flip must
// go through ClaimAuctionClose instead; this method refuses to set it.
func (r *MemoryRepo) UpdateAuction(auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[auction.AuctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if auction.IsSoldout && !current.IsSoldout {
		return fmt.Errorf("update auction %s: soldout flip requires ClaimAuctionClose", auction.AuctionID)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// ClaimAuctionClose performs the conditional close: it succeeds only while
// the stored auction still has IsSoldout=false.
func (r *MemoryRepo) ClaimAuctionClose(auctionID, soldTo string, finalPrice decimal.Decimal, reason string) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("claim close of %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if auction.IsSoldout {
		return auction, fmt.Errorf("claim close of %s: %w", auctionID, auctionerrors.ErrAlreadyEnded)
	}

	auction.IsSoldout = true
	auction.SoldTo = soldTo
	auction.FinalPrice = finalPrice
	auction.EndReason = reason
	r.auctions[auctionID] = auction
	return auction, nil
}

// ReopenAuction reverts a close claim. Compensating action for the case
// where the bid-status updates after a claim failed.
func (r *MemoryRepo) ReopenAuction(auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("reopen auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	auction.IsSoldout = false
	auction.SoldTo = ""
	auction.FinalPrice = decimal.Zero
	auction.EndReason = ""
	r.auctions[auctionID] = auction
	return nil
}

// ExpiredAuctions returns open Timed auctions whose end date has passed
func (r *MemoryRepo) ExpiredAuctions(now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []model.Auction
	for _, auction := range r.auctions {
		if auction.AuctionType == model.AuctionTimed && !auction.IsSoldout && !auction.AuctionEndDate.IsZero() && auction.AuctionEndDate.Before(now) {
			expired = append(expired, auction)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].AuctionID < expired[j].AuctionID })
	return expired, nil
}

// OpenAuctions returns all auctions that have not ended yet
func (r *MemoryRepo) OpenAuctions() ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []model.Auction
	for _, auction := range r.auctions {
		if !auction.IsSoldout {
			open = append(open, auction)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].AuctionID < open[j].AuctionID })
	return open, nil
}

// UpsertBid inserts or updates the bidder's single bid row on an auction
func (r *MemoryRepo) UpsertBid(bid model.Bid) (model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[bid.AuctionID]; !ok {
		return model.Bid{}, fmt.Errorf("upsert bid for auction %s: %w", bid.AuctionID, auctionerrors.ErrAuctionNotFound)
	}

	byBidder, ok := r.auctionBids[bid.AuctionID]
	if !ok {
		byBidder = make(map[string]string)
		r.auctionBids[bid.AuctionID] = byBidder
	}

	if existingID, ok := byBidder[bid.BidderID]; ok {
		existing := r.bids[existingID]
		bid.BidID = existing.BidID
		bid.CreatedAt = existing.CreatedAt
	}
	byBidder[bid.BidderID] = bid.BidID
	r.bids[bid.BidID] = bid
	return bid, nil
}

// GetBid returns the bidder's bid on an auction
func (r *MemoryRepo) GetBid(auctionID, bidderID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if bidID, ok := r.auctionBids[auctionID][bidderID]; ok {
		return r.bids[bidID], nil
	}
	return model.Bid{}, fmt.Errorf("get bid by %s on %s: %w", bidderID, auctionID, auctionerrors.ErrBidNotFound)
}

// GetBidByID returns a bid by its ID
func (r *MemoryRepo) GetBidByID(bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bid, ok := r.bids[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	return bid, nil
}

// BidsForAuction returns all bids on an auction, highest price first
func (r *MemoryRepo) BidsForAuction(auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.sortedBids(auctionID)
	return bids, nil
}

// HighestBid returns the top bid for an auction
func (r *MemoryRepo) HighestBid(auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.sortedBids(auctionID)
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("highest bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return bids[0], nil
}

// SetBidState updates a bid's status and winning flag
func (r *MemoryRepo) SetBidState(bidID string, status model.BidStatus, isWinning bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bid, ok := r.bids[bidID]
	if !ok {
		return fmt.Errorf("set state of bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	bid.BidStatus = status
	bid.IsWinningBid = isWinning
	bid.UpdatedAt = time.Now().UTC()
	r.bids[bidID] = bid
	return nil
}

// SetBidLost marks a bid lost with a reason
func (r *MemoryRepo) SetBidLost(bidID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bid, ok := r.bids[bidID]
	if !ok {
		return fmt.Errorf("set bid %s lost: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	bid.BidStatus = model.BidLost
	bid.IsWinningBid = false
	bid.LossReason = reason
	bid.UpdatedAt = time.Now().UTC()
	r.bids[bidID] = bid
	return nil
}

// appendTransaction stores a row and records append order. Caller holds the lock.
func (r *MemoryRepo) appendTransaction(tx model.Transaction) {
	r.transactions[tx.TransactionID] = tx
	r.txOrder = append(r.txOrder, tx.TransactionID)
}

// openHold validates that holdID names an un-released BID_HOLD. Caller holds the lock.
func (r *MemoryRepo) openHold(holdID string) (model.Transaction, error) {
	hold, ok := r.transactions[holdID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("hold %s: %w", holdID, auctionerrors.ErrTransactionNotFound)
	}
	if hold.Type != model.TransactionBidHold || !hold.IsHeld {
		return model.Transaction{}, fmt.Errorf("hold %s: %w", holdID, auctionerrors.ErrInvalidHold)
	}
	return hold, nil
}

// collectHolds gathers open holds matching the filter in append order. Caller holds the lock.
func (r *MemoryRepo) collectHolds(match func(model.Transaction) bool) []model.Transaction {
	var holds []model.Transaction
	for _, id := range r.txOrder {
		tx := r.transactions[id]
		if tx.Type == model.TransactionBidHold && tx.IsHeld && match(tx) {
			holds = append(holds, tx)
		}
	}
	return holds
}

// sortedBids returns the auction's bids ordered by price desc, then earlier
// CreatedAt, then BidID. Caller holds the lock.
func (r *MemoryRepo) sortedBids(auctionID string) []model.Bid {
	byBidder := r.auctionBids[auctionID]
	bids := make([]model.Bid, 0, len(byBidder))
	for _, bidID := range byBidder {
		bids = append(bids, r.bids[bidID])
	}
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].Price.Equal(bids[j].Price) {
			return bids[i].Price.GreaterThan(bids[j].Price)
		}
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].BidID < bids[j].BidID
	})
	return bids
}
