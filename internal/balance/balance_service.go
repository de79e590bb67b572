package balance

import (
	"fmt"
	"time"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/internal/repository"
	"antique-auction/utils"

	"github.com/shopspring/decimal"
)

// DefaultHoldRetention is how long a hold may stay open before the integrity
// sweep treats it as abandoned.
const DefaultHoldRetention = 30 * 24 * time.Hour

// Info is the balance breakdown for an account
type Info struct {
	Total     decimal.Decimal `json:"total"`
	Held      decimal.Decimal `json:"held"`
	Available decimal.Decimal `json:"available"`
}

// Service provides the atomic money primitives over the ledger store.
// Every operation writes exactly one transaction row together with the
// balance change; the store guarantees the pair commits as a unit.
type Service struct {
	ledger        repository.LedgerStore
	notifier      notification.Notifier
	holdRetention time.Duration
}

// NewService creates a balance service backed by the given ledger store
func NewService(ledger repository.LedgerStore, notifier notification.Notifier) *Service {
	return &Service{
		ledger:        ledger,
		notifier:      notifier,
		holdRetention: DefaultHoldRetention,
	}
}

// Deposit credits an account with new funds
func (s *Service) Deposit(accountID string, amount decimal.Decimal, method, description string) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, fmt.Errorf("balance: deposit of %s: %w", amount, auctionerrors.ErrInvalidAmount)
	}

	tx, err := s.ledger.ApplyCredit(model.Transaction{
		TransactionID: utils.GenerateID(),
		AccountID:     accountID,
		Type:          model.TransactionDeposit,
		Amount:        amount,
		Method:        method,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("balance: failed to deposit to %s: %w", accountID, err)
	}

	s.notifyBalance(tx)
	return tx, nil
}

// HoldAmount pre-authorizes a bid by debiting the balance immediately.
// The hold stays open until released (credit back) or converted (finalized).
func (s *Service) HoldAmount(accountID string, amount decimal.Decimal, auctionID, bidID, description string) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, fmt.Errorf("balance: hold of %s: %w", amount, auctionerrors.ErrInvalidAmount)
	}

	heldUntil := time.Now().UTC().Add(s.holdRetention)
	tx, err := s.ledger.ApplyDebit(model.Transaction{
		TransactionID: utils.GenerateID(),
		AccountID:     accountID,
		Type:          model.TransactionBidHold,
		Amount:        amount,
		AuctionID:     auctionID,
		BidID:         bidID,
		IsHeld:        true,
		HeldUntil:     &heldUntil,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("balance: failed to hold %s for %s: %w", amount, accountID, err)
	}

	s.notifyBalance(tx)
	return tx, nil
}

// PayCommission credits the platform's share of a sale to an account
func (s *Service) PayCommission(accountID string, amount decimal.Decimal, auctionID, description string) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, fmt.Errorf("balance: commission of %s: %w", amount, auctionerrors.ErrInvalidAmount)
	}

	tx, err := s.ledger.ApplyCredit(model.Transaction{
		TransactionID: utils.GenerateID(),
		AccountID:     accountID,
		Type:          model.TransactionCommissionPayment,
		Amount:        amount,
		AuctionID:     auctionID,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("balance: failed to pay commission to %s: %w", accountID, err)
	}

	s.notifyBalance(tx)
	return tx, nil
}

// ReleaseHold credits a hold back to the bidder
func (s *Service) ReleaseHold(holdTransactionID, description string) (model.Transaction, error) {
	tx, err := s.ledger.ReleaseHold(holdTransactionID, model.Transaction{
		TransactionID: utils.GenerateID(),
		Type:          model.TransactionBidRelease,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("balance: failed to release hold %s: %w", holdTransactionID, err)
	}

	s.notifyBalance(tx)
	return tx, nil
}

// ConvertHoldToDeduction finalizes a hold as the winner's payment. The
// balance does not move; it already dropped when the hold was taken.
func (s *Service) ConvertHoldToDeduction(holdTransactionID, description string) (model.Transaction, error) {
	tx, err := s.ledger.FinalizeHold(holdTransactionID, model.Transaction{
		TransactionID: utils.GenerateID(),
		Type:          model.TransactionBidDeduction,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("balance: failed to convert hold %s: %w", holdTransactionID, err)
	}
	return tx, nil
}

// BalanceInfo returns the account's total, held, and available amounts.
// Holds debit the balance up front, so available = total floored at zero and
// held is reported alongside for display.
func (s *Service) BalanceInfo(accountID string) (Info, error) {
	account, err := s.ledger.GetAccount(accountID)
	if err != nil {
		return Info{}, fmt.Errorf("balance: failed to get account %s: %w", accountID, err)
	}

	holds, err := s.ledger.OpenHoldsForAccount(accountID)
	if err != nil {
		return Info{}, fmt.Errorf("balance: failed to get holds for %s: %w", accountID, err)
	}

	held := decimal.Zero
	for _, hold := range holds {
		held = held.Add(hold.Amount)
	}

	available := account.Balance
	if available.IsNegative() {
		available = decimal.Zero
	}
	return Info{
		Total:     account.Balance.Add(held),
		Held:      held,
		Available: available,
	}, nil
}

// notifyBalance emits a balance-updated event, fire-and-forget
func (s *Service) notifyBalance(tx model.Transaction) {
	s.notifier.Publish(notification.Event{
		Kind:      notification.EventBalanceUpdated,
		AccountID: tx.AccountID,
		AuctionID: tx.AuctionID,
		Amount:    tx.BalanceAfter,
		Reason:    string(tx.Type),
		At:        time.Now().UTC(),
	})
}
