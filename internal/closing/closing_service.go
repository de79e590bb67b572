package closing

import (
	"errors"
	"fmt"
	"time"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/internal/repository"
	"antique-auction/utils"

	"github.com/shopspring/decimal"
)

// Outcome labels for a closed auction
const (
	OutcomeSale          = "sale"
	OutcomeNoBids        = "no_bids"
	OutcomeReserveNotMet = "reserve_not_met"
)

// EndResult describes how an auction was closed
type EndResult struct {
	Outcome    string            `json:"outcome"`
	Auction    model.Auction     `json:"auction"`
	Winner     *model.Bid        `json:"winner,omitempty"`
	Settlement *SettlementResult `json:"settlement,omitempty"`
}

// SweepResult reports one expiry sweep run
type SweepResult struct {
	ProcessedCount int                  `json:"processed_count"`
	Results        map[string]EndResult `json:"results"`
	Skipped        []string             `json:"skipped"`
}

// IntegrityResult reports one integrity sweep run
type IntegrityResult struct {
	ReleasedHolds []string `json:"released_holds"`
	MissingHolds  []string `json:"missing_holds"`
	Errors        []string `json:"errors"`
}

// BalanceService is the money-movement surface the closing engine needs
type BalanceService interface {
	ReleaseHold(holdTransactionID, description string) (model.Transaction, error)
	ConvertHoldToDeduction(holdTransactionID, description string) (model.Transaction, error)
	Deposit(accountID string, amount decimal.Decimal, method, description string) (model.Transaction, error)
	PayCommission(accountID string, amount decimal.Decimal, auctionID, description string) (model.Transaction, error)
}

// Service drives auctions to their terminal outcome and settles balances.
// All soldout flips go through the store's conditional close, so concurrent
// closers (sweep, admin, instant purchase) cannot both win.
type Service struct {
	repo           repository.AuctionDB
	balances       BalanceService
	notifier       notification.Notifier
	adminAccountID string
	now            func() time.Time
}

// NewService creates a closing service. adminAccountID receives commissions.
func NewService(repo repository.AuctionDB, balances BalanceService, notifier notification.Notifier, adminAccountID string) *Service {
	return &Service{
		repo:           repo,
		balances:       balances,
		notifier:       notifier,
		adminAccountID: adminAccountID,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// EndAuction closes an auction for the given reason and settles it if a sale
// occurred. Calling it on an already-ended auction is a no-op failing with
// ErrAlreadyEnded, which makes re-invocation by sweeps and admins safe.
func (s *Service) EndAuction(auctionID, reason, actorID string) (EndResult, error) {
	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return EndResult{}, fmt.Errorf("closing: failed to load auction %s: %w", auctionID, err)
	}
	if auction.IsSoldout {
		return EndResult{}, fmt.Errorf("closing: auction %s: %w", auctionID, auctionerrors.ErrAlreadyEnded)
	}

	highest, err := s.repo.HighestBid(auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrNoBids) {
			return s.closeNoBids(auction)
		}
		return EndResult{}, fmt.Errorf("closing: failed to find highest bid for %s: %w", auctionID, err)
	}

	if auction.HasReserve() && highest.Price.LessThan(auction.ReservePrice) {
		return s.closeReserveNotMet(auction)
	}

	return s.closeSale(auction, highest, reason, actorID)
}

// closeNoBids ends an auction nobody bid on
func (s *Service) closeNoBids(auction model.Auction) (EndResult, error) {
	closed, err := s.repo.ClaimAuctionClose(auction.AuctionID, "", decimal.Zero, model.EndReasonNoBids)
	if err != nil {
		return EndResult{}, fmt.Errorf("closing: no-bids close of %s: %w", auction.AuctionID, err)
	}

	// Defensive: a hold without a bid should not exist, but if one does the
	// owner gets their money back here rather than waiting for the sweep.
	s.releaseOpenHolds(closed.AuctionID, "", "auction closed with no bids")

	s.notifyEnded(closed, "", model.EndReasonNoBids)
	return EndResult{Outcome: OutcomeNoBids, Auction: closed}, nil
}

// closeReserveNotMet ends an auction whose best bid is under the reserve
func (s *Service) closeReserveNotMet(auction model.Auction) (EndResult, error) {
	closed, err := s.repo.ClaimAuctionClose(auction.AuctionID, "", decimal.Zero, model.EndReasonReserveNotMet)
	if err != nil {
		return EndResult{}, fmt.Errorf("closing: reserve-not-met close of %s: %w", auction.AuctionID, err)
	}

	bids, err := s.repo.BidsForAuction(closed.AuctionID)
	if err != nil {
		utils.Error("closing: failed to list bids after reserve-not-met close", map[string]any{
			"auction_id": closed.AuctionID, "error": err.Error(),
		})
	}
	for _, bid := range bids {
		if err := s.repo.SetBidLost(bid.BidID, model.EndReasonReserveNotMet); err != nil {
			utils.Error("closing: failed to mark bid lost", map[string]any{"bid_id": bid.BidID, "error": err.Error()})
		}
	}
	s.releaseOpenHolds(closed.AuctionID, "", "auction reserve not met")

	s.notifyEnded(closed, "", model.EndReasonReserveNotMet)
	return EndResult{Outcome: OutcomeReserveNotMet, Auction: closed}, nil
}

// closeSale ends an auction with a winner and runs settlement
func (s *Service) closeSale(auction model.Auction, winner model.Bid, reason, actorID string) (EndResult, error) {
	closed, err := s.repo.ClaimAuctionClose(auction.AuctionID, winner.BidderID, winner.Price, reason)
	if err != nil {
		return EndResult{}, fmt.Errorf("closing: sale close of %s: %w", auction.AuctionID, err)
	}

	if err := s.repo.SetBidState(winner.BidID, model.BidWon, true); err != nil {
		// The sale claim must not stand over an inconsistent bid ledger.
		if reopenErr := s.repo.ReopenAuction(auction.AuctionID); reopenErr != nil {
			utils.Error("closing: failed to reopen auction after bid update failure", map[string]any{
				"auction_id": auction.AuctionID, "error": reopenErr.Error(),
			})
		}
		return EndResult{}, fmt.Errorf("closing: failed to mark winning bid %s: %w", winner.BidID, err)
	}
	s.markOthersLost(closed.AuctionID, winner.BidID, "")

	settlement := s.Settle(closed, winner)

	closed, err = s.repo.GetAuction(closed.AuctionID)
	if err != nil {
		return EndResult{}, fmt.Errorf("closing: failed to reload auction %s: %w", auction.AuctionID, err)
	}

	s.notifyEnded(closed, winner.BidderID, reason)
	if actorID != "" {
		utils.Info("closing: auction ended by admin", map[string]any{
			"auction_id": closed.AuctionID, "actor_id": actorID, "reason": reason,
		})
	}

	return EndResult{
		Outcome:    OutcomeSale,
		Auction:    closed,
		Winner:     &winner,
		Settlement: settlement,
	}, nil
}

// markOthersLost flips every non-winning bid on the auction to Lost
func (s *Service) markOthersLost(auctionID, winnerBidID, reason string) {
	bids, err := s.repo.BidsForAuction(auctionID)
	if err != nil {
		utils.Error("closing: failed to list bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	for _, bid := range bids {
		if bid.BidID == winnerBidID {
			continue
		}
		if err := s.repo.SetBidLost(bid.BidID, reason); err != nil {
			utils.Error("closing: failed to mark bid lost", map[string]any{"bid_id": bid.BidID, "error": err.Error()})
		}
	}
}

// releaseOpenHolds refunds every open hold on the auction except the one
// named by keepHoldID
func (s *Service) releaseOpenHolds(auctionID, keepHoldID, description string) []string {
	var failures []string
	holds, err := s.repo.OpenHoldsForAuction(auctionID)
	if err != nil {
		utils.Error("closing: failed to list holds", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return []string{err.Error()}
	}
	for _, hold := range holds {
		if hold.TransactionID == keepHoldID {
			continue
		}
		if _, err := s.balances.ReleaseHold(hold.TransactionID, description); err != nil {
			failures = append(failures, err.Error())
			utils.Error("closing: failed to release hold", map[string]any{
				"hold_transaction_id": hold.TransactionID, "error": err.Error(),
			})
		}
	}
	return failures
}

// notifyEnded emits the auction-ended event, fire-and-forget
func (s *Service) notifyEnded(auction model.Auction, winnerID, reason string) {
	s.notifier.Publish(notification.Event{
		Kind:      notification.EventAuctionEnded,
		AuctionID: auction.AuctionID,
		AccountID: winnerID,
		Amount:    auction.FinalPrice,
		Reason:    reason,
		At:        s.now(),
	})
}
