package bidding

import (
	"errors"
	"fmt"
	"time"

	"antique-auction/internal/auctionerrors"
	"antique-auction/internal/closing"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/internal/repository"
	"antique-auction/utils"

	"github.com/shopspring/decimal"
)

// BalanceService is the money-movement surface bid placement needs
type BalanceService interface {
	HoldAmount(accountID string, amount decimal.Decimal, auctionID, bidID, description string) (model.Transaction, error)
	ReleaseHold(holdTransactionID, description string) (model.Transaction, error)
}

// Settler finalizes a sold auction's balances
type Settler interface {
	Settle(auction model.Auction, winner model.Bid) *closing.SettlementResult
}

// Result reports an accepted bid and whether the call also closed the auction
type Result struct {
	Bid             model.Bid                  `json:"bid"`
	AuctionEnded    bool                       `json:"auction_ended"`
	InstantPurchase bool                       `json:"instant_purchase"`
	FinalPrice      decimal.Decimal            `json:"final_price"`
	Settlement      *closing.SettlementResult  `json:"settlement,omitempty"`
}

// Service is the bid acceptance engine: it validates incoming bids, keeps
// the single-leader invariant, resolves instant-purchase races, and runs
// proxy escalation after each accepted bid.
type Service struct {
	repo     repository.AuctionDB
	balances BalanceService
	settler  Settler
	notifier notification.Notifier
	retry    RetryPolicy
	now      func() time.Time

	placing    *keyedLocks // serializes placement per auction in-process
	escalating *keyedLocks // best-effort per-auction escalation guard
}

// NewService creates a bidding service
func NewService(repo repository.AuctionDB, balances BalanceService, settler Settler, notifier notification.Notifier) *Service {
	return &Service{
		repo:       repo,
		balances:   balances,
		settler:    settler,
		notifier:   notifier,
		retry:      DefaultRetryPolicy(),
		now:        func() time.Time { return time.Now().UTC() },
		placing:    newKeyedLocks(),
		escalating: newKeyedLocks(),
	}
}

// SetRetryPolicy overrides the instant-purchase claim retry policy
func (s *Service) SetRetryPolicy(policy RetryPolicy) { s.retry = policy }

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// PlaceBid validates and records a bid. On success the bidder's money is
// held, the previous leader is flipped to outbid and refunded, and if the
// bid meets the instant-purchase price the auction closes immediately.
func (s *Service) PlaceBid(auctionID, bidderID string, price decimal.Decimal, bidType model.BidType, maxBid decimal.Decimal) (Result, error) {
	if auctionID == "" || bidderID == "" {
		return Result{}, fmt.Errorf("bidding: %w: missing auction or bidder ID", auctionerrors.ErrInvalidBid)
	}
	if !price.IsPositive() {
		return Result{}, fmt.Errorf("bidding: %w: non-positive price", auctionerrors.ErrInvalidBid)
	}
	switch bidType {
	case model.BidManual:
		maxBid = decimal.Zero
	case model.BidProxy:
		if maxBid.LessThan(price) {
			return Result{}, fmt.Errorf("bidding: %w: proxy max bid %s is below price %s", auctionerrors.ErrInvalidBid, maxBid, price)
		}
	default:
		return Result{}, fmt.Errorf("bidding: %w: unknown bid type %q", auctionerrors.ErrInvalidBid, bidType)
	}

	s.placing.Lock(auctionID)
	defer s.placing.Unlock(auctionID)

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return Result{}, fmt.Errorf("bidding: failed to load auction %s: %w", auctionID, err)
	}
	if err := s.checkAuctionOpen(auction, bidderID); err != nil {
		return Result{}, err
	}

	leader, leaderErr := s.repo.HighestBid(auctionID)
	if leaderErr != nil && !errors.Is(leaderErr, auctionerrors.ErrNoBids) {
		return Result{}, fmt.Errorf("bidding: failed to find current leader for %s: %w", auctionID, leaderErr)
	}
	hasLeader := leaderErr == nil

	existing, existingErr := s.repo.GetBid(auctionID, bidderID)
	hasExisting := existingErr == nil

	if err := s.checkPrice(auction, leader, hasLeader, existing, hasExisting, price, bidType); err != nil {
		return Result{}, err
	}

	bid, err := s.recordBid(auction, bidderID, price, bidType, maxBid, existing, hasExisting)
	if err != nil {
		return Result{}, err
	}

	// Flip the previous leader before crowning the new one so at most one
	// bid carries the winning flag at any time.
	if hasLeader && leader.BidderID != bidderID {
		s.flipOutbid(leader)
	}
	if err := s.repo.SetBidState(bid.BidID, model.BidWinning, true); err != nil {
		return Result{}, fmt.Errorf("bidding: failed to mark bid %s winning: %w", bid.BidID, err)
	}
	bid.BidStatus = model.BidWinning
	bid.IsWinningBid = true

	s.notifier.Publish(notification.Event{
		Kind:      notification.EventBidAccepted,
		AuctionID: auctionID,
		BidID:     bid.BidID,
		AccountID: bidderID,
		Amount:    price,
		At:        s.now(),
	})

	if auction.HasInstantPurchase() && price.GreaterThanOrEqual(auction.InstantPurchasePrice) {
		return s.resolveInstantPurchase(auction, bid)
	}

	s.escalateProxies(auctionID, bidderID)

	return s.buildResult(bid)
}

// checkAuctionOpen enforces the static preconditions on the auction
func (s *Service) checkAuctionOpen(auction model.Auction, bidderID string) error {
	if auction.IsSoldout {
		return fmt.Errorf("bidding: auction %s: %w", auction.AuctionID, auctionerrors.ErrAlreadyEnded)
	}
	if auction.SellerID == bidderID {
		return fmt.Errorf("bidding: auction %s: %w", auction.AuctionID, auctionerrors.ErrSelfBid)
	}
	if auction.AuctionType == model.AuctionTimed {
		now := s.now()
		if now.Before(auction.AuctionStartDate) {
			return fmt.Errorf("bidding: auction %s opens at %s: %w", auction.AuctionID, auction.AuctionStartDate, auctionerrors.ErrAuctionNotStarted)
		}
		if now.After(auction.AuctionEndDate) {
			return fmt.Errorf("bidding: auction %s closed at %s: %w", auction.AuctionID, auction.AuctionEndDate, auctionerrors.ErrAuctionExpired)
		}
	}
	return nil
}

// checkPrice enforces the minimum-bid rule and the self-raise rule
func (s *Service) checkPrice(auction model.Auction, leader model.Bid, hasLeader bool, existing model.Bid, hasExisting bool, price decimal.Decimal, bidType model.BidType) error {
	// A proxy leader may resubmit its current price to adjust the ceiling.
	if hasExisting && bidType == model.BidProxy && hasLeader && leader.BidderID == existing.BidderID && price.Equal(existing.Price) {
		return nil
	}

	minimum := auction.StartingBid
	if hasLeader {
		minimum = leader.Price.Add(auction.BidIncrement)
	}
	if price.LessThan(minimum) {
		return fmt.Errorf("bidding: %w", &auctionerrors.BidTooLowError{Minimum: minimum, Offered: price})
	}

	if hasExisting && bidType == model.BidManual && !price.GreaterThan(existing.Price) {
		return fmt.Errorf("bidding: %w: new bid %s must exceed your previous bid %s",
			auctionerrors.ErrBidTooLow, price, existing.Price)
	}
	return nil
}

// recordBid holds the new amount, releases the bidder's previous hold, and
// upserts the bid row. The new hold is taken first so a failed hold leaves
// the previous bid fully intact.
func (s *Service) recordBid(auction model.Auction, bidderID string, price decimal.Decimal, bidType model.BidType, maxBid decimal.Decimal, existing model.Bid, hasExisting bool) (model.Bid, error) {
	bidID := utils.GenerateID()
	if hasExisting {
		bidID = existing.BidID
	}

	hold, err := s.balances.HoldAmount(bidderID, price, auction.AuctionID, bidID, "Bid hold")
	if err != nil {
		return model.Bid{}, fmt.Errorf("bidding: failed to hold funds for bid on %s: %w", auction.AuctionID, err)
	}

	if hasExisting && existing.HoldTransactionID != "" {
		if _, err := s.balances.ReleaseHold(existing.HoldTransactionID, "Replaced by new bid"); err != nil {
			// Money is recoverable by the integrity sweep; the bid goes on.
			utils.Error("bidding: failed to release superseded hold", map[string]any{
				"hold_transaction_id": existing.HoldTransactionID, "error": err.Error(),
			})
		}
	}

	now := s.now()
	bid, err := s.repo.UpsertBid(model.Bid{
		BidID:             bidID,
		AuctionID:         auction.AuctionID,
		BidderID:          bidderID,
		Price:             price,
		BidType:           bidType,
		MaxBid:            maxBid,
		BidIncrement:      auction.BidIncrement,
		BidStatus:         model.BidActive,
		HoldTransactionID: hold.TransactionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		if _, releaseErr := s.balances.ReleaseHold(hold.TransactionID, "Bid record failed"); releaseErr != nil {
			utils.Error("bidding: failed to release hold after upsert failure", map[string]any{
				"hold_transaction_id": hold.TransactionID, "error": releaseErr.Error(),
			})
		}
		return model.Bid{}, fmt.Errorf("bidding: failed to record bid on %s: %w", auction.AuctionID, err)
	}
	return bid, nil
}

// flipOutbid marks the previous leader outbid, refunds their hold, and
// notifies them
func (s *Service) flipOutbid(leader model.Bid) {
	if err := s.repo.SetBidState(leader.BidID, model.BidOutbid, false); err != nil {
		utils.Error("bidding: failed to flip previous leader", map[string]any{"bid_id": leader.BidID, "error": err.Error()})
	}
	if leader.HoldTransactionID != "" {
		if _, err := s.balances.ReleaseHold(leader.HoldTransactionID, "Outbid refund"); err != nil {
			utils.Error("bidding: failed to refund outbid hold", map[string]any{
				"hold_transaction_id": leader.HoldTransactionID, "error": err.Error(),
			})
		}
	}
	s.notifier.Publish(notification.Event{
		Kind:      notification.EventOutbid,
		AuctionID: leader.AuctionID,
		BidID:     leader.BidID,
		AccountID: leader.BidderID,
		Amount:    leader.Price,
		At:        s.now(),
	})
}

// buildResult refreshes the bid and auction state for the caller. Proxy
// escalation may have closed the auction after the bid was accepted.
func (s *Service) buildResult(bid model.Bid) (Result, error) {
	fresh, err := s.repo.GetBidByID(bid.BidID)
	if err == nil {
		bid = fresh
	}
	result := Result{Bid: bid}

	auction, err := s.repo.GetAuction(bid.AuctionID)
	if err != nil {
		return result, nil
	}
	if auction.IsSoldout {
		result.AuctionEnded = true
		result.InstantPurchase = auction.EndReason == model.EndReasonInstantPurchase
		result.FinalPrice = auction.FinalPrice
	}
	return result, nil
}
