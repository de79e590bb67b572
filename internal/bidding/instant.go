package bidding

import (
	"errors"
	"fmt"
	"time"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/utils"
)

// RetryPolicy bounds the instant-purchase claim retries. Sleep is a
// parameter so tests can run with fake time.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Sleep    func(time.Duration)
}

// DefaultRetryPolicy is three attempts with a short fixed backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff:  50 * time.Millisecond,
		Sleep:    time.Sleep,
	}
}

// resolveInstantPurchase claims the early close for a bid at or above the
// instant-purchase price. Exactly one concurrent qualifying bid can win the
// claim; the winner among qualifying bids is the earliest-created one, not
// merely the first to execute the close.
func (s *Service) resolveInstantPurchase(auction model.Auction, bid model.Bid) (Result, error) {
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		claimed, err := s.repo.ClaimAuctionClose(auction.AuctionID, bid.BidderID, bid.Price, model.EndReasonInstantPurchase)
		if err == nil {
			return s.finishInstantPurchase(auction, claimed, bid)
		}
		if errors.Is(err, auctionerrors.ErrAlreadyEnded) {
			return s.loseInstantPurchase(auction, bid)
		}
		if errors.Is(err, auctionerrors.ErrAuctionNotFound) {
			return Result{}, fmt.Errorf("bidding: instant purchase claim on %s: %w", auction.AuctionID, err)
		}
		utils.Warn("bidding: instant purchase claim failed, retrying", map[string]any{
			"auction_id": auction.AuctionID,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		if attempt < s.retry.Attempts {
			s.retry.Sleep(s.retry.Backoff)
		}
	}

	// Retries exhausted: the bid stands as an ordinary leading bid and the
	// next successful claim or the scheduled sweep will end the auction.
	utils.Warn("bidding: instant purchase claim retries exhausted, bid left standing", map[string]any{
		"auction_id": auction.AuctionID,
		"bid_id":     bid.BidID,
	})
	return s.buildResult(bid)
}

// finishInstantPurchase runs after a successful claim: resolve the
// earliest-qualifying-bid tie-break, settle the winner, and mark the rest.
func (s *Service) finishInstantPurchase(auction, claimed model.Auction, bid model.Bid) (Result, error) {
	winner := bid
	if earliest, ok := s.earliestQualifyingBid(auction); ok && earliest.BidID != bid.BidID {
		// An earlier qualifying bid exists; the claim is transferred to it.
		claimed.SoldTo = earliest.BidderID
		claimed.FinalPrice = earliest.Price
		if err := s.repo.UpdateAuction(claimed); err != nil {
			utils.Error("bidding: failed to transfer instant purchase to earlier bid", map[string]any{
				"auction_id": auction.AuctionID, "error": err.Error(),
			})
		} else {
			winner = earliest
		}
	}

	if err := s.repo.SetBidState(winner.BidID, model.BidWon, true); err != nil {
		// The claim must not stand over an inconsistent bid ledger; revert
		// it and leave the bid as an ordinary leading bid.
		if reopenErr := s.repo.ReopenAuction(auction.AuctionID); reopenErr != nil {
			utils.Error("bidding: failed to reopen auction after bid update failure", map[string]any{
				"auction_id": auction.AuctionID, "error": reopenErr.Error(),
			})
		}
		return Result{}, fmt.Errorf("bidding: failed to mark instant purchase winner %s: %w", winner.BidID, err)
	}
	s.markLosers(claimed, winner)

	settlement := s.settler.Settle(claimed, winner)

	s.notifier.Publish(notification.Event{
		Kind:      notification.EventAuctionEnded,
		AuctionID: claimed.AuctionID,
		AccountID: winner.BidderID,
		Amount:    claimed.FinalPrice,
		Reason:    model.EndReasonInstantPurchase,
		At:        s.now(),
	})

	if winner.BidID != bid.BidID {
		// This caller's bid lost the tie-break to the earlier qualifying bid.
		return Result{}, fmt.Errorf("bidding: instant purchase on %s won by earlier bid: %w",
			auction.AuctionID, auctionerrors.ErrConflict)
	}

	bid.BidStatus = model.BidWon
	bid.IsWinningBid = true
	return Result{
		Bid:             bid,
		AuctionEnded:    true,
		InstantPurchase: true,
		FinalPrice:      claimed.FinalPrice,
		Settlement:      settlement,
	}, nil
}

// loseInstantPurchase handles a qualifying bid that lost the race: the bid
// is marked lost with a conflict reason and its hold is refunded.
func (s *Service) loseInstantPurchase(auction model.Auction, bid model.Bid) (Result, error) {
	current, err := s.repo.GetAuction(auction.AuctionID)
	if err == nil && current.SoldTo == bid.BidderID {
		// The concurrent claim was transferred to this bid by the tie-break.
		return s.buildResult(bid)
	}

	if err := s.repo.SetBidLost(bid.BidID, model.LossReasonConcurrentInstantPurchase); err != nil {
		utils.Error("bidding: failed to mark conflicting bid lost", map[string]any{"bid_id": bid.BidID, "error": err.Error()})
	}
	if bid.HoldTransactionID != "" {
		if _, err := s.balances.ReleaseHold(bid.HoldTransactionID, "Instant purchase conflict refund"); err != nil {
			// Settlement of the winning claim may have refunded it already.
			if !errors.Is(err, auctionerrors.ErrInvalidHold) {
				utils.Error("bidding: failed to refund conflicting hold", map[string]any{
					"hold_transaction_id": bid.HoldTransactionID, "error": err.Error(),
				})
			}
		}
	}

	return Result{}, fmt.Errorf("bidding: instant purchase on %s lost to a concurrent buyer: %w",
		auction.AuctionID, auctionerrors.ErrConflict)
}

// earliestQualifyingBid finds the oldest bid at or above the
// instant-purchase price, ordered by creation time then bid ID
func (s *Service) earliestQualifyingBid(auction model.Auction) (model.Bid, bool) {
	bids, err := s.repo.BidsForAuction(auction.AuctionID)
	if err != nil {
		return model.Bid{}, false
	}

	var earliest model.Bid
	found := false
	for _, b := range bids {
		if b.BidStatus == model.BidLost || b.Price.LessThan(auction.InstantPurchasePrice) {
			continue
		}
		if !found ||
			b.CreatedAt.Before(earliest.CreatedAt) ||
			(b.CreatedAt.Equal(earliest.CreatedAt) && b.BidID < earliest.BidID) {
			earliest = b
			found = true
		}
	}
	return earliest, found
}

// markLosers flips every other bid to lost; qualifying bids that also met
// the instant-purchase price get the conflict reason
func (s *Service) markLosers(auction model.Auction, winner model.Bid) {
	bids, err := s.repo.BidsForAuction(auction.AuctionID)
	if err != nil {
		utils.Error("bidding: failed to list bids after instant purchase", map[string]any{
			"auction_id": auction.AuctionID, "error": err.Error(),
		})
		return
	}
	for _, b := range bids {
		if b.BidID == winner.BidID {
			continue
		}
		reason := ""
		if b.Price.GreaterThanOrEqual(auction.InstantPurchasePrice) {
			reason = model.LossReasonConcurrentInstantPurchase
		}
		if err := s.repo.SetBidLost(b.BidID, reason); err != nil {
			utils.Error("bidding: failed to mark bid lost", map[string]any{"bid_id": b.BidID, "error": err.Error()})
		}
	}
}
