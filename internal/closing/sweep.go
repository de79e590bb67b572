package closing

import (
	"errors"
	"fmt"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"
	"antique-auction/utils"
)

// ProcessExpiredAuctions closes every open Timed auction past its end date.
// Auctions another closer got to first are reported as skipped, not errors.
func (s *Service) ProcessExpiredAuctions() (SweepResult, error) {
	result := SweepResult{Results: make(map[string]EndResult)}

	expired, err := s.repo.ExpiredAuctions(s.now())
	if err != nil {
		return result, fmt.Errorf("closing: failed to list expired auctions: %w", err)
	}

	for _, auction := range expired {
		endResult, err := s.EndAuction(auction.AuctionID, model.EndReasonTimeExpiry, "")
		if err != nil {
			if errors.Is(err, auctionerrors.ErrAlreadyEnded) {
				result.Skipped = append(result.Skipped, auction.AuctionID)
				continue
			}
			utils.Error("closing: sweep failed to end auction", map[string]any{
				"auction_id": auction.AuctionID, "error": err.Error(),
			})
			result.Skipped = append(result.Skipped, auction.AuctionID)
			continue
		}
		result.Results[auction.AuctionID] = endResult
		result.ProcessedCount++
	}

	if result.ProcessedCount > 0 {
		utils.Info("closing: expiry sweep complete", map[string]any{
			"processed": result.ProcessedCount,
			"skipped":   len(result.Skipped),
		})
	}
	return result, nil
}

// IntegritySweep repairs dangling money state: stale holds that no longer
// back a live bid are released, and open-auction leaders missing a hold are
// logged for operator attention.
func (s *Service) IntegritySweep() (IntegrityResult, error) {
	result := IntegrityResult{}

	stale, err := s.repo.StaleHolds(s.now())
	if err != nil {
		return result, fmt.Errorf("closing: failed to list stale holds: %w", err)
	}
	for _, hold := range stale {
		if s.holdStillBacksLiveBid(hold) {
			continue
		}
		if _, err := s.balances.ReleaseHold(hold.TransactionID, "Integrity sweep: abandoned hold"); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("release of %s: %v", hold.TransactionID, err))
			continue
		}
		result.ReleasedHolds = append(result.ReleasedHolds, hold.TransactionID)
		utils.Warn("closing: released abandoned hold", map[string]any{
			"hold_transaction_id": hold.TransactionID,
			"account_id":          hold.AccountID,
			"auction_id":          hold.AuctionID,
		})
	}

	open, err := s.repo.OpenAuctions()
	if err != nil {
		return result, fmt.Errorf("closing: failed to list open auctions: %w", err)
	}
	for _, auction := range open {
		bids, err := s.repo.BidsForAuction(auction.AuctionID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("bids for %s: %v", auction.AuctionID, err))
			continue
		}
		for _, bid := range bids {
			if !bid.IsWinningBid {
				continue
			}
			if !s.bidHasOpenHold(bid) {
				result.MissingHolds = append(result.MissingHolds, bid.BidID)
				utils.Error("closing: winning bid lacks an open hold", map[string]any{
					"bid_id":     bid.BidID,
					"auction_id": auction.AuctionID,
					"bidder_id":  bid.BidderID,
				})
			}
		}
	}

	return result, nil
}

// holdStillBacksLiveBid reports whether the hold's bid is still in play on
// an open auction
func (s *Service) holdStillBacksLiveBid(hold model.Transaction) bool {
	if hold.BidID == "" {
		return false
	}
	bid, err := s.repo.GetBidByID(hold.BidID)
	if err != nil {
		return false
	}
	if bid.HoldTransactionID != hold.TransactionID {
		return false
	}
	if bid.BidStatus == model.BidLost {
		return false
	}
	auction, err := s.repo.GetAuction(bid.AuctionID)
	if err != nil {
		return false
	}
	if auction.IsSoldout && bid.BidStatus != model.BidWon {
		return false
	}
	return true
}

// bidHasOpenHold reports whether the bid's hold transaction exists and is
// still held
func (s *Service) bidHasOpenHold(bid model.Bid) bool {
	if bid.HoldTransactionID == "" {
		return false
	}
	hold, err := s.repo.GetTransaction(bid.HoldTransactionID)
	if err != nil {
		return false
	}
	return hold.Type == model.TransactionBidHold && hold.IsHeld
}
