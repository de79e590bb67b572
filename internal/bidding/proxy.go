package bidding

import (
	"errors"
	"fmt"
	"sort"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/utils"

	"github.com/shopspring/decimal"
)

// maxEscalationIterations caps the escalation loop. The loop is bounded by
// the number of standing proxies anyway; the cap is a backstop.
const maxEscalationIterations = 100

// escalateProxies auto-bids for standing proxy instructions after a new bid.
// The triggering bidder starts as leader and a leader never counters itself,
// but once another proxy overtakes them their own standing proxy competes
// again, which settles proxy-vs-proxy duels recursively. Escalation never
// fails the bid that triggered it: every error is logged and swallowed. Runs
// behind a best-effort per-auction guard so two escalation runs cannot
// interleave for the same auction.
func (s *Service) escalateProxies(auctionID, triggerBidder string) {
	if !s.escalating.TryLock(auctionID) {
		utils.Warn("bidding: escalation already running for auction", map[string]any{
			"auction_id": auctionID,
			"trigger":    triggerBidder,
		})
		return
	}
	defer s.escalating.Unlock(auctionID)

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil || auction.IsSoldout {
		return
	}

	skip := map[string]bool{}
	for iter := 0; iter < maxEscalationIterations; iter++ {
		leader, err := s.repo.HighestBid(auctionID)
		if err != nil {
			return
		}

		candidates := s.proxyCandidates(auctionID, leader, skip)
		if len(candidates) == 0 {
			break
		}
		cand := candidates[0]

		// The leading proxy bids the minimum necessary over the strongest
		// rival ceiling, never more than its own.
		next := leader.Price.Add(auction.BidIncrement)
		if len(candidates) > 1 && candidates[1].MaxBid.GreaterThanOrEqual(next) {
			next = candidates[1].MaxBid.Add(auction.BidIncrement)
		}
		if next.GreaterThan(cand.MaxBid) {
			next = cand.MaxBid
		}

		ended, err := s.placeEscalatedBid(auction, leader, cand, next)
		if err != nil {
			utils.Warn("bidding: proxy escalation step failed, skipping candidate", map[string]any{
				"auction_id": auctionID,
				"bidder_id":  cand.BidderID,
				"error":      err.Error(),
			})
			skip[cand.BidderID] = true
			continue
		}
		if ended {
			return
		}
	}

	s.recomputeStatuses(auctionID)
}

// proxyCandidates returns standing proxies that can still outbid the leader,
// strongest ceiling first, earlier creation then bid ID breaking ties
func (s *Service) proxyCandidates(auctionID string, leader model.Bid, skip map[string]bool) []model.Bid {
	bids, err := s.repo.BidsForAuction(auctionID)
	if err != nil {
		return nil
	}

	var candidates []model.Bid
	for _, b := range bids {
		if b.BidType != model.BidProxy {
			continue
		}
		if b.BidStatus == model.BidWon || b.BidStatus == model.BidLost {
			continue
		}
		if b.BidderID == leader.BidderID || skip[b.BidderID] {
			continue
		}
		if !b.MaxBid.GreaterThan(leader.Price) {
			continue
		}
		candidates = append(candidates, b)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].MaxBid.Equal(candidates[j].MaxBid) {
			return candidates[i].MaxBid.GreaterThan(candidates[j].MaxBid)
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].BidID < candidates[j].BidID
	})
	return candidates
}

// placeEscalatedBid raises a proxy's standing bid to the given price. The
// money flow mirrors manual placement: hold the new amount, release the old
// hold, flip the outbid leader. Returns whether the auction ended because
// the escalated bid crossed the instant-purchase threshold.
func (s *Service) placeEscalatedBid(auction model.Auction, leader, cand model.Bid, price decimal.Decimal) (bool, error) {
	hold, err := s.balances.HoldAmount(cand.BidderID, price, auction.AuctionID, cand.BidID, "Proxy bid hold")
	if err != nil {
		return false, fmt.Errorf("escalation hold for %s: %w", cand.BidderID, err)
	}
	if cand.HoldTransactionID != "" {
		if _, err := s.balances.ReleaseHold(cand.HoldTransactionID, "Replaced by escalated proxy bid"); err != nil {
			utils.Error("bidding: failed to release superseded proxy hold", map[string]any{
				"hold_transaction_id": cand.HoldTransactionID, "error": err.Error(),
			})
		}
	}

	cand.Price = price
	cand.HoldTransactionID = hold.TransactionID
	cand.BidStatus = model.BidActive
	cand.IsWinningBid = false
	cand.UpdatedAt = s.now()
	bid, err := s.repo.UpsertBid(cand)
	if err != nil {
		if _, releaseErr := s.balances.ReleaseHold(hold.TransactionID, "Escalated bid record failed"); releaseErr != nil {
			utils.Error("bidding: failed to release hold after escalation upsert failure", map[string]any{
				"hold_transaction_id": hold.TransactionID, "error": releaseErr.Error(),
			})
		}
		return false, fmt.Errorf("escalation upsert for %s: %w", cand.BidderID, err)
	}

	if leader.BidderID != bid.BidderID {
		s.flipOutbid(leader)
	}
	if err := s.repo.SetBidState(bid.BidID, model.BidWinning, true); err != nil {
		utils.Error("bidding: failed to mark escalated bid winning", map[string]any{"bid_id": bid.BidID, "error": err.Error()})
	}
	bid.BidStatus = model.BidWinning
	bid.IsWinningBid = true

	s.notifier.Publish(notification.Event{
		Kind:      notification.EventBidAccepted,
		AuctionID: auction.AuctionID,
		BidID:     bid.BidID,
		AccountID: bid.BidderID,
		Amount:    price,
		Reason:    "proxy_escalation",
		At:        s.now(),
	})

	// An escalated bid crossing the threshold goes through the race
	// resolver exactly as a manual bid would.
	if auction.HasInstantPurchase() && price.GreaterThanOrEqual(auction.InstantPurchasePrice) {
		if _, err := s.resolveInstantPurchase(auction, bid); err != nil && !errors.Is(err, auctionerrors.ErrConflict) {
			utils.Error("bidding: escalated instant purchase failed", map[string]any{
				"auction_id": auction.AuctionID, "error": err.Error(),
			})
		}
		current, err := s.repo.GetAuction(auction.AuctionID)
		if err == nil && current.IsSoldout {
			return true, nil
		}
	}
	return false, nil
}

// recomputeStatuses settles the final winning/outbid split after an
// escalation run: the single highest bid wins, every other live bid is outbid
func (s *Service) recomputeStatuses(auctionID string) {
	auction, err := s.repo.GetAuction(auctionID)
	if err != nil || auction.IsSoldout {
		return
	}
	bids, err := s.repo.BidsForAuction(auctionID)
	if err != nil || len(bids) == 0 {
		return
	}

	for i, b := range bids {
		if b.BidStatus == model.BidWon || b.BidStatus == model.BidLost {
			continue
		}
		status, winning := model.BidOutbid, false
		if i == 0 {
			status, winning = model.BidWinning, true
		}
		if b.BidStatus == status && b.IsWinningBid == winning {
			continue
		}
		if err := s.repo.SetBidState(b.BidID, status, winning); err != nil {
			utils.Error("bidding: failed to recompute bid status", map[string]any{"bid_id": b.BidID, "error": err.Error()})
		}
	}
}
