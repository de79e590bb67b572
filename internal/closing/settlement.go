package closing

import (
	"fmt"

	model "antique-auction/internal/models"
	"antique-auction/utils"

	"github.com/shopspring/decimal"
)

// SettlementResult reports the outcome of settling a sold auction. Steps are
// best-effort: a failed step is recorded and the rest still run, so one
// stuck refund never blocks the seller's payout.
type SettlementResult struct {
	Success          bool                `json:"success"`
	WinnerDeduction  *model.Transaction  `json:"winner_deduction,omitempty"`
	LoserRefunds     []model.Transaction `json:"loser_refunds"`
	CommissionAmount decimal.Decimal     `json:"commission_amount"`
	SellerAmount     decimal.Decimal     `json:"seller_amount"`
	Errors           []string            `json:"errors,omitempty"`
}

// SplitProceeds computes the commission and seller shares of a final price.
// Commission is rounded half-up to cents; the seller share is derived by
// subtraction so the two always sum exactly to the final price.
func SplitProceeds(finalPrice, commissionPercent decimal.Decimal) (commission, seller decimal.Decimal) {
	commission = finalPrice.Mul(commissionPercent).Div(decimal.NewFromInt(100)).Round(2)
	seller = finalPrice.Sub(commission)
	return commission, seller
}

// Settle finalizes a sold auction: the winner's hold becomes a permanent
// deduction, every losing hold is refunded, and the proceeds are split
// between seller and platform commission. Safe to re-run: converted or
// released holds are skipped and the settlement flag is checked first.
func (s *Service) Settle(auction model.Auction, winner model.Bid) *SettlementResult {
	result := &SettlementResult{}

	current, err := s.repo.GetAuction(auction.AuctionID)
	if err == nil && current.SettlementCompleted {
		utils.Warn("settlement: already completed", map[string]any{"auction_id": auction.AuctionID})
		result.Success = true
		result.CommissionAmount = current.CommissionAmount
		result.SellerAmount = current.SellerAmount
		return result
	}

	// Winner settlement: convert the hold that backed the winning bid.
	if winner.HoldTransactionID == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("winning bid %s has no hold transaction", winner.BidID))
	} else if deduction, err := s.balances.ConvertHoldToDeduction(winner.HoldTransactionID, "Winner settlement"); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("winner settlement: %v", err))
	} else {
		result.WinnerDeduction = &deduction
	}

	// Loser refunds: every remaining open hold on the auction goes back.
	holds, err := s.repo.OpenHoldsForAuction(auction.AuctionID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("loser refunds: %v", err))
	} else {
		for _, hold := range holds {
			if hold.TransactionID == winner.HoldTransactionID {
				continue
			}
			refund, err := s.balances.ReleaseHold(hold.TransactionID, "Losing bid refund")
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("refund of hold %s: %v", hold.TransactionID, err))
				continue
			}
			result.LoserRefunds = append(result.LoserRefunds, refund)
		}
	}

	commission, sellerAmount := SplitProceeds(auction.FinalPrice, auction.CommissionPercent)
	result.CommissionAmount = commission
	result.SellerAmount = sellerAmount

	if commission.IsPositive() {
		if _, err := s.balances.PayCommission(s.adminAccountID, commission, auction.AuctionID, "Auction commission"); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("commission payment: %v", err))
		}
	}
	if sellerAmount.IsPositive() {
		if _, err := s.balances.Deposit(auction.SellerID, sellerAmount, "auction_settlement", "Auction sale proceeds"); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("seller payout: %v", err))
		}
	}

	settledAt := s.now()
	auction.SettlementCompleted = true
	auction.SettlementDate = &settledAt
	auction.CommissionAmount = commission
	auction.SellerAmount = sellerAmount
	if err := s.repo.UpdateAuction(auction); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("settlement flag update: %v", err))
	}

	result.Success = len(result.Errors) == 0
	if !result.Success {
		utils.Error("settlement: completed with errors", map[string]any{
			"auction_id": auction.AuctionID,
			"errors":     result.Errors,
		})
	}
	return result
}
