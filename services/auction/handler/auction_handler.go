package handler

import (
	"fmt"
	"net/http"

	"antique-auction/internal/balance"
	"antique-auction/internal/bidding"
	"antique-auction/internal/closing"
	model "antique-auction/internal/models"
	"antique-auction/services/auction/helpers"
	"antique-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	PlaceBid(auctionID, bidderID string, price decimal.Decimal, bidType model.BidType, maxBid decimal.Decimal) (bidding.Result, error)
}

type ClosingServiceInterface interface {
	EndAuction(auctionID, reason, actorID string) (closing.EndResult, error)
	ProcessExpiredAuctions() (closing.SweepResult, error)
}

type BalanceServiceInterface interface {
	Deposit(accountID string, amount decimal.Decimal, method, description string) (model.Transaction, error)
	BalanceInfo(accountID string) (balance.Info, error)
}

type AuctionReader interface {
	GetAuction(auctionID string) (model.Auction, error)
	BidsForAuction(auctionID string) ([]model.Bid, error)
}

type AuctionHandler struct {
	bids     BiddingServiceInterface
	closer   ClosingServiceInterface
	balances BalanceServiceInterface
	reader   AuctionReader
}

func NewAuctionHandler(bids BiddingServiceInterface, closer ClosingServiceInterface, balances BalanceServiceInterface, reader AuctionReader) *AuctionHandler {
	return &AuctionHandler{bids: bids, closer: closer, balances: balances, reader: reader}
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	bidType := model.BidManual
	if req.BidType != "" {
		bidType = model.BidType(req.BidType)
	}

	result, err := h.bids.PlaceBid(auctionID, req.BidderID, decimal.NewFromFloat(req.Price), bidType, decimal.NewFromFloat(req.MaxBid))
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONErrorWithData(c, status, fmt.Errorf("%s: %w", message, err), message, helpers.ErrorDetails(err))
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  req.BidderID,
			"error":      err.Error(),
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		Bid:             helpers.ToBidResponse(result.Bid),
		AuctionEnded:    result.AuctionEnded,
		InstantPurchase: result.InstantPurchase,
	}
	if result.AuctionEnded {
		resp.FinalPrice = result.FinalPrice.String()
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":           result.Bid.BidID,
		"auction_id":       auctionID,
		"bidder_id":        req.BidderID,
		"price":            result.Bid.Price.String(),
		"auction_ended":    result.AuctionEnded,
		"instant_purchase": result.InstantPurchase,
	})
}

// EndAuctionHandler handles POST /auctions/:auction_id/end
func (h *AuctionHandler) EndAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.EndAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "EndAuctionHandler", err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = model.EndReasonAdminAction
	}

	result, err := h.closer.EndAuction(auctionID, reason, req.ActorID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("EndAuctionHandler: failed to end auction", map[string]any{
			"auction_id": auctionID,
			"actor_id":   req.ActorID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, result, "auction ended")
	helpers.LogSuccess("EndAuctionHandler", "auction ended", map[string]any{
		"auction_id": auctionID,
		"outcome":    result.Outcome,
		"actor_id":   req.ActorID,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	auction, err := h.reader.GetAuction(auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	if _, err := h.reader.GetAuction(auctionID); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}

	bids, err := h.reader.BidsForAuction(auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, bid := range bids {
		resp = append(resp, helpers.ToBidResponse(bid))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
}

// SweepHandler handles POST /admin/sweep
func (h *AuctionHandler) SweepHandler(c *gin.Context) {
	result, err := h.closer.ProcessExpiredAuctions()
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("SweepHandler: sweep failed", map[string]any{"error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, result, "sweep complete")
	helpers.LogSuccess("SweepHandler", "sweep complete", map[string]any{
		"processed": result.ProcessedCount,
		"skipped":   len(result.Skipped),
	})
}

// GetBalanceHandler handles GET /accounts/:account_id/balance
func (h *AuctionHandler) GetBalanceHandler(c *gin.Context) {
	accountID := c.Param("account_id")

	info, err := h.balances.BalanceInfo(accountID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.BalanceResponse{
		AccountID: accountID,
		Total:     info.Total.String(),
		Held:      info.Held.String(),
		Available: info.Available.String(),
	}, "balance retrieved successfully")
}

// DepositHandler handles POST /accounts/:account_id/deposit
func (h *AuctionHandler) DepositHandler(c *gin.Context) {
	accountID := c.Param("account_id")

	var req helpers.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DepositHandler", err)
		return
	}

	tx, err := h.balances.Deposit(accountID, decimal.NewFromFloat(req.Amount), req.Method, "Balance top-up")
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("DepositHandler: failed to deposit", map[string]any{
			"account_id": accountID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToTransactionResponse(tx), "deposit recorded successfully")
	helpers.LogSuccess("DepositHandler", "deposit recorded successfully", map[string]any{
		"account_id":     accountID,
		"transaction_id": tx.TransactionID,
		"amount":         tx.Amount.String(),
	})
}
