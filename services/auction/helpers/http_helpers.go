package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"
	"antique-auction/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, auctionerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, auctionerrors.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient balance"
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, auctionerrors.ErrConflict):
		return http.StatusConflict, "auction state changed, refresh and retry"
	case errors.Is(err, auctionerrors.ErrAlreadyEnded):
		return http.StatusGone, "auction already ended"
	case errors.Is(err, auctionerrors.ErrSelfBid):
		return http.StatusForbidden, "seller cannot bid on own auction"
	case errors.Is(err, auctionerrors.ErrAuctionNotStarted):
		return http.StatusUnprocessableEntity, "auction has not started"
	case errors.Is(err, auctionerrors.ErrAuctionExpired):
		return http.StatusUnprocessableEntity, "auction bidding window has closed"
	case errors.Is(err, auctionerrors.ErrInvalidBid), errors.Is(err, auctionerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, auctionerrors.ErrNoBids):
		return http.StatusOK, "no bids found for auction"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorDetails extracts actionable data from typed errors so rejections
// tell the caller what to do next
func ErrorDetails(err error) map[string]any {
	details := map[string]any{}

	var tooLow *auctionerrors.BidTooLowError
	if errors.As(err, &tooLow) {
		details["minimum_bid"] = tooLow.Minimum.String()
		details["offered"] = tooLow.Offered.String()
	}

	var insufficient *auctionerrors.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		details["required"] = insufficient.Required.String()
		details["available"] = insufficient.Available.String()
		details["shortfall"] = insufficient.Shortfall().String()
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// ToBidResponse converts a bid model to its response DTO
func ToBidResponse(bid model.Bid) BidResponse {
	resp := BidResponse{
		BidID:        bid.BidID,
		AuctionID:    bid.AuctionID,
		BidderID:     bid.BidderID,
		Price:        bid.Price.String(),
		BidType:      string(bid.BidType),
		BidStatus:    string(bid.BidStatus),
		IsWinningBid: bid.IsWinningBid,
		CreatedAt:    bid.CreatedAt.UTC().Format(time.RFC3339),
	}
	if bid.BidType == model.BidProxy {
		resp.MaxBid = bid.MaxBid.String()
	}
	return resp
}

// ToTransactionResponse converts a transaction model to its response DTO
func ToTransactionResponse(tx model.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: tx.TransactionID,
		AccountID:     tx.AccountID,
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Status:        string(tx.Status),
		CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
