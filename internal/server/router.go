package server

import (
	handler "antique-auction/services/auction/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(bids handler.BiddingServiceInterface, closer handler.ClosingServiceInterface, balances handler.BalanceServiceInterface, reader handler.AuctionReader) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(bids, closer, balances, reader)

	auctions := router.Group("/auctions")
	{
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", auctionHandler.GetBidsHandler)
		auctions.POST("/:auction_id/bids", auctionHandler.PlaceBidHandler)
		auctions.POST("/:auction_id/end", auctionHandler.EndAuctionHandler)
	}

	accounts := router.Group("/accounts")
	{
		accounts.GET("/:account_id/balance", auctionHandler.GetBalanceHandler)
		accounts.POST("/:account_id/deposit", auctionHandler.DepositHandler)
	}

	admin := router.Group("/admin")
	{
		admin.POST("/sweep", auctionHandler.SweepHandler)
	}

	return router
}
