package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"antique-auction/internal/balance"
	"antique-auction/internal/bidding"
	"antique-auction/internal/closing"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/internal/repository"
	"antique-auction/internal/server"
	"antique-auction/internal/sweeper"
	"antique-auction/utils"

	"github.com/shopspring/decimal"
)

// adminAccountID receives platform commissions
const adminAccountID = "platform-admin"

func main() {
	repo := repository.NewMemoryRepo()

	notifier := setupNotifier()

	balanceSvc := balance.NewService(repo, notifier)
	closingSvc := closing.NewService(repo, balanceSvc, notifier, adminAccountID)
	biddingSvc := bidding.NewService(repo, balanceSvc, closingSvc, notifier)

	seedData(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.New(closingSvc, getSweepInterval()).Run(ctx)

	router := server.SetupRouter(biddingSvc, closingSvc, balanceSvc, repo)

	port := getPort()
	fmt.Printf("Starting auction server on %s...\n", port)
	if err := router.Run(port); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// setupNotifier returns the AMQP sink when a broker is configured, falling
// back to the log sink otherwise
func setupNotifier() notification.Notifier {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		return notification.NewLogNotifier()
	}
	notifier, err := notification.NewAMQPNotifier(url)
	if err != nil {
		utils.Warn("main: AMQP broker unavailable, falling back to log notifications", map[string]any{"error": err.Error()})
		return notification.NewLogNotifier()
	}
	return notifier
}

// seedData adds the platform account plus sample accounts and auctions
func seedData(repo *repository.MemoryRepo) {
	now := time.Now().UTC()

	accounts := []model.Account{
		{AccountID: adminAccountID, Balance: decimal.Zero, CreatedAt: now},
		{AccountID: "seller1", Balance: decimal.Zero, CreatedAt: now},
		{AccountID: "buyer1", Balance: decimal.NewFromInt(1000), CreatedAt: now},
		{AccountID: "buyer2", Balance: decimal.NewFromInt(1000), CreatedAt: now},
	}
	for _, account := range accounts {
		if err := repo.CreateAccount(account); err != nil {
			utils.Fatal("main: failed to seed account", map[string]any{"account_id": account.AccountID, "error": err.Error()})
		}
	}

	auctions := []model.Auction{
		{
			AuctionID:            "auction1",
			SellerID:             "seller1",
			Title:                "Victorian mahogany writing desk",
			Description:          "Circa 1880, restored",
			AuctionType:          model.AuctionTimed,
			StartingBid:          decimal.NewFromInt(100),
			BidIncrement:         decimal.NewFromInt(10),
			InstantPurchasePrice: decimal.NewFromInt(500),
			CommissionPercent:    decimal.NewFromInt(10),
			AuctionStartDate:     now,
			AuctionEndDate:       now.Add(72 * time.Hour),
			CreatedAt:            now,
		},
		{
			AuctionID:         "auction2",
			SellerID:          "seller1",
			Title:             "Meiji-era bronze vase",
			Description:      "Signed, minor patina",
			AuctionType:       model.AuctionLive,
			StartingBid:       decimal.NewFromInt(50),
			ReservePrice:      decimal.NewFromInt(200),
			BidIncrement:      decimal.NewFromInt(5),
			CommissionPercent: decimal.NewFromInt(10),
			CreatedAt:         now,
		},
	}
	for _, auction := range auctions {
		if err := repo.AddAuction(auction); err != nil {
			utils.Fatal("main: failed to seed auction", map[string]any{"auction_id": auction.AuctionID, "error": err.Error()})
		}
	}
}

// getPort returns the server port from env or defaults to ":8080"
func getPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return fmt.Sprintf(":%s", p)
	}
	return ":8080"
}

// getSweepInterval returns the expiry sweep interval from env or a 1 minute default
func getSweepInterval() time.Duration {
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
		utils.Warn("main: invalid SWEEP_INTERVAL, using default", map[string]any{"value": raw})
	}
	return time.Minute
}
