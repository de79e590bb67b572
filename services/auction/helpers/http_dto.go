package helpers

// Request/Response DTOs
type PlaceBidRequest struct {
	BidderID string  `json:"bidder_id" binding:"required"`
	Price    float64 `json:"price" binding:"required,gt=0"`
	BidType  string  `json:"bid_type" binding:"omitempty,oneof=Manual Proxy"`
	MaxBid   float64 `json:"max_bid" binding:"omitempty,gt=0"`
}

type EndAuctionRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

type DepositRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Method string  `json:"method" binding:"required"`
}

type BidResponse struct {
	BidID        string `json:"bid_id"`
	AuctionID    string `json:"auction_id"`
	BidderID     string `json:"bidder_id"`
	Price        string `json:"price"`
	BidType      string `json:"bid_type"`
	MaxBid       string `json:"max_bid,omitempty"`
	BidStatus    string `json:"bid_status"`
	IsWinningBid bool   `json:"is_winning_bid"`
	CreatedAt    string `json:"created_at"`
}

type PlaceBidResponse struct {
	Bid             BidResponse `json:"bid"`
	AuctionEnded    bool        `json:"auction_ended"`
	InstantPurchase bool        `json:"instant_purchase"`
	FinalPrice      string      `json:"final_price,omitempty"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Total     string `json:"total"`
	Held      string `json:"held"`
	Available string `json:"available"`
}

type TransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	BalanceAfter  string `json:"balance_after"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}
