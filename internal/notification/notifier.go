package notification

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event kinds fanned out to the real-time/email collaborator
const (
	EventBidAccepted    = "bid.accepted"
	EventOutbid         = "bid.outbid"
	EventAuctionEnded   = "auction.ended"
	EventBalanceUpdated = "balance.updated"
)

// Event is the payload published after an authoritative state change commits
type Event struct {
	Kind      string          `json:"kind"`
	AuctionID string          `json:"auction_id,omitempty"`
	BidID     string          `json:"bid_id,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	At        time.Time       `json:"at"`
}

// Notifier delivers events to the outside world. Delivery is best-effort:
// implementations log failures and never return them to the core engines.
type Notifier interface {
	Publish(event Event)
}
