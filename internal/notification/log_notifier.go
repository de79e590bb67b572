package notification

import (
	"antique-auction/utils"
)

// LogNotifier writes events to the structured log. It is the default sink
// when no message broker is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notification sink
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Publish logs the event
func (n *LogNotifier) Publish(event Event) {
	utils.Info("notification: "+event.Kind, map[string]any{
		"auction_id": event.AuctionID,
		"bid_id":     event.BidID,
		"account_id": event.AccountID,
		"amount":     event.Amount.String(),
		"reason":     event.Reason,
		"message":    event.Message,
	})
}
