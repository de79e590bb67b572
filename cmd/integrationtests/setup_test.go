package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"antique-auction/internal/balance"
	"antique-auction/internal/bidding"
	"antique-auction/internal/closing"
	model "antique-auction/internal/models"
	"antique-auction/internal/notification"
	"antique-auction/internal/repository"
	"antique-auction/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const adminAccountID = "platform-admin"

// TestStack bundles the wired application with direct access to its
// internals so scenarios can assert on ledger state behind the HTTP surface.
type TestStack struct {
	Router   *gin.Engine
	Repo     *repository.MemoryRepo
	Balances *balance.Service
	Closer   *closing.Service
	Bids     *bidding.Service
}

// SetupTestStack initializes the full service stack over an in-memory store.
func SetupTestStack() *TestStack {
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	notifier := notification.NewLogNotifier()
	balances := balance.NewService(repo, notifier)
	closer := closing.NewService(repo, balances, notifier, adminAccountID)
	bids := bidding.NewService(repo, balances, closer, notifier)

	router := server.SetupRouter(bids, closer, balances, repo)
	return &TestStack{Router: router, Repo: repo, Balances: balances, Closer: closer, Bids: bids}
}

// SeedAccount registers an account with starting funds.
func (s *TestStack) SeedAccount(t *testing.T, accountID string, funds int64) {
	t.Helper()
	if err := s.Repo.CreateAccount(model.Account{
		AccountID: accountID,
		Balance:   decimal.NewFromInt(funds),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to seed account %s: %v", accountID, err)
	}
}

// SeedAuction registers an auction listing.
func (s *TestStack) SeedAuction(t *testing.T, auction model.Auction) {
	t.Helper()
	if auction.CreatedAt.IsZero() {
		auction.CreatedAt = time.Now().UTC()
	}
	if err := s.Repo.AddAuction(auction); err != nil {
		t.Fatalf("failed to seed auction %s: %v", auction.AuctionID, err)
	}
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request and parses the JSON body
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// dataOf extracts the "data" object from a wrapped JSON response
func dataOf(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", resp)
	}
	return data
}
