package repository

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"antique-auction/internal/auctionerrors"
	model "antique-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Helper to create a new Account
func newAccount(accountID string, balance int64) model.Account {
	return model.Account{
		AccountID: accountID,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: time.Now().UTC(),
	}
}

// Helper to create a new Auction
func newAuction(auctionID, sellerID string, startingBid int64) model.Auction {
	return model.Auction{
		AuctionID:    auctionID,
		SellerID:     sellerID,
		Title:        fmt.Sprintf("%s title", auctionID),
		AuctionType:  model.AuctionLive,
		StartingBid:  decimal.NewFromInt(startingBid),
		BidIncrement: decimal.NewFromInt(10),
		CreatedAt:    time.Now().UTC(),
	}
}

// Helper to create a new Bid
func newBid(bidID, auctionID, bidderID string, price int64, createdAt time.Time) model.Bid {
	return model.Bid{
		BidID:     bidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Price:     decimal.NewFromInt(price),
		BidType:   model.BidManual,
		BidStatus: model.BidActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Test ApplyCredit and ApplyDebit
func TestMemoryRepo_ApplyCreditAndDebit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		seedBalance int64
		tx          model.Transaction
		wantError   error
		wantAfter   string
	}{
		{
			name:        "credit_deposit",
			seedBalance: 100,
			tx:          model.Transaction{TransactionID: "t1", AccountID: "acct", Type: model.TransactionDeposit, Amount: decimal.NewFromInt(50)},
			wantAfter:   "150",
		},
		{
			name:        "debit_hold",
			seedBalance: 100,
			tx:          model.Transaction{TransactionID: "t2", AccountID: "acct", Type: model.TransactionBidHold, Amount: decimal.NewFromInt(40), IsHeld: true},
			wantAfter:   "60",
		},
		{
			name:        "debit_insufficient",
			seedBalance: 30,
			tx:          model.Transaction{TransactionID: "t3", AccountID: "acct", Type: model.TransactionBidHold, Amount: decimal.NewFromInt(40), IsHeld: true},
			wantError:   auctionerrors.ErrInsufficientBalance,
		},
		{
			name:        "debit_exact_balance",
			seedBalance: 40,
			tx:          model.Transaction{TransactionID: "t4", AccountID: "acct", Type: model.TransactionBidHold, Amount: decimal.NewFromInt(40), IsHeld: true},
			wantAfter:   "0",
		},
		{
			name:        "credit_unknown_account",
			seedBalance: 100,
			tx:          model.Transaction{TransactionID: "t5", AccountID: "ghost", Type: model.TransactionDeposit, Amount: decimal.NewFromInt(50)},
			wantError:   auctionerrors.ErrAccountNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := NewMemoryRepo()
			require.NoError(t, repo.CreateAccount(newAccount("acct", tc.seedBalance)))

			var (
				got model.Transaction
				err error
			)
			if tc.tx.Type.IsCredit() {
				got, err = repo.ApplyCredit(tc.tx)
			} else {
				got, err = repo.ApplyDebit(tc.tx)
			}

			if tc.wantError != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tc.wantError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, model.TransactionCompleted, got.Status)
			require.Equal(t, tc.wantAfter, got.BalanceAfter.String())

			account, err := repo.GetAccount(tc.tx.AccountID)
			require.NoError(t, err)
			require.True(t, account.Balance.Equal(got.BalanceAfter))

			stored, err := repo.GetTransaction(tc.tx.TransactionID)
			require.NoError(t, err)
			require.True(t, stored.Amount.Equal(tc.tx.Amount))
		})
	}

	t.Run("type_mismatch_rejected", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAccount(newAccount("acct", 100)))

		_, err := repo.ApplyCredit(model.Transaction{TransactionID: "bad1", AccountID: "acct", Type: model.TransactionBidHold, Amount: decimal.NewFromInt(10)})
		require.Error(t, err)
		_, err = repo.ApplyDebit(model.Transaction{TransactionID: "bad2", AccountID: "acct", Type: model.TransactionDeposit, Amount: decimal.NewFromInt(10)})
		require.Error(t, err)
		// BID_DEDUCTION moves no money and fits neither path.
		_, err = repo.ApplyDebit(model.Transaction{TransactionID: "bad3", AccountID: "acct", Type: model.TransactionBidDeduction, Amount: decimal.NewFromInt(10)})
		require.Error(t, err)
	})

	t.Run("insufficient_error_carries_amounts", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAccount(newAccount("acct", 30)))

		_, err := repo.ApplyDebit(model.Transaction{
			TransactionID: "t-short", AccountID: "acct",
			Type: model.TransactionBidHold, Amount: decimal.NewFromInt(100), IsHeld: true,
		})
		var insufficient *auctionerrors.InsufficientBalanceError
		require.ErrorAs(t, err, &insufficient)
		require.Equal(t, "100", insufficient.Required.String())
		require.Equal(t, "30", insufficient.Available.String())
		require.Equal(t, "70", insufficient.Shortfall().String())
	})
}

// Test ReleaseHold and FinalizeHold
func TestMemoryRepo_HoldLifecycle(t *testing.T) {
	t.Parallel()

	seedHold := func(t *testing.T, repo *MemoryRepo, amount int64) model.Transaction {
		t.Helper()
		require.NoError(t, repo.CreateAccount(newAccount("bidder", 500)))
		hold, err := repo.ApplyDebit(model.Transaction{
			TransactionID: "hold1", AccountID: "bidder",
			Type: model.TransactionBidHold, Amount: decimal.NewFromInt(amount),
			AuctionID: "auction1", BidID: "bid1", IsHeld: true,
		})
		require.NoError(t, err)
		return hold
	}

	t.Run("release_credits_back", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		hold := seedHold(t, repo, 200)

		release, err := repo.ReleaseHold(hold.TransactionID, model.Transaction{
			TransactionID: "rel1", Type: model.TransactionBidRelease,
		})
		require.NoError(t, err)
		require.Equal(t, "bidder", release.AccountID)
		require.Equal(t, "200", release.Amount.String())
		require.Equal(t, "500", release.BalanceAfter.String())
		require.Equal(t, hold.TransactionID, release.SourceTransactionID)
		require.Equal(t, "auction1", release.AuctionID)
		require.Equal(t, "bid1", release.BidID)

		// The hold is closed; releasing again is invalid.
		_, err = repo.ReleaseHold(hold.TransactionID, model.Transaction{TransactionID: "rel2", Type: model.TransactionBidRelease})
		require.ErrorIs(t, err, auctionerrors.ErrInvalidHold)
	})

	t.Run("finalize_is_zero_delta", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		hold := seedHold(t, repo, 200)

		deduction, err := repo.FinalizeHold(hold.TransactionID, model.Transaction{
			TransactionID: "ded1", Type: model.TransactionBidDeduction,
		})
		require.NoError(t, err)
		require.True(t, deduction.BalanceBefore.Equal(deduction.BalanceAfter))
		require.True(t, deduction.BalanceAfter.Equal(hold.BalanceAfter))
		require.Equal(t, hold.TransactionID, deduction.SourceTransactionID)

		// Account balance unchanged by the conversion.
		account, err := repo.GetAccount("bidder")
		require.NoError(t, err)
		require.Equal(t, "300", account.Balance.String())

		// Converted holds can be neither released nor finalized again.
		_, err = repo.ReleaseHold(hold.TransactionID, model.Transaction{TransactionID: "rel1", Type: model.TransactionBidRelease})
		require.ErrorIs(t, err, auctionerrors.ErrInvalidHold)
		_, err = repo.FinalizeHold(hold.TransactionID, model.Transaction{TransactionID: "ded2", Type: model.TransactionBidDeduction})
		require.ErrorIs(t, err, auctionerrors.ErrInvalidHold)
	})

	t.Run("unknown_hold", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		_, err := repo.ReleaseHold("ghost", model.Transaction{TransactionID: "rel1", Type: model.TransactionBidRelease})
		require.ErrorIs(t, err, auctionerrors.ErrTransactionNotFound)
	})

	t.Run("open_holds_filters_released", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		hold := seedHold(t, repo, 100)
		_, err := repo.ApplyDebit(model.Transaction{
			TransactionID: "hold2", AccountID: "bidder",
			Type: model.TransactionBidHold, Amount: decimal.NewFromInt(50),
			AuctionID: "auction1", BidID: "bid2", IsHeld: true,
		})
		require.NoError(t, err)

		_, err = repo.ReleaseHold(hold.TransactionID, model.Transaction{TransactionID: "rel1", Type: model.TransactionBidRelease})
		require.NoError(t, err)

		open, err := repo.OpenHoldsForAccount("bidder")
		require.NoError(t, err)
		require.Len(t, open, 1)
		require.Equal(t, "hold2", open[0].TransactionID)

		byAuction, err := repo.OpenHoldsForAuction("auction1")
		require.NoError(t, err)
		require.Len(t, byAuction, 1)
	})

	t.Run("stale_holds_by_retention", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAccount(newAccount("bidder", 500)))

		past := time.Now().UTC().Add(-time.Hour)
		future := time.Now().UTC().Add(time.Hour)
		for i, until := range []*time.Time{&past, &future} {
			_, err := repo.ApplyDebit(model.Transaction{
				TransactionID: fmt.Sprintf("hold%d", i), AccountID: "bidder",
				Type: model.TransactionBidHold, Amount: decimal.NewFromInt(10),
				IsHeld: true, HeldUntil: until,
			})
			require.NoError(t, err)
		}

		stale, err := repo.StaleHolds(time.Now().UTC())
		require.NoError(t, err)
		require.Len(t, stale, 1)
		require.Equal(t, "hold0", stale[0].TransactionID)
	})
}

// Test ClaimAuctionClose
func TestMemoryRepo_ClaimAuctionClose(t *testing.T) {
	t.Parallel()

	t.Run("first_claim_wins_second_fails", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		closed, err := repo.ClaimAuctionClose("auction1", "buyer1", decimal.NewFromInt(500), model.EndReasonInstantPurchase)
		require.NoError(t, err)
		require.True(t, closed.IsSoldout)
		require.Equal(t, "buyer1", closed.SoldTo)
		require.Equal(t, "500", closed.FinalPrice.String())
		require.Equal(t, model.EndReasonInstantPurchase, closed.EndReason)

		_, err = repo.ClaimAuctionClose("auction1", "buyer2", decimal.NewFromInt(600), model.EndReasonInstantPurchase)
		require.ErrorIs(t, err, auctionerrors.ErrAlreadyEnded)
	})

	t.Run("unknown_auction", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		_, err := repo.ClaimAuctionClose("ghost", "buyer1", decimal.NewFromInt(1), model.EndReasonAdminAction)
		require.ErrorIs(t, err, auctionerrors.ErrAuctionNotFound)
	})

	t.Run("update_refuses_soldout_flip", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		auction, err := repo.GetAuction("auction1")
		require.NoError(t, err)
		auction.IsSoldout = true
		require.Error(t, repo.UpdateAuction(auction))
	})

	t.Run("reopen_reverts_claim", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))
		_, err := repo.ClaimAuctionClose("auction1", "buyer1", decimal.NewFromInt(500), model.EndReasonInstantPurchase)
		require.NoError(t, err)

		require.NoError(t, repo.ReopenAuction("auction1"))
		auction, err := repo.GetAuction("auction1")
		require.NoError(t, err)
		require.False(t, auction.IsSoldout)
		require.Empty(t, auction.SoldTo)

		// Open again, so a fresh claim succeeds.
		_, err = repo.ClaimAuctionClose("auction1", "buyer2", decimal.NewFromInt(600), model.EndReasonInstantPurchase)
		require.NoError(t, err)
	})

	// concurrency test: the conditional close must grant exactly one winner
	t.Run("concurrent_claims_exactly_one_succeeds", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		var wg sync.WaitGroup
		concurrentCount := 50
		successes := make(chan string, concurrentCount)

		for i := 0; i < concurrentCount; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				buyer := fmt.Sprintf("buyer-%d", i)
				if _, err := repo.ClaimAuctionClose("auction1", buyer, decimal.NewFromInt(500), model.EndReasonInstantPurchase); err == nil {
					successes <- buyer
				}
			}()
		}

		wg.Wait()
		close(successes)

		var winners []string
		for w := range successes {
			winners = append(winners, w)
		}
		require.Len(t, winners, 1)

		auction, err := repo.GetAuction("auction1")
		require.NoError(t, err)
		require.True(t, auction.IsSoldout)
		require.Equal(t, winners[0], auction.SoldTo)
	})
}

// Test UpsertBid, GetBid, HighestBid
func TestMemoryRepo_Bids(t *testing.T) {
	t.Parallel()

	t.Run("upsert_keeps_identity_on_rebid", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		created := time.Now().UTC().Add(-time.Minute)
		first, err := repo.UpsertBid(newBid("bid1", "auction1", "buyer1", 100, created))
		require.NoError(t, err)

		// Re-bid under a fresh ID: the original BidID and CreatedAt stick.
		second, err := repo.UpsertBid(newBid("bid-new", "auction1", "buyer1", 150, time.Now().UTC()))
		require.NoError(t, err)
		require.Equal(t, first.BidID, second.BidID)
		require.True(t, second.CreatedAt.Equal(created))
		require.Equal(t, "150", second.Price.String())

		bids, err := repo.BidsForAuction("auction1")
		require.NoError(t, err)
		require.Len(t, bids, 1)
	})

	t.Run("upsert_unknown_auction", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		_, err := repo.UpsertBid(newBid("bid1", "ghost", "buyer1", 100, time.Now().UTC()))
		require.ErrorIs(t, err, auctionerrors.ErrAuctionNotFound)
	})

	t.Run("highest_bid_ordering", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		base := time.Now().UTC()
		_, err := repo.UpsertBid(newBid("bid-b", "auction1", "buyer2", 200, base.Add(time.Second)))
		require.NoError(t, err)
		_, err = repo.UpsertBid(newBid("bid-a", "auction1", "buyer1", 200, base))
		require.NoError(t, err)
		_, err = repo.UpsertBid(newBid("bid-c", "auction1", "buyer3", 150, base))
		require.NoError(t, err)

		// Equal prices break ties by earlier creation.
		top, err := repo.HighestBid("auction1")
		require.NoError(t, err)
		require.Equal(t, "bid-a", top.BidID)

		bids, err := repo.BidsForAuction("auction1")
		require.NoError(t, err)
		require.Equal(t, []string{"bid-a", "bid-b", "bid-c"}, []string{bids[0].BidID, bids[1].BidID, bids[2].BidID})
	})

	t.Run("highest_bid_empty_auction", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		_, err := repo.HighestBid("auction1")
		require.ErrorIs(t, err, auctionerrors.ErrNoBids)
	})

	t.Run("set_bid_lost_records_reason", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))
		_, err := repo.UpsertBid(newBid("bid1", "auction1", "buyer1", 100, time.Now().UTC()))
		require.NoError(t, err)

		require.NoError(t, repo.SetBidLost("bid1", model.LossReasonConcurrentInstantPurchase))
		bid, err := repo.GetBidByID("bid1")
		require.NoError(t, err)
		require.Equal(t, model.BidLost, bid.BidStatus)
		require.False(t, bid.IsWinningBid)
		require.Equal(t, model.LossReasonConcurrentInstantPurchase, bid.LossReason)
	})

	// concurrency test: distinct bidders recording in parallel
	t.Run("concurrent_upserts", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.AddAuction(newAuction("auction1", "seller", 100)))

		var wg sync.WaitGroup
		concurrentCount := 50

		for i := 0; i < concurrentCount; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				b := newBid(fmt.Sprintf("bid-%d", i), "auction1", fmt.Sprintf("buyer-%d", i), int64(100+i), time.Now().UTC())
				_, err := repo.UpsertBid(b)
				require.NoError(t, err)
			}()
		}

		wg.Wait()

		bids, err := repo.BidsForAuction("auction1")
		require.NoError(t, err)
		require.Len(t, bids, concurrentCount)
	})
}

// Test ExpiredAuctions and OpenAuctions
func TestMemoryRepo_AuctionQueries(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	now := time.Now().UTC()

	expired := newAuction("auction-expired", "seller", 100)
	expired.AuctionType = model.AuctionTimed
	expired.AuctionEndDate = now.Add(-time.Hour)
	require.NoError(t, repo.AddAuction(expired))

	running := newAuction("auction-running", "seller", 100)
	running.AuctionType = model.AuctionTimed
	running.AuctionEndDate = now.Add(time.Hour)
	require.NoError(t, repo.AddAuction(running))

	live := newAuction("auction-live", "seller", 100)
	require.NoError(t, repo.AddAuction(live))

	gone, err := repo.ExpiredAuctions(now)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	require.Equal(t, "auction-expired", gone[0].AuctionID)

	open, err := repo.OpenAuctions()
	require.NoError(t, err)
	require.Len(t, open, 3)

	// A closed auction drops out of both queries.
	_, err = repo.ClaimAuctionClose("auction-expired", "", decimal.Zero, model.EndReasonNoBids)
	require.NoError(t, err)

	gone, err = repo.ExpiredAuctions(now)
	require.NoError(t, err)
	require.Empty(t, gone)

	open, err = repo.OpenAuctions()
	require.NoError(t, err)
	require.Len(t, open, 2)
}

// Test TransactionsForAccount ordering
func TestMemoryRepo_TransactionsForAccount(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAccount(newAccount("acct", 100)))
	require.NoError(t, repo.CreateAccount(newAccount("other", 100)))

	for i := 0; i < 3; i++ {
		_, err := repo.ApplyCredit(model.Transaction{
			TransactionID: fmt.Sprintf("tx-%d", i), AccountID: "acct",
			Type: model.TransactionDeposit, Amount: decimal.NewFromInt(int64(i + 1)),
		})
		require.NoError(t, err)
	}
	_, err := repo.ApplyCredit(model.Transaction{
		TransactionID: "tx-other", AccountID: "other",
		Type: model.TransactionDeposit, Amount: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	history, err := repo.TransactionsForAccount("acct")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, tx := range history {
		require.Equal(t, fmt.Sprintf("tx-%d", i), tx.TransactionID)
	}
}
