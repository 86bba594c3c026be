package ledger

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

func TestStore_InsertMarketRejectsDuplicateID(t *testing.T) {
	s := NewStore()
	m := domain.Market{ID: "1", Question: "Q?", Outcomes: []domain.Outcome{{Name: "Yes"}, {Name: "No"}}}

	assert.True(t, s.InsertMarket(m))
	assert.False(t, s.InsertMarket(domain.Market{ID: "1", Question: "other"}))

	got, ok := s.Market("1")
	require.True(t, ok)
	assert.Equal(t, "Q?", got.Question)
	assert.Equal(t, 1, s.MarketCount())
}

func TestStore_CommitTradeIndexes(t *testing.T) {
	s := NewStore()
	s.InsertMarket(domain.Market{ID: "m", Outcomes: []domain.Outcome{{Name: "Yes"}, {Name: "No"}}})

	w := "0xabc"
	pos := domain.Position{Wallet: w, MarketID: "m", Shares: map[int]decimal.Decimal{1: decimal.NewFromInt(3)}}
	_, err := s.CommitTrade(domain.Market{ID: "m", Question: "updated"}, domain.Trade{ID: "t1", MarketID: "m", OutcomeIndex: 1, WalletAddress: &w}, &pos, nil)
	require.NoError(t, err)
	_, err = s.CommitTrade(domain.Market{ID: "m", Question: "updated again"}, domain.Trade{ID: "t2", MarketID: "m"}, nil, nil)
	require.NoError(t, err)

	m, _ := s.Market("m")
	assert.Equal(t, "updated again", m.Question)
	assert.Len(t, s.TradesByMarket("m"), 2)
	assert.Len(t, s.TradesByWallet(w), 1)
	assert.Len(t, s.Trades(), 2)

	got, ok := s.Position(w, "m")
	require.True(t, ok)
	assert.True(t, got.SharesOf(1).Equal(decimal.NewFromInt(3)))
	assert.Len(t, s.PositionsByWallet(w), 1)

	pos.Shares[1] = decimal.NewFromInt(99)
	got, _ = s.Position(w, "m")
	assert.True(t, got.SharesOf(1).Equal(decimal.NewFromInt(3)))
}

func TestStore_CommitTradeStampFailureWritesNothing(t *testing.T) {
	s := NewStore()
	s.InsertMarket(domain.Market{ID: "m", Question: "before"})

	_, err := s.CommitTrade(domain.Market{ID: "m", Question: "after"}, domain.Trade{MarketID: "m"}, nil,
		func(*domain.Trade) error { return errors.New("no ids left") })
	require.Error(t, err)

	m, _ := s.Market("m")
	assert.Equal(t, "before", m.Question)
	assert.Empty(t, s.Trades())
}

func TestStore_CommitTradeStampsInLogOrder(t *testing.T) {
	s := NewStore()
	s.InsertMarket(domain.Market{ID: "a"})
	s.InsertMarket(domain.Market{ID: "b"})

	var n int
	stamp := func(t *domain.Trade) error {
		n++
		t.ID = strconv.Itoa(n)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "a"
			if i%2 == 1 {
				id = "b"
			}
			_, err := s.CommitTrade(domain.Market{ID: id}, domain.Trade{MarketID: id}, nil, stamp)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i, tr := range s.Trades() {
		assert.Equal(t, strconv.Itoa(i+1), tr.ID)
	}
}

func TestStore_SnapshotIsConsistent(t *testing.T) {
	s := NewStore()
	s.InsertMarket(domain.Market{ID: "m", Version: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := int64(2); v < 500; v++ {
			_, _ = s.CommitTrade(domain.Market{ID: "m", Version: v}, domain.Trade{MarketID: "m"}, nil, nil)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		markets, trades := s.Snapshot()
		require.Len(t, markets, 1)
		assert.Equal(t, int64(len(trades)+1), markets[0].Version, "market state matches the trade log")
	}
}
