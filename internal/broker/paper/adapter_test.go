package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nh-chitose/r2-re/internal/domain"
)

func newOrder(side domain.OrderSide, size, price float64) *domain.Order {
	return domain.NewOrder(domain.OrderInit{
		Symbol: "BTC/JPY",
		Broker: "paper1",
		Side:   side,
		Size:   size,
		Price:  price,
		Type:   domain.OrderTypeLimit,
	})
}

func TestFetchQuotesShape(t *testing.T) {
	a := New("paper1", "BTC", 5_000_000, 0)

	quotes, err := a.FetchQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 6)

	var asks, bids int
	var bestAsk, bestBid float64
	for _, q := range quotes {
		assert.Equal(t, domain.Broker("paper1"), q.Broker)
		assert.Positive(t, q.Price)
		assert.GreaterOrEqual(t, q.Volume, 0.5)
		switch q.Side {
		case domain.Ask:
			if asks == 0 || q.Price < bestAsk {
				bestAsk = q.Price
			}
			asks++
		case domain.Bid:
			if bids == 0 || q.Price > bestBid {
				bestBid = q.Price
			}
			bids++
		}
	}
	assert.Equal(t, 3, asks)
	assert.Equal(t, 3, bids)
	// A single venue's own book is never crossed.
	assert.Greater(t, bestAsk, bestBid)
}

func TestBasisShiftsBook(t *testing.T) {
	low := New("paper1", "BTC", 5_000_000, -100_000)
	high := New("paper2", "BTC", 5_000_000, 100_000)

	lowQuotes, err := low.FetchQuotes(context.Background())
	require.NoError(t, err)
	highQuotes, err := high.FetchQuotes(context.Background())
	require.NoError(t, err)

	var lowMax, highMin float64
	for _, q := range lowQuotes {
		if q.Price > lowMax {
			lowMax = q.Price
		}
	}
	highMin = highQuotes[0].Price
	for _, q := range highQuotes {
		if q.Price < highMin {
			highMin = q.Price
		}
	}
	assert.Less(t, lowMax, highMin)
}

func TestSendRefreshFillsAtLimit(t *testing.T) {
	a := New("paper1", "BTC", 5_000_000, 0)
	ctx := context.Background()

	order := newOrder(domain.OrderSideBuy, 0.01, 5_000_000)
	require.NoError(t, a.Send(ctx, order))
	assert.NotEmpty(t, order.BrokerOrderID)
	assert.False(t, order.Filled())

	require.NoError(t, a.Refresh(ctx, order))
	assert.True(t, order.Filled())
	assert.Equal(t, 0.01, order.FilledSize)
	require.Len(t, order.Executions, 1)
	assert.Equal(t, 5_000_000.0, order.Executions[0].Price)

	positions, err := a.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.01, positions["BTC"])
}

func TestSellReducesPosition(t *testing.T) {
	a := New("paper1", "BTC", 5_000_000, 0)
	ctx := context.Background()

	sell := newOrder(domain.OrderSideSell, 0.02, 5_000_000)
	require.NoError(t, a.Send(ctx, sell))
	require.NoError(t, a.Refresh(ctx, sell))

	positions, err := a.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, -0.02, positions["BTC"])
}

func TestCancelRemovesOrder(t *testing.T) {
	a := New("paper1", "BTC", 5_000_000, 0)
	ctx := context.Background()

	order := newOrder(domain.OrderSideBuy, 0.01, 5_000_000)
	require.NoError(t, a.Send(ctx, order))
	require.NoError(t, a.Cancel(ctx, order))
	assert.Equal(t, domain.OrderStatusCanceled, order.Status)

	// The order is gone from the venue afterwards.
	assert.Error(t, a.Refresh(ctx, order))
	assert.Error(t, a.Cancel(ctx, order))
}

func TestUnknownOrderOperations(t *testing.T) {
	a := New("paper1", "BTC", 5_000_000, 0)
	order := newOrder(domain.OrderSideBuy, 0.01, 5_000_000)
	order.BrokerOrderID = "never-sent"

	assert.Error(t, a.Refresh(context.Background(), order))
	assert.Error(t, a.Cancel(context.Background(), order))
}
