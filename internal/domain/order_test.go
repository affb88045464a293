package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestOrder(side OrderSide, size, price float64) *Order {
	return NewOrder(OrderInit{
		Symbol:         "BTC/JPY",
		Broker:         "alpha",
		Side:           side,
		Size:           size,
		Price:          price,
		Type:           OrderTypeLimit,
		CashMarginType: CashMarginCash,
	})
}

func TestNewOrderDefaults(t *testing.T) {
	o := newTestOrder(OrderSideBuy, 0.5, 100)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, OrderStatusOpen, o.Status)
	assert.Equal(t, TifPO, o.TimeInForce)
	assert.False(t, o.CreationTime.IsZero())
	assert.Zero(t, o.FilledSize)
}

func TestPendingSize(t *testing.T) {
	o := newTestOrder(OrderSideBuy, 1.0, 100)
	o.FilledSize = 0.3

	assert.Equal(t, 0.7, o.PendingSize())
}

func TestAverageFilledPrice(t *testing.T) {
	o := newTestOrder(OrderSideBuy, 1.0, 100)

	assert.Zero(t, o.AverageFilledPrice())

	o.Executions = []Execution{
		{Size: 0.5, Price: 100},
		{Size: 0.5, Price: 102},
	}
	assert.Equal(t, 101.0, o.AverageFilledPrice())
}

func TestFilledNotional(t *testing.T) {
	o := newTestOrder(OrderSideSell, 1.0, 100)
	o.FilledSize = 0.5
	o.Executions = []Execution{{Size: 0.5, Price: 100}}

	assert.Equal(t, 50.0, o.FilledNotional())
}

func TestUpdateStatusIgnoresRegressions(t *testing.T) {
	o := newTestOrder(OrderSideBuy, 1.0, 100)

	o.UpdateStatus(OrderStatusPartiallyFilled)
	assert.Equal(t, OrderStatusPartiallyFilled, o.Status)

	o.UpdateStatus(OrderStatusExecuted)
	assert.Equal(t, OrderStatusExecuted, o.Status)

	// A stale broker response must not move the order backwards.
	o.UpdateStatus(OrderStatusOpen)
	assert.Equal(t, OrderStatusExecuted, o.Status)
	o.UpdateStatus(OrderStatusPartiallyFilled)
	assert.Equal(t, OrderStatusExecuted, o.Status)
}

func TestOrderSideReversed(t *testing.T) {
	assert.Equal(t, OrderSideSell, OrderSideBuy.Reversed())
	assert.Equal(t, OrderSideBuy, OrderSideSell.Reversed())
}

func TestOrderSideOpposite(t *testing.T) {
	assert.Equal(t, Bid, OrderSideBuy.Opposite())
	assert.Equal(t, Ask, OrderSideSell.Opposite())
}

func TestOrderPairValidate(t *testing.T) {
	buy := newTestOrder(OrderSideBuy, 1.0, 100)
	sell := newTestOrder(OrderSideSell, 1.0, 101)
	assert.NoError(t, OrderPair{buy, sell}.Validate())

	uneven := newTestOrder(OrderSideSell, 0.5, 101)
	assert.Error(t, OrderPair{buy, uneven}.Validate())
	assert.Error(t, OrderPair{buy, nil}.Validate())
}

func TestReviveOrderPair(t *testing.T) {
	buy := newTestOrder(OrderSideBuy, 1.0, 100)
	sell := newTestOrder(OrderSideSell, 1.0, 101)
	buy.SentTime = time.Now().UTC()

	pair := ReviveOrderPair([2]Order{*buy, *sell})
	assert.Equal(t, buy.ID, pair[0].ID)
	assert.Equal(t, sell.ID, pair[1].ID)
	assert.Equal(t, 1.0, pair[0].Size)
}

func TestCalcProfit(t *testing.T) {
	buy := newTestOrder(OrderSideBuy, 1.0, 100)
	buy.FilledSize = 1.0
	buy.Executions = []Execution{{Size: 1.0, Price: 100}}

	sell := newTestOrder(OrderSideSell, 1.0, 101)
	sell.FilledSize = 1.0
	sell.Executions = []Execution{{Size: 1.0, Price: 101}}

	noCommission := func(Broker) float64 { return 0 }
	profit, commission := CalcProfit([]*Order{buy, sell}, noCommission)
	assert.Equal(t, 1.0, profit)
	assert.Zero(t, commission)

	// 0.1% per leg: 100*0.001 + 101*0.001 = 0.201
	tenBps := func(Broker) float64 { return 0.1 }
	profit, commission = CalcProfit([]*Order{buy, sell}, tenBps)
	assert.InDelta(t, 0.201, commission, 1e-9)
	assert.InDelta(t, 0.799, profit, 1e-9)
}

func TestCalcCommission(t *testing.T) {
	assert.Equal(t, 1.0, CalcCommission(1000, 1, 0.1))
	assert.Zero(t, CalcCommission(1000, 1, 0))
}
