package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Reversed returns the opposite order side.
func (s OrderSide) Reversed() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Opposite returns the order book side an order of this side would be
// matched against when unwinding: a buy is unwound against bids, a sell
// against asks.
func (s OrderSide) Opposite() QuoteSide {
	if s == OrderSideBuy {
		return Bid
	}
	return Ask
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// CashMarginType selects cash or margin trading for a broker.
type CashMarginType string

const (
	CashMarginCash       CashMarginType = "Cash"
	CashMarginMarginOpen CashMarginType = "MarginOpen"
	CashMarginNetOut     CashMarginType = "NetOut"
)

// TimeInForce is the order lifetime policy sent to the broker.
type TimeInForce string

const (
	TifGTC TimeInForce = "GTC"
	TifIOC TimeInForce = "IOC"
	TifFOK TimeInForce = "FOK"
	TifPO  TimeInForce = "PO"
)

// OrderStatus tracks the order lifecycle. Transitions are monotonic: once an
// order reaches a terminal status it never regresses to an earlier one.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partiallyFilled"
	OrderStatusExecuted        OrderStatus = "executed"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// statusRank orders lifecycle stages so that UpdateStatus can reject
// regressions. All terminal statuses share the highest rank.
var statusRank = map[OrderStatus]int{
	OrderStatusOpen:            0,
	OrderStatusPartiallyFilled: 1,
	OrderStatusExecuted:        2,
	OrderStatusCanceled:        2,
	OrderStatusRejected:        2,
	OrderStatusExpired:         2,
}

// Execution is a single fill reported by a broker for an order.
type Execution struct {
	Broker        Broker    `json:"broker"`
	BrokerOrderID string    `json:"brokerOrderId"`
	Side          OrderSide `json:"side"`
	Size          float64   `json:"size"`
	Price         float64   `json:"price"`
	ExecTime      time.Time `json:"execTime"`
}

// Order is a single order sent to one broker. Broker adapters fill in
// BrokerOrderID, SentTime, Status, FilledSize, and Executions.
type Order struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Broker         Broker         `json:"broker"`
	Side           OrderSide      `json:"side"`
	Size           float64        `json:"size"`
	Price          float64        `json:"price"`
	Type           OrderType      `json:"type"`
	CashMarginType CashMarginType `json:"cashMarginType"`
	LeverageLevel  float64        `json:"leverageLevel"`
	TimeInForce    TimeInForce    `json:"timeInForce"`
	Status         OrderStatus    `json:"status"`
	FilledSize     float64        `json:"filledSize"`
	Executions     []Execution    `json:"executions"`
	CreationTime   time.Time      `json:"creationTime"`
	SentTime       time.Time      `json:"sentTime"`
	LastUpdated    time.Time      `json:"lastUpdated"`
	BrokerOrderID  string         `json:"brokerOrderId"`
}

// OrderInit carries the caller-supplied fields for NewOrder.
type OrderInit struct {
	Symbol         string
	Broker         Broker
	Side           OrderSide
	Size           float64
	Price          float64
	Type           OrderType
	CashMarginType CashMarginType
	LeverageLevel  float64
}

// NewOrder creates an open order with a fresh opaque ID.
func NewOrder(init OrderInit) *Order {
	return &Order{
		ID:             uuid.New().String(),
		Symbol:         init.Symbol,
		Broker:         init.Broker,
		Side:           init.Side,
		Size:           init.Size,
		Price:          init.Price,
		Type:           init.Type,
		CashMarginType: init.CashMarginType,
		LeverageLevel:  init.LeverageLevel,
		TimeInForce:    TifPO,
		Status:         OrderStatusOpen,
		CreationTime:   time.Now(),
	}
}

// PendingSize is the unfilled remainder of the order.
func (o *Order) PendingSize() float64 {
	return ERound(o.Size - o.FilledSize)
}

// AverageFilledPrice is the volume-weighted mean price of all executions, or
// zero when nothing has filled.
func (o *Order) AverageFilledPrice() float64 {
	var notional, size float64
	for _, x := range o.Executions {
		notional += x.Size * x.Price
		size += x.Size
	}
	if size == 0 {
		return 0
	}
	return ERound(notional / size)
}

// Filled reports whether the order has been fully executed.
func (o *Order) Filled() bool {
	return o.Status == OrderStatusExecuted
}

// FilledNotional is the cash value of the filled portion.
func (o *Order) FilledNotional() float64 {
	return o.AverageFilledPrice() * o.FilledSize
}

// UpdateStatus applies a status transition, ignoring regressions so a stale
// broker response can never move an order backwards in its lifecycle.
func (o *Order) UpdateStatus(s OrderStatus) {
	if statusRank[s] < statusRank[o.Status] {
		return
	}
	o.Status = s
	o.LastUpdated = time.Now()
}

// String renders a short human-readable summary used in logs.
func (o *Order) String() string {
	return fmt.Sprintf("%s %s %v %s @ %v (%s)", o.Broker, o.Side, o.Size, o.Symbol, o.Price, o.Status)
}

// ReviveOrder reconstructs an Order loaded from persistence, normalizing the
// time fields to the local location. The pointer receiver methods compute all
// derived values, so no further state needs rebuilding.
func ReviveOrder(o Order) *Order {
	o.CreationTime = o.CreationTime.Local()
	if !o.SentTime.IsZero() {
		o.SentTime = o.SentTime.Local()
	}
	return &o
}
