package domain

import "fmt"

// OrderPair is one open arbitrage unit: two orders on different brokers,
// created with equal size, one per leg.
type OrderPair [2]*Order

// Validate checks the creation invariant that both legs share the same size.
func (p OrderPair) Validate() error {
	if p[0] == nil || p[1] == nil {
		return fmt.Errorf("order pair: missing leg")
	}
	if p[0].Size != p[1].Size {
		return fmt.Errorf("order pair: leg sizes differ (%v vs %v)", p[0].Size, p[1].Size)
	}
	return nil
}

// String renders both legs for logs.
func (p OrderPair) String() string {
	return fmt.Sprintf("[%s, %s]", p[0], p[1])
}

// RevivePairFunc reconstructs a pair loaded from persistence (dates and
// derived fields). ActivePairStore implementations apply it on every read.
type RevivePairFunc func(pair [2]Order) OrderPair

// ReviveOrderPair is the standard revival function for stored pairs.
func ReviveOrderPair(pair [2]Order) OrderPair {
	return OrderPair{ReviveOrder(pair[0]), ReviveOrder(pair[1])}
}
