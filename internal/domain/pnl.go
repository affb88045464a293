package domain

// CommissionRateFunc looks up a broker's commission percentage.
type CommissionRateFunc func(broker Broker) float64

// CalcCommission returns the commission charged for trading the given volume
// at the given price.
func CalcCommission(price, volume, commissionPercent float64) float64 {
	return price * volume * (commissionPercent / 100)
}

// CalcProfit computes realized profit and total commission across a set of
// orders: filled notional of sells minus filled notional of buys, minus the
// per-broker commission on each filled leg.
func CalcProfit(orders []*Order, rate CommissionRateFunc) (profit, commission float64) {
	for _, o := range orders {
		commission += CalcCommission(o.AverageFilledPrice(), o.FilledSize, rate(o.Broker))
		sign := -1.0
		if o.Side == OrderSideSell {
			sign = 1.0
		}
		profit += sign * o.FilledNotional()
	}
	profit -= commission
	return profit, commission
}
