package pricing

import "math"

// Affordability is the result of sizing a fixed-budget order.
type Affordability struct {
	Units     int64   // Whole units the budget buys
	Remainder float64 // Budget left after buying Units
}

// Afford computes how many whole units a budget buys at the given price.
// ok is false when the price is non-positive or the budget is invalid;
// consumers must treat that as indeterminate, not as zero units.
func Afford(budget, price float64) (Affordability, bool) {
	if price <= 0 || budget < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Affordability{}, false
	}
	units := int64(math.Floor(budget / price))
	return Affordability{
		Units:     units,
		Remainder: budget - float64(units)*price,
	}, true
}
