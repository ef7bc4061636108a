package domain

// Money amounts are int64 in dong, which has no fractional unit.

// LineTotal returns unitPrice × quantity.
func LineTotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}

// SelectedTotal sums the line totals of selected lines only.
func SelectedTotal(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		if l.Selected {
			total += LineTotal(l.UnitPrice, l.Quantity)
		}
	}
	return total
}

// Total sums the line totals of an order snapshot.
func Total(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotal
	}
	return total
}

// ApplyRedemption subtracts redeemed points from rawTotal, never going below zero.
func ApplyRedemption(rawTotal, points int64) int64 {
	if points >= rawTotal {
		return 0
	}
	return rawTotal - points
}
