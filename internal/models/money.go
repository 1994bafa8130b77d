package models

import "github.com/shopspring/decimal"

// WholeCents reports whether d has at most two decimal places. Amounts are
// stored as NUMERIC(14,2); anything finer would be rounded on write.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
