// utils/money.go
package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMinorUnits renders an integer minor-currency-unit amount for
// statements, e.g. 123456 → "1,234.56". Ledger amounts are never negative.
func FormatMinorUnits(v int64) string {
	return moneyPrinter.Sprintf("%d.%02d", v/100, v%100)
}
