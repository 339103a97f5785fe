package accounting

import (
	"fmt"
	"time"
)

// FinancialYearStartMonth is the first month of the April-to-March fiscal year.
const FinancialYearStartMonth = time.April

// FinancialYear labels the fiscal year containing date, e.g. "2024-25" for
// any date from 2024-04-01 through 2025-03-31.
func FinancialYear(date time.Time) string {
	start := FinancialYearStart(date)
	return fmt.Sprintf("%d-%02d", start.Year(), (start.Year()+1)%100)
}

// FinancialYearStart returns the first day of the fiscal year containing date.
func FinancialYearStart(date time.Time) time.Time {
	year := date.Year()
	if date.Month() < FinancialYearStartMonth {
		year--
	}
	return time.Date(year, FinancialYearStartMonth, 1, 0, 0, 0, 0, date.Location())
}
