package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// DailyAmount is the expense total of one calendar day.
type DailyAmount struct {
	Day    string // DayLayout
	Amount decimal.Decimal
}

// Summary bundles every aggregate view of one user's ledger.
type Summary struct {
	Count        int
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Balance      decimal.Decimal
	ByType       map[Kind]decimal.Decimal
	ByCategory   []CategoryAmount
	DailyExpense []DailyAmount
}

// IsEmpty reports whether there is nothing to render.
func (s Summary) IsEmpty() bool {
	return s.Count == 0
}

func sumKind(txns []Transaction, kind Kind) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		if t.Kind == kind {
			total = total.Add(t.Amount)
		}
	}
	return total
}

func TotalIncome(txns []Transaction) decimal.Decimal {
	return sumKind(txns, Income)
}

func TotalExpense(txns []Transaction) decimal.Decimal {
	return sumKind(txns, Expense)
}

func Balance(txns []Transaction) decimal.Decimal {
	return TotalIncome(txns).Sub(TotalExpense(txns))
}

// ByCategory sums expense amounts per category, sorted by category name.
// Income rows never contribute.
func ByCategory(txns []Transaction) []CategoryAmount {
	totals := make(map[string]decimal.Decimal)
	for _, t := range txns {
		if t.Kind != Expense {
			continue
		}
		totals[t.Category] = totals[t.Category].Add(t.Amount)
	}
	if len(totals) == 0 {
		return nil
	}
	out := make([]CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByType sums amounts per kind. Kinds without rows are absent.
func ByType(txns []Transaction) map[Kind]decimal.Decimal {
	out := make(map[Kind]decimal.Decimal)
	for _, t := range txns {
		out[t.Kind] = out[t.Kind].Add(t.Amount)
	}
	return out
}

// DailyExpenseTrend sums expense amounts per calendar day, ascending by day.
// Rows whose date cannot be parsed are grouped under their raw date prefix,
// so the trend always sums to TotalExpense.
func DailyExpenseTrend(txns []Transaction) []DailyAmount {
	totals := make(map[string]decimal.Decimal)
	for _, t := range txns {
		if t.Kind != Expense {
			continue
		}
		totals[dayKey(t)] = totals[dayKey(t)].Add(t.Amount)
	}
	if len(totals) == 0 {
		return nil
	}
	out := make([]DailyAmount, 0, len(totals))
	for day, amount := range totals {
		out = append(out, DailyAmount{Day: day, Amount: amount})
	}
	// DayLayout sorts lexically in date order
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func dayKey(t Transaction) string {
	if day, err := t.Day(); err == nil {
		return day.Format(DayLayout)
	}
	if len(t.Date) > len(DayLayout) {
		return t.Date[:len(DayLayout)]
	}
	return t.Date
}

// Summarize computes every aggregate view of the ledger.
func Summarize(txns []Transaction) Summary {
	income := TotalIncome(txns)
	expense := TotalExpense(txns)
	return Summary{
		Count:        len(txns),
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      income.Sub(expense),
		ByType:       ByType(txns),
		ByCategory:   ByCategory(txns),
		DailyExpense: DailyExpenseTrend(txns),
	}
}
