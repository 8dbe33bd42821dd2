package ingest

import (
	"open-finance-sync-go/internal/models"

	"github.com/shopspring/decimal"
)

// ClassifyDirection decides whether a provider amount is income or expense.
// Card transactions are always expenses whatever their sign. Elsewhere a
// positive amount is income and zero or negative is an expense.
func ClassifyDirection(accountType models.AccountType, amount decimal.Decimal) models.TransactionType {
	if accountType == models.AccountCreditCard {
		return models.TransactionExpense
	}
	if amount.IsPositive() {
		return models.TransactionIncome
	}
	return models.TransactionExpense
}
