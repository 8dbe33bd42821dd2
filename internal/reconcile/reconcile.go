// Package reconcile maps provider accounts onto local ledger accounts.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultCurrency    = "BRL"
	defaultAccountName = "Conta Open Finance"
)

// BalanceStrategy computes the stored balance of a credit card account.
type BalanceStrategy func(acct models.ProviderAccount) decimal.Decimal

// CreditCardBalance stores the available credit limit as a positive balance
// when the provider reports one. Otherwise the raw balance is forced negative
// so the card is counted as a liability; with neither it is zero.
func CreditCardBalance(acct models.ProviderAccount) decimal.Decimal {
	if acct.CreditData != nil && acct.CreditData.AvailableCreditLimit != nil {
		return *acct.CreditData.AvailableCreditLimit
	}
	if !acct.Balance.IsZero() {
		return acct.Balance.Abs().Neg()
	}
	return decimal.Zero
}

// DeriveAccountType classifies a provider account.
func DeriveAccountType(providerType, subtype string) models.AccountType {
	t := strings.ToUpper(strings.TrimSpace(providerType))
	st := strings.ToUpper(strings.TrimSpace(subtype))

	switch {
	case t == "CREDIT" || st == "CREDIT_CARD":
		return models.AccountCreditCard
	case t == "BANK":
		if strings.Contains(st, "SAVINGS") {
			return models.AccountSavings
		}
		return models.AccountChecking
	default:
		return models.AccountOther
	}
}

// Result describes one reconciled account.
type Result struct {
	AccountId   string
	AccountType models.AccountType
	Balance     decimal.Decimal
	Created     bool
}

type Reconciler struct {
	accounts    store.AccountStore
	provider    string
	cardBalance BalanceStrategy
	now         func() time.Time
}

type Option func(*Reconciler)

// WithBalanceStrategy replaces the credit card balance rule.
func WithBalanceStrategy(strategy BalanceStrategy) Option {
	return func(r *Reconciler) {
		if strategy != nil {
			r.cardBalance = strategy
		}
	}
}

// WithClock sets the clock used for last_sync_at.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReconciler(accounts store.AccountStore, providerName string, opts ...Option) *Reconciler {
	r := &Reconciler{
		accounts:    accounts,
		provider:    providerName,
		cardBalance: CreditCardBalance,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Balance returns the balance to store for acct given its local type.
// Bank and other accounts keep the provider balance with its sign.
func (r *Reconciler) Balance(accountType models.AccountType, acct models.ProviderAccount) decimal.Decimal {
	if accountType == models.AccountCreditCard {
		return r.cardBalance(acct)
	}
	return acct.Balance
}

// ReconcileAccount creates or refreshes the local account behind a provider
// account. The local id never changes once created.
func (r *Reconciler) ReconcileAccount(ctx context.Context, acct models.ProviderAccount, institutionName, userId string) (*Result, error) {
	if acct.Id == "" {
		return nil, fmt.Errorf("provider account has no id")
	}

	accountType := DeriveAccountType(acct.Type, acct.Subtype)
	balance := r.Balance(accountType, acct)

	name := strings.TrimSpace(acct.MarketingName)
	if name == "" {
		name = strings.TrimSpace(acct.Name)
	}
	if name == "" {
		name = defaultAccountName
	}

	currency := strings.ToUpper(strings.TrimSpace(acct.CurrencyCode))
	if currency == "" {
		currency = DefaultCurrency
	}

	accountId, created, err := r.accounts.UpsertAccount(ctx, store.UpsertAccountParams{
		UserId:            userId,
		ExternalAccountId: acct.Id,
		Provider:          r.provider,
		Name:              name,
		AccountType:       accountType,
		Balance:           balance,
		Currency:          currency,
		BankName:          institutionName,
		SyncedAt:          r.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to reconcile account %s: %w", acct.Id, err)
	}

	zap.L().Info("Account reconciled",
		zap.String("user_id", userId),
		zap.String("account_id", accountId),
		zap.String("external_account_id", acct.Id),
		zap.String("account_type", string(accountType)),
		zap.String("balance", balance.String()),
		zap.Bool("created", created))

	return &Result{
		AccountId:   accountId,
		AccountType: accountType,
		Balance:     balance,
		Created:     created,
	}, nil
}
