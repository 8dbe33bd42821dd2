/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/syncer"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetAccountsOverview returns the user's accounts with asset and liability totals
func (s *LedgerService) GetAccountsOverview(ctx context.Context, userId string) (*models.AccountsOverview, error) {
	if userId == "" {
		return nil, &syncer.ValidationError{Field: "user_id", Message: "is required"}
	}

	accounts, err := s.db.ListAccounts(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to list accounts", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve accounts: %w", err)
	}

	return BuildOverview(accounts), nil
}

// BuildOverview totals accounts. Only negative credit card balances count as
// liabilities; a card reporting its available limit contributes nothing.
func BuildOverview(accounts []models.Account) *models.AccountsOverview {
	overview := &models.AccountsOverview{
		Accounts:    make([]models.AccountRecord, 0, len(accounts)),
		Assets:      decimal.Zero,
		Liabilities: decimal.Zero,
	}

	for _, acct := range accounts {
		overview.Accounts = append(overview.Accounts, models.AccountRecord{
			Id:          acct.Id,
			Name:        acct.Name,
			AccountType: acct.AccountType,
			Balance:     acct.Balance,
			Currency:    acct.Currency,
			BankName:    acct.BankName,
			LastSyncAt:  acct.LastSyncAt,
		})

		switch {
		case acct.AccountType == models.AccountCreditCard:
			if acct.Balance.IsNegative() {
				overview.Liabilities = overview.Liabilities.Add(acct.Balance.Abs())
			}
		case acct.Balance.IsPositive():
			overview.Assets = overview.Assets.Add(acct.Balance)
		}
	}

	overview.NetWorth = overview.Assets.Sub(overview.Liabilities)
	return overview
}

// GetTransactionHistory returns paginated transactions for a user, optionally
// narrowed to one account
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userId, accountId string, limit, offset int) ([]models.TransactionRecord, error) {
	if userId == "" {
		return nil, &syncer.ValidationError{Field: "user_id", Message: "is required"}
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.db.ListTransactions(ctx, userId, accountId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", userId),
			zap.String("account_id", accountId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Id:              tx.Id,
			AccountId:       tx.AccountId,
			Description:     tx.Description,
			Amount:          tx.Amount,
			Type:            tx.Type,
			TransactionDate: tx.TransactionDate,
			Tags:            tx.Tags,
			PaymentMethod:   tx.PaymentMethod,
			BankCategory:    tx.BankCategory,
		}
	}

	return result, nil
}
