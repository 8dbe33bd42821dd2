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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.Id, &a.UserId, &a.ExternalAccountId, &a.Provider, &a.Name, &a.AccountType,
		&a.Balance, &a.Currency, &a.BankName, &a.IsActive, &a.LastSyncAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) GetAccountByExternalId(ctx context.Context, userId, externalAccountId string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByExternalId, userId, externalAccountId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, externalAccountId)
		}
		return nil, fmt.Errorf("unable to query account: %w", err)
	}
	return account, nil
}

// UpsertAccount inserts or refreshes the account in one statement, so two
// concurrent syncs of the same account still end with a single row.
func (s *Service) UpsertAccount(ctx context.Context, params store.UpsertAccountParams) (string, bool, error) {
	if params.UserId == "" || params.ExternalAccountId == "" {
		return "", false, fmt.Errorf("user id and external account id are required")
	}

	currency := params.Currency
	if currency == "" {
		currency = "BRL"
	}
	syncedAt := params.SyncedAt.UTC()
	now := time.Now().UTC()
	newId := uuid.New().String()

	var accountId string
	err := s.db.QueryRowContext(ctx, queryUpsertAccount,
		newId, params.UserId, params.ExternalAccountId, params.Provider, params.Name, string(params.AccountType),
		params.Balance.String(), currency, params.BankName, syncedAt, now, now).Scan(&accountId)
	if err != nil {
		zap.L().Error("Failed to upsert account",
			zap.String("user_id", params.UserId),
			zap.String("external_account_id", params.ExternalAccountId),
			zap.Error(err))
		return "", false, fmt.Errorf("unable to upsert account: %w", err)
	}

	created := accountId == newId
	zap.L().Debug("Account upserted",
		zap.String("account_id", accountId),
		zap.String("external_account_id", params.ExternalAccountId),
		zap.Bool("created", created),
		zap.String("balance", params.Balance.String()))
	return accountId, created, nil
}

func (s *Service) ListAccounts(ctx context.Context, userId string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccounts, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}
