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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"open-finance-sync-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var tags sql.NullString
	err := row.Scan(&t.Id, &t.UserId, &t.AccountId, &t.OpenFinanceId, &t.Description, &t.Amount, &t.Type,
		&t.TransactionDate, &t.CategoryId, &t.IsRecurring, &tags, &t.Notes, &t.Status, &t.ProviderCode,
		&t.PaymentMethod, &t.ReferenceNumber, &t.Mcc, &t.BankCategory, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return nil, fmt.Errorf("unable to decode tags for transaction %s: %w", t.Id, err)
		}
	}
	return &t, nil
}

func (s *Service) TransactionExists(ctx context.Context, openFinanceId string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, queryCheckDuplicateTransaction, openFinanceId).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check for duplicate transaction: %w", err)
}

// InsertTransaction writes tx and fills in its generated id and timestamps.
// The insert is a no-op when open_finance_id already exists, which makes
// concurrent ingestion of the same provider transaction safe.
func (s *Service) InsertTransaction(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.Amount.IsNegative() {
		return false, fmt.Errorf("transaction amount must be non-negative, got %s", tx.Amount)
	}

	var tags any
	if len(tx.Tags) > 0 {
		encoded, err := json.Marshal(tx.Tags)
		if err != nil {
			return false, fmt.Errorf("unable to encode tags: %w", err)
		}
		tags = string(encoded)
	}

	id := tx.Id
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, queryInsertTransaction,
		id, tx.UserId, tx.AccountId, tx.OpenFinanceId, tx.Description, tx.Amount.String(), string(tx.Type),
		tx.TransactionDate.UTC(), tx.CategoryId, tx.IsRecurring, tags, tx.Notes, tx.Status, tx.ProviderCode,
		tx.PaymentMethod, tx.ReferenceNumber, tx.Mcc, tx.BankCategory, now, now)
	if err != nil {
		zap.L().Error("Failed to insert transaction",
			zap.String("account_id", tx.AccountId),
			zap.Error(err))
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	tx.Id = id
	tx.CreatedAt = now
	tx.UpdatedAt = now
	return true, nil
}

// ListTransactions returns a user's transactions, newest first. An empty
// accountId lists across all accounts.
func (s *Service) ListTransactions(ctx context.Context, userId, accountId string, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, queryListTransactions, userId, accountId, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// GetMostRecentTransactionTime returns the zero time when the user has no
// transactions.
func (s *Service) GetMostRecentTransactionTime(ctx context.Context, userId string) (time.Time, error) {
	var latest time.Time
	err := s.db.QueryRowContext(ctx, queryMostRecentTransactionTime, userId).Scan(&latest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("unable to query most recent transaction: %w", err)
	}
	return latest, nil
}
