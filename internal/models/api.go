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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncRequest is the body accepted by the sync endpoint
type SyncRequest struct {
	ConnectionId string `json:"connection_id" validate:"required"`
	Days         *int   `json:"days" validate:"omitempty,min=1,max=90"`
	Force        bool   `json:"force"`
}

// SyncResponse is returned after a completed sync
type SyncResponse struct {
	Success            bool `json:"success"`
	AccountsSynced     int  `json:"accounts_synced"`
	TransactionsSynced int  `json:"transactions_synced"`
}

// ErrorResponse is returned on any failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// AccountRecord represents an account in the user's overview
type AccountRecord struct {
	Id          string          `json:"id"`
	Name        string          `json:"name"`
	AccountType AccountType     `json:"account_type"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	BankName    string          `json:"bank_name"`
	LastSyncAt  *time.Time      `json:"last_sync_at,omitempty"`
}

// AccountsOverview aggregates a user's accounts. Liabilities only counts the
// negative portion of credit card balances.
type AccountsOverview struct {
	Accounts    []AccountRecord `json:"accounts"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	NetWorth    decimal.Decimal `json:"net_worth"`
}

// TransactionRecord represents a ledger entry in the transaction history
type TransactionRecord struct {
	Id              string          `json:"id"`
	AccountId       string          `json:"account_id"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Type            TransactionType `json:"type"`
	TransactionDate time.Time       `json:"transaction_date"`
	Tags            []string        `json:"tags"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
	BankCategory    *string         `json:"bank_category,omitempty"`
}

// ConnectionRecord represents a linked institution without provider handles
type ConnectionRecord struct {
	Id              string           `json:"id"`
	InstitutionName string           `json:"institution_name"`
	Status          ConnectionStatus `json:"status"`
	ErrorMessage    *string          `json:"error_message,omitempty"`
	LastSyncAt      *time.Time       `json:"last_sync_at,omitempty"`
}

// AuditEntry is one audit log record as returned to the user
type AuditEntry struct {
	Id           string         `json:"id"`
	Action       string         `json:"action"`
	EntityId     string         `json:"entity_id"`
	Success      bool           `json:"success"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
