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

const (
	connectionColumns = `id, user_id, provider, institution_id, institution_name, item_id, status,
		error_message, consent_expires_at, last_sync_at, created_at, updated_at`

	// Connection queries
	queryUpsertConnection = `
		INSERT INTO open_finance_connections
			(id, user_id, provider, institution_id, institution_name, item_id, status, consent_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			institution_id = excluded.institution_id,
			institution_name = excluded.institution_name,
			consent_expires_at = COALESCE(excluded.consent_expires_at, open_finance_connections.consent_expires_at),
			updated_at = excluded.updated_at
		WHERE open_finance_connections.user_id = excluded.user_id
		RETURNING ` + connectionColumns

	queryGetConnection = `
		SELECT ` + connectionColumns + `
		FROM open_finance_connections
		WHERE id = ? AND user_id = ?`

	queryListConnections = `
		SELECT ` + connectionColumns + `
		FROM open_finance_connections
		WHERE user_id = ?
		ORDER BY created_at`

	queryListSyncableConnections = `
		SELECT ` + connectionColumns + `
		FROM open_finance_connections
		WHERE status IN ('pending', 'active', 'error')
		ORDER BY last_sync_at IS NOT NULL, last_sync_at, created_at`

	queryMarkConnectionSynced = `
		UPDATE open_finance_connections
		SET status = 'active', error_message = NULL, last_sync_at = ?, updated_at = ?
		WHERE id = ?`

	queryMarkConnectionFailed = `
		UPDATE open_finance_connections
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`

	queryMarkConnectionInactive = `
		UPDATE open_finance_connections
		SET status = 'inactive', error_message = NULL, updated_at = ?
		WHERE id = ?`

	accountColumns = `id, user_id, external_account_id, provider, name, account_type, balance, currency,
		bank_name, is_active, last_sync_at, created_at, updated_at`

	// Account queries
	queryUpsertAccount = `
		INSERT INTO accounts
			(id, user_id, external_account_id, provider, name, account_type, balance, currency, bank_name,
			 is_active, last_sync_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(user_id, external_account_id) DO UPDATE SET
			balance = excluded.balance,
			name = excluded.name,
			account_type = excluded.account_type,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at
		RETURNING id`

	queryGetAccountByExternalId = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = ? AND external_account_id = ?`

	queryListAccounts = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = ? AND is_active = 1
		ORDER BY bank_name, name`

	transactionColumns = `id, user_id, account_id, open_finance_id, description, amount, type, transaction_date,
		category_id, is_recurring, tags, notes, status, provider_code, payment_method, reference_number,
		mcc, bank_category, created_at, updated_at`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE open_finance_id = ?`

	queryInsertTransaction = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_finance_id) DO NOTHING`

	queryListTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND (? = '' OR account_id = ?)
		ORDER BY transaction_date DESC, created_at DESC
		LIMIT ? OFFSET ?`

	queryMostRecentTransactionTime = `
		SELECT transaction_date FROM transactions
		WHERE user_id = ?
		ORDER BY transaction_date DESC
		LIMIT 1`

	// Audit queries
	queryInsertAuditRecord = `
		INSERT INTO audit_logs (id, user_id, action, entity_id, success, details, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryListAuditRecords = `
		SELECT id, user_id, action, entity_id, success, details, error_message, created_at
		FROM audit_logs
		WHERE user_id = ?
			AND (? = '' OR action = ?)
			AND (? IS NULL OR created_at >= ?)
		ORDER BY created_at DESC
		LIMIT ?`
)
