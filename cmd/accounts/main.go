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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"open-finance-sync-go/internal/api"
	"open-finance-sync-go/internal/common"
	"open-finance-sync-go/internal/config"
	"open-finance-sync-go/internal/formance"
	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"go.uber.org/zap"
)

func formatLastSync(conn models.Connection) string {
	if conn.LastSyncAt == nil {
		return "never"
	}
	return conn.LastSyncAt.Local().Format("2006-01-02 15:04:05")
}

func printConnections(connections []models.Connection) {
	fmt.Printf("\n┌─ Connections: %d\n", len(connections))
	common.PrintBoxSeparator(78)
	for i, conn := range connections {
		isLast := i == len(connections)-1
		fmt.Printf("%s %-30s %-9s last sync: %s\n",
			common.BoxPrefix(isLast),
			common.Truncate(conn.InstitutionName, 30),
			conn.Status,
			formatLastSync(conn))
		if conn.ErrorMessage != nil {
			fmt.Printf("%s   error: %s\n", common.BoxDetailPrefix(isLast), common.Truncate(*conn.ErrorMessage, 70))
		}
	}
}

func printAccounts(ctx context.Context, accounts []models.Account, userId string, mirror *formance.Service) {
	fmt.Printf("\n┌─ Accounts: %d\n", len(accounts))
	common.PrintBoxSeparator(78)
	for i, acct := range accounts {
		isLast := i == len(accounts)-1
		fmt.Printf("%s %-28s %-12s %20s\n",
			common.BoxPrefix(isLast),
			common.Truncate(acct.Name, 28),
			acct.AccountType,
			common.FormatMoney(acct.Balance, acct.Currency))

		if mirror == nil {
			continue
		}
		ledgerBalance, err := mirror.AccountBalance(ctx, userId, acct.Id)
		if err != nil {
			zap.L().Warn("Failed to read mirrored balance",
				zap.String("account_id", acct.Id),
				zap.Error(err))
			continue
		}
		fmt.Printf("%s   ledger net flow: %s\n",
			common.BoxDetailPrefix(isLast),
			common.FormatMoney(ledgerBalance, acct.Currency))
	}
}

func printTransactions(account *models.Account, transactions []models.Transaction) {
	fmt.Printf("\n┌─ Recent transactions: %s (%d)\n", account.Name, len(transactions))
	common.PrintBoxSeparator(78)
	for i, tx := range transactions {
		isLast := i == len(transactions)-1
		fmt.Printf("%s %s %-36s %-7s %18s\n",
			common.BoxPrefix(isLast),
			tx.TransactionDate.Format("2006-01-02"),
			common.Truncate(tx.Description, 36),
			tx.Type,
			common.FormatMoney(tx.Amount, account.Currency))
	}
}

func printAuditLog(records []models.AuditRecord, days int) {
	fmt.Printf("\n┌─ Activity, last %d days: %d\n", days, len(records))
	common.PrintBoxSeparator(78)
	for i, r := range records {
		isLast := i == len(records)-1
		result := "ok"
		if !r.Success {
			result = "FAILED"
		}
		fmt.Printf("%s %s %-24s %-6s %s\n",
			common.BoxPrefix(isLast),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Action,
			result,
			r.EntityId)
		if r.ErrorMessage != nil {
			fmt.Printf("%s   error: %s\n", common.BoxDetailPrefix(isLast), common.Truncate(*r.ErrorMessage, 70))
		}
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User ID to report on (required)")
	accountFlag := flag.String("account", "", "Provider account ID whose recent transactions to list")
	auditDaysFlag := flag.Int("audit-days", 7, "Days of sync activity to show (0 skips the section)")
	flag.Parse()

	if *userFlag == "" {
		logger.Fatal("-user is required")
	}

	logger.Info("Starting account report", zap.String("user_id", *userFlag))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only: no provider client needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var mirror *formance.Service
	if cfg.Formance.Enabled() {
		mirror, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			logger.Warn("Formance ledger unavailable, skipping mirrored balances", zap.Error(err))
			mirror = nil
		}
	}

	connections, err := dbService.ListConnections(ctx, *userFlag)
	if err != nil {
		logger.Fatal("Failed to list connections", zap.Error(err))
	}
	accounts, err := dbService.ListAccounts(ctx, *userFlag)
	if err != nil {
		logger.Fatal("Failed to list accounts", zap.Error(err))
	}

	common.PrintHeader("OPEN FINANCE ACCOUNTS: "+*userFlag, common.DefaultWidth)
	printConnections(connections)
	printAccounts(ctx, accounts, *userFlag, mirror)

	latest, err := dbService.GetMostRecentTransactionTime(ctx, *userFlag)
	if err != nil {
		logger.Warn("Failed to read most recent transaction", zap.Error(err))
	} else if latest.IsZero() {
		fmt.Println("\nLast transaction: none")
	} else {
		fmt.Printf("\nLast transaction: %s\n", latest.Format("2006-01-02"))
	}

	if *accountFlag != "" {
		account, err := dbService.GetAccountByExternalId(ctx, *userFlag, *accountFlag)
		switch {
		case errors.Is(err, store.ErrAccountNotFound):
			fmt.Printf("\n✗ Account %s not found for user %s\n", *accountFlag, *userFlag)
		case err != nil:
			logger.Error("Failed to load account", zap.String("account", *accountFlag), zap.Error(err))
		default:
			transactions, err := dbService.ListTransactions(ctx, *userFlag, account.Id, 20, 0)
			if err != nil {
				logger.Error("Failed to list transactions", zap.String("account_id", account.Id), zap.Error(err))
			} else {
				printTransactions(account, transactions)
			}
		}
	}

	if *auditDaysFlag > 0 {
		records, err := dbService.ListAuditRecords(ctx, store.AuditFilter{
			UserId: *userFlag,
			Since:  time.Now().AddDate(0, 0, -*auditDaysFlag),
			Limit:  20,
		})
		if err != nil {
			logger.Warn("Failed to read audit log", zap.Error(err))
		} else {
			printAuditLog(records, *auditDaysFlag)
		}
	}

	overview := api.BuildOverview(accounts)
	summary := fmt.Sprintf("ASSETS: %s | LIABILITIES: %s | NET WORTH: %s",
		common.FormatMoney(overview.Assets, ""),
		common.FormatMoney(overview.Liabilities, ""),
		common.FormatMoney(overview.NetWorth, ""))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Account report completed",
		zap.Int("connections", len(connections)),
		zap.Int("accounts", len(accounts)))
}
