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
	"os"
	"os/signal"
	"syscall"

	"open-finance-sync-go/internal/common"
	"open-finance-sync-go/internal/config"
	"open-finance-sync-go/internal/store"
	"open-finance-sync-go/internal/syncer"

	"go.uber.org/zap"
)

func main() {
	userFlag := flag.String("user", "", "User ID that owns the connection (required)")
	connectionFlag := flag.String("connection", "", "Connection ID to sync (required)")
	daysFlag := flag.Int("days", syncer.DefaultDaysBack, "How many days of transactions to fetch (1-90)")
	forceFlag := flag.Bool("force", false, "Ask the provider to refresh the item before fetching")
	flag.Parse()

	if err := checkDays(*daysFlag); err != nil {
		fmt.Printf("✗ Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("OPEN FINANCE SYNC", common.DefaultWidth)
	fmt.Printf("User:       %s\n", *userFlag)
	fmt.Printf("Connection: %s\n", *connectionFlag)
	fmt.Printf("Window:     %d days (force: %t)\n", *daysFlag, *forceFlag)

	result, err := services.SyncService.SyncConnection(ctx, syncer.SyncParams{
		UserId:       *userFlag,
		ConnectionId: *connectionFlag,
		DaysBack:     *daysFlag,
		Force:        *forceFlag,
	})
	if err != nil {
		var vErr *syncer.ValidationError
		switch {
		case errors.As(err, &vErr):
			fmt.Printf("\n✗ Invalid arguments: %s\n", vErr)
		case errors.Is(err, store.ErrConnectionNotFound):
			fmt.Printf("\n✗ Connection %s not found for user %s\n", *connectionFlag, *userFlag)
		case errors.Is(err, syncer.ErrConnectionInactive):
			fmt.Printf("\n✗ Connection %s was disconnected; link the institution again to resume syncing\n", *connectionFlag)
		default:
			fmt.Printf("\n✗ Sync failed: %v\n", err)
		}
		services.Close()
		stop()
		loggerCleanup()
		os.Exit(1)
	}

	common.PrintFooter(fmt.Sprintf("✓ Synced %d accounts, %d new transactions",
		result.AccountsSynced, result.TransactionsSynced), common.DefaultWidth)
}

// checkDays rejects windows outside 1..90. Zero is rejected here even
// though the syncer would read it as the default window.
func checkDays(days int) error {
	if days < syncer.MinDaysBack || days > syncer.MaxDaysBack {
		return fmt.Errorf("-days must be between %d and %d, got %d", syncer.MinDaysBack, syncer.MaxDaysBack, days)
	}
	return nil
}
