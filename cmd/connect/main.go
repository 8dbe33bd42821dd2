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
	"strconv"

	"open-finance-sync-go/internal/common"
	"open-finance-sync-go/internal/config"
	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"
	"open-finance-sync-go/internal/syncer"

	"go.uber.org/zap"
)

func listInstitutions(ctx context.Context, services *common.Services, search string) {
	institutions, err := services.ProviderService.ListInstitutions(ctx, search)
	if err != nil {
		zap.L().Fatal("Failed to list institutions", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("INSTITUTIONS (%d)", len(institutions)), common.DefaultWidth)
	for i, inst := range institutions {
		openFinance := ""
		if inst.IsOpenFinance {
			openFinance = "open finance"
		}
		fmt.Printf("%s %6d  %-40s %s\n", common.BoxPrefix(i == len(institutions)-1), inst.Id, common.Truncate(inst.Name, 40), openFinance)
	}
}

func printConnectToken(ctx context.Context, services *common.Services, userId string) {
	token, err := services.ProviderService.CreateConnectToken(ctx, userId)
	if err != nil {
		zap.L().Fatal("Failed to create connect token", zap.Error(err))
	}

	common.PrintHeader("CONNECT TOKEN", common.DefaultWidth)
	fmt.Println(token.AccessToken)
	fmt.Println("\nHand this token to the connect widget; it expires shortly.")
}

func registerItem(ctx context.Context, services *common.Services, userId, itemId, institutionName string) *models.Connection {
	// The item tells us which institution was linked and until when consent holds.
	item, err := services.ProviderService.GetItem(ctx, itemId)
	if err != nil {
		zap.L().Fatal("Failed to load item from provider", zap.String("item_id", itemId), zap.Error(err))
	}
	if institutionName == "" {
		institutionName = item.Connector.Name
	}

	conn, err := services.DbService.CreateConnection(ctx, store.CreateConnectionParams{
		UserId:           userId,
		Provider:         services.ProviderService.Name(),
		InstitutionId:    strconv.Itoa(item.Connector.Id),
		InstitutionName:  institutionName,
		ItemId:           itemId,
		ConsentExpiresAt: item.ConsentExpiresAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrItemAlreadyLinked) {
			zap.L().Fatal("Item is already linked to another user", zap.String("item_id", itemId))
		}
		zap.L().Fatal("Failed to register connection", zap.Error(err))
	}

	common.PrintHeader("CONNECTION REGISTERED", common.DefaultWidth)
	fmt.Printf("Connection:  %s\n", conn.Id)
	fmt.Printf("Institution: %s\n", conn.InstitutionName)
	fmt.Printf("Item:        %s (%s)\n", conn.ItemId, item.Status)
	fmt.Printf("Status:      %s\n", conn.Status)
	return conn
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User ID that owns the connection")
	itemFlag := flag.String("item", "", "Provider item ID returned by the connect widget")
	institutionFlag := flag.String("institution", "", "Institution name override (default: provider connector name)")
	listFlag := flag.Bool("list", false, "List available institutions and exit")
	searchFlag := flag.String("search", "", "Filter institutions by name when used with -list")
	tokenFlag := flag.Bool("token", false, "Print a connect token for -user and exit")
	syncFlag := flag.Bool("sync", false, "Run a first sync right after registering")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *listFlag:
		listInstitutions(ctx, services, *searchFlag)
		return
	case *tokenFlag:
		if *userFlag == "" {
			logger.Fatal("-user is required with -token")
		}
		printConnectToken(ctx, services, *userFlag)
		return
	}

	if *userFlag == "" || *itemFlag == "" {
		logger.Fatal("-user and -item are required to register a connection")
	}
	conn := registerItem(ctx, services, *userFlag, *itemFlag, *institutionFlag)

	if !*syncFlag {
		return
	}

	days := min(cfg.Scheduler.MaxRecoveryDays, syncer.MaxDaysBack)
	result, err := services.SyncService.SyncConnection(ctx, syncer.SyncParams{
		UserId:       *userFlag,
		ConnectionId: conn.Id,
		DaysBack:     days,
	})
	if err != nil {
		logger.Fatal("First sync failed", zap.Error(err))
	}
	common.PrintFooter(fmt.Sprintf("✓ First sync: %d accounts, %d transactions over %d days",
		result.AccountsSynced, result.TransactionsSynced, days), common.DefaultWidth)
}
