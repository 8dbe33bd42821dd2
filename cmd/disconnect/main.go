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
	"flag"
	"fmt"

	"open-finance-sync-go/internal/common"
	"open-finance-sync-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User ID that owns the connection (required)")
	connectionFlag := flag.String("connection", "", "Connection ID to disconnect (required)")
	flag.Parse()

	if *userFlag == "" || *connectionFlag == "" {
		logger.Fatal("Both -user and -connection are required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	conn, err := services.DbService.GetConnection(ctx, *userFlag, *connectionFlag)
	if err != nil {
		logger.Fatal("Failed to load connection", zap.Error(err))
	}

	common.PrintHeader("DISCONNECT INSTITUTION", common.DefaultWidth)
	fmt.Printf("Institution: %s\n", conn.InstitutionName)
	fmt.Printf("Item:        %s\n", conn.ItemId)
	fmt.Printf("Status:      %s\n", conn.Status)

	if err := services.SyncService.Disconnect(ctx, *userFlag, *connectionFlag); err != nil {
		logger.Fatal("Failed to disconnect", zap.Error(err))
	}

	common.PrintFooter("✓ Connection disconnected; synced accounts and transactions are kept", common.DefaultWidth)
}
