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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"open-finance-sync-go/internal/api"
	"open-finance-sync-go/internal/common"
	"open-finance-sync-go/internal/config"
	"open-finance-sync-go/internal/listener"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting Open Finance sync listener")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	scheduler := listener.NewScheduler(listener.SchedulerConfig{
		Syncer:          services.SyncService,
		Connections:     services.DbService,
		PollingInterval: cfg.Scheduler.PollingInterval,
		DaysBack:        cfg.Scheduler.DaysBack,
		MaxRecoveryDays: cfg.Scheduler.MaxRecoveryDays,
		Concurrency:     cfg.Scheduler.Concurrency,
	})

	// Leave room for the sync's own deadline to fire first.
	requestTimeout := cfg.Scheduler.SyncTimeout
	if requestTimeout > 0 {
		requestTimeout += 30 * time.Second
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(services.LedgerService, requestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP API listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if err := scheduler.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start scheduler", zap.Error(err))
	}

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping...")
	case err := <-serverErr:
		zap.L().Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Listener stopped gracefully")
	case <-shutdownCtx.Done():
		cancel()
		zap.L().Warn("Forced shutdown after timeout")
	}
}
