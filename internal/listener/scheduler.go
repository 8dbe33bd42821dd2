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

package listener

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"
	"open-finance-sync-go/internal/syncer"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SyncRunner runs one connection sync.
type SyncRunner interface {
	SyncConnection(ctx context.Context, params syncer.SyncParams) (*syncer.SyncResult, error)
}

// SchedulerConfig contains configuration for Scheduler
type SchedulerConfig struct {
	Syncer          SyncRunner
	Connections     store.ConnectionStore
	PollingInterval time.Duration
	DaysBack        int
	MaxRecoveryDays int
	Concurrency     int
	Now             func() time.Time
}

// Scheduler periodically syncs every syncable connection
type Scheduler struct {
	syncer      SyncRunner
	connections store.ConnectionStore

	pollingInterval time.Duration
	daysBack        int
	maxRecoveryDays int
	concurrency     int
	now             func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// PollSummary counts the outcome of one pass over the connections
type PollSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Inserted  int
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		syncer:          cfg.Syncer,
		connections:     cfg.Connections,
		pollingInterval: cfg.PollingInterval,
		daysBack:        cfg.DaysBack,
		maxRecoveryDays: cfg.MaxRecoveryDays,
		concurrency:     cfg.Concurrency,
		now:             cfg.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pollingInterval <= 0 {
		s.pollingInterval = 6 * time.Hour
	}
	if s.daysBack < syncer.MinDaysBack || s.daysBack > syncer.MaxDaysBack {
		s.daysBack = syncer.DefaultDaysBack
	}
	if s.maxRecoveryDays < s.daysBack || s.maxRecoveryDays > syncer.MaxDaysBack {
		s.maxRecoveryDays = syncer.MaxDaysBack
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Start runs startup recovery and then begins the polling loop
func (s *Scheduler) Start(ctx context.Context) error {
	if s.syncer == nil || s.connections == nil {
		return fmt.Errorf("scheduler requires a syncer and a connection store")
	}

	zap.L().Info("Starting sync scheduler")

	summary, err := s.performStartupRecovery(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	if summary.Failed > 0 && summary.Failed > summary.Total/2 {
		zap.L().Error("Startup recovery failed for most connections",
			zap.Int("failed", summary.Failed),
			zap.Int("total", summary.Total))
	}

	s.startOnce.Do(func() {
		s.started = true
		go s.pollLoop(ctx)
	})

	zap.L().Info("Sync scheduler started successfully",
		zap.Duration("polling_interval", s.pollingInterval),
		zap.Int("days_back", s.daysBack),
		zap.Int("concurrency", s.concurrency))

	return nil
}

// Stop gracefully stops the scheduler, waiting for running syncs
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping sync scheduler")
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started {
		<-s.doneChan
	}
	zap.L().Info("Sync scheduler stopped")
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.PollOnce(ctx); err != nil {
				zap.L().Error("Failed to poll connections", zap.Error(err))
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ANSI color helpers for console output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

// PollOnce syncs every syncable connection with the regular window
func (s *Scheduler) PollOnce(ctx context.Context) (PollSummary, error) {
	return s.syncAll(ctx, func(models.Connection) int { return s.daysBack })
}

// performStartupRecovery widens each connection's window to cover the time
// since its last successful sync
func (s *Scheduler) performStartupRecovery(ctx context.Context) (PollSummary, error) {
	zap.L().Info("Starting startup recovery process")

	summary, err := s.syncAll(ctx, func(conn models.Connection) int {
		return s.recoveryDays(conn.LastSyncAt)
	})
	if err != nil {
		return summary, err
	}

	zap.L().Info("Startup recovery completed",
		zap.Int("total_connections", summary.Total),
		zap.Int("failed_connections", summary.Failed),
		zap.Int("transactions_recovered", summary.Inserted))
	return summary, nil
}

// recoveryDays returns the window needed to cover the gap since lastSync,
// with one day of overlap, clamped to [daysBack, maxRecoveryDays].
func (s *Scheduler) recoveryDays(lastSync *time.Time) int {
	if lastSync == nil {
		return s.maxRecoveryDays
	}
	gap := s.now().Sub(*lastSync)
	days := int(math.Ceil(gap.Hours()/24)) + 1
	if days < s.daysBack {
		return s.daysBack
	}
	if days > s.maxRecoveryDays {
		return s.maxRecoveryDays
	}
	return days
}

func (s *Scheduler) syncAll(ctx context.Context, daysFor func(models.Connection) int) (PollSummary, error) {
	connections, err := s.connections.ListSyncableConnections(ctx)
	if err != nil {
		return PollSummary{}, fmt.Errorf("failed to list connections: %w", err)
	}

	fmt.Printf("\n%s[%s] Syncing %d connections%s\n",
		colorCyan, s.now().Format("15:04:05"), len(connections), colorReset)

	var (
		mu      sync.Mutex
		summary = PollSummary{Total: len(connections)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, conn := range connections {
		g.Go(func() error {
			params := syncer.SyncParams{
				UserId:       conn.UserId,
				ConnectionId: conn.Id,
				DaysBack:     daysFor(conn),
			}
			result, err := s.syncer.SyncConnection(gctx, params)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				fmt.Printf("  %s✗ %s (%s): %s%s\n", colorRed, conn.InstitutionName, shortId(conn.Id), err, colorReset)
				zap.L().Error("Failed to sync connection",
					zap.String("connection_id", conn.Id),
					zap.String("user_id", conn.UserId),
					zap.Int("days", params.DaysBack),
					zap.Error(err))
				return nil
			}
			summary.Succeeded++
			summary.Inserted += result.TransactionsSynced
			fmt.Printf("  %s✓ %s (%s) | %d accounts, %d new transactions%s\n",
				colorGreen, conn.InstitutionName, shortId(conn.Id),
				result.AccountsSynced, result.TransactionsSynced, colorReset)
			return nil
		})
	}

	// Workers never return errors; a failed sync is recorded by the syncer.
	_ = g.Wait()
	return summary, nil
}

func shortId(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
