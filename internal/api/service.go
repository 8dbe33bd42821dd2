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

package api

import (
	"context"
	"fmt"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"
	"open-finance-sync-go/internal/syncer"
)

// SyncService runs and tears down connection syncs
type SyncService interface {
	SyncConnection(ctx context.Context, params syncer.SyncParams) (*syncer.SyncResult, error)
	Disconnect(ctx context.Context, userId, connectionId string) error
}

// LedgerService exposes the synced ledger to callers
type LedgerService struct {
	db   store.LedgerStore
	sync SyncService
}

func NewLedgerService(db store.LedgerStore, sync SyncService) *LedgerService {
	return &LedgerService{
		db:   db,
		sync: sync,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ListConnections returns the user's linked institutions
func (s *LedgerService) ListConnections(ctx context.Context, userId string) ([]models.ConnectionRecord, error) {
	if userId == "" {
		return nil, &syncer.ValidationError{Field: "user_id", Message: "is required"}
	}

	connections, err := s.db.ListConnections(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	result := make([]models.ConnectionRecord, len(connections))
	for i, conn := range connections {
		result[i] = models.ConnectionRecord{
			Id:              conn.Id,
			InstitutionName: conn.InstitutionName,
			Status:          conn.Status,
			ErrorMessage:    conn.ErrorMessage,
			LastSyncAt:      conn.LastSyncAt,
		}
	}
	return result, nil
}
