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
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"
	"open-finance-sync-go/internal/syncer"

	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// GetAuditLog returns the user's audit records, newest first, optionally
// narrowed to one action and to records created at or after since
func (s *LedgerService) GetAuditLog(ctx context.Context, userId, action string, since time.Time, limit int) ([]models.AuditEntry, error) {
	if userId == "" {
		return nil, &syncer.ValidationError{Field: "user_id", Message: "is required"}
	}
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}

	records, err := s.db.ListAuditRecords(ctx, store.AuditFilter{
		UserId: userId,
		Action: action,
		Since:  since,
		Limit:  limit,
	})
	if err != nil {
		zap.L().Error("Failed to list audit records",
			zap.String("user_id", userId),
			zap.String("action", action),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve audit log: %w", err)
	}

	result := make([]models.AuditEntry, len(records))
	for i, r := range records {
		result[i] = models.AuditEntry{
			Id:           r.Id,
			Action:       r.Action,
			EntityId:     r.EntityId,
			Success:      r.Success,
			Details:      r.Details,
			ErrorMessage: r.ErrorMessage,
			CreatedAt:    r.CreatedAt,
		}
	}
	return result, nil
}
