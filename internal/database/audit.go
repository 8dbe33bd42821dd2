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

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"github.com/google/uuid"
)

func (s *Service) InsertAuditRecord(ctx context.Context, record models.AuditRecord) error {
	var details any
	if len(record.Details) > 0 {
		encoded, err := json.Marshal(record.Details)
		if err != nil {
			return fmt.Errorf("unable to encode audit details: %w", err)
		}
		details = string(encoded)
	}

	id := record.Id
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, queryInsertAuditRecord,
		id, record.UserId, record.Action, record.EntityId, record.Success, details, record.ErrorMessage, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("unable to insert audit record: %w", err)
	}
	return nil
}

func (s *Service) ListAuditRecords(ctx context.Context, filter store.AuditFilter) ([]models.AuditRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var since any
	if !filter.Since.IsZero() {
		since = filter.Since.UTC()
	}

	rows, err := s.db.QueryContext(ctx, queryListAuditRecords,
		filter.UserId, filter.Action, filter.Action, since, since, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query audit records: %w", err)
	}
	defer closeRows(rows)

	var records []models.AuditRecord
	for rows.Next() {
		var r models.AuditRecord
		var details sql.NullString
		if err := rows.Scan(&r.Id, &r.UserId, &r.Action, &r.EntityId, &r.Success, &details, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan audit row: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &r.Details); err != nil {
				return nil, fmt.Errorf("unable to decode audit details: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return records, nil
}
