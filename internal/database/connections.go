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
	"errors"
	"fmt"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanConnection(row rowScanner) (*models.Connection, error) {
	var c models.Connection
	err := row.Scan(&c.Id, &c.UserId, &c.Provider, &c.InstitutionId, &c.InstitutionName, &c.ItemId,
		&c.Status, &c.ErrorMessage, &c.ConsentExpiresAt, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) CreateConnection(ctx context.Context, params store.CreateConnectionParams) (*models.Connection, error) {
	if params.UserId == "" || params.ItemId == "" {
		return nil, fmt.Errorf("user id and item id are required")
	}

	now := time.Now().UTC()
	conn, err := scanConnection(s.db.QueryRowContext(ctx, queryUpsertConnection,
		uuid.New().String(), params.UserId, params.Provider, params.InstitutionId, params.InstitutionName,
		params.ItemId, utcPtr(params.ConsentExpiresAt), now, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrItemAlreadyLinked, params.ItemId)
		}
		zap.L().Error("Failed to upsert connection", zap.String("item_id", params.ItemId), zap.Error(err))
		return nil, fmt.Errorf("unable to store connection: %w", err)
	}

	zap.L().Info("Connection stored",
		zap.String("connection_id", conn.Id),
		zap.String("user_id", conn.UserId),
		zap.String("item_id", conn.ItemId),
		zap.String("status", string(conn.Status)))
	return conn, nil
}

func (s *Service) GetConnection(ctx context.Context, userId, connectionId string) (*models.Connection, error) {
	zap.L().Debug("Querying connection", zap.String("connection_id", connectionId), zap.String("user_id", userId))

	conn, err := scanConnection(s.db.QueryRowContext(ctx, queryGetConnection, connectionId, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrConnectionNotFound, connectionId)
		}
		return nil, fmt.Errorf("unable to query connection: %w", err)
	}
	return conn, nil
}

func (s *Service) ListConnections(ctx context.Context, userId string) ([]models.Connection, error) {
	return s.queryConnections(ctx, queryListConnections, userId)
}

func (s *Service) ListSyncableConnections(ctx context.Context) ([]models.Connection, error) {
	return s.queryConnections(ctx, queryListSyncableConnections)
}

func (s *Service) queryConnections(ctx context.Context, query string, args ...any) ([]models.Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query connections: %w", err)
	}
	defer closeRows(rows)

	var connections []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan connection row: %w", err)
		}
		connections = append(connections, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection rows: %w", err)
	}
	return connections, nil
}

func (s *Service) MarkConnectionSynced(ctx context.Context, connectionId string, syncedAt time.Time) error {
	return s.updateConnection(ctx, connectionId, queryMarkConnectionSynced, syncedAt.UTC(), time.Now().UTC(), connectionId)
}

func (s *Service) MarkConnectionFailed(ctx context.Context, connectionId string, status models.ConnectionStatus, message string) error {
	if message == "" {
		message = "unknown error"
	}
	return s.updateConnection(ctx, connectionId, queryMarkConnectionFailed, string(status), message, time.Now().UTC(), connectionId)
}

func (s *Service) MarkConnectionInactive(ctx context.Context, connectionId string) error {
	return s.updateConnection(ctx, connectionId, queryMarkConnectionInactive, time.Now().UTC(), connectionId)
}

func (s *Service) updateConnection(ctx context.Context, connectionId, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("unable to update connection %s: %w", connectionId, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrConnectionNotFound, connectionId)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
