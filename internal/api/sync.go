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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/syncer"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SyncConnection validates a sync request and runs it for userId
func (s *LedgerService) SyncConnection(ctx context.Context, userId string, req models.SyncRequest) (*models.SyncResponse, error) {
	if userId == "" {
		return nil, &syncer.ValidationError{Field: "user_id", Message: "is required"}
	}
	if err := validate.Struct(req); err != nil {
		return nil, requestError(err)
	}

	params := syncer.SyncParams{
		UserId:       userId,
		ConnectionId: req.ConnectionId,
		Force:        req.Force,
	}
	if req.Days != nil {
		params.DaysBack = *req.Days
	}

	result, err := s.sync.SyncConnection(ctx, params)
	if err != nil {
		return nil, err
	}

	return &models.SyncResponse{
		Success:            true,
		AccountsSynced:     result.AccountsSynced,
		TransactionsSynced: result.TransactionsSynced,
	}, nil
}

// Disconnect unlinks a connection owned by userId
func (s *LedgerService) Disconnect(ctx context.Context, userId, connectionId string) error {
	if userId == "" || connectionId == "" {
		return &syncer.ValidationError{Message: "user_id and connection_id are required"}
	}
	if err := s.sync.Disconnect(ctx, userId, connectionId); err != nil {
		zap.L().Warn("Disconnect failed",
			zap.String("user_id", userId),
			zap.String("connection_id", connectionId),
			zap.Error(err))
		return err
	}
	return nil
}

func requestError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &syncer.ValidationError{Message: "invalid request"}
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return &syncer.ValidationError{Field: fe.Field(), Message: "is required"}
	case "min", "max":
		return &syncer.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("must be between %d and %d", syncer.MinDaysBack, syncer.MaxDaysBack),
		}
	default:
		return &syncer.ValidationError{Field: fe.Field(), Message: "is invalid"}
	}
}
