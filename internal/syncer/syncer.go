// Package syncer drives one end-to-end synchronization of a linked
// institution: provider fetch, account reconciliation, transaction ingestion,
// connection bookkeeping and auditing.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"open-finance-sync-go/internal/audit"
	"open-finance-sync-go/internal/ingest"
	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/provider"
	"open-finance-sync-go/internal/reconcile"
	"open-finance-sync-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultDaysBack = 7
	MinDaysBack     = 1
	MaxDaysBack     = 90

	maxErrorMessage = 500
)

// Remote item statuses that mean the user has to act before syncing again.
var remoteErrorStatuses = map[string]bool{
	"LOGIN_ERROR": true,
	"OUTDATED":    true,
}

// Provider is the part of the aggregator client the orchestrator needs.
type Provider interface {
	Name() string
	GetItem(ctx context.Context, itemId string) (*models.ProviderItem, error)
	SyncItem(ctx context.Context, itemId string) error
	GetAccounts(ctx context.Context, itemId string) ([]models.ProviderAccount, error)
	GetTransactions(ctx context.Context, params provider.TransactionsParams) ([]models.ProviderTransaction, error)
	DeleteItem(ctx context.Context, itemId string) error
}

// SyncParams selects the connection to sync. A zero DaysBack means
// DefaultDaysBack.
type SyncParams struct {
	UserId       string `validate:"required"`
	ConnectionId string `validate:"required"`
	DaysBack     int    `validate:"omitempty,min=1,max=90"`
	Force        bool
}

// SyncResult counts reconciled accounts and newly inserted transactions.
type SyncResult struct {
	AccountsSynced     int
	TransactionsSynced int
}

type Service struct {
	connections store.ConnectionStore
	provider    Provider
	reconciler  *reconcile.Reconciler
	ingester    *ingest.Ingester
	audit       audit.Sink
	timeout     time.Duration
	now         func() time.Time
}

type Option func(*Service)

// WithTimeout bounds each SyncConnection call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(
	connections store.ConnectionStore,
	p Provider,
	reconciler *reconcile.Reconciler,
	ingester *ingest.Ingester,
	sink audit.Sink,
	opts ...Option,
) *Service {
	if sink == nil {
		sink = audit.LogSink{}
	}
	s := &Service{
		connections: connections,
		provider:    p,
		reconciler:  reconciler,
		ingester:    ingester,
		audit:       sink,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncConnection pulls the provider's accounts and recent transactions for
// one connection into the local ledger. On success the connection becomes
// active and last_sync_at advances. On failure last_sync_at is left alone,
// the connection is marked error (or expired), a failure is audited and the
// error is returned. Rows written before the failure are kept. Disconnected
// connections are rejected with ErrConnectionInactive and left untouched.
func (s *Service) SyncConnection(ctx context.Context, params SyncParams) (*SyncResult, error) {
	if err := validate.Struct(params); err != nil {
		return nil, validationError(err)
	}
	if params.DaysBack == 0 {
		params.DaysBack = DefaultDaysBack
	}

	conn, err := s.connections.GetConnection(ctx, params.UserId, params.ConnectionId)
	if err != nil {
		return nil, err
	}
	if conn.Status == models.ConnectionInactive {
		return nil, fmt.Errorf("%w: %s", ErrConnectionInactive, conn.Id)
	}

	runId := uuid.New().String()
	runCtx := models.WithSyncContext(ctx, &models.SyncContext{
		RunId:        runId,
		UserId:       conn.UserId,
		ConnectionId: conn.Id,
		ItemId:       conn.ItemId,
		Institution:  conn.InstitutionName,
	})
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.timeout)
		defer cancel()
	}

	zap.L().Info("Starting connection sync",
		zap.String("run_id", runId),
		zap.String("user_id", conn.UserId),
		zap.String("connection_id", conn.Id),
		zap.String("institution", conn.InstitutionName),
		zap.Int("days", params.DaysBack),
		zap.Bool("force", params.Force))

	start := s.now()
	result, err := s.run(runCtx, conn, params)
	if err == nil {
		err = s.connections.MarkConnectionSynced(context.WithoutCancel(ctx), conn.Id, s.now())
	}
	if err != nil {
		if s.timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: exceeded %s: %w", ErrSyncInterrupted, s.timeout, err)
		}
		s.recordFailure(ctx, conn, params, err)
		return nil, err
	}

	s.record(ctx, audit.Event{
		UserId:   conn.UserId,
		Action:   audit.ActionSync,
		EntityId: conn.Id,
		Success:  true,
		Details: map[string]any{
			"accounts_synced":     result.AccountsSynced,
			"transactions_synced": result.TransactionsSynced,
			"days":                params.DaysBack,
			"force":               params.Force,
		},
	})

	zap.L().Info("Connection sync completed",
		zap.String("run_id", runId),
		zap.String("connection_id", conn.Id),
		zap.Int("accounts_synced", result.AccountsSynced),
		zap.Int("transactions_synced", result.TransactionsSynced),
		zap.Duration("duration", s.now().Sub(start)))

	return result, nil
}

func (s *Service) run(ctx context.Context, conn *models.Connection, params SyncParams) (*SyncResult, error) {
	if err := s.checkItem(ctx, conn); err != nil {
		return nil, err
	}

	if params.Force {
		if err := s.provider.SyncItem(ctx, conn.ItemId); err != nil {
			zap.L().Warn("Provider refresh request failed, syncing current data",
				zap.String("connection_id", conn.Id),
				zap.Error(err))
		}
	}

	accounts, err := s.provider.GetAccounts(ctx, conn.ItemId)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := now.AddDate(0, 0, -params.DaysBack)
	result := &SyncResult{}

	for _, acct := range accounts {
		reconciled, err := s.reconciler.ReconcileAccount(ctx, acct, conn.InstitutionName, conn.UserId)
		if err != nil {
			return nil, err
		}
		result.AccountsSynced++

		transactions, err := s.provider.GetTransactions(ctx, provider.TransactionsParams{
			AccountId: acct.Id,
			From:      from,
			To:        now,
		})
		if err != nil {
			return nil, err
		}

		inserted := 0
		for _, tx := range transactions {
			r, err := s.ingester.IngestTransaction(ctx, tx, reconciled.AccountId, conn.UserId, reconciled.AccountType)
			if err != nil {
				return nil, err
			}
			if r.Inserted {
				inserted++
			}
		}
		result.TransactionsSynced += inserted

		zap.L().Info("Account synced",
			zap.String("connection_id", conn.Id),
			zap.String("account_id", reconciled.AccountId),
			zap.Int("fetched", len(transactions)),
			zap.Int("inserted", inserted))
	}

	return result, nil
}

// checkItem fails the sync when the provider already knows it cannot serve
// this item.
func (s *Service) checkItem(ctx context.Context, conn *models.Connection) error {
	item, err := s.provider.GetItem(ctx, conn.ItemId)
	if err != nil {
		return err
	}

	if item.ConsentExpiresAt != nil && !item.ConsentExpiresAt.After(s.now()) {
		return fmt.Errorf("%w on %s", ErrConsentExpired, item.ConsentExpiresAt.Format(time.DateOnly))
	}
	if remoteErrorStatuses[item.Status] {
		msg := item.Status
		if item.Error != nil && item.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", item.Status, item.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrRemoteItemError, msg)
	}
	return nil
}

// Disconnect removes the item at the provider and marks the connection
// inactive. An item the provider no longer knows is treated as removed.
func (s *Service) Disconnect(ctx context.Context, userId, connectionId string) error {
	conn, err := s.connections.GetConnection(ctx, userId, connectionId)
	if err != nil {
		return err
	}

	err = s.provider.DeleteItem(ctx, conn.ItemId)
	if err != nil && !provider.IsNotFound(err) {
		s.record(ctx, audit.Event{
			UserId:       conn.UserId,
			Action:       audit.ActionDisconnect,
			EntityId:     conn.Id,
			ErrorMessage: truncateMessage(err.Error()),
		})
		return err
	}

	if err := s.connections.MarkConnectionInactive(ctx, conn.Id); err != nil {
		return err
	}

	s.record(ctx, audit.Event{
		UserId:   conn.UserId,
		Action:   audit.ActionDisconnect,
		EntityId: conn.Id,
		Success:  true,
	})
	zap.L().Info("Connection disconnected",
		zap.String("user_id", conn.UserId),
		zap.String("connection_id", conn.Id))
	return nil
}

// recordFailure runs even when ctx is already cancelled.
func (s *Service) recordFailure(ctx context.Context, conn *models.Connection, params SyncParams, syncErr error) {
	ctx = context.WithoutCancel(ctx)
	msg := truncateMessage(syncErr.Error())

	status := models.ConnectionError
	if errors.Is(syncErr, ErrConsentExpired) {
		status = models.ConnectionExpired
	}

	if err := s.connections.MarkConnectionFailed(ctx, conn.Id, status, msg); err != nil {
		zap.L().Error("Failed to mark connection as failed",
			zap.String("connection_id", conn.Id),
			zap.Error(err))
	}

	s.record(ctx, audit.Event{
		UserId:       conn.UserId,
		Action:       audit.ActionSync,
		EntityId:     conn.Id,
		Success:      false,
		ErrorMessage: msg,
		Details: map[string]any{
			"days":  params.DaysBack,
			"force": params.Force,
		},
	})

	zap.L().Error("Connection sync failed",
		zap.String("connection_id", conn.Id),
		zap.String("status", string(status)),
		zap.Error(syncErr))
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), event); err != nil {
		zap.L().Warn("Failed to record audit event",
			zap.String("action", event.Action),
			zap.String("entity_id", event.EntityId),
			zap.Error(err))
	}
}

func truncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorMessage {
		return msg
	}
	return string(runes[:maxErrorMessage])
}
