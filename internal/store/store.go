package store

import (
	"context"
	"errors"
	"time"

	"open-finance-sync-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrItemAlreadyLinked  = errors.New("item is linked to another user")
)

// CreateConnectionParams contains the parameters for registering a linked
// institution. Registering an item id that already exists for the same user
// refreshes its institution fields.
type CreateConnectionParams struct {
	UserId           string
	Provider         string
	InstitutionId    string
	InstitutionName  string
	ItemId           string
	ConsentExpiresAt *time.Time
}

// UpsertAccountParams carries a reconciled provider account. The pair
// (UserId, ExternalAccountId) identifies the local row.
type UpsertAccountParams struct {
	UserId            string
	ExternalAccountId string
	Provider          string
	Name              string
	AccountType       models.AccountType
	Balance           decimal.Decimal
	Currency          string
	BankName          string
	SyncedAt          time.Time
}

// AuditFilter narrows an audit query. Empty Action and zero Since match
// everything; Limit defaults to 50.
type AuditFilter struct {
	UserId string
	Action string
	Since  time.Time
	Limit  int
}

// ConnectionStore manages linked institutions.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, params CreateConnectionParams) (*models.Connection, error)
	// GetConnection returns ErrConnectionNotFound when the connection does not
	// exist or belongs to another user.
	GetConnection(ctx context.Context, userId, connectionId string) (*models.Connection, error)
	ListConnections(ctx context.Context, userId string) ([]models.Connection, error)
	// ListSyncableConnections returns pending, active and error connections.
	ListSyncableConnections(ctx context.Context) ([]models.Connection, error)
	MarkConnectionSynced(ctx context.Context, connectionId string, syncedAt time.Time) error
	MarkConnectionFailed(ctx context.Context, connectionId string, status models.ConnectionStatus, message string) error
	MarkConnectionInactive(ctx context.Context, connectionId string) error
}

// AccountStore manages local ledger accounts.
type AccountStore interface {
	// GetAccountByExternalId returns ErrAccountNotFound for unknown accounts.
	GetAccountByExternalId(ctx context.Context, userId, externalAccountId string) (*models.Account, error)
	// UpsertAccount returns the local id and whether a new row was created.
	UpsertAccount(ctx context.Context, params UpsertAccountParams) (string, bool, error)
	ListAccounts(ctx context.Context, userId string) ([]models.Account, error)
}

// TransactionStore manages ledger entries.
type TransactionStore interface {
	TransactionExists(ctx context.Context, openFinanceId string) (bool, error)
	// InsertTransaction reports false without error when a row with the same
	// open_finance_id already exists.
	InsertTransaction(ctx context.Context, tx *models.Transaction) (bool, error)
	ListTransactions(ctx context.Context, userId, accountId string, limit, offset int) ([]models.Transaction, error)
	GetMostRecentTransactionTime(ctx context.Context, userId string) (time.Time, error)
}

// AuditStore persists audit records.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, record models.AuditRecord) error
	// ListAuditRecords returns matching records, newest first.
	ListAuditRecords(ctx context.Context, filter AuditFilter) ([]models.AuditRecord, error)
}

// LedgerStore defines the contract that every storage backend must satisfy.
type LedgerStore interface {
	ConnectionStore
	AccountStore
	TransactionStore
	AuditStore

	Ping(ctx context.Context) error
	Close()
}
