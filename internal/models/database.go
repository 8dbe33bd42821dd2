package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConnectionStatus is the health state of a linked institution
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionActive   ConnectionStatus = "active"
	ConnectionError    ConnectionStatus = "error"
	ConnectionExpired  ConnectionStatus = "expired"
	ConnectionInactive ConnectionStatus = "inactive"
)

// AccountType is the local classification of a ledger account
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
	AccountOther      AccountType = "other"
)

// TransactionType carries the direction of a ledger entry
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

// Connection represents one linked institution for one user
type Connection struct {
	Id               string           `db:"id"`
	UserId           string           `db:"user_id"`
	Provider         string           `db:"provider"`
	InstitutionId    string           `db:"institution_id"`
	InstitutionName  string           `db:"institution_name"`
	ItemId           string           `db:"item_id"`
	Status           ConnectionStatus `db:"status"`
	ErrorMessage     *string          `db:"error_message"`
	ConsentExpiresAt *time.Time       `db:"consent_expires_at"`
	LastSyncAt       *time.Time       `db:"last_sync_at"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

// Account represents a local ledger account, provider-linked or manual
type Account struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	ExternalAccountId *string         `db:"external_account_id"`
	Provider          *string         `db:"provider"`
	Name              string          `db:"name"`
	AccountType       AccountType     `db:"account_type"`
	Balance           decimal.Decimal `db:"balance"`
	Currency          string          `db:"currency"`
	BankName          string          `db:"bank_name"`
	IsActive          bool            `db:"is_active"`
	LastSyncAt        *time.Time      `db:"last_sync_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction represents a ledger entry. Amount is always a non-negative
// magnitude; the direction lives in Type.
type Transaction struct {
	Id              string          `db:"id"`
	UserId          string          `db:"user_id"`
	AccountId       string          `db:"account_id"`
	OpenFinanceId   *string         `db:"open_finance_id"`
	Description     string          `db:"description"`
	Amount          decimal.Decimal `db:"amount"`
	Type            TransactionType `db:"type"`
	TransactionDate time.Time       `db:"transaction_date"`
	CategoryId      *string         `db:"category_id"`
	IsRecurring     bool            `db:"is_recurring"`
	Tags            []string        `db:"tags"`
	Notes           *string         `db:"notes"`
	Status          *string         `db:"status"`
	ProviderCode    *string         `db:"provider_code"`
	PaymentMethod   *string         `db:"payment_method"`
	ReferenceNumber *string         `db:"reference_number"`
	Mcc             *string         `db:"mcc"`
	BankCategory    *string         `db:"bank_category"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// AuditRecord is one durable entry of the audit log
type AuditRecord struct {
	Id           string         `db:"id"`
	UserId       string         `db:"user_id"`
	Action       string         `db:"action"`
	EntityId     string         `db:"entity_id"`
	Success      bool           `db:"success"`
	Details      map[string]any `db:"details"`
	ErrorMessage *string        `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
}
