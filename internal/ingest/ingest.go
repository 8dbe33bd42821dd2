// Package ingest classifies, enriches and stores provider transactions.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"go.uber.org/zap"
)

// Mirror receives every newly stored transaction, for example to post it
// to an external ledger. Mirror failures never fail ingestion.
type Mirror interface {
	RecordTransaction(ctx context.Context, tx *models.Transaction) error
}

// Result reports the outcome of one ingestion.
type Result struct {
	Inserted      bool
	TransactionId string
	Type          models.TransactionType
}

type Ingester struct {
	transactions store.TransactionStore
	categories   CategoryResolver
	mirror       Mirror
}

type Option func(*Ingester)

func WithCategories(resolver CategoryResolver) Option {
	return func(i *Ingester) { i.categories = resolver }
}

func WithMirror(mirror Mirror) Option {
	return func(i *Ingester) { i.mirror = mirror }
}

func NewIngester(transactions store.TransactionStore, opts ...Option) *Ingester {
	i := &Ingester{transactions: transactions}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestTransaction stores tx under the given local account unless a row
// with the same provider id already exists. The existence check is only a
// shortcut; the unique open_finance_id constraint decides under races.
func (i *Ingester) IngestTransaction(
	ctx context.Context,
	tx models.ProviderTransaction,
	accountId string,
	userId string,
	accountType models.AccountType,
) (*Result, error) {
	if strings.TrimSpace(tx.Id) == "" {
		zap.L().Warn("Skipping provider transaction without id",
			zap.String("account_id", accountId),
			zap.String("description", Sanitize(tx.Description)))
		return &Result{}, nil
	}

	exists, err := i.transactions.TransactionExists(ctx, tx.Id)
	if err != nil {
		return nil, fmt.Errorf("unable to check transaction %s: %w", tx.Id, err)
	}
	if exists {
		zap.L().Debug("Transaction already ingested", zap.String("open_finance_id", tx.Id))
		return &Result{}, nil
	}

	direction := ClassifyDirection(accountType, tx.Amount)
	enriched := Enrich(tx, direction)

	record := &models.Transaction{
		UserId:          userId,
		AccountId:       accountId,
		OpenFinanceId:   optional(tx.Id),
		Description:     enriched.Description,
		Amount:          tx.Amount.Abs(),
		Type:            direction,
		TransactionDate: tx.Date,
		Tags:            enriched.Tags,
		Notes:           enriched.NotesText(),
		Status:          optional(tx.Status),
		ProviderCode:    optional(tx.ProviderCode),
		PaymentMethod:   optional(paymentMethod(&tx)),
		ReferenceNumber: optional(referenceNumber(&tx)),
		Mcc:             optional(mcc(&tx)),
		BankCategory:    optional(tx.Category),
	}
	if i.categories != nil && tx.Category != "" {
		if categoryId, ok := i.categories.Resolve(tx.Category); ok {
			record.CategoryId = &categoryId
		}
	}

	inserted, err := i.transactions.InsertTransaction(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("unable to store transaction %s: %w", tx.Id, err)
	}
	if !inserted {
		zap.L().Debug("Transaction inserted concurrently, skipping", zap.String("open_finance_id", tx.Id))
		return &Result{Type: direction}, nil
	}

	zap.L().Debug("Transaction ingested",
		zap.String("transaction_id", record.Id),
		zap.String("open_finance_id", tx.Id),
		zap.String("type", string(direction)),
		zap.String("amount", record.Amount.String()))

	if i.mirror != nil {
		if err := i.mirror.RecordTransaction(ctx, record); err != nil {
			zap.L().Warn("Failed to mirror transaction",
				zap.String("run_id", runId(ctx)),
				zap.String("transaction_id", record.Id),
				zap.String("open_finance_id", tx.Id),
				zap.Error(err))
		}
	}

	return &Result{
		Inserted:      true,
		TransactionId: record.Id,
		Type:          direction,
	}, nil
}

func runId(ctx context.Context) string {
	if sc := models.GetSyncContext(ctx); sc != nil {
		return sc.RunId
	}
	return ""
}

func referenceNumber(tx *models.ProviderTransaction) string {
	if tx.PaymentData == nil {
		return ""
	}
	return strings.TrimSpace(tx.PaymentData.ReferenceNumber)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
