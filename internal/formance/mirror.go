package formance

import (
	"context"
	"fmt"
	"math/big"

	"open-finance-sync-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Income enters the user's account from the outside world.
const numscriptIncome = `vars {
  asset $asset
  number $amount
  account $destination
  string $open_finance_id
  string $description
}

send [$asset $amount] (
  source = @world
  destination = $destination
)

set_tx_meta("event_type", "open_finance_income")
set_tx_meta("open_finance_id", $open_finance_id)
set_tx_meta("description", $description)
`

// Expenses leave the account; the ledger does not know the real balance so
// the account may go negative.
const numscriptExpense = `vars {
  asset $asset
  number $amount
  account $source
  string $open_finance_id
  string $description
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = @external:expenses
)

set_tx_meta("event_type", "open_finance_expense")
set_tx_meta("open_finance_id", $open_finance_id)
set_tx_meta("description", $description)
`

// RecordTransaction posts a stored transaction to the ledger. Posting the
// same transaction twice is a no-op.
func (s *Service) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	postTx, err := s.buildPostTransaction(tx)
	if err != nil {
		return err
	}
	if sc := models.GetSyncContext(ctx); sc != nil {
		postTx.Metadata = map[string]string{
			"sync_run_id":   sc.RunId,
			"connection_id": sc.ConnectionId,
			"institution":   sc.Institution,
		}
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error mirroring transaction: %w", err)
	}

	zap.L().Debug("Transaction mirrored in Formance",
		zap.String("transaction_id", tx.Id),
		zap.String("type", string(tx.Type)),
		zap.String("amount", tx.Amount.String()))
	return nil
}

func (s *Service) buildPostTransaction(tx *models.Transaction) (shared.V2PostTransaction, error) {
	if tx.Amount.IsNegative() {
		return shared.V2PostTransaction{}, fmt.Errorf("cannot mirror negative amount %s", tx.Amount)
	}

	reference := tx.Id
	if tx.OpenFinanceId != nil {
		reference = *tx.OpenFinanceId
	}
	if reference == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("transaction has no reference")
	}

	vars := map[string]string{
		"asset":           formanceAsset(s.currency),
		"amount":          tx.Amount.Shift(int32(precisionFor(s.currency))).BigInt().String(),
		"open_finance_id": reference,
		"description":     tx.Description,
	}

	script := numscriptExpense
	address := accountAddress(tx.UserId, tx.AccountId)
	if tx.Type == models.TransactionIncome {
		script = numscriptIncome
		vars["destination"] = address
	} else {
		vars["source"] = address
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr("open-finance:" + reference),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
	}
	if !tx.TransactionDate.IsZero() {
		ts := tx.TransactionDate
		postTx.Timestamp = &ts
	}
	return postTx, nil
}

// AccountBalance returns the mirrored balance of one local account.
func (s *Service) AccountBalance(ctx context.Context, userId, accountId string) (decimal.Decimal, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: accountAddress(userId, accountId),
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("unable to get ledger account: %w", err)
	}
	bal := volumeBalance(resp.V2AccountResponse.Data.Volumes, formanceAsset(s.currency))
	return bigIntToDecimal(bal, s.currency), nil
}

func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

func bigIntToDecimal(raw *big.Int, currency string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(currency)))
}
