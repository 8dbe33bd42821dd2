package syncer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"open-finance-sync-go/internal/audit"
	"open-finance-sync-go/internal/database"
	"open-finance-sync-go/internal/ingest"
	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/provider"
	"open-finance-sync-go/internal/reconcile"
	"open-finance-sync-go/internal/store"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu sync.Mutex

	item         *models.ProviderItem
	itemErr      error
	accounts     []models.ProviderAccount
	transactions map[string][]models.ProviderTransaction
	txErr        map[string]error
	deleteErr    error
	block        bool

	itemCalls   int
	syncCalls   int
	deleteCalls int
	txParams    []provider.TransactionsParams
}

func (f *fakeProvider) Name() string { return "pluggy" }

func (f *fakeProvider) GetItem(_ context.Context, itemId string) (*models.ProviderItem, error) {
	f.mu.Lock()
	f.itemCalls++
	f.mu.Unlock()
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	if f.item != nil {
		return f.item, nil
	}
	return &models.ProviderItem{Id: itemId, Status: "UPDATED"}, nil
}

func (f *fakeProvider) SyncItem(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return nil
}

func (f *fakeProvider) GetAccounts(ctx context.Context, _ string) ([]models.ProviderAccount, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.accounts, nil
}

func (f *fakeProvider) GetTransactions(_ context.Context, params provider.TransactionsParams) ([]models.ProviderTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txParams = append(f.txParams, params)
	if err := f.txErr[params.AccountId]; err != nil {
		return nil, err
	}
	return f.transactions[params.AccountId], nil
}

func (f *fakeProvider) DeleteItem(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

type fixture struct {
	db       *database.Service
	provider *fakeProvider
	service  *Service
	conn     *models.Connection
}

func setupFixture(t *testing.T, p *fakeProvider, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	conn, err := db.CreateConnection(ctx, store.CreateConnectionParams{
		UserId:          "user1",
		Provider:        "pluggy",
		InstitutionId:   "201",
		InstitutionName: "Banco Teste",
		ItemId:          "item-1",
	})
	if err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	clock := func() time.Time { return testNow }
	opts = append([]Option{WithClock(clock)}, opts...)
	service := NewService(
		db,
		p,
		reconcile.NewReconciler(db, p.Name(), reconcile.WithClock(clock)),
		ingest.NewIngester(db),
		audit.NewStoreSink(db),
		opts...,
	)
	return &fixture{db: db, provider: p, service: service, conn: conn}
}

func checkingAccount(id string) models.ProviderAccount {
	return models.ProviderAccount{
		Id:           id,
		Type:         "BANK",
		Subtype:      "CHECKING_ACCOUNT",
		Name:         "Conta Corrente " + id,
		Balance:      decimal.RequireFromString("100.00"),
		CurrencyCode: "BRL",
	}
}

func pixIncome() models.ProviderTransaction {
	return models.ProviderTransaction{
		Id:          "tx-pix",
		Description: "PIX recebido",
		Amount:      decimal.RequireFromString("50.00"),
		Date:        testNow.AddDate(0, 0, -1),
		Status:      "POSTED",
		PaymentData: &models.PaymentData{
			PaymentMethod: "PIX",
			Payer:         &models.PaymentParticipant{Name: "Maria Silva"},
		},
	}
}

func groceryExpense() models.ProviderTransaction {
	return models.ProviderTransaction{
		Id:          "tx-mercado",
		Description: "Mercado",
		Amount:      decimal.RequireFromString("-30.00"),
		Date:        testNow.AddDate(0, 0, -2),
		Status:      "POSTED",
	}
}

func auditRecords(t *testing.T, db *database.Service) []models.AuditRecord {
	t.Helper()
	records, err := db.ListAuditRecords(context.Background(), store.AuditFilter{UserId: "user1", Limit: 10})
	if err != nil {
		t.Fatalf("ListAuditRecords failed: %v", err)
	}
	return records
}

func TestSyncConnection_FreshSync(t *testing.T) {
	p := &fakeProvider{
		accounts: []models.ProviderAccount{checkingAccount("acc-1")},
		transactions: map[string][]models.ProviderTransaction{
			"acc-1": {pixIncome(), groceryExpense()},
		},
	}
	f := setupFixture(t, p)
	ctx := context.Background()

	result, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: f.conn.Id})
	if err != nil {
		t.Fatalf("SyncConnection failed: %v", err)
	}
	if result.AccountsSynced != 1 || result.TransactionsSynced != 2 {
		t.Fatalf("expected 1 account and 2 transactions, got %+v", result)
	}

	accounts, err := f.db.ListAccounts(ctx, "user1")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	acct := accounts[0]
	if acct.AccountType != models.AccountChecking || !acct.Balance.Equal(decimal.RequireFromString("100.00")) || acct.Currency != "BRL" {
		t.Errorf("unexpected account: %+v", acct)
	}

	transactions, err := f.db.ListTransactions(ctx, "user1", acct.Id, 10, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(transactions))
	}
	byId := map[string]models.Transaction{}
	for _, tx := range transactions {
		byId[*tx.OpenFinanceId] = tx
	}

	pix := byId["tx-pix"]
	if pix.Type != models.TransactionIncome || !pix.Amount.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("unexpected pix transaction: %+v", pix)
	}
	hasTag := false
	for _, tag := range pix.Tags {
		if tag == ingest.TagPixIncoming {
			hasTag = true
		}
	}
	if !hasTag {
		t.Errorf("expected tag %q, got %v", ingest.TagPixIncoming, pix.Tags)
	}

	grocery := byId["tx-mercado"]
	if grocery.Type != models.TransactionExpense || !grocery.Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("unexpected expense transaction: %+v", grocery)
	}

	conn, err := f.db.GetConnection(ctx, "user1", f.conn.Id)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if conn.Status != models.ConnectionActive || conn.LastSyncAt == nil || !conn.LastSyncAt.Equal(testNow) {
		t.Errorf("expected active connection synced at %v, got %+v", testNow, conn)
	}

	if len(p.txParams) != 1 {
		t.Fatalf("expected one transaction fetch, got %d", len(p.txParams))
	}
	if want := testNow.AddDate(0, 0, -DefaultDaysBack); !p.txParams[0].From.Equal(want) || !p.txParams[0].To.Equal(testNow) {
		t.Errorf("unexpected window %v..%v", p.txParams[0].From, p.txParams[0].To)
	}

	records := auditRecords(t, f.db)
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	rec := records[0]
	if rec.Action != audit.ActionSync || !rec.Success || rec.EntityId != f.conn.Id {
		t.Errorf("unexpected audit record: %+v", rec)
	}
	if rec.Details["accounts_synced"] != float64(1) || rec.Details["transactions_synced"] != float64(2) {
		t.Errorf("unexpected audit details: %v", rec.Details)
	}
}

func TestSyncConnection_RepeatedSyncIsIdempotent(t *testing.T) {
	p := &fakeProvider{
		accounts: []models.ProviderAccount{checkingAccount("acc-1")},
		transactions: map[string][]models.ProviderTransaction{
			"acc-1": {pixIncome(), groceryExpense()},
		},
	}
	f := setupFixture(t, p)
	ctx := context.Background()
	params := SyncParams{UserId: "user1", ConnectionId: f.conn.Id}

	if _, err := f.service.SyncConnection(ctx, params); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	second, err := f.service.SyncConnection(ctx, params)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if second.AccountsSynced != 1 || second.TransactionsSynced != 0 {
		t.Fatalf("expected 1 account and 0 new transactions, got %+v", second)
	}

	accounts, _ := f.db.ListAccounts(ctx, "user1")
	if len(accounts) != 1 {
		t.Errorf("expected 1 account after resync, got %d", len(accounts))
	}
	transactions, _ := f.db.ListTransactions(ctx, "user1", "", 10, 0)
	if len(transactions) != 2 {
		t.Errorf("expected 2 transactions after resync, got %d", len(transactions))
	}
}

func TestSyncConnection_FailureMidway(t *testing.T) {
	fetchErr := errors.New("upstream exploded")
	p := &fakeProvider{
		accounts: []models.ProviderAccount{
			checkingAccount("acc-1"),
			checkingAccount("acc-2"),
			checkingAccount("acc-3"),
		},
		transactions: map[string][]models.ProviderTransaction{
			"acc-1": {groceryExpense()},
		},
		txErr: map[string]error{"acc-2": fetchErr},
	}
	f := setupFixture(t, p)
	ctx := context.Background()

	_, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: f.conn.Id})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	conn, err := f.db.GetConnection(ctx, "user1", f.conn.Id)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if conn.Status != models.ConnectionError || conn.LastSyncAt != nil {
		t.Errorf("expected error status without last sync, got %+v", conn)
	}
	if conn.ErrorMessage == nil || !strings.Contains(*conn.ErrorMessage, "upstream exploded") {
		t.Errorf("expected error message to be stored, got %v", conn.ErrorMessage)
	}

	// Work done before the failure is kept.
	accounts, _ := f.db.ListAccounts(ctx, "user1")
	if len(accounts) != 2 {
		t.Errorf("expected 2 reconciled accounts, got %d", len(accounts))
	}
	transactions, _ := f.db.ListTransactions(ctx, "user1", "", 10, 0)
	if len(transactions) != 1 {
		t.Errorf("expected 1 ingested transaction, got %d", len(transactions))
	}

	records := auditRecords(t, f.db)
	if len(records) != 1 || records[0].Success || records[0].ErrorMessage == nil {
		t.Fatalf("expected one failed audit record, got %+v", records)
	}
}

func TestSyncConnection_NotFound(t *testing.T) {
	f := setupFixture(t, &fakeProvider{})
	ctx := context.Background()

	_, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: "missing"})
	if !errors.Is(err, store.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}

	_, err = f.service.SyncConnection(ctx, SyncParams{UserId: "user2", ConnectionId: f.conn.Id})
	if !errors.Is(err, store.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound for foreign user, got %v", err)
	}

	if records := auditRecords(t, f.db); len(records) != 0 {
		t.Errorf("expected no audit records, got %d", len(records))
	}
}

func TestSyncConnection_Validation(t *testing.T) {
	f := setupFixture(t, &fakeProvider{})

	tests := []struct {
		name   string
		params SyncParams
		field  string
	}{
		{name: "missing user", params: SyncParams{ConnectionId: "c"}, field: "user_id"},
		{name: "missing connection", params: SyncParams{UserId: "u"}, field: "connection_id"},
		{name: "negative days", params: SyncParams{UserId: "u", ConnectionId: "c", DaysBack: -1}, field: "days_back"},
		{name: "too many days", params: SyncParams{UserId: "u", ConnectionId: "c", DaysBack: 91}, field: "days_back"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SyncConnection(context.Background(), tt.params)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, vErr.Field)
			}
		})
	}
}

func TestSyncConnection_CustomDaysAndForce(t *testing.T) {
	p := &fakeProvider{accounts: []models.ProviderAccount{checkingAccount("acc-1")}}
	f := setupFixture(t, p)

	_, err := f.service.SyncConnection(context.Background(), SyncParams{
		UserId:       "user1",
		ConnectionId: f.conn.Id,
		DaysBack:     30,
		Force:        true,
	})
	if err != nil {
		t.Fatalf("SyncConnection failed: %v", err)
	}
	if p.syncCalls != 1 {
		t.Errorf("expected one provider refresh, got %d", p.syncCalls)
	}
	if want := testNow.AddDate(0, 0, -30); !p.txParams[0].From.Equal(want) {
		t.Errorf("expected window start %v, got %v", want, p.txParams[0].From)
	}
}

func TestSyncConnection_RemoteItemStates(t *testing.T) {
	expired := testNow.Add(-time.Hour)
	tests := []struct {
		name   string
		item   *models.ProviderItem
		want   error
		status models.ConnectionStatus
	}{
		{
			name: "login error",
			item: &models.ProviderItem{
				Status: "LOGIN_ERROR",
				Error:  &models.ProviderItemError{Code: "INVALID_CREDENTIALS", Message: "senha incorreta"},
			},
			want:   ErrRemoteItemError,
			status: models.ConnectionError,
		},
		{
			name:   "consent expired",
			item:   &models.ProviderItem{Status: "UPDATED", ConsentExpiresAt: &expired},
			want:   ErrConsentExpired,
			status: models.ConnectionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{item: tt.item, accounts: []models.ProviderAccount{checkingAccount("acc-1")}}
			f := setupFixture(t, p)
			ctx := context.Background()

			_, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: f.conn.Id})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			conn, _ := f.db.GetConnection(ctx, "user1", f.conn.Id)
			if conn.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, conn.Status)
			}
			if accounts, _ := f.db.ListAccounts(ctx, "user1"); len(accounts) != 0 {
				t.Errorf("expected no accounts to be touched, got %d", len(accounts))
			}
		})
	}
}

func TestSyncConnection_Timeout(t *testing.T) {
	p := &fakeProvider{block: true}
	f := setupFixture(t, p, WithTimeout(20*time.Millisecond))
	ctx := context.Background()

	_, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: f.conn.Id})
	if !errors.Is(err, ErrSyncInterrupted) {
		t.Fatalf("expected ErrSyncInterrupted, got %v", err)
	}

	conn, _ := f.db.GetConnection(ctx, "user1", f.conn.Id)
	if conn.Status != models.ConnectionError || conn.LastSyncAt != nil {
		t.Errorf("expected error status without last sync, got %+v", conn)
	}
	if records := auditRecords(t, f.db); len(records) != 1 || records[0].Success {
		t.Errorf("expected one failed audit record, got %+v", records)
	}
}

func TestSyncConnection_CreditCard(t *testing.T) {
	p := &fakeProvider{
		accounts: []models.ProviderAccount{{
			Id:           "card-1",
			Type:         "CREDIT",
			Subtype:      "CREDIT_CARD",
			Name:         "Cartão",
			Balance:      decimal.RequireFromString("1200.00"),
			CurrencyCode: "BRL",
		}},
		transactions: map[string][]models.ProviderTransaction{
			"card-1": {{
				Id:          "card-tx",
				Description: "Livraria",
				Amount:      decimal.RequireFromString("80.00"),
				Date:        testNow.AddDate(0, 0, -1),
			}},
		},
	}
	f := setupFixture(t, p)
	ctx := context.Background()

	if _, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: f.conn.Id}); err != nil {
		t.Fatalf("SyncConnection failed: %v", err)
	}

	accounts, _ := f.db.ListAccounts(ctx, "user1")
	if len(accounts) != 1 || accounts[0].AccountType != models.AccountCreditCard {
		t.Fatalf("expected one credit card account, got %+v", accounts)
	}
	if !accounts[0].Balance.Equal(decimal.RequireFromString("-1200.00")) {
		t.Errorf("expected card balance to be stored as a liability, got %s", accounts[0].Balance)
	}

	transactions, _ := f.db.ListTransactions(ctx, "user1", "", 10, 0)
	if len(transactions) != 1 || transactions[0].Type != models.TransactionExpense {
		t.Errorf("expected card purchase to be an expense, got %+v", transactions)
	}
}

func TestSyncConnection_DisconnectedStaysInactive(t *testing.T) {
	tests := []struct {
		name    string
		itemErr error
	}{
		{name: "item removed at provider", itemErr: &provider.APIError{StatusCode: 404, Message: "item not found"}},
		{name: "item still at provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{accounts: []models.ProviderAccount{checkingAccount("acc-1")}}
			f := setupFixture(t, p)
			ctx := context.Background()

			if err := f.service.Disconnect(ctx, "user1", f.conn.Id); err != nil {
				t.Fatalf("Disconnect failed: %v", err)
			}
			p.itemErr = tt.itemErr

			res, err := f.service.SyncConnection(ctx, SyncParams{UserId: "user1", ConnectionId: f.conn.Id, Force: true})
			if !errors.Is(err, ErrConnectionInactive) {
				t.Fatalf("expected ErrConnectionInactive, got res=%+v err=%v", res, err)
			}
			if p.itemCalls != 0 || p.syncCalls != 0 || len(p.txParams) != 0 {
				t.Errorf("expected no provider calls, got item=%d sync=%d tx=%d", p.itemCalls, p.syncCalls, len(p.txParams))
			}

			conn, err := f.db.GetConnection(ctx, "user1", f.conn.Id)
			if err != nil {
				t.Fatal(err)
			}
			if conn.Status != models.ConnectionInactive {
				t.Errorf("expected status inactive, got %s", conn.Status)
			}
			if conn.ErrorMessage != nil || conn.LastSyncAt != nil {
				t.Errorf("expected untouched bookkeeping, got %+v", conn)
			}
			accounts, err := f.db.ListAccounts(ctx, "user1")
			if err != nil {
				t.Fatal(err)
			}
			if len(accounts) != 0 {
				t.Errorf("expected no reconciled accounts, got %d", len(accounts))
			}
			// Only the disconnect is audited.
			if records := auditRecords(t, f.db); len(records) != 1 || records[0].Action != audit.ActionDisconnect {
				t.Errorf("unexpected audit records: %+v", records)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	tests := []struct {
		name      string
		deleteErr error
		wantErr   bool
		status    models.ConnectionStatus
	}{
		{name: "removed", status: models.ConnectionInactive},
		{name: "already gone", deleteErr: &provider.APIError{StatusCode: 404, Message: "not found"}, status: models.ConnectionInactive},
		{name: "provider failure", deleteErr: &provider.APIError{StatusCode: 500, Message: "boom"}, wantErr: true, status: models.ConnectionPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{deleteErr: tt.deleteErr}
			f := setupFixture(t, p)
			ctx := context.Background()

			err := f.service.Disconnect(ctx, "user1", f.conn.Id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Disconnect error = %v, wantErr %v", err, tt.wantErr)
			}
			conn, _ := f.db.GetConnection(ctx, "user1", f.conn.Id)
			if conn.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, conn.Status)
			}
			records := auditRecords(t, f.db)
			if len(records) != 1 || records[0].Action != audit.ActionDisconnect || records[0].Success == tt.wantErr {
				t.Errorf("unexpected audit records: %+v", records)
			}
		})
	}

	t.Run("unknown connection", func(t *testing.T) {
		f := setupFixture(t, &fakeProvider{})
		err := f.service.Disconnect(context.Background(), "user1", "missing")
		if !errors.Is(err, store.ErrConnectionNotFound) {
			t.Fatalf("expected ErrConnectionNotFound, got %v", err)
		}
		if f.provider.deleteCalls != 0 {
			t.Errorf("expected no provider call, got %d", f.provider.deleteCalls)
		}
	})
}
