package reconcile

import (
	"context"
	"testing"
	"time"

	"open-finance-sync-go/internal/database"
	"open-finance-sync-go/internal/models"

	"github.com/shopspring/decimal"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestDeriveAccountType(t *testing.T) {
	tests := []struct {
		providerType string
		subtype      string
		want         models.AccountType
	}{
		{"CREDIT", "CREDIT_CARD", models.AccountCreditCard},
		{"CREDIT", "", models.AccountCreditCard},
		{"BANK", "CREDIT_CARD", models.AccountCreditCard},
		{"BANK", "CHECKING_ACCOUNT", models.AccountChecking},
		{"BANK", "SAVINGS_ACCOUNT", models.AccountSavings},
		{"bank", "savings_account", models.AccountSavings},
		{"BANK", "", models.AccountChecking},
		{"INVESTMENT", "MUTUAL_FUNDS", models.AccountOther},
		{"", "", models.AccountOther},
	}
	for _, tt := range tests {
		if got := DeriveAccountType(tt.providerType, tt.subtype); got != tt.want {
			t.Errorf("DeriveAccountType(%q, %q) = %s, want %s", tt.providerType, tt.subtype, got, tt.want)
		}
	}
}

func TestCreditCardBalance(t *testing.T) {
	tests := []struct {
		name string
		acct models.ProviderAccount
		want string
	}{
		{"available limit wins", models.ProviderAccount{
			Balance:    decimal.NewFromInt(300),
			CreditData: &models.CreditData{AvailableCreditLimit: decPtr("2000")},
		}, "2000"},
		{"positive raw balance becomes debt", models.ProviderAccount{Balance: decimal.NewFromInt(300)}, "-300"},
		{"negative raw balance stays debt", models.ProviderAccount{Balance: decimal.NewFromInt(-300)}, "-300"},
		{"credit data without limit", models.ProviderAccount{
			Balance:    decimal.RequireFromString("150.75"),
			CreditData: &models.CreditData{CreditLimit: decPtr("5000")},
		}, "-150.75"},
		{"nothing reported", models.ProviderAccount{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CreditCardBalance(tt.acct)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("CreditCardBalance = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBalance_BankKeepsSign(t *testing.T) {
	r := NewReconciler(nil, "pluggy")
	got := r.Balance(models.AccountChecking, models.ProviderAccount{Balance: decimal.NewFromInt(-25)})
	if !got.Equal(decimal.NewFromInt(-25)) {
		t.Errorf("Balance = %s, want -25", got)
	}
}

func TestBalance_CustomStrategy(t *testing.T) {
	r := NewReconciler(nil, "pluggy", WithBalanceStrategy(func(models.ProviderAccount) decimal.Decimal {
		return decimal.NewFromInt(7)
	}))
	got := r.Balance(models.AccountCreditCard, models.ProviderAccount{Balance: decimal.NewFromInt(100)})
	if !got.Equal(decimal.NewFromInt(7)) {
		t.Errorf("Balance = %s, want 7", got)
	}
}

func setupTestDb(t *testing.T) *database.Service {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestReconcileAccount_Idempotent(t *testing.T) {
	db := setupTestDb(t)
	ctx := context.Background()
	syncedAt := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	r := NewReconciler(db, "pluggy", WithClock(func() time.Time { return syncedAt }))

	acct := models.ProviderAccount{
		Id:            "acc-1",
		Type:          "BANK",
		Subtype:       "CHECKING_ACCOUNT",
		Name:          "Conta",
		MarketingName: "Conta Corrente Plus",
		Balance:       decimal.RequireFromString("100.00"),
	}

	first, err := r.ReconcileAccount(ctx, acct, "Banco Teste", "user1")
	if err != nil {
		t.Fatalf("first ReconcileAccount failed: %v", err)
	}
	if !first.Created || first.AccountType != models.AccountChecking {
		t.Errorf("unexpected first result: %+v", first)
	}

	acct.Balance = decimal.RequireFromString("80.00")
	second, err := r.ReconcileAccount(ctx, acct, "Banco Teste", "user1")
	if err != nil {
		t.Fatalf("second ReconcileAccount failed: %v", err)
	}
	if second.Created {
		t.Error("expected second reconcile to update")
	}
	if second.AccountId != first.AccountId {
		t.Errorf("account id changed from %s to %s", first.AccountId, second.AccountId)
	}

	accounts, err := db.ListAccounts(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	got := accounts[0]
	if !got.Balance.Equal(decimal.RequireFromString("80")) {
		t.Errorf("balance = %s, want 80", got.Balance)
	}
	if got.Name != "Conta Corrente Plus" || got.BankName != "Banco Teste" || got.Currency != DefaultCurrency {
		t.Errorf("unexpected account: %+v", got)
	}
	if got.Provider == nil || *got.Provider != "pluggy" {
		t.Errorf("provider = %v", got.Provider)
	}
	if got.LastSyncAt == nil || !got.LastSyncAt.Equal(syncedAt) {
		t.Errorf("last_sync_at = %v, want %v", got.LastSyncAt, syncedAt)
	}
}

func TestReconcileAccount_CreditCardWithAvailableLimit(t *testing.T) {
	db := setupTestDb(t)
	ctx := context.Background()
	r := NewReconciler(db, "pluggy")

	result, err := r.ReconcileAccount(ctx, models.ProviderAccount{
		Id:         "card-1",
		Type:       "CREDIT",
		Subtype:    "CREDIT_CARD",
		Name:       "Cartão",
		Balance:    decimal.NewFromInt(450),
		CreditData: &models.CreditData{AvailableCreditLimit: decPtr("2000")},
	}, "Banco Teste", "user1")
	if err != nil {
		t.Fatalf("ReconcileAccount failed: %v", err)
	}
	if result.AccountType != models.AccountCreditCard {
		t.Errorf("type = %s, want credit_card", result.AccountType)
	}

	account, err := db.GetAccountByExternalId(ctx, "user1", "card-1")
	if err != nil {
		t.Fatal(err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("stored balance = %s, want 2000", account.Balance)
	}
}

func TestReconcileAccount_RequiresId(t *testing.T) {
	r := NewReconciler(setupTestDb(t), "pluggy")
	if _, err := r.ReconcileAccount(context.Background(), models.ProviderAccount{}, "Banco", "user1"); err == nil {
		t.Error("expected error for account without id")
	}
}
