package formance

import (
	"math/big"
	"testing"
	"time"

	"open-finance-sync-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		currency string
		want     string
	}{
		{"BRL", "BRL/2"},
		{"USD", "USD/2"},
		{"CLP", "CLP/0"},
		{"XYZ", "XYZ/2"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.currency); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.currency, got, tt.want)
		}
	}
}

func TestAccountAddress(t *testing.T) {
	got := accountAddress("user@example.com", "8c1f-42")
	want := "users:user_example_com:accounts:8c1f-42"
	if got != want {
		t.Errorf("accountAddress = %q, want %q", got, want)
	}
	if seg := addressSegment("  "); seg != "unknown" {
		t.Errorf("addressSegment(blank) = %q", seg)
	}
}

func TestBigIntToDecimal(t *testing.T) {
	// 12345 centavos = 123.45 BRL
	result := bigIntToDecimal(big.NewInt(12345), "BRL")
	if !result.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("expected 123.45, got %s", result.String())
	}

	// nil should return zero
	result = bigIntToDecimal(nil, "BRL")
	if !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"BRL/2": {Input: big.NewInt(1000), Output: big.NewInt(250)},
	}
	if got := volumeBalance(vols, "BRL/2"); got == nil || got.Int64() != 750 {
		t.Errorf("volumeBalance = %v, want 750", got)
	}
	if got := volumeBalance(vols, "USD/2"); got != nil {
		t.Errorf("expected nil for missing asset, got %v", got)
	}
}

func TestIsConflictError(t *testing.T) {
	// nil error should not be a conflict
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}

func TestBuildPostTransaction(t *testing.T) {
	s := &Service{ledger: "open-finance", currency: "BRL"}
	ofId := "of-123"
	date := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	income, err := s.buildPostTransaction(&models.Transaction{
		Id:              "tx-1",
		UserId:          "user1",
		AccountId:       "acc1",
		OpenFinanceId:   &ofId,
		Description:     "PIX recebido",
		Amount:          decimal.RequireFromString("50.00"),
		Type:            models.TransactionIncome,
		TransactionDate: date,
	})
	if err != nil {
		t.Fatalf("buildPostTransaction failed: %v", err)
	}
	if income.Script.Plain != numscriptIncome {
		t.Error("expected income script")
	}
	if income.Script.Vars["amount"] != "5000" || income.Script.Vars["asset"] != "BRL/2" {
		t.Errorf("vars = %v", income.Script.Vars)
	}
	if income.Script.Vars["destination"] != "users:user1:accounts:acc1" {
		t.Errorf("destination = %q", income.Script.Vars["destination"])
	}
	if income.Reference == nil || *income.Reference != "open-finance:of-123" {
		t.Errorf("reference = %v", income.Reference)
	}
	if income.Timestamp == nil || !income.Timestamp.Equal(date) {
		t.Errorf("timestamp = %v", income.Timestamp)
	}

	expense, err := s.buildPostTransaction(&models.Transaction{
		Id:        "tx-2",
		UserId:    "user1",
		AccountId: "acc1",
		Amount:    decimal.RequireFromString("30.005"),
		Type:      models.TransactionExpense,
	})
	if err != nil {
		t.Fatalf("buildPostTransaction failed: %v", err)
	}
	if expense.Script.Plain != numscriptExpense || expense.Script.Vars["source"] != "users:user1:accounts:acc1" {
		t.Errorf("unexpected expense: %+v", expense.Script)
	}
	if expense.Script.Vars["amount"] != "3000" {
		t.Errorf("amount = %q, want 3000", expense.Script.Vars["amount"])
	}
	if *expense.Reference != "open-finance:tx-2" {
		t.Errorf("reference = %q", *expense.Reference)
	}
	if expense.Timestamp != nil {
		t.Error("expected no timestamp for zero date")
	}

	if _, err := s.buildPostTransaction(&models.Transaction{Amount: decimal.NewFromInt(-1)}); err == nil {
		t.Error("expected error for negative amount")
	}
}
