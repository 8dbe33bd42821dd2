package common

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const sampleRules = `
categories:
  - id: cat-food
    labels: ["Alimentação", "Supermercado"]
  - id: cat-transport
    labels: ["Transporte"]
`

func TestParseCategoryRules(t *testing.T) {
	categories, err := ParseCategoryRules([]byte(sampleRules))
	if err != nil {
		t.Fatalf("ParseCategoryRules failed: %v", err)
	}

	tests := []struct {
		label  string
		want   string
		wantOk bool
	}{
		{label: "Alimentação", want: "cat-food", wantOk: true},
		{label: "alimentacao", want: "cat-food", wantOk: true},
		{label: "SUPERMERCADO", want: "cat-food", wantOk: true},
		{label: "Transporte", want: "cat-transport", wantOk: true},
		{label: "Lazer", wantOk: false},
	}
	for _, tt := range tests {
		got, ok := categories.Resolve(tt.label)
		if ok != tt.wantOk || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.label, got, ok, tt.want, tt.wantOk)
		}
	}
}

func TestParseCategoryRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		rules   string
		wantErr string
	}{
		{name: "missing id", rules: "categories:\n  - labels: [\"Lazer\"]\n", wantErr: "missing id"},
		{name: "no labels", rules: "categories:\n  - id: cat-x\n", wantErr: "no labels"},
		{
			name:    "label claimed twice",
			rules:   "categories:\n  - id: a\n    labels: [\"Saúde\"]\n  - id: b\n    labels: [\"saude\"]\n",
			wantErr: "mapped to both",
		},
		{name: "malformed", rules: "categories: [", wantErr: "unable to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCategoryRules([]byte(tt.rules))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadCategoryRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(path, []byte(sampleRules), 0o600); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	categories, err := LoadCategoryRules(path)
	if err != nil {
		t.Fatalf("LoadCategoryRules failed: %v", err)
	}
	if _, ok := categories.Resolve("Transporte"); !ok {
		t.Error("expected Transporte to resolve")
	}

	if _, err := LoadCategoryRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(decimal.RequireFromString("-1200"), ""); got != "-1200.00 BRL" {
		t.Errorf("FormatMoney() = %q", got)
	}
	if got := FormatMoney(decimal.RequireFromString("10.5"), "USD"); got != "10.50 USD" {
		t.Errorf("FormatMoney() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Transferência recebida", 10); got != "Transfe..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("curto", 10); got != "curto" {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestIsIgnorableSyncError(t *testing.T) {
	if !isIgnorableSyncError(errors.New("sync /dev/stderr: inappropriate ioctl for device")) {
		t.Error("expected stderr sync error to be ignorable")
	}
	if isIgnorableSyncError(errors.New("disk full")) {
		t.Error("expected other errors to be reported")
	}
}
